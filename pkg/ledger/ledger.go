// Package ledger owns the loan ledger: origination, payment application and
// the closing rule, plus read-only projections of repository state.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rahulm/bank-lending/pkg/amortization"
	"github.com/rahulm/bank-lending/pkg/cache"
	"github.com/rahulm/bank-lending/pkg/models"
	"github.com/rahulm/bank-lending/pkg/store"
)

// finalPaymentTolerance absorbs cent-level rounding on the last installment.
var finalPaymentTolerance = decimal.NewFromFloat(0.01)

// maxApplyRetries bounds the optimistic-retry loop for concurrent payments
// against the same loan. A stale write is cheap, so the bound is generous.
const maxApplyRetries = 32

// Ledger handles the business logic for loans and payments.
type Ledger struct {
	storage store.Storage
	cache   cache.Cache
	log     *logrus.Logger
}

// NewLedger creates a new Ledger over the given Storage and projection cache.
func NewLedger(s store.Storage, c cache.Cache, log *logrus.Logger) *Ledger {
	return &Ledger{storage: s, cache: c, log: log}
}

// Originate creates an ACTIVE loan for a customer using flat simple-interest
// terms. The returned loan carries the derived total and fixed EMI.
func (l *Ledger) Originate(customerID int64, principal decimal.Decimal, years int, ratePercent decimal.Decimal) (*models.Loan, error) {
	if customerID <= 0 {
		return nil, fmt.Errorf("%w: customer_id must be a positive integer", ErrInvalidInput)
	}
	terms, err := amortization.Compute(principal, years, ratePercent)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	if _, err := l.storage.GetCustomer(customerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: customer %d does not exist", ErrInvalidInput, customerID)
		}
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}

	loan := &models.Loan{
		CustomerID:  customerID,
		Principal:   principal,
		TotalAmount: terms.Total,
		MonthlyEMI:  terms.MonthlyEMI,
		AmountPaid:  decimal.Zero,
		EMIsLeft:    terms.Installments,
		Status:      models.LoanStatusActive,
		CreatedAt:   time.Now().UTC(),
		Version:     1,
	}

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.invalidateOverview(customerID)
	l.log.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"customer_id": customerID,
		"total":       terms.Total,
		"emi":         terms.MonthlyEMI,
	}).Info("loan originated")
	return loan, nil
}

// ApplyPayment applies an EMI or lump-sum payment to an active loan. It
// returns the appended payment (with the resulting balance and installment
// snapshots) and whether the payment closed the loan.
//
// The read-validate-write cycle is keyed on the loan's version: if another
// payment landed in between, the write is rejected by the store and the whole
// cycle re-runs against the fresh state, so concurrent payments on one loan
// serialize without blocking payments on other loans.
func (l *Ledger) ApplyPayment(loanID int64, amount decimal.Decimal, kind models.PaymentType) (*models.Payment, bool, error) {
	if kind != models.PaymentTypeEMI && kind != models.PaymentTypeLumpSum {
		return nil, false, fmt.Errorf("%w: payment_type must be either %q or %q", ErrInvalidInput, models.PaymentTypeEMI, models.PaymentTypeLumpSum)
	}

	for attempt := 0; attempt < maxApplyRetries; attempt++ {
		loan, err := l.storage.GetActiveLoan(loanID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, false, ErrLoanNotFound
			}
			return nil, false, fmt.Errorf("failed to read loan: %w", err)
		}

		if !amount.IsPositive() {
			return nil, false, ErrInvalidAmount
		}

		remainingDue := loan.RemainingDue()

		if kind == models.PaymentTypeEMI {
			if remainingDue.GreaterThanOrEqual(loan.MonthlyEMI) {
				if amount.LessThan(loan.MonthlyEMI) {
					return nil, false, fmt.Errorf("%w: minimum EMI payment is %s", ErrBelowMinimumInstallment, loan.MonthlyEMI.StringFixed(2))
				}
			} else if amount.Sub(remainingDue).Abs().GreaterThan(finalPaymentTolerance) {
				return nil, false, fmt.Errorf("%w of %s", ErrFinalPaymentMismatch, remainingDue.StringFixed(2))
			}
		}

		if amount.GreaterThan(remainingDue) {
			return nil, false, fmt.Errorf("%w of %s", ErrOverpaymentRejected, remainingDue.StringFixed(2))
		}

		newPaid := loan.AmountPaid.Add(amount)
		newBalance := loan.TotalAmount.Sub(newPaid).Round(2)
		if newBalance.IsNegative() {
			newBalance = decimal.Zero
		}

		var newEMIsLeft int
		if kind == models.PaymentTypeLumpSum {
			if newBalance.IsZero() {
				newEMIsLeft = 0
			} else {
				newEMIsLeft = int(newBalance.Div(loan.MonthlyEMI).Ceil().IntPart())
			}
		} else {
			newEMIsLeft = loan.EMIsLeft - 1
			if newEMIsLeft < 0 {
				newEMIsLeft = 0
			}
		}

		closed := newEMIsLeft == 0 || !newBalance.IsPositive()

		payment := &models.Payment{
			LoanID:           loan.ID,
			Amount:           amount,
			Type:             kind,
			RemainingBalance: newBalance,
			EMIsLeft:         newEMIsLeft,
		}

		err = l.storage.ApplyPaymentAtomic(loan.ID, loan.Version, newPaid, newEMIsLeft, closed, payment)
		if errors.Is(err, store.ErrStaleLoan) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to apply payment: %w", err)
		}

		l.invalidateOverview(loan.CustomerID)
		l.log.WithFields(logrus.Fields{
			"loan_id":    loan.ID,
			"payment_id": payment.ID,
			"type":       kind,
			"amount":     amount,
			"balance":    newBalance,
			"emis_left":  newEMIsLeft,
			"closed":     closed,
		}).Info("payment applied")
		return payment, closed, nil
	}

	return nil, false, fmt.Errorf("failed to apply payment to loan %d: %w", loanID, store.ErrStaleLoan)
}
