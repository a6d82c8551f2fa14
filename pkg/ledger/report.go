package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rahulm/bank-lending/pkg/models"
	"github.com/rahulm/bank-lending/pkg/store"
)

// LoanSummary is one loan in a customer overview, with the interest portion
// broken out.
type LoanSummary struct {
	LoanID        int64             `json:"loan_id"`
	Principal     decimal.Decimal   `json:"principal"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	TotalInterest decimal.Decimal   `json:"total_interest"`
	EMIAmount     decimal.Decimal   `json:"emi_amount"`
	AmountPaid    decimal.Decimal   `json:"amount_paid"`
	EMIsLeft      int               `json:"emis_left"`
	Status        models.LoanStatus `json:"status"`
}

// CustomerOverview lists every loan a customer holds.
type CustomerOverview struct {
	CustomerID int64         `json:"customer_id"`
	TotalLoans int           `json:"total_loans"`
	Loans      []LoanSummary `json:"loans"`
}

// LoanStatement is a loan's full ledger: current projection plus the payment
// history, most recent first.
type LoanStatement struct {
	LoanID        int64             `json:"loan_id"`
	CustomerCode  string            `json:"customer_code"`
	CustomerName  string            `json:"customer_name"`
	Principal     decimal.Decimal   `json:"principal"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	MonthlyEMI    decimal.Decimal   `json:"monthly_emi"`
	AmountPaid    decimal.Decimal   `json:"amount_paid"`
	BalanceAmount decimal.Decimal   `json:"balance_amount"`
	EMIsLeft      int               `json:"emis_left"`
	Status        models.LoanStatus `json:"status"`
	Transactions  []*models.Payment `json:"transactions"`
}

func overviewKey(customerID int64) string {
	return fmt.Sprintf("overview:%d", customerID)
}

func (l *Ledger) invalidateOverview(customerID int64) {
	if err := l.cache.Delete(overviewKey(customerID)); err != nil {
		l.log.Warnf("failed to invalidate overview cache for customer %d: %v", customerID, err)
	}
}

// Overview returns all loans for a customer with derived interest totals.
// Results are cached per customer; any write to one of the customer's loans
// drops the cached entry.
func (l *Ledger) Overview(customerID int64) (*CustomerOverview, error) {
	if customerID <= 0 {
		return nil, fmt.Errorf("%w: customer_id must be a positive integer", ErrInvalidInput)
	}

	key := overviewKey(customerID)
	if raw, ok := l.cache.Get(key); ok {
		var cached CustomerOverview
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
		// A corrupt entry is dropped and rebuilt from the store.
		l.invalidateOverview(customerID)
	}

	loans, err := l.storage.GetLoansForCustomer(customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read loans: %w", err)
	}

	overview := &CustomerOverview{
		CustomerID: customerID,
		TotalLoans: len(loans),
		Loans:      make([]LoanSummary, 0, len(loans)),
	}
	for _, loan := range loans {
		overview.Loans = append(overview.Loans, LoanSummary{
			LoanID:        loan.ID,
			Principal:     loan.Principal,
			TotalAmount:   loan.TotalAmount,
			TotalInterest: loan.TotalAmount.Sub(loan.Principal),
			EMIAmount:     loan.MonthlyEMI,
			AmountPaid:    loan.AmountPaid,
			EMIsLeft:      loan.EMIsLeft,
			Status:        loan.Status,
		})
	}

	if raw, err := json.Marshal(overview); err == nil {
		if err := l.cache.Set(key, string(raw)); err != nil {
			l.log.Warnf("failed to cache overview for customer %d: %v", customerID, err)
		}
	}
	return overview, nil
}

// Statement returns a loan's detail and payment history. Unlike payment
// application, CLOSED loans remain visible here.
func (l *Ledger) Statement(loanID int64) (*LoanStatement, error) {
	loan, payments, err := l.storage.GetLoanLedger(loanID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to read loan ledger: %w", err)
	}

	customer, err := l.storage.GetCustomer(loan.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read customer: %w", err)
	}

	if payments == nil {
		payments = []*models.Payment{}
	}

	return &LoanStatement{
		LoanID:        loan.ID,
		CustomerCode:  customer.Code,
		CustomerName:  customer.Name,
		Principal:     loan.Principal,
		TotalAmount:   loan.TotalAmount,
		MonthlyEMI:    loan.MonthlyEMI,
		AmountPaid:    loan.AmountPaid,
		BalanceAmount: loan.RemainingDue(),
		EMIsLeft:      loan.EMIsLeft,
		Status:        loan.Status,
		Transactions:  payments,
	}, nil
}

// Customers lists all known customers.
func (l *Ledger) Customers() ([]*models.Customer, error) {
	customers, err := l.storage.GetAllCustomers()
	if err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}
	return customers, nil
}
