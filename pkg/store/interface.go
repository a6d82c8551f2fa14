package store

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/rahulm/bank-lending/pkg/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist. For
	// active-loan lookups it also covers loans that are already CLOSED.
	ErrNotFound = errors.New("record not found")

	// ErrStaleLoan is returned by ApplyPaymentAtomic when the loan row
	// changed since it was read. The caller re-reads and retries.
	ErrStaleLoan = errors.New("loan modified concurrently")
)

// Storage defines the persistence operations for customers, loans and
// payments. Loans are never deleted and payments are append-only.
type Storage interface {
	GetCustomer(id int64) (*models.Customer, error)
	GetAllCustomers() ([]*models.Customer, error)

	CreateLoan(loan *models.Loan) error
	GetLoan(id int64) (*models.Loan, error)
	// GetActiveLoan reads a loan only while its status is ACTIVE; a CLOSED
	// loan is indistinguishable from a missing one here.
	GetActiveLoan(id int64) (*models.Loan, error)
	GetLoansForCustomer(customerID int64) ([]*models.Loan, error)

	// ApplyPaymentAtomic performs the write phase of payment application as
	// a single transaction: update the loan's paid amount, installment count
	// and (possibly) status, and append the payment row. The loan update is
	// guarded by expectedVersion; on a version mismatch nothing is written
	// and ErrStaleLoan is returned. On success the payment's ID and
	// PaymentDate are filled in.
	ApplyPaymentAtomic(loanID, expectedVersion int64, newPaid decimal.Decimal, newEMIsLeft int, closeLoan bool, payment *models.Payment) error

	// GetPaymentsForLoan returns the loan's payments newest-first.
	GetPaymentsForLoan(loanID int64) ([]*models.Payment, error)

	// GetLoanLedger reads a loan and its payments (newest-first) in one
	// consistent snapshot, so a concurrent payment cannot show up in the
	// history without also being reflected in the loan's balance.
	GetLoanLedger(loanID int64) (*models.Loan, []*models.Payment, error)

	Close() error
}
