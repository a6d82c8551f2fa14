package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahulm/bank-lending/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestLoan(customerID int64) *models.Loan {
	return &models.Loan{
		CustomerID:  customerID,
		Principal:   decimal.RequireFromString("120000"),
		TotalAmount: decimal.RequireFromString("144000"),
		MonthlyEMI:  decimal.RequireFromString("6000"),
		AmountPaid:  decimal.Zero,
		EMIsLeft:    24,
		Status:      models.LoanStatusActive,
		CreatedAt:   time.Now().UTC(),
		Version:     1,
	}
}

func TestSQLiteStore_SeedsDefaultCustomers(t *testing.T) {
	s := newTestStore(t)

	customers, err := s.GetAllCustomers()
	require.NoError(t, err)
	require.Len(t, customers, 3)
	assert.Equal(t, "CUST001", customers[0].Code)
	assert.Equal(t, "Alice", customers[0].Name)

	alice, err := s.GetCustomer(1)
	require.NoError(t, err)
	assert.Equal(t, "Alice", alice.Name)

	_, err = s.GetCustomer(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_CreateAndGetLoan(t *testing.T) {
	s := newTestStore(t)

	loan := newTestLoan(1)
	require.NoError(t, s.CreateLoan(loan))
	require.NotZero(t, loan.ID)

	fetched, err := s.GetLoan(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.CustomerID, fetched.CustomerID)
	assert.True(t, fetched.Principal.Equal(loan.Principal), "principal: got %s", fetched.Principal)
	assert.True(t, fetched.TotalAmount.Equal(loan.TotalAmount))
	assert.True(t, fetched.MonthlyEMI.Equal(loan.MonthlyEMI))
	assert.True(t, fetched.AmountPaid.IsZero())
	assert.Equal(t, 24, fetched.EMIsLeft)
	assert.Equal(t, models.LoanStatusActive, fetched.Status)
	assert.Equal(t, int64(1), fetched.Version)

	_, err = s.GetLoan(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_GetActiveLoanExcludesClosed(t *testing.T) {
	s := newTestStore(t)

	loan := newTestLoan(1)
	require.NoError(t, s.CreateLoan(loan))

	active, err := s.GetActiveLoan(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, active.ID)

	// Close it through the atomic write path.
	payment := &models.Payment{
		LoanID:           loan.ID,
		Amount:           decimal.RequireFromString("144000"),
		Type:             models.PaymentTypeLumpSum,
		RemainingBalance: decimal.Zero,
		EMIsLeft:         0,
	}
	require.NoError(t, s.ApplyPaymentAtomic(loan.ID, 1, decimal.RequireFromString("144000"), 0, true, payment))

	_, err = s.GetActiveLoan(loan.ID)
	assert.ErrorIs(t, err, ErrNotFound, "closed loan must look like a missing one")

	fetched, err := s.GetLoan(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusClosed, fetched.Status)
}

func TestSQLiteStore_ApplyPaymentAtomic(t *testing.T) {
	s := newTestStore(t)

	loan := newTestLoan(1)
	require.NoError(t, s.CreateLoan(loan))

	payment := &models.Payment{
		LoanID:           loan.ID,
		Amount:           decimal.RequireFromString("6000"),
		Type:             models.PaymentTypeEMI,
		RemainingBalance: decimal.RequireFromString("138000"),
		EMIsLeft:         23,
	}
	require.NoError(t, s.ApplyPaymentAtomic(loan.ID, 1, decimal.RequireFromString("6000"), 23, false, payment))
	assert.NotZero(t, payment.ID)
	assert.False(t, payment.PaymentDate.IsZero())

	fetched, err := s.GetLoan(loan.ID)
	require.NoError(t, err)
	assert.True(t, fetched.AmountPaid.Equal(decimal.RequireFromString("6000")))
	assert.Equal(t, 23, fetched.EMIsLeft)
	assert.Equal(t, int64(2), fetched.Version, "version must advance on every write")
	assert.Equal(t, models.LoanStatusActive, fetched.Status)
}

func TestSQLiteStore_ApplyPaymentAtomicStaleVersion(t *testing.T) {
	s := newTestStore(t)

	loan := newTestLoan(1)
	require.NoError(t, s.CreateLoan(loan))

	stale := &models.Payment{
		LoanID:           loan.ID,
		Amount:           decimal.RequireFromString("6000"),
		Type:             models.PaymentTypeEMI,
		RemainingBalance: decimal.RequireFromString("138000"),
		EMIsLeft:         23,
	}
	err := s.ApplyPaymentAtomic(loan.ID, 7, decimal.RequireFromString("6000"), 23, false, stale)
	assert.ErrorIs(t, err, ErrStaleLoan)

	// Nothing may be written on a rejected CAS: no payment row, loan intact.
	payments, err := s.GetPaymentsForLoan(loan.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	fetched, err := s.GetLoan(loan.ID)
	require.NoError(t, err)
	assert.True(t, fetched.AmountPaid.IsZero())
	assert.Equal(t, int64(1), fetched.Version)
}

func TestSQLiteStore_ApplyPaymentAtomicRejectsClosedLoan(t *testing.T) {
	s := newTestStore(t)

	loan := newTestLoan(1)
	require.NoError(t, s.CreateLoan(loan))

	closing := &models.Payment{
		LoanID:           loan.ID,
		Amount:           decimal.RequireFromString("144000"),
		Type:             models.PaymentTypeLumpSum,
		RemainingBalance: decimal.Zero,
		EMIsLeft:         0,
	}
	require.NoError(t, s.ApplyPaymentAtomic(loan.ID, 1, decimal.RequireFromString("144000"), 0, true, closing))

	late := &models.Payment{
		LoanID:           loan.ID,
		Amount:           decimal.RequireFromString("6000"),
		Type:             models.PaymentTypeEMI,
		RemainingBalance: decimal.Zero,
		EMIsLeft:         0,
	}
	err := s.ApplyPaymentAtomic(loan.ID, 2, decimal.RequireFromString("150000"), 0, false, late)
	assert.ErrorIs(t, err, ErrStaleLoan, "writes against a CLOSED loan must be rejected")
}

func TestSQLiteStore_GetPaymentsForLoanNewestFirst(t *testing.T) {
	s := newTestStore(t)

	loan := newTestLoan(1)
	require.NoError(t, s.CreateLoan(loan))

	amounts := []string{"6000", "50000", "7000"}
	paid := decimal.Zero
	for i, a := range amounts {
		amount := decimal.RequireFromString(a)
		paid = paid.Add(amount)
		p := &models.Payment{
			LoanID:           loan.ID,
			Amount:           amount,
			Type:             models.PaymentTypeEMI,
			RemainingBalance: loan.TotalAmount.Sub(paid),
			EMIsLeft:         23 - i,
		}
		require.NoError(t, s.ApplyPaymentAtomic(loan.ID, int64(i+1), paid, 23-i, false, p))
	}

	payments, err := s.GetPaymentsForLoan(loan.ID)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.True(t, payments[0].Amount.Equal(decimal.RequireFromString("7000")), "newest first")
	assert.True(t, payments[2].Amount.Equal(decimal.RequireFromString("6000")), "oldest last")
}

func TestSQLiteStore_GetLoanLedger(t *testing.T) {
	s := newTestStore(t)

	loan := newTestLoan(1)
	require.NoError(t, s.CreateLoan(loan))

	p := &models.Payment{
		LoanID:           loan.ID,
		Amount:           decimal.RequireFromString("6000"),
		Type:             models.PaymentTypeEMI,
		RemainingBalance: decimal.RequireFromString("138000"),
		EMIsLeft:         23,
	}
	require.NoError(t, s.ApplyPaymentAtomic(loan.ID, 1, decimal.RequireFromString("6000"), 23, false, p))

	fetched, payments, err := s.GetLoanLedger(loan.ID)
	require.NoError(t, err)
	assert.True(t, fetched.AmountPaid.Equal(decimal.RequireFromString("6000")))
	require.Len(t, payments, 1)
	assert.True(t, payments[0].RemainingBalance.Equal(decimal.RequireFromString("138000")))

	_, _, err = s.GetLoanLedger(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_GetLoansForCustomer(t *testing.T) {
	s := newTestStore(t)

	first := newTestLoan(1)
	require.NoError(t, s.CreateLoan(first))
	second := newTestLoan(1)
	require.NoError(t, s.CreateLoan(second))
	other := newTestLoan(2)
	require.NoError(t, s.CreateLoan(other))

	loans, err := s.GetLoansForCustomer(1)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, first.ID, loans[0].ID)
	assert.Equal(t, second.ID, loans[1].ID)

	none, err := s.GetLoansForCustomer(3)
	require.NoError(t, err)
	assert.Empty(t, none)
}
