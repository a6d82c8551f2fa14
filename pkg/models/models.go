package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan. CLOSED is terminal.
type LoanStatus string

const (
	LoanStatusActive LoanStatus = "ACTIVE"
	LoanStatusClosed LoanStatus = "CLOSED"
)

// PaymentType distinguishes a fixed installment from an arbitrary-size payment.
type PaymentType string

const (
	PaymentTypeEMI     PaymentType = "EMI"
	PaymentTypeLumpSum PaymentType = "LUMP_SUM"
)

// Customer is an identity record. The ledger never mutates customers.
type Customer struct {
	ID   int64  `json:"id"`
	Code string `json:"customer_code"`
	Name string `json:"name"`
}

// Loan is the aggregate root. TotalAmount and MonthlyEMI are fixed at
// origination; AmountPaid, EMIsLeft and Status are a cached projection of the
// payment history and are only mutated by payment application.
type Loan struct {
	ID          int64           `json:"loan_id"`
	CustomerID  int64           `json:"customer_id"`
	Principal   decimal.Decimal `json:"principal"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	MonthlyEMI  decimal.Decimal `json:"monthly_emi"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	EMIsLeft    int             `json:"emis_left"`
	Status      LoanStatus      `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`

	// Version guards concurrent payment application. Incremented on every
	// successful write to the loan row.
	Version int64 `json:"-"`
}

// RemainingDue is the outstanding balance before any pending payment.
func (l *Loan) RemainingDue() decimal.Decimal {
	return l.TotalAmount.Sub(l.AmountPaid)
}

// Payment is one immutable ledger entry. RemainingBalance and EMIsLeft are
// snapshots of the loan state that resulted from this payment.
type Payment struct {
	ID               int64           `json:"payment_id"`
	LoanID           int64           `json:"loan_id"`
	Amount           decimal.Decimal `json:"amount"`
	Type             PaymentType     `json:"payment_type"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	EMIsLeft         int             `json:"emis_left"`
	PaymentDate      time.Time       `json:"payment_date"`
}
