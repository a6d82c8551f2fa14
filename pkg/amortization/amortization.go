// Package amortization computes repayment terms for flat simple-interest
// loans. It is pure: no storage, no clock, no side effects.
package amortization

import (
	"errors"

	"github.com/shopspring/decimal"
)

const monthsPerYear = 12

var (
	hundred         = decimal.NewFromInt(100)
	errPrincipal    = errors.New("principal must be positive")
	errTermYears    = errors.New("loan period must be a positive number of years")
	errNegativeRate = errors.New("interest rate must not be negative")
	errZeroEMI      = errors.New("principal is too small to amortize over the term")
)

// Terms are the derived repayment terms of a loan at origination.
type Terms struct {
	// Total is the full amount payable: principal plus flat simple interest.
	Total decimal.Decimal
	// MonthlyEMI is the fixed installment, Total split evenly over the term.
	MonthlyEMI decimal.Decimal
	// Installments is the number of monthly installments (years * 12).
	Installments int
}

// Compute derives the repayment terms for principal P over years Y at an
// annual rate R (percent, simple interest):
//
//	total = P + P*Y*(R/100)
//	emi   = total / (Y*12)
//
// Monetary results are rounded half-up to 2 decimal places. Terms whose
// installment rounds down to 0.00 are rejected: a loan must carry a payable
// EMI.
func Compute(principal decimal.Decimal, years int, ratePercent decimal.Decimal) (Terms, error) {
	if principal.LessThanOrEqual(decimal.Zero) {
		return Terms{}, errPrincipal
	}
	if years <= 0 {
		return Terms{}, errTermYears
	}
	if ratePercent.IsNegative() {
		return Terms{}, errNegativeRate
	}

	interest := principal.Mul(decimal.NewFromInt(int64(years))).Mul(ratePercent.Div(hundred))
	total := principal.Add(interest).Round(2)
	installments := years * monthsPerYear
	emi := total.Div(decimal.NewFromInt(int64(installments))).Round(2)
	if emi.IsZero() {
		return Terms{}, errZeroEMI
	}

	return Terms{
		Total:        total,
		MonthlyEMI:   emi,
		Installments: installments,
	}, nil
}
