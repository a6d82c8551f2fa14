package amortization

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name             string
		principal        string
		years            int
		rate             string
		wantTotal        string
		wantEMI          string
		wantInstallments int
	}{
		{
			name:      "two year loan at ten percent",
			principal: "120000", years: 2, rate: "10",
			wantTotal: "144000", wantEMI: "6000", wantInstallments: 24,
		},
		{
			name:      "zero interest splits principal evenly",
			principal: "12000", years: 1, rate: "0",
			wantTotal: "12000", wantEMI: "1000", wantInstallments: 12,
		},
		{
			name:      "uneven division rounds half-up to cents",
			principal: "1000", years: 1, rate: "7",
			wantTotal: "1070", wantEMI: "89.17", wantInstallments: 12,
		},
		{
			name:      "fractional rate",
			principal: "50000", years: 3, rate: "8.5",
			wantTotal: "62750", wantEMI: "1743.06", wantInstallments: 36,
		},
		{
			name:      "smallest principal with a payable installment",
			principal: "0.06", years: 1, rate: "0",
			wantTotal: "0.06", wantEMI: "0.01", wantInstallments: 12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal := decimal.RequireFromString(tt.principal)
			rate := decimal.RequireFromString(tt.rate)

			terms, err := Compute(principal, tt.years, rate)
			require.NoError(t, err)

			assert.True(t, terms.Total.Equal(decimal.RequireFromString(tt.wantTotal)),
				"total: want %s, got %s", tt.wantTotal, terms.Total)
			assert.True(t, terms.MonthlyEMI.Equal(decimal.RequireFromString(tt.wantEMI)),
				"emi: want %s, got %s", tt.wantEMI, terms.MonthlyEMI)
			assert.Equal(t, tt.wantInstallments, terms.Installments)
		})
	}
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		years     int
		rate      string
	}{
		{"zero principal", "0", 2, "10"},
		{"negative principal", "-5000", 2, "10"},
		{"zero years", "120000", 0, "10"},
		{"negative years", "120000", -1, "10"},
		{"negative rate", "120000", 2, "-1"},
		{"installment rounds to zero", "0.05", 1, "0"},
		{"installment rounds to zero over long term", "0.20", 10, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(decimal.RequireFromString(tt.principal), tt.years, decimal.RequireFromString(tt.rate))
			assert.Error(t, err)
		})
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	principal := decimal.RequireFromString("73500.50")
	rate := decimal.RequireFromString("11.25")

	first, err := Compute(principal, 5, rate)
	require.NoError(t, err)
	second, err := Compute(principal, 5, rate)
	require.NoError(t, err)

	assert.True(t, first.Total.Equal(second.Total))
	assert.True(t, first.MonthlyEMI.Equal(second.MonthlyEMI))
	assert.Equal(t, first.Installments, second.Installments)
}
