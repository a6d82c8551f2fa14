package ledger

import "errors"

var (
	// ErrInvalidInput covers malformed or missing request data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLoanNotFound covers loans that do not exist and loans that are
	// already CLOSED. Payment application does not distinguish the two.
	ErrLoanNotFound = errors.New("loan not found or is closed")

	// ErrInvalidAmount rejects non-positive payment amounts.
	ErrInvalidAmount = errors.New("payment amount must be greater than zero")

	// ErrBelowMinimumInstallment rejects EMI payments under the fixed
	// installment while at least one full installment is still due.
	ErrBelowMinimumInstallment = errors.New("payment below minimum EMI")

	// ErrFinalPaymentMismatch rejects a final EMI payment that does not
	// settle the remaining balance exactly.
	ErrFinalPaymentMismatch = errors.New("final EMI payment must match remaining balance")

	// ErrOverpaymentRejected rejects payments above the remaining balance.
	ErrOverpaymentRejected = errors.New("payment exceeds remaining balance")
)
