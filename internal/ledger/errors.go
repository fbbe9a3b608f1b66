package ledger

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/ftledger/pkg/types"
)

// Ledger errors. Every operation that fails with one of these leaves the
// persisted state exactly as it was before the call.
var (
	ErrAccountNotRegistered       = errors.New("ledger: account not registered")
	ErrInsufficientStorageDeposit = errors.New("ledger: attached deposit is less than the storage fee")
	ErrNonZeroBalance             = errors.New("ledger: cannot unregister an account with a positive balance without force")
	ErrInsufficientBalance        = errors.New("ledger: insufficient balance")
	ErrBalanceOverflow            = errors.New("ledger: balance overflow")
	ErrSelfTransfer               = errors.New("ledger: sender and receiver must differ")
	ErrZeroAmount                 = errors.New("ledger: amount must be positive")
	ErrAlreadyInitialized         = errors.New("ledger: already initialized")

	ErrNotInitialized     = errors.New("ledger: not initialized")
	ErrUnknownEncoding    = errors.New("ledger: unknown record encoding")
	ErrSupplyMismatch     = errors.New("ledger: total supply does not match sum of balances")
	ErrInconsistentState  = errors.New("ledger: registry and balance slots disagree")
	ErrNoReceiver         = errors.New("ledger: no receiver hook for account")
	ErrReceiverOverclaims = errors.New("ledger: receiver reported more unused tokens than transferred")
)

// DepositError reports a registration rejected for an insufficient
// attached deposit. The whole attached amount is refunded.
type DepositError struct {
	Account  types.AccountID
	Required types.Amount
	Attached types.Amount
}

func (e *DepositError) Error() string {
	return fmt.Sprintf("%v: account %s attached %s, requires %s",
		ErrInsufficientStorageDeposit, e.Account, e.Attached, e.Required)
}

// Unwrap lets errors.Is match ErrInsufficientStorageDeposit.
func (e *DepositError) Unwrap() error {
	return ErrInsufficientStorageDeposit
}

// Refund is the amount returned to the caller.
func (e *DepositError) Refund() types.Amount {
	return e.Attached
}

// resultLabel maps an operation error to a metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAccountNotRegistered):
		return "not_registered"
	case errors.Is(err, ErrInsufficientStorageDeposit):
		return "insufficient_deposit"
	case errors.Is(err, ErrNonZeroBalance):
		return "nonzero_balance"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrBalanceOverflow):
		return "overflow"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, types.ErrInvalidAccountID):
		return "invalid_account"
	default:
		return "error"
	}
}
