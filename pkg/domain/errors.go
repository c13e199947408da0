package domain

import (
	"context"
	"errors"
)

var (
	// ErrResourceExhausted means the source balance cannot fund a new gas coin
	ErrResourceExhausted = errors.New("gas resources exhausted")

	// ErrConflictingReference means a gas coin or owned object was used by
	// two transactions at once, or at a stale version
	ErrConflictingReference = errors.New("conflicting object reference")

	// ErrSubmissionFailed wraps every terminal ledger-side failure
	ErrSubmissionFailed = errors.New("submission failed")

	// ErrNetwork is a transient transport failure
	ErrNetwork = errors.New("network error")

	// ErrTimeout is a submission that exceeded its deadline
	ErrTimeout = errors.New("submission timed out")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRejectedByLedger  = errors.New("rejected by ledger")

	ErrPoolClosed     = errors.New("gas pool closed")
	ErrExecutorClosed = errors.New("executor closed")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrInvalidRequest = errors.New("invalid request")
	ErrCancelled      = errors.New("request cancelled")
	ErrNotFound       = errors.New("not found")
)

// IsRetryable reports whether a submission may be retried with a fresh gas coin
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// IsLedgerFailure reports whether the ledger rejected the transaction
func IsLedgerFailure(err error) bool {
	return errors.Is(err, ErrRejectedByLedger) || errors.Is(err, ErrInsufficientFunds)
}

// ErrorKind returns a short label for metrics and events
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrConflictingReference):
		return "conflicting_reference"
	case errors.Is(err, ErrResourceExhausted):
		return "resource_exhausted"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrRejectedByLedger):
		return "rejected"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrExecutorClosed), errors.Is(err, ErrPoolClosed):
		return "closed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}
