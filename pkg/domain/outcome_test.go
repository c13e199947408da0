package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	var ok, rejected, timedOut ExecutionOutcome
	ok.Succeed(&Effects{Success: true, GasUsed: 10})
	rejected.Fail(fmt.Errorf("%w: %w", ErrSubmissionFailed, ErrRejectedByLedger))
	rejected.Effects = &Effects{GasUsed: 10}
	timedOut.Fail(fmt.Errorf("%w: deadline", ErrTimeout))

	s := Summarize([]ExecutionOutcome{ok, rejected, timedOut})
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, uint64(20), s.GasUsed)
	assert.Equal(t, map[string]int{"rejected": 1, "timeout": 1}, s.ByError)

	assert.Equal(t, 0, Summarize(nil).Total)
}

func TestSucceedClearsFailure(t *testing.T) {
	var o ExecutionOutcome
	o.Fail(ErrNetwork)
	assert.Equal(t, "network", o.ErrorKind)

	o.Succeed(&Effects{Success: true})
	assert.True(t, o.Success)
	assert.NoError(t, o.Err)
	assert.Empty(t, o.Error)
	assert.Empty(t, o.ErrorKind)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{context.Canceled, "cancelled"},
		{fmt.Errorf("%w: late", ErrCancelled), "cancelled"},
		{context.DeadlineExceeded, "timeout"},
		{fmt.Errorf("%w: reset", ErrNetwork), "network"},
		{ErrConflictingReference, "conflicting_reference"},
		{ErrResourceExhausted, "resource_exhausted"},
		{ErrInsufficientFunds, "insufficient_funds"},
		{ErrRejectedByLedger, "rejected"},
		{ErrInvalidRequest, "invalid_request"},
		{ErrPoolClosed, "closed"},
		{ErrNotFound, "not_found"},
		{errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}

func TestRetryableAndLedgerFailure(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("%w: reset", ErrNetwork)))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.False(t, IsRetryable(ErrRejectedByLedger))
	assert.False(t, IsRetryable(ErrConflictingReference))

	assert.True(t, IsLedgerFailure(ErrInsufficientFunds))
	assert.False(t, IsLedgerFailure(ErrNetwork))
}
