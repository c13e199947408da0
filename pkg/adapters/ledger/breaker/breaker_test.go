package breaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	err   error
	calls int
}

func (s *stubGateway) Submit(ctx context.Context, tx *domain.Transaction) (*domain.Effects, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Effects{Success: true, Digest: "d"}, nil
}

func (s *stubGateway) GasCoins(ctx context.Context, owner string) ([]domain.ResourceHandle, error) {
	s.calls++
	return []domain.ResourceHandle{{Balance: 1}}, s.err
}

func (s *stubGateway) Objects(ctx context.Context, ids []string) ([]domain.ObjectRef, error) {
	s.calls++
	return nil, s.err
}

func TestBreakerOpensOnNetworkFailures(t *testing.T) {
	stub := &stubGateway{err: fmt.Errorf("%w: connection refused", domain.ErrNetwork)}
	g := New(stub, Settings{MaxFailures: 3, OpenTimeout: time.Hour}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Submit(ctx, &domain.Transaction{})
		assert.ErrorIs(t, err, domain.ErrNetwork)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.Submit(ctx, &domain.Transaction{})
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 3, stub.calls)
}

func TestLedgerRejectionsDoNotTrip(t *testing.T) {
	stub := &stubGateway{err: fmt.Errorf("%w: abort", domain.ErrRejectedByLedger)}
	g := New(stub, Settings{MaxFailures: 2, OpenTimeout: time.Hour}, nil)

	for i := 0; i < 5; i++ {
		_, err := g.Submit(context.Background(), &domain.Transaction{})
		assert.ErrorIs(t, err, domain.ErrRejectedByLedger)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
	assert.Equal(t, 5, stub.calls)
}

func TestPassThrough(t *testing.T) {
	stub := &stubGateway{}
	g := New(stub, Settings{}, nil)

	fx, err := g.Submit(context.Background(), &domain.Transaction{})
	require.NoError(t, err)
	assert.Equal(t, "d", fx.Digest)

	coins, err := g.GasCoins(context.Background(), "0x1")
	require.NoError(t, err)
	assert.Len(t, coins, 1)
}
