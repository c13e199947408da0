package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Settings configures the breaker
type Settings struct {
	// MaxFailures is the number of consecutive transport failures that opens the breaker
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration

	// HalfOpenRequests is the number of probes allowed while half-open
	HalfOpenRequests uint32
}

// Gateway wraps a LedgerGateway with a circuit breaker. Only network
// failures and timeouts count against the ledger; rejections are answers.
type Gateway struct {
	next   ports.LedgerGateway
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

var _ ports.LedgerGateway = (*Gateway)(nil)

// New wraps next
func New(next ports.LedgerGateway, settings Settings, logger *zap.Logger) *Gateway {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{next: next, logger: logger}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger",
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ledger circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return g
}

// State returns the breaker state
func (g *Gateway) State() gobreaker.State {
	return g.cb.State()
}

// Submit forwards to the wrapped gateway unless the breaker is open
func (g *Gateway) Submit(ctx context.Context, tx *domain.Transaction) (*domain.Effects, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Submit(ctx, tx)
	})
	fx, _ := res.(*domain.Effects)
	return fx, g.wrap(err)
}

// GasCoins forwards to the wrapped gateway unless the breaker is open
func (g *Gateway) GasCoins(ctx context.Context, owner string) ([]domain.ResourceHandle, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.GasCoins(ctx, owner)
	})
	coins, _ := res.([]domain.ResourceHandle)
	return coins, g.wrap(err)
}

// Objects forwards to the wrapped gateway unless the breaker is open
func (g *Gateway) Objects(ctx context.Context, ids []string) ([]domain.ObjectRef, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Objects(ctx, ids)
	})
	refs, _ := res.([]domain.ObjectRef)
	return refs, g.wrap(err)
}

// wrap marks breaker rejections as network errors so callers retry them
func (g *Gateway) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: ledger %w", domain.ErrNetwork, err)
	}
	return err
}
