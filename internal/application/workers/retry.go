package workers

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff returns a schedule starting at base and doubling per retry,
// capped at limit. A zero base retries immediately.
func newBackOff(base, limit time.Duration) backoff.BackOff {
	if base <= 0 {
		return &backoff.ZeroBackOff{}
	}
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = limit
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
