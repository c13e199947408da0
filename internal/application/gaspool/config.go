package gaspool

import (
	"fmt"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
)

// Config sizes the pool and its replenishment batches
type Config struct {
	// InitialBalance is the total amount split off the source coin per replenishment
	InitialBalance uint64

	// MinimumBalance is the smallest balance a coin may keep and stay in the pool
	MinimumBalance uint64

	// BatchSize is the number of coins created per replenishment
	BatchSize int

	// HandleBalance overrides InitialBalance / BatchSize as the per-coin amount
	HandleBalance uint64

	// MaxHandles caps the working set; acquirers wait for a release beyond it. Zero means no cap.
	MaxHandles int

	// RefillWatermark triggers a background replenishment when fewer coins
	// than this are free after a checkout. Zero disables proactive refills.
	RefillWatermark int

	// SplitGasReserve is kept on the source coin to pay for the split itself
	SplitGasReserve uint64

	// SourceCoinID pins the coin replenishments are split from. Empty picks
	// the largest owned coin that is neither in the pool nor claimed by
	// another component of the same sender.
	SourceCoinID string

	ReplenishTimeout time.Duration
}

// DefaultConfig returns a small pool suitable for development
func DefaultConfig() Config {
	return Config{
		InitialBalance:   500_000_000,
		MinimumBalance:   5_000_000,
		BatchSize:        10,
		RefillWatermark:  2,
		ReplenishTimeout: 30 * time.Second,
	}
}

// PerHandle returns the balance each new coin is created with
func (c Config) PerHandle() uint64 {
	if c.HandleBalance > 0 {
		return c.HandleBalance
	}
	if c.BatchSize < 1 {
		return 0
	}
	return c.InitialBalance / uint64(c.BatchSize)
}

// Validate checks the configuration. Errors wrap domain.ErrInvalidConfig.
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be at least 1", domain.ErrInvalidConfig)
	}
	if c.InitialBalance == 0 {
		return fmt.Errorf("%w: initial balance must be positive", domain.ErrInvalidConfig)
	}
	if c.MinimumBalance >= c.InitialBalance {
		return fmt.Errorf("%w: minimum balance %d must be below initial balance %d",
			domain.ErrInvalidConfig, c.MinimumBalance, c.InitialBalance)
	}
	per := c.PerHandle()
	if per == 0 || per < c.MinimumBalance {
		return fmt.Errorf("%w: per-coin balance %d is below minimum balance %d",
			domain.ErrInvalidConfig, per, c.MinimumBalance)
	}
	if c.MaxHandles < 0 {
		return fmt.Errorf("%w: max handles cannot be negative", domain.ErrInvalidConfig)
	}
	if c.RefillWatermark < 0 {
		return fmt.Errorf("%w: refill watermark cannot be negative", domain.ErrInvalidConfig)
	}
	if c.ReplenishTimeout < 0 {
		return fmt.Errorf("%w: replenish timeout cannot be negative", domain.ErrInvalidConfig)
	}
	return nil
}
