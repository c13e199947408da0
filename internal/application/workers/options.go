package workers

import (
	"fmt"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
	"go.uber.org/zap"
)

type options struct {
	logger              *zap.Logger
	metrics             ports.MetricsCollector
	maxConcurrency      int
	submissionTimeout   time.Duration
	maxRetries          int
	retryDelay          time.Duration
	maxRetryDelay       time.Duration
	gasBudget           uint64
	healthCheckInterval time.Duration
}

func defaultOptions() options {
	return options{
		logger:              zap.NewNop(),
		metrics:             ports.NopMetrics{},
		maxConcurrency:      5,
		submissionTimeout:   30 * time.Second,
		maxRetries:          2,
		retryDelay:          200 * time.Millisecond,
		maxRetryDelay:       5 * time.Second,
		gasBudget:           50_000_000,
		healthCheckInterval: 30 * time.Second,
	}
}

func (o options) validate() error {
	if o.maxConcurrency < 1 {
		return fmt.Errorf("%w: max concurrency must be at least 1", domain.ErrInvalidConfig)
	}
	if o.submissionTimeout <= 0 {
		return fmt.Errorf("%w: submission timeout must be positive", domain.ErrInvalidConfig)
	}
	if o.maxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", domain.ErrInvalidConfig)
	}
	if o.healthCheckInterval <= 0 {
		return fmt.Errorf("%w: health check interval must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

// Option configures a ParallelExecutor
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics ports.MetricsCollector) Option {
	return func(o *options) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithMaxConcurrency sets the number of lanes
func WithMaxConcurrency(n int) Option {
	return func(o *options) { o.maxConcurrency = n }
}

// WithSubmissionTimeout bounds each ledger round trip
func WithSubmissionTimeout(d time.Duration) Option {
	return func(o *options) { o.submissionTimeout = d }
}

// WithRetries sets how often a network failure or timeout is retried and
// the first backoff delay
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(o *options) {
		o.maxRetries = maxRetries
		o.retryDelay = delay
	}
}

// WithGasBudget sets the budget for requests that carry none
func WithGasBudget(budget uint64) Option {
	return func(o *options) {
		if budget > 0 {
			o.gasBudget = budget
		}
	}
}

// WithHealthCheckInterval sets how often lane health is logged
func WithHealthCheckInterval(d time.Duration) Option {
	return func(o *options) { o.healthCheckInterval = d }
}
