package serial

import (
	"time"

	"github.com/aescanero/gasrunner/pkg/ports"
	"go.uber.org/zap"
)

type options struct {
	logger            *zap.Logger
	metrics           ports.MetricsCollector
	gasCoinID         string
	gasBudget         uint64
	submissionTimeout time.Duration
	queueSize         int
}

func defaultOptions() options {
	return options{
		logger:            zap.NewNop(),
		metrics:           ports.NopMetrics{},
		gasBudget:         50_000_000,
		submissionTimeout: 30 * time.Second,
		queueSize:         256,
	}
}

// Option configures an Executor
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

// WithGasCoin pins the gas coin. By default the largest owned coin not
// claimed by another component of the same sender is used.
func WithGasCoin(coinID string) Option {
	return func(o *options) { o.gasCoinID = coinID }
}

// WithGasBudget sets the budget for requests that carry none
func WithGasBudget(budget uint64) Option {
	return func(o *options) {
		if budget > 0 {
			o.gasBudget = budget
		}
	}
}

// WithSubmissionTimeout bounds each ledger round trip
func WithSubmissionTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.submissionTimeout = d
		}
	}
}

// WithQueueSize sets how many requests may wait before callers block
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.queueSize = n
		}
	}
}
