package prometheus

import (
	"time"

	"github.com/aescanero/gasrunner/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus
type Collector struct {
	submissions        *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec
	retries            *prometheus.CounterVec

	replenishments      *prometheus.CounterVec
	replenishedCoins    prometheus.Counter
	replenishDuration   prometheus.Histogram
	handlesRemoved      *prometheus.CounterVec
	poolFreeCoins       prometheus.Gauge
	poolCheckedOutCoins prometheus.Gauge
	poolFreeBalance     prometheus.Gauge
	poolSourceBalance   prometheus.Gauge

	lanesIdle prometheus.Gauge
	lanesBusy prometheus.Gauge

	batchesSubmitted *prometheus.CounterVec
	batchesCompleted *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	queueDepth       *prometheus.GaugeVec
}

var _ ports.MetricsCollector = (*Collector)(nil)

// NewCollector registers the gasrunner metrics with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasrunner_submissions_total",
				Help: "Total number of transaction submissions",
			},
			[]string{"mode", "status"},
		),
		submissionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gasrunner_submission_duration_seconds",
				Help:    "Ledger round-trip time per submission in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasrunner_retries_total",
				Help: "Total number of submissions retried on a fresh gas coin",
			},
			[]string{"mode", "reason"},
		),
		replenishments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasrunner_pool_replenishments_total",
				Help: "Total number of gas pool replenishments",
			},
			[]string{"status"},
		),
		replenishedCoins: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gasrunner_pool_replenished_coins_total",
				Help: "Total number of gas coins split off the source coin",
			},
		),
		replenishDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gasrunner_pool_replenish_duration_seconds",
				Help:    "Gas pool replenishment duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		handlesRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasrunner_pool_coins_removed_total",
				Help: "Total number of gas coins removed from the pool",
			},
			[]string{"reason"},
		),
		poolFreeCoins: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gasrunner_pool_free_coins",
				Help: "Number of free gas coins",
			},
		),
		poolCheckedOutCoins: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gasrunner_pool_checked_out_coins",
				Help: "Number of gas coins checked out by lanes",
			},
		),
		poolFreeBalance: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gasrunner_pool_free_balance",
				Help: "Total balance of free gas coins",
			},
		),
		poolSourceBalance: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gasrunner_pool_source_balance",
				Help: "Last known balance of the source coin",
			},
		),
		lanesIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gasrunner_lanes_idle",
				Help: "Number of idle lanes",
			},
		),
		lanesBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gasrunner_lanes_busy",
				Help: "Number of busy lanes",
			},
		),
		batchesSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasrunner_batches_submitted_total",
				Help: "Total number of batches submitted",
			},
			[]string{"mode"},
		),
		batchesCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gasrunner_batches_completed_total",
				Help: "Total number of batches that reached a terminal status",
			},
			[]string{"status"},
		),
		batchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gasrunner_batch_duration_seconds",
				Help:    "Batch execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gasrunner_queue_depth",
				Help: "Current depth of submission queues",
			},
			[]string{"queue"},
		),
	}
}

// RecordSubmission records one ledger submission
func (c *Collector) RecordSubmission(mode, status string, duration time.Duration) {
	c.submissions.WithLabelValues(mode, status).Inc()
	c.submissionDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordRetry records a retried submission
func (c *Collector) RecordRetry(mode, reason string) {
	c.retries.WithLabelValues(mode, reason).Inc()
}

// RecordReplenishment records one pool replenishment
func (c *Collector) RecordReplenishment(status string, coins int, duration time.Duration) {
	c.replenishments.WithLabelValues(status).Inc()
	c.replenishedCoins.Add(float64(coins))
	c.replenishDuration.Observe(duration.Seconds())
}

// RecordHandleRemoved records a gas coin leaving the pool
func (c *Collector) RecordHandleRemoved(reason string) {
	c.handlesRemoved.WithLabelValues(reason).Inc()
}

// RecordPoolStatus records the pool gauges
func (c *Collector) RecordPoolStatus(free, checkedOut int, freeBalance, sourceBalance uint64) {
	c.poolFreeCoins.Set(float64(free))
	c.poolCheckedOutCoins.Set(float64(checkedOut))
	c.poolFreeBalance.Set(float64(freeBalance))
	c.poolSourceBalance.Set(float64(sourceBalance))
}

// RecordLaneStatus records lane gauges
func (c *Collector) RecordLaneStatus(idle, busy int) {
	c.lanesIdle.Set(float64(idle))
	c.lanesBusy.Set(float64(busy))
}

// RecordBatchSubmitted records a batch submission
func (c *Collector) RecordBatchSubmitted(mode string) {
	c.batchesSubmitted.WithLabelValues(mode).Inc()
}

// RecordBatchCompleted records a batch reaching a terminal status
func (c *Collector) RecordBatchCompleted(status string, duration time.Duration) {
	c.batchesCompleted.WithLabelValues(status).Inc()
	c.batchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetQueueDepth sets the current depth of a submission queue
func (c *Collector) SetQueueDepth(queue string, depth int) {
	c.queueDepth.WithLabelValues(queue).Set(float64(depth))
}
