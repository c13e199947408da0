package ports

import "time"

// NopMetrics discards every metric
type NopMetrics struct{}

var _ MetricsCollector = NopMetrics{}

func (NopMetrics) RecordSubmission(string, string, time.Duration) {}
func (NopMetrics) RecordRetry(string, string) {}
func (NopMetrics) RecordReplenishment(string, int, time.Duration) {}
func (NopMetrics) RecordHandleRemoved(string) {}
func (NopMetrics) RecordPoolStatus(int, int, uint64, uint64) {}
func (NopMetrics) RecordLaneStatus(int, int) {}
func (NopMetrics) RecordBatchSubmitted(string) {}
func (NopMetrics) RecordBatchCompleted(string, time.Duration) {}
func (NopMetrics) SetQueueDepth(string, int) {}
