package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor periodically logs and exports lane and pool health
type HealthMonitor struct {
	executor *ParallelExecutor
	interval time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// HealthStatus represents the health of the lanes and their gas pool
type HealthStatus struct {
	TotalLanes   int       `json:"total_lanes"`
	IdleLanes    int       `json:"idle_lanes"`
	BusyLanes    int       `json:"busy_lanes"`
	StoppedLanes int       `json:"stopped_lanes"`
	FreeCoins    int       `json:"free_coins"`
	FreeBalance  uint64    `json:"free_balance"`
	Healthy      bool      `json:"healthy"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(executor *ParallelExecutor, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		executor: executor,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the health monitor
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

// Stop stops the health monitor
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.stopCh)
}

func (h *HealthMonitor) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.checkHealth()
		}
	}
}

// checkHealth logs lane status and records metrics
func (h *HealthMonitor) checkHealth() {
	status := h.GetStatus()

	h.logger.Info("lane health check",
		zap.Int("total", status.TotalLanes),
		zap.Int("idle", status.IdleLanes),
		zap.Int("busy", status.BusyLanes),
		zap.Int("free_coins", status.FreeCoins),
		zap.Uint64("free_balance", status.FreeBalance),
		zap.Bool("healthy", status.Healthy))

	h.executor.metrics.RecordLaneStatus(status.IdleLanes, status.BusyLanes)

	if !status.Healthy {
		h.logger.Warn("lanes are unhealthy",
			zap.Int("stopped", status.StoppedLanes),
			zap.Int("total", status.TotalLanes))
	}

	if status.BusyLanes == status.TotalLanes {
		h.logger.Warn("all lanes are busy - consider raising max concurrency",
			zap.Int("total", status.TotalLanes))
	}
}

// GetStatus returns the current health status
func (h *HealthMonitor) GetStatus() *HealthStatus {
	var idle, busy, stopped int
	lanes := h.executor.Lanes()
	for _, ln := range lanes {
		switch ln.Status {
		case LaneStatusIdle:
			idle++
		case LaneStatusBusy:
			busy++
		case LaneStatusStopped:
			stopped++
		}
	}

	stats := h.executor.pool.Stats()

	return &HealthStatus{
		TotalLanes:   len(lanes),
		IdleLanes:    idle,
		BusyLanes:    busy,
		StoppedLanes: stopped,
		FreeCoins:    stats.Free,
		FreeBalance:  stats.FreeBalance,
		Healthy:      stopped == 0,
		Timestamp:    time.Now(),
	}
}

// IsHealthy returns true while no lane has stopped
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
