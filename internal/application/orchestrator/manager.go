package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventsTopic is the topic every batch event is published on
const EventsTopic = "batch.events"

// Executor runs a list of requests and emits one outcome per request
type Executor interface {
	Stream(ctx context.Context, reqs []domain.OperationRequest) <-chan domain.ExecutionOutcome
}

// BatchSpec is a batch as submitted by a client
type BatchSpec struct {
	Name     string                    `json:"name,omitempty"`
	Mode     domain.ExecutionMode      `json:"mode"`
	Requests []domain.OperationRequest `json:"requests"`
}

// Manager coordinates batch runs
type Manager struct {
	executors map[domain.ExecutionMode]Executor
	eventBus  ports.EventBus
	storage   ports.BatchStorage
	metrics   ports.MetricsCollector
	validator *Validator
	bindings  Bindings
	logger    *zap.Logger

	// Track active batches
	batches sync.Map // map[string]*batchContext
	running sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	batchTimeout time.Duration
}

// batchContext holds state for a single batch run
type batchContext struct {
	batchID    string
	status     domain.BatchStatus
	cancelled  bool
	cancelFunc context.CancelFunc
	done       chan struct{}
	mu         sync.Mutex
}

// NewManager creates a new orchestrator manager
func NewManager(
	executors map[domain.ExecutionMode]Executor,
	eventBus ports.EventBus,
	storage ports.BatchStorage,
	metrics ports.MetricsCollector,
	validator *Validator,
	bindings Bindings,
	logger *zap.Logger,
	batchTimeout time.Duration,
) *Manager {
	return &Manager{
		executors:    executors,
		eventBus:     eventBus,
		storage:      storage,
		metrics:      metrics,
		validator:    validator,
		bindings:     bindings,
		logger:       logger,
		batchTimeout: batchTimeout,
	}
}

// SubmitBatch validates a batch, stores it and starts running it in the background
func (m *Manager) SubmitBatch(ctx context.Context, spec BatchSpec) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", domain.ErrExecutorClosed
	}

	resolved, err := m.resolve(spec)
	if err != nil {
		m.logger.Warn("batch rejected", zap.String("name", spec.Name), zap.Error(err))
		return "", err
	}

	if err := m.validator.Validate(resolved); err != nil {
		m.logger.Warn("batch validation failed", zap.String("name", spec.Name), zap.Error(err))
		return "", fmt.Errorf("validation failed: %w", err)
	}

	executor, ok := m.executors[resolved.Mode]
	if !ok {
		return "", fmt.Errorf("%w: no executor for mode %s", domain.ErrInvalidRequest, resolved.Mode)
	}

	batchID := uuid.New().String()

	state := &domain.BatchState{
		BatchID:     batchID,
		Name:        resolved.Name,
		Mode:        resolved.Mode,
		Status:      domain.BatchStatusSubmitted,
		Requests:    resolved.Requests,
		SubmittedAt: time.Now(),
	}
	state.Summary.Total = len(state.Requests)

	if err := m.storage.SaveBatch(ctx, state); err != nil {
		m.logger.Error("failed to save initial state",
			zap.String("batch_id", batchID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save state: %w", err)
	}

	if err := m.publish(ctx, domain.EventTypeBatchSubmitted, batchID, "", map[string]interface{}{
		"name":     state.Name,
		"mode":     string(state.Mode),
		"requests": len(state.Requests),
	}); err != nil {
		m.logger.Error("failed to publish batch submitted event",
			zap.String("batch_id", batchID),
			zap.Error(err))
		return "", fmt.Errorf("failed to publish event: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), m.batchTimeout)
	bc := &batchContext{
		batchID:    batchID,
		status:     domain.BatchStatusSubmitted,
		cancelFunc: cancel,
		done:       make(chan struct{}),
	}
	m.batches.Store(batchID, bc)

	m.metrics.RecordBatchSubmitted(string(state.Mode))
	m.logger.Info("batch submitted",
		zap.String("batch_id", batchID),
		zap.String("name", state.Name),
		zap.String("mode", string(state.Mode)),
		zap.Int("requests", len(state.Requests)))

	m.running.Add(1)
	go m.run(runCtx, bc, state, executor)

	return batchID, nil
}

// GetStatus retrieves the current state of a batch
func (m *Manager) GetStatus(ctx context.Context, batchID string) (*domain.BatchState, error) {
	state, err := m.storage.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	return state, nil
}

// ListBatches returns the ids of every stored batch
func (m *Manager) ListBatches(ctx context.Context) ([]string, error) {
	ids, err := m.storage.ListBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return ids, nil
}

// DeleteBatch removes a finished batch from storage
func (m *Manager) DeleteBatch(ctx context.Context, batchID string) error {
	if _, active := m.batches.Load(batchID); active {
		return fmt.Errorf("batch %s is still running", batchID)
	}
	if _, err := m.storage.GetBatch(ctx, batchID); err != nil {
		return fmt.Errorf("batch %s: %w", batchID, err)
	}
	if err := m.storage.DeleteBatch(ctx, batchID); err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return nil
}

// Wait blocks until the batch reaches a terminal status and returns its final state
func (m *Manager) Wait(ctx context.Context, batchID string) (*domain.BatchState, error) {
	if val, ok := m.batches.Load(batchID); ok {
		select {
		case <-val.(*batchContext).done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.GetStatus(ctx, batchID)
}

// CancelBatch cancels a running batch. Requests not yet submitted are
// cancelled; submitted ones still settle on the ledger.
func (m *Manager) CancelBatch(ctx context.Context, batchID string) error {
	val, ok := m.batches.Load(batchID)
	if !ok {
		state, err := m.storage.GetBatch(ctx, batchID)
		if err != nil {
			return fmt.Errorf("batch %s: %w", batchID, err)
		}
		return fmt.Errorf("batch already in terminal state: %s", state.Status)
	}

	bc := val.(*batchContext)
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.status.IsTerminal() {
		return fmt.Errorf("batch already in terminal state: %s", bc.status)
	}

	bc.cancelled = true
	bc.cancelFunc()

	m.logger.Info("batch cancellation requested", zap.String("batch_id", batchID))
	return nil
}

// Shutdown cancels every active batch and waits for them to record their final state
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.batches.Range(func(_, value interface{}) bool {
		bc := value.(*batchContext)
		bc.mu.Lock()
		bc.cancelled = true
		bc.mu.Unlock()
		bc.cancelFunc()
		return true
	})

	done := make(chan struct{})
	go func() {
		m.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("orchestrator manager shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain batches: %w", ctx.Err())
	}
}

func (m *Manager) resolve(spec BatchSpec) (*BatchSpec, error) {
	out := &BatchSpec{Name: spec.Name, Mode: spec.Mode, Requests: make([]domain.OperationRequest, len(spec.Requests))}
	for i, req := range spec.Requests {
		r, err := m.bindings.Apply(req)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		out.Requests[i] = r
	}
	return out, nil
}

func (m *Manager) run(ctx context.Context, bc *batchContext, state *domain.BatchState, executor Executor) {
	defer m.running.Done()
	defer close(bc.done)
	defer m.batches.Delete(bc.batchID)
	defer bc.cancelFunc()

	log := m.logger.With(zap.String("batch_id", bc.batchID))

	bc.mu.Lock()
	bc.status = domain.BatchStatusRunning
	bc.mu.Unlock()

	started := time.Now()
	state.Status = domain.BatchStatusRunning
	state.StartedAt = &started
	m.save(state, log)
	if err := m.publish(context.Background(), domain.EventTypeBatchStarted, bc.batchID, "", nil); err != nil {
		log.Error("failed to publish batch started event", zap.Error(err))
	}

	outcomes := make([]domain.ExecutionOutcome, 0, len(state.Requests))
	for out := range executor.Stream(ctx, state.Requests) {
		outcomes = append(outcomes, out)
		m.publishOutcome(bc.batchID, out, log)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Index < outcomes[j].Index })

	bc.mu.Lock()
	status, eventType, errMsg := domain.BatchStatusCompleted, domain.EventTypeBatchCompleted, ""
	switch {
	case bc.cancelled:
		status, eventType, errMsg = domain.BatchStatusCancelled, domain.EventTypeBatchCancelled, "batch cancelled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status, eventType, errMsg = domain.BatchStatusFailed, domain.EventTypeBatchFailed, "batch timeout"
	}
	bc.status = status
	bc.mu.Unlock()

	completed := time.Now()
	state.Status = status
	state.Error = errMsg
	state.Outcomes = outcomes
	state.Summary = domain.Summarize(outcomes)
	state.CompletedAt = &completed
	m.save(state, log)

	data := map[string]interface{}{
		"total":     state.Summary.Total,
		"succeeded": state.Summary.Succeeded,
		"failed":    state.Summary.Failed,
		"gas_used":  state.Summary.GasUsed,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	if err := m.publish(context.Background(), eventType, bc.batchID, "", data); err != nil {
		log.Error("failed to publish batch final event", zap.Error(err))
	}

	duration := completed.Sub(started)
	m.metrics.RecordBatchCompleted(string(status), duration)
	log.Info("batch finished",
		zap.String("status", string(status)),
		zap.Int("succeeded", state.Summary.Succeeded),
		zap.Int("failed", state.Summary.Failed),
		zap.Duration("duration", duration))
}

func (m *Manager) publishOutcome(batchID string, out domain.ExecutionOutcome, log *zap.Logger) {
	data := map[string]interface{}{
		"index":    out.Index,
		"attempts": out.Attempts,
		"coin":     out.ConsumedResource.ID(),
	}

	eventType := domain.EventTypeRequestCompleted
	if out.Success {
		if out.Effects != nil {
			data["digest"] = out.Effects.Digest
			data["gas_used"] = out.Effects.GasUsed
			data["created"] = len(out.Effects.Created)
		}
	} else {
		eventType = domain.EventTypeRequestFailed
		data["error"] = out.Error
		data["error_kind"] = out.ErrorKind
	}

	if err := m.publish(context.Background(), eventType, batchID, out.Request.ID, data); err != nil {
		log.Error("failed to publish request event",
			zap.String("request_id", out.Request.ID),
			zap.Error(err))
	}
}

func (m *Manager) save(state *domain.BatchState, log *zap.Logger) {
	if err := m.storage.SaveBatch(context.Background(), state); err != nil {
		log.Error("failed to save state",
			zap.String("status", string(state.Status)),
			zap.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, eventType domain.EventType, batchID, requestID string, data map[string]interface{}) error {
	return m.eventBus.Publish(ctx, EventsTopic, domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		BatchID:   batchID,
		RequestID: requestID,
		Timestamp: time.Now(),
		Data:      data,
	})
}
