package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/gasrunner/internal/application/gaspool"
	"github.com/aescanero/gasrunner/internal/application/txbuilder"
	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const mode = string(domain.ExecutionModeParallel)

// ParallelExecutor runs requests on a fixed number of lanes, each lane
// submitting with its own gas coin from the pool
type ParallelExecutor struct {
	gateway ports.LedgerGateway
	builder *txbuilder.Builder
	pool    *gaspool.Pool
	opts    options
	logger  *zap.Logger
	metrics ports.MetricsCollector
	health  *HealthMonitor

	lanes    []*lane
	idle     chan *lane
	inflight sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// lane is one execution slot
type lane struct {
	id      string
	mu      sync.RWMutex
	status  LaneStatus
	request string
	coin    string
	lastJob time.Time
}

// LaneStatus represents lane status
type LaneStatus string

const (
	LaneStatusIdle    LaneStatus = "idle"
	LaneStatusBusy    LaneStatus = "busy"
	LaneStatusStopped LaneStatus = "stopped"
)

// LaneInfo is a snapshot of one lane
type LaneInfo struct {
	ID        string     `json:"id"`
	Status    LaneStatus `json:"status"`
	RequestID string     `json:"request_id,omitempty"`
	CoinID    string     `json:"coin_id,omitempty"`
	LastJob   time.Time  `json:"last_job"`
}

// NewParallelExecutor creates an executor with its own gas pool. Only
// configuration errors fail construction.
func NewParallelExecutor(gateway ports.LedgerGateway, signer ports.Signer, poolConfig gaspool.Config, opts ...Option) (*ParallelExecutor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	builder := txbuilder.New(signer, o.gasBudget)
	pool, err := gaspool.New(gateway, builder, poolConfig, o.logger.Named("gaspool"), o.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create gas pool: %w", err)
	}

	e := &ParallelExecutor{
		gateway: gateway,
		builder: builder,
		pool:    pool,
		opts:    o,
		logger:  o.logger,
		metrics: o.metrics,
		lanes:   make([]*lane, o.maxConcurrency),
		idle:    make(chan *lane, o.maxConcurrency),
	}

	for i := range e.lanes {
		ln := &lane{id: fmt.Sprintf("lane-%d", i), status: LaneStatusIdle, lastJob: time.Now()}
		e.lanes[i] = ln
		e.idle <- ln
	}

	e.health = NewHealthMonitor(e, o.healthCheckInterval, o.logger)
	e.health.Start()

	e.logger.Info("parallel executor started",
		zap.String("sender", signer.Address()),
		zap.Int("lanes", o.maxConcurrency),
		zap.Int("max_retries", o.maxRetries),
		zap.Duration("submission_timeout", o.submissionTimeout))

	return e, nil
}

// Pool returns the executor's gas pool
func (e *ParallelExecutor) Pool() *gaspool.Pool {
	return e.pool
}

// Health returns the lane health monitor
func (e *ParallelExecutor) Health() *HealthMonitor {
	return e.health
}

// ExecuteTransaction runs req on the next free lane and waits for its
// outcome. Cancelling ctx before submission abandons the request; after
// submission the lane still settles its gas coin and ctx only stops the wait.
func (e *ParallelExecutor) ExecuteTransaction(ctx context.Context, req domain.OperationRequest) domain.ExecutionOutcome {
	return e.execute(ctx, 0, req)
}

// ExecuteBatch runs reqs concurrently and returns outcomes in completion order
func (e *ParallelExecutor) ExecuteBatch(ctx context.Context, reqs []domain.OperationRequest) []domain.ExecutionOutcome {
	out := make([]domain.ExecutionOutcome, 0, len(reqs))
	for o := range e.Stream(ctx, reqs) {
		out = append(out, o)
	}
	return out
}

// Stream runs reqs concurrently and emits each outcome as it completes.
// Exactly one outcome is emitted per request; the channel is closed after
// the last one.
func (e *ParallelExecutor) Stream(ctx context.Context, reqs []domain.OperationRequest) <-chan domain.ExecutionOutcome {
	ch := make(chan domain.ExecutionOutcome, len(reqs))

	go func() {
		defer close(ch)

		var g errgroup.Group
		g.SetLimit(e.opts.maxConcurrency)
		for i, req := range reqs {
			g.Go(func() error {
				ch <- e.execute(ctx, i, req)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return ch
}

// Lanes returns a snapshot of every lane
func (e *ParallelExecutor) Lanes() []LaneInfo {
	out := make([]LaneInfo, 0, len(e.lanes))
	for _, ln := range e.lanes {
		ln.mu.RLock()
		out = append(out, LaneInfo{
			ID:        ln.id,
			Status:    ln.status,
			RequestID: ln.request,
			CoinID:    ln.coin,
			LastJob:   ln.lastJob,
		})
		ln.mu.RUnlock()
	}
	return out
}

// Shutdown refuses new requests, waits for in-flight lanes and closes the pool
func (e *ParallelExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.logger.Info("shutting down parallel executor")

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("parallel executor shutdown timeout: %w", ctx.Err())
	}

	e.health.Stop()
	for _, ln := range e.lanes {
		ln.set(LaneStatusStopped, "", "")
	}

	remaining := e.pool.Close()
	var balance uint64
	for _, h := range remaining {
		balance += h.Balance
	}
	e.logger.Info("parallel executor shut down",
		zap.Int("remaining_coins", len(remaining)),
		zap.Uint64("remaining_balance", balance))

	return err
}

func (e *ParallelExecutor) enter() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false
	}
	e.inflight.Add(1)
	return true
}

func (e *ParallelExecutor) execute(ctx context.Context, index int, req domain.OperationRequest) domain.ExecutionOutcome {
	out := domain.ExecutionOutcome{Index: index, Request: req, StartedAt: time.Now()}

	fail := func(err error) domain.ExecutionOutcome {
		out.Fail(err)
		out.CompletedAt = time.Now()
		return out
	}

	if !e.enter() {
		return fail(domain.ErrExecutorClosed)
	}

	if err := req.Validate(); err != nil {
		e.inflight.Done()
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		e.inflight.Done()
		return fail(fmt.Errorf("%w: %w", domain.ErrCancelled, err))
	}

	var ln *lane
	select {
	case ln = <-e.idle:
	case <-ctx.Done():
		e.inflight.Done()
		return fail(fmt.Errorf("%w: waiting for a lane: %w", domain.ErrCancelled, ctx.Err()))
	}

	// The lane is returned by the goroutine so an abandoned submission
	// keeps its slot until the ledger answers.
	result := make(chan domain.ExecutionOutcome, 1)
	go func() {
		defer e.inflight.Done()
		defer e.releaseLane(ln)
		result <- e.run(ctx, ln, out)
	}()

	select {
	case res := <-result:
		return res
	case <-ctx.Done():
		return fail(fmt.Errorf("%w: stopped waiting for outcome: %w", domain.ErrCancelled, ctx.Err()))
	}
}

func (e *ParallelExecutor) releaseLane(ln *lane) {
	ln.set(LaneStatusIdle, "", "")
	e.idle <- ln
}

// run drives one request through its attempts on lane ln
func (e *ParallelExecutor) run(ctx context.Context, ln *lane, out domain.ExecutionOutcome) domain.ExecutionOutcome {
	req := out.Request
	ln.set(LaneStatusBusy, req.ID, "")

	logger := e.logger.With(zap.String("lane_id", ln.id), zap.String("request_id", req.ID))
	retryDelay := newBackOff(e.opts.retryDelay, e.opts.maxRetryDelay)

	for attempt := 1; ; attempt++ {
		out.Attempts = attempt

		fx, handle, err := e.attempt(ctx, ln, req)
		if !handle.Ref.IsZero() {
			out.ConsumedResource = handle
		}
		if err == nil {
			out.Succeed(fx)
			out.CompletedAt = time.Now()
			return out
		}

		out.Effects = fx
		if !domain.IsRetryable(err) || attempt > e.opts.maxRetries || ctx.Err() != nil {
			if domain.IsLedgerFailure(err) {
				err = fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
			}
			out.Fail(err)
			out.CompletedAt = time.Now()
			logger.Warn("request failed",
				zap.Int("attempt", attempt),
				zap.String("error_kind", out.ErrorKind),
				zap.Error(err))
			return out
		}

		delay := retryDelay.NextBackOff()
		e.metrics.RecordRetry(mode, domain.ErrorKind(err))
		logger.Info("retrying request with a fresh gas coin",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := sleep(ctx, delay); err != nil {
			out.Fail(fmt.Errorf("%w: during retry backoff: %w", domain.ErrCancelled, err))
			out.CompletedAt = time.Now()
			return out
		}
	}
}

// attempt submits req once on a freshly acquired gas coin and settles the
// coin with the pool before returning
func (e *ParallelExecutor) attempt(ctx context.Context, ln *lane, req domain.OperationRequest) (*domain.Effects, domain.ResourceHandle, error) {
	handle, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, domain.ResourceHandle{}, err
	}
	ln.set(LaneStatusBusy, req.ID, handle.ID())

	logger := e.logger.With(
		zap.String("lane_id", ln.id),
		zap.String("request_id", req.ID),
		zap.String("coin_id", handle.ID()))

	tx, err := e.prepare(ctx, req, handle)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: cancelled before submission: %w", domain.ErrCancelled, ctx.Err())
	}
	if err != nil {
		if rerr := e.pool.Release(handle); rerr != nil {
			logger.Error("failed to return unused gas coin", zap.Error(rerr))
		}
		return nil, handle, err
	}

	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.submissionTimeout)
	start := time.Now()
	fx, err := e.gateway.Submit(subCtx, tx)
	if err != nil && errors.Is(subCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	cancel()
	duration := time.Since(start)

	if err == nil && fx != nil && !fx.Success {
		err = fmt.Errorf("%w: %s", domain.ErrRejectedByLedger, fx.Error)
	}

	if err == nil {
		if rerr := e.pool.Release(handle.WithEffects(fx)); rerr != nil {
			logger.Error("failed to release gas coin", zap.Error(rerr))
		}
		e.metrics.RecordSubmission(mode, "success", duration)
		logger.Debug("transaction confirmed",
			zap.String("digest", fx.Digest),
			zap.Uint64("gas_used", fx.GasUsed),
			zap.Duration("duration", duration))
		return fx, handle, nil
	}

	if ierr := e.pool.Invalidate(handle); ierr != nil {
		logger.Error("failed to invalidate gas coin", zap.Error(ierr))
	}
	e.metrics.RecordSubmission(mode, domain.ErrorKind(err), duration)
	if errors.Is(err, domain.ErrConflictingReference) {
		logger.Error("gas coin used concurrently or at a stale version", zap.Error(err))
	}
	return fx, handle, err
}

// prepare resolves unpinned owned objects and builds the signed transaction
func (e *ParallelExecutor) prepare(ctx context.Context, req domain.OperationRequest, handle domain.ResourceHandle) (*domain.Transaction, error) {
	var lookup txbuilder.VersionLookup
	if ids := txbuilder.UnpinnedObjects(req); len(ids) > 0 {
		refs, err := e.gateway.Objects(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load object versions: %w", err)
		}
		known := make(map[string]domain.ObjectRef, len(refs))
		for _, ref := range refs {
			known[ref.ObjectID] = ref
		}
		lookup = func(id string) (domain.ObjectRef, bool) {
			ref, ok := known[id]
			return ref, ok
		}
	}
	return e.builder.Build(ctx, req, handle, lookup)
}

func (ln *lane) set(status LaneStatus, requestID, coinID string) {
	ln.mu.Lock()
	defer ln.mu.Unlock()

	ln.status = status
	ln.request = requestID
	ln.coin = coinID
	if status == LaneStatusBusy {
		ln.lastJob = time.Now()
	}
}
