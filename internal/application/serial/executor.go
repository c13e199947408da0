package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/gasrunner/internal/application/coinlock"
	"github.com/aescanero/gasrunner/internal/application/txbuilder"
	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const mode = string(domain.ExecutionModeSerial)

// Executor submits every request through one queue on one gas coin.
// Request B is built only after request A is confirmed, from the gas coin
// and object versions A's effects produced.
type Executor struct {
	gateway ports.LedgerGateway
	builder *txbuilder.Builder
	opts    options

	// coins is shared with every other component spending for the sender
	coins   *coinlock.Registry
	holder  string
	claimed string

	queue    chan *job
	done     chan struct{}
	inflight sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// owned by the queue goroutine, guarded for readers
	stateMu sync.RWMutex
	coin    *domain.ResourceHandle
	objects map[string]domain.ObjectRef
}

type job struct {
	ctx    context.Context
	index  int
	req    domain.OperationRequest
	result chan domain.ExecutionOutcome
}

// NewSerialExecutor creates an executor and starts its queue
func NewSerialExecutor(gateway ports.LedgerGateway, signer ports.Signer, opts ...Option) *Executor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Executor{
		gateway: gateway,
		builder: txbuilder.New(signer, o.gasBudget),
		opts:    o,
		coins:   coinlock.ForOwner(signer.Address()),
		holder:  "serial/" + uuid.NewString(),
		queue:   make(chan *job, o.queueSize),
		done:    make(chan struct{}),
		objects: make(map[string]domain.ObjectRef),
	}

	go e.run()

	e.opts.logger.Info("serial executor started",
		zap.String("sender", signer.Address()),
		zap.String("gas_coin", o.gasCoinID),
		zap.Int("queue_size", o.queueSize))

	return e
}

// ExecuteTransaction queues req behind every earlier call and waits for its
// outcome. Cancelling ctx before the request reaches the ledger drops it;
// afterwards it only stops the wait.
func (e *Executor) ExecuteTransaction(ctx context.Context, req domain.OperationRequest) domain.ExecutionOutcome {
	return e.execute(ctx, 0, req)
}

// ExecuteBatch runs reqs in order and returns outcomes in the same order
func (e *Executor) ExecuteBatch(ctx context.Context, reqs []domain.OperationRequest) []domain.ExecutionOutcome {
	out := make([]domain.ExecutionOutcome, 0, len(reqs))
	for o := range e.Stream(ctx, reqs) {
		out = append(out, o)
	}
	return out
}

// Stream runs reqs in order and emits each outcome as it completes. The
// channel is closed after the last outcome.
func (e *Executor) Stream(ctx context.Context, reqs []domain.OperationRequest) <-chan domain.ExecutionOutcome {
	ch := make(chan domain.ExecutionOutcome)
	go func() {
		defer close(ch)
		for i, req := range reqs {
			ch <- e.execute(ctx, i, req)
		}
	}()
	return ch
}

// GasCoin returns the executor's current view of its gas coin
func (e *Executor) GasCoin() (domain.ResourceHandle, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	if e.coin == nil {
		return domain.ResourceHandle{}, false
	}
	return *e.coin, true
}

// QueueDepth returns the number of requests waiting to be submitted
func (e *Executor) QueueDepth() int {
	return len(e.queue)
}

// Shutdown refuses new requests and waits for queued ones to finish
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.opts.logger.Info("shutting down serial executor", zap.Int("queued", len(e.queue)))

	drained := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(e.queue)
		<-e.done
		close(drained)
	}()

	select {
	case <-drained:
		e.coins.ReleaseAll(e.holder)
		e.opts.logger.Info("serial executor shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("serial executor shutdown timeout: %w", ctx.Err())
	}
}

func (e *Executor) enter() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false
	}
	e.inflight.Add(1)
	return true
}

func (e *Executor) execute(ctx context.Context, index int, req domain.OperationRequest) domain.ExecutionOutcome {
	out := domain.ExecutionOutcome{Index: index, Request: req, StartedAt: time.Now()}

	if !e.enter() {
		out.Fail(domain.ErrExecutorClosed)
		out.CompletedAt = time.Now()
		return out
	}
	defer e.inflight.Done()

	j := &job{ctx: ctx, index: index, req: req, result: make(chan domain.ExecutionOutcome, 1)}

	select {
	case e.queue <- j:
		e.opts.metrics.SetQueueDepth(mode, len(e.queue))
	case <-ctx.Done():
		out.Fail(fmt.Errorf("%w: not queued: %w", domain.ErrCancelled, ctx.Err()))
		out.CompletedAt = time.Now()
		return out
	}

	select {
	case res := <-j.result:
		return res
	case <-ctx.Done():
		out.Fail(fmt.Errorf("%w: stopped waiting for outcome: %w", domain.ErrCancelled, ctx.Err()))
		out.CompletedAt = time.Now()
		return out
	}
}

func (e *Executor) run() {
	defer close(e.done)

	for j := range e.queue {
		e.opts.metrics.SetQueueDepth(mode, len(e.queue))
		j.result <- e.process(j)
	}
}

func (e *Executor) process(j *job) domain.ExecutionOutcome {
	out := domain.ExecutionOutcome{Index: j.index, Request: j.req, StartedAt: time.Now(), Attempts: 1}
	defer func() { out.CompletedAt = time.Now() }()

	if err := j.ctx.Err(); err != nil {
		out.Attempts = 0
		out.Fail(fmt.Errorf("%w: cancelled before submission: %w", domain.ErrCancelled, err))
		return out
	}

	if err := j.req.Validate(); err != nil {
		out.Attempts = 0
		out.Fail(err)
		return out
	}

	// Submission outlives the caller; the timeout still bounds it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), e.opts.submissionTimeout)
	defer cancel()

	coin, err := e.gasCoin(ctx)
	if err != nil {
		out.Fail(err)
		return out
	}
	out.ConsumedResource = coin

	if err := e.pinObjects(ctx, j.req); err != nil {
		out.Fail(err)
		return out
	}

	tx, err := e.builder.Build(ctx, j.req, coin, e.lookup)
	if err != nil {
		out.Fail(err)
		return out
	}

	logger := e.opts.logger.With(
		zap.String("request_id", j.req.ID),
		zap.String("coin_id", coin.ID()),
		zap.Uint64("coin_version", coin.Ref.Version))
	logger.Debug("submitting transaction", zap.String("target", j.req.Target))

	start := time.Now()
	fx, err := e.gateway.Submit(ctx, tx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	if err == nil && fx != nil && !fx.Success {
		err = fmt.Errorf("%w: %s", domain.ErrRejectedByLedger, fx.Error)
	}
	e.settle(coin, fx, err)

	duration := time.Since(start)
	if err != nil {
		if domain.IsLedgerFailure(err) {
			err = fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
		}
		out.Effects = fx
		out.Fail(err)
		e.opts.metrics.RecordSubmission(mode, out.ErrorKind, duration)
		logger.Warn("transaction failed", zap.Error(err), zap.Duration("duration", duration))
		return out
	}

	out.Succeed(fx)
	e.opts.metrics.RecordSubmission(mode, "success", duration)
	logger.Info("transaction confirmed",
		zap.String("digest", fx.Digest),
		zap.Uint64("gas_used", fx.GasUsed),
		zap.Duration("duration", duration))
	return out
}

// settle updates the gas coin and object cache from a submission result.
// Effects are authoritative whenever the ledger returned them; otherwise a
// conflict or transport failure leaves local state untrusted and it is
// reloaded from the ledger before the next submission.
func (e *Executor) settle(coin domain.ResourceHandle, fx *domain.Effects, err error) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if fx != nil {
		updated := coin.WithEffects(fx)
		e.coin = &updated
		for _, ref := range fx.Mutated {
			e.objects[ref.ObjectID] = ref
		}
		for _, c := range fx.Created {
			e.objects[c.Ref.ObjectID] = c.Ref
		}
		return
	}

	if errors.Is(err, domain.ErrConflictingReference) || domain.IsRetryable(err) {
		e.coin = nil
		e.objects = make(map[string]domain.ObjectRef)
		e.opts.logger.Warn("gas coin state untrusted, resynchronizing",
			zap.String("coin_id", coin.ID()),
			zap.Error(err))
	}
}

func (e *Executor) gasCoin(ctx context.Context) (domain.ResourceHandle, error) {
	e.stateMu.RLock()
	if e.coin != nil {
		c := *e.coin
		e.stateMu.RUnlock()
		return c, nil
	}
	e.stateMu.RUnlock()

	coins, err := e.gateway.GasCoins(ctx, e.builder.Sender())
	if err != nil {
		return domain.ResourceHandle{}, fmt.Errorf("failed to load gas coin: %w", err)
	}

	if e.claimed != "" && e.opts.gasCoinID == "" && !ownsCoin(coins, e.claimed) {
		e.coins.Release(e.claimed, e.holder)
		e.claimed = ""
	}

	// once chosen, a coin is kept across resyncs
	want := e.opts.gasCoinID
	if want == "" {
		want = e.claimed
	}

	for _, c := range coins {
		if want != "" && c.ID() != want {
			continue
		}
		if err := e.coins.Claim(c.ID(), e.holder); err != nil {
			if want != "" {
				return domain.ResourceHandle{}, fmt.Errorf("%w: gas coin: %w", domain.ErrResourceExhausted, err)
			}
			continue
		}
		e.claimed = c.ID()
		e.stateMu.Lock()
		e.coin = &c
		e.stateMu.Unlock()

		e.opts.logger.Info("gas coin loaded",
			zap.String("coin_id", c.ID()),
			zap.Uint64("version", c.Ref.Version),
			zap.Uint64("balance", c.Balance))
		return c, nil
	}

	if e.opts.gasCoinID != "" {
		return domain.ResourceHandle{}, fmt.Errorf("%w: gas coin %s not owned by %s",
			domain.ErrResourceExhausted, e.opts.gasCoinID, e.builder.Sender())
	}
	return domain.ResourceHandle{}, fmt.Errorf("%w: no unclaimed gas coin owned by %s",
		domain.ErrResourceExhausted, e.builder.Sender())
}

func ownsCoin(coins []domain.ResourceHandle, id string) bool {
	for _, c := range coins {
		if c.ID() == id {
			return true
		}
	}
	return false
}

// pinObjects loads versions for owned objects the cache does not know yet
func (e *Executor) pinObjects(ctx context.Context, req domain.OperationRequest) error {
	var missing []string
	e.stateMu.RLock()
	for _, id := range txbuilder.UnpinnedObjects(req) {
		if _, ok := e.objects[id]; !ok {
			missing = append(missing, id)
		}
	}
	e.stateMu.RUnlock()

	if len(missing) == 0 {
		return nil
	}

	refs, err := e.gateway.Objects(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to load object versions: %w", err)
	}

	e.stateMu.Lock()
	for _, ref := range refs {
		e.objects[ref.ObjectID] = ref
	}
	e.stateMu.Unlock()
	return nil
}

func (e *Executor) lookup(id string) (domain.ObjectRef, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	ref, ok := e.objects[id]
	return ref, ok
}
