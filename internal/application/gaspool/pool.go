package gaspool

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
	"golang.org/x/sync/singleflight"
)

const replenishKey = "replenish"

// ErrNotCheckedOut is returned when releasing a coin the pool did not hand out
var ErrNotCheckedOut = errors.New("gas coin is not checked out")

// Pool owns a working set of gas coins and hands each one to at most one
// caller at a time. All state lives behind mu; replenishment is
// single-flight and runs on the pool's own context, never on a caller's.
type Pool struct {
	gateway ports.LedgerGateway
	builder *txbuilder.Builder
	cfg     Config
	logger  *zap.Logger
	metrics ports.MetricsCollector

	// coins is shared with every other component spending for the sender
	coins  *coinlock.Registry
	holder string

	flight  singleflight.Group
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	handles  map[string]*domain.ResourceHandle
	free     []string
	source   *domain.ResourceHandle
	changed  chan struct{}
	closed   bool
	splitSeq int
	stats    Stats
}

// Stats is a consistent snapshot of the pool's accounting.
//
// At every observation point:
//
//	FreeBalance + CheckedOutBalance + Spent == Replenished - Invalidated - Discarded
type Stats struct {
	Free              int    `json:"free"`
	CheckedOut        int    `json:"checked_out"`
	FreeBalance       uint64 `json:"free_balance"`
	CheckedOutBalance uint64 `json:"checked_out_balance"`
	SourceBalance     uint64 `json:"source_balance"`
	Replenishments    int    `json:"replenishments"`
	Replenished       uint64 `json:"replenished"`
	Spent             uint64 `json:"spent"`
	Invalidated       uint64 `json:"invalidated"`
	Discarded         uint64 `json:"discarded"`
}

// New creates a pool. The working set starts empty; the first Acquire
// triggers a replenishment.
func New(gateway ports.LedgerGateway, builder *txbuilder.Builder, cfg Config, logger *zap.Logger, metrics ports.MetricsCollector) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReplenishTimeout == 0 {
		cfg.ReplenishTimeout = DefaultConfig().ReplenishTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		gateway: gateway,
		builder: builder,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		coins:   coinlock.ForOwner(builder.Sender()),
		holder:  "gaspool/" + uuid.NewString(),
		baseCtx: ctx,
		cancel:  cancel,
		handles: make(map[string]*domain.ResourceHandle),
		changed: make(chan struct{}),
	}, nil
}

// Acquire checks out a free coin, replenishing the pool when none is free.
// It blocks only the calling goroutine and honors ctx while waiting.
func (p *Pool) Acquire(ctx context.Context) (domain.ResourceHandle, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return domain.ResourceHandle{}, domain.ErrPoolClosed
		}

		if h, ok := p.checkoutLocked(); ok {
			refill := p.needsRefillLocked()
			if refill {
				p.wg.Add(1)
			}
			p.mu.Unlock()
			if refill {
				p.refillAsync()
			}
			return h, nil
		}

		if p.cfg.MaxHandles > 0 && len(p.handles) >= p.cfg.MaxHandles {
			wait := p.changed
			p.mu.Unlock()

			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return domain.ResourceHandle{}, fmt.Errorf("%w: waiting for a gas coin: %w", domain.ErrCancelled, ctx.Err())
			}
		}
		p.mu.Unlock()

		select {
		case res := <-p.flight.DoChan(replenishKey, p.replenishFlight):
			if res.Err != nil {
				return domain.ResourceHandle{}, res.Err
			}
		case <-ctx.Done():
			return domain.ResourceHandle{}, fmt.Errorf("%w: waiting for replenishment: %w", domain.ErrCancelled, ctx.Err())
		}
	}
}

// Release returns a checked-out coin with its post-submission reference and
// balance. Coins left below the minimum balance are discarded.
func (p *Pool) Release(h domain.ResourceHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, ok := p.handles[h.ID()]
	if !ok || cur.State != domain.HandleStateCheckedOut {
		return fmt.Errorf("%w: %s", ErrNotCheckedOut, h.ID())
	}

	if h.Balance <= cur.Balance {
		p.stats.Spent += cur.Balance - h.Balance
	} else {
		p.stats.Replenished += h.Balance - cur.Balance
	}

	if h.Balance < p.cfg.MinimumBalance {
		delete(p.handles, h.ID())
		p.stats.Discarded += h.Balance
		p.metrics.RecordHandleRemoved(string(domain.HandleStateSpent))
		p.logger.Debug("gas coin discarded below minimum balance",
			zap.String("coin_id", h.ID()),
			zap.Uint64("balance", h.Balance))
	} else {
		cur.Ref = h.Ref
		cur.Balance = h.Balance
		cur.State = domain.HandleStateFree
		p.free = append(p.free, h.ID())
	}

	p.notifyLocked()
	p.recordStatusLocked()
	return nil
}

// Invalidate drops a checked-out coin whose state can no longer be trusted
func (p *Pool) Invalidate(h domain.ResourceHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, ok := p.handles[h.ID()]
	if !ok || cur.State != domain.HandleStateCheckedOut {
		return fmt.Errorf("%w: %s", ErrNotCheckedOut, h.ID())
	}

	delete(p.handles, h.ID())
	p.stats.Invalidated += cur.Balance
	p.metrics.RecordHandleRemoved(string(domain.HandleStateInvalid))
	p.logger.Debug("gas coin invalidated",
		zap.String("coin_id", h.ID()),
		zap.Uint64("balance", cur.Balance))

	p.notifyLocked()
	p.recordStatusLocked()
	return nil
}

// Replenish splits a new batch of coins off the source coin. Concurrent
// callers share one in-flight split and its result.
func (p *Pool) Replenish(ctx context.Context) (int, error) {
	select {
	case res := <-p.flight.DoChan(replenishKey, p.replenishFlight):
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: waiting for replenishment: %w", domain.ErrCancelled, ctx.Err())
	}
}

// Stats returns an accounting snapshot
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

// Handles returns a snapshot of the working set
func (p *Pool) Handles() []domain.ResourceHandle {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.ResourceHandle, 0, len(p.handles))
	for _, h := range p.handles {
		out = append(out, *h)
	}
	return out
}

// Close stops replenishment, wakes every waiter and returns the coins
// still in the working set
func (p *Pool) Close() []domain.ResourceHandle {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.notifyLocked()
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	remaining := p.Handles()
	released := p.coins.ReleaseAll(p.holder)
	p.logger.Info("gas pool closed",
		zap.Int("remaining_coins", len(remaining)),
		zap.Int("released_claims", released))
	return remaining
}

func (p *Pool) checkoutLocked() (domain.ResourceHandle, bool) {
	for len(p.free) > 0 {
		id := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]

		h, ok := p.handles[id]
		if !ok || h.State != domain.HandleStateFree {
			continue
		}
		h.State = domain.HandleStateCheckedOut
		p.recordStatusLocked()
		return *h, true
	}
	return domain.ResourceHandle{}, false
}

func (p *Pool) needsRefillLocked() bool {
	if p.closed || p.cfg.RefillWatermark == 0 || len(p.free) >= p.cfg.RefillWatermark {
		return false
	}
	return p.cfg.MaxHandles == 0 || len(p.handles) < p.cfg.MaxHandles
}

// refillAsync runs a background replenishment; the caller has already
// added it to wg under mu
func (p *Pool) refillAsync() {
	go func() {
		defer p.wg.Done()

		res := <-p.flight.DoChan(replenishKey, p.replenishFlight)
		if res.Err != nil && !errors.Is(res.Err, domain.ErrPoolClosed) {
			p.logger.Warn("proactive replenishment failed", zap.Error(res.Err))
		}
	}()
}

func (p *Pool) replenishFlight() (interface{}, error) {
	ctx, cancel := context.WithTimeout(p.baseCtx, p.cfg.ReplenishTimeout)
	defer cancel()

	start := time.Now()
	n, err := p.replenish(ctx)
	status := "success"
	if err != nil {
		status = domain.ErrorKind(err)
	}
	p.metrics.RecordReplenishment(status, n, time.Since(start))
	return n, err
}

func (p *Pool) replenish(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, domain.ErrPoolClosed
	}
	room := p.cfg.BatchSize
	if p.cfg.MaxHandles > 0 {
		room = p.cfg.MaxHandles - len(p.handles)
		if room > p.cfg.BatchSize {
			room = p.cfg.BatchSize
		}
	}
	p.splitSeq++
	splitID := fmt.Sprintf("replenish-%d", p.splitSeq)
	p.mu.Unlock()

	if room <= 0 {
		return 0, nil
	}

	source, err := p.sourceCoin(ctx)
	if err != nil {
		return 0, err
	}

	count, amount, err := p.plan(source.Balance, room)
	if err != nil {
		p.logger.Warn("gas pool exhausted",
			zap.String("source_coin", source.ID()),
			zap.Uint64("source_balance", source.Balance))
		return 0, err
	}

	amounts := make([]uint64, count)
	for i := range amounts {
		amounts[i] = amount
	}

	tx, err := p.builder.Build(ctx, domain.NewSplitRequest(splitID, amounts), source, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build split transaction: %w", err)
	}

	fx, err := p.gateway.Submit(ctx, tx)
	if err != nil {
		p.mu.Lock()
		if fx != nil {
			updated := source.WithEffects(fx)
			p.source = &updated
		} else {
			p.source = nil
		}
		p.mu.Unlock()

		p.logger.Error("gas pool replenishment failed",
			zap.String("split_id", splitID),
			zap.String("source_coin", source.ID()),
			zap.Error(err))

		if errors.Is(err, domain.ErrInsufficientFunds) {
			return 0, fmt.Errorf("%w: %w", domain.ErrResourceExhausted, err)
		}
		if ctx.Err() != nil && p.baseCtx.Err() != nil {
			return 0, domain.ErrPoolClosed
		}
		return 0, fmt.Errorf("failed to replenish gas pool: %w", err)
	}

	p.mu.Lock()
	updated := source.WithEffects(fx)
	p.source = &updated
	added := 0
	for _, created := range fx.Created {
		if err := p.coins.Claim(created.Ref.ObjectID, p.holder); err != nil {
			p.logger.Warn("split coin claimed elsewhere, skipping",
				zap.String("coin_id", created.Ref.ObjectID),
				zap.Error(err))
			continue
		}
		balance := created.Balance
		if balance == 0 {
			balance = amount
		}
		added++
		h := &domain.ResourceHandle{Ref: created.Ref, Balance: balance, State: domain.HandleStateFree}
		p.handles[h.ID()] = h
		p.free = append(p.free, h.ID())
		p.stats.Replenished += balance
	}
	p.stats.Replenishments++
	p.notifyLocked()
	p.recordStatusLocked()
	p.mu.Unlock()

	p.logger.Info("gas pool replenished",
		zap.String("split_id", splitID),
		zap.Int("coins", added),
		zap.Uint64("amount_each", amount),
		zap.Uint64("source_balance", updated.Balance))

	return added, nil
}

// plan decides how many coins of which size the source can fund
func (p *Pool) plan(balance uint64, room int) (int, uint64, error) {
	available := uint64(0)
	if balance > p.cfg.SplitGasReserve {
		available = balance - p.cfg.SplitGasReserve
	}

	amount := p.cfg.PerHandle()
	count := room
	if affordable := available / amount; affordable < uint64(count) {
		count = int(affordable)
	}

	if count == 0 {
		if available < p.cfg.MinimumBalance || available == 0 {
			return 0, 0, fmt.Errorf("%w: source balance %d cannot fund a coin of %d",
				domain.ErrResourceExhausted, balance, p.cfg.MinimumBalance)
		}
		return 1, available, nil
	}
	return count, amount, nil
}

func (p *Pool) sourceCoin(ctx context.Context) (domain.ResourceHandle, error) {
	p.mu.Lock()
	if p.source != nil {
		s := *p.source
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	coins, err := p.gateway.GasCoins(ctx, p.builder.Sender())
	if err != nil {
		return domain.ResourceHandle{}, fmt.Errorf("failed to list gas coins: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range coins {
		if p.cfg.SourceCoinID != "" && c.ID() != p.cfg.SourceCoinID {
			continue
		}
		if _, inPool := p.handles[c.ID()]; inPool {
			continue
		}
		if err := p.coins.Claim(c.ID(), p.holder); err != nil {
			if p.cfg.SourceCoinID != "" {
				return domain.ResourceHandle{}, fmt.Errorf("%w: source coin: %w", domain.ErrResourceExhausted, err)
			}
			continue
		}
		p.source = &c
		return c, nil
	}
	return domain.ResourceHandle{}, fmt.Errorf("%w: no source coin available for %s",
		domain.ErrResourceExhausted, p.builder.Sender())
}

func (p *Pool) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Pool) statsLocked() Stats {
	s := p.stats
	s.Free, s.CheckedOut, s.FreeBalance, s.CheckedOutBalance = 0, 0, 0, 0
	for _, h := range p.handles {
		switch h.State {
		case domain.HandleStateFree:
			s.Free++
			s.FreeBalance += h.Balance
		case domain.HandleStateCheckedOut:
			s.CheckedOut++
			s.CheckedOutBalance += h.Balance
		}
	}
	if p.source != nil {
		s.SourceBalance = p.source.Balance
	}
	return s
}

func (p *Pool) recordStatusLocked() {
	s := p.statsLocked()
	p.metrics.RecordPoolStatus(s.Free, s.CheckedOut, s.FreeBalance, s.SourceBalance)
}
