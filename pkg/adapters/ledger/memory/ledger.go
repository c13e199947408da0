package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"
	"go.uber.org/zap"
)

// Hook runs after admission checks and before effects are applied.
// A ledger failure (ErrRejectedByLedger) still charges the fee and bumps
// the gas coin version; any other error leaves ledger state untouched.
type Hook func(ctx context.Context, tx *domain.Transaction) error

// Record is one entry of the submission log
type Record struct {
	Seq       int
	Digest    string
	RequestID string
	Target    string
	Gas       domain.ObjectRef
	Start     time.Time
	End       time.Time
	Err       error
}

// Ledger simulates a ledger with versioned gas coins and objects.
// It rejects any transaction whose gas coin or owned objects are stale or
// already used by an in-flight transaction.
type Ledger struct {
	fee     uint64
	latency time.Duration
	hook    Hook
	logger  *zap.Logger

	mu          sync.Mutex
	nextID      uint64
	coins       map[string]*coin
	objects     map[string]*object
	inUse       map[string]string
	records     []Record
	inFlight    int
	maxInFlight int
}

type coin struct {
	owner   string
	version uint64
	balance uint64
}

type object struct {
	owner   string
	typ     string
	version uint64
	shared  bool
}

// Option configures a Ledger
type Option func(*Ledger)

// WithFee sets the gas charged per executed transaction
func WithFee(fee uint64) Option {
	return func(l *Ledger) { l.fee = fee }
}

// WithLatency sets the simulated round-trip time
func WithLatency(d time.Duration) Option {
	return func(l *Ledger) { l.latency = d }
}

// WithHook installs a submission hook
func WithHook(h Hook) Option {
	return func(l *Ledger) { l.hook = h }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

var _ ports.LedgerGateway = (*Ledger)(nil)

// New creates an empty ledger
func New(opts ...Option) *Ledger {
	l := &Ledger{
		logger:  zap.NewNop(),
		coins:   make(map[string]*coin),
		objects: make(map[string]*object),
		inUse:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fund mints a new gas coin for owner
func (l *Ledger) Fund(owner string, balance uint64) domain.ResourceHandle {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.newIDLocked()
	l.coins[id] = &coin{owner: owner, version: 1, balance: balance}
	return domain.ResourceHandle{
		Ref:     domain.ObjectRef{ObjectID: id, Version: 1},
		Balance: balance,
		State:   domain.HandleStateFree,
	}
}

// CreateObject registers a non-coin object
func (l *Ledger) CreateObject(owner, typ string, shared bool) domain.ObjectRef {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.newIDLocked()
	l.objects[id] = &object{owner: owner, typ: typ, version: 1, shared: shared}
	return domain.ObjectRef{ObjectID: id, Version: 1}
}

// Object returns the current reference of an object
func (l *Ledger) Object(id string) (domain.ObjectRef, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if o, ok := l.objects[id]; ok {
		return domain.ObjectRef{ObjectID: id, Version: o.version}, true
	}
	if c, ok := l.coins[id]; ok {
		return domain.ObjectRef{ObjectID: id, Version: c.version}, true
	}
	return domain.ObjectRef{}, false
}

// Balance returns the balance of one coin
func (l *Ledger) Balance(coinID string) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.coins[coinID]
	if !ok {
		return 0, false
	}
	return c.balance, true
}

// TotalBalance sums every coin owned by owner
func (l *Ledger) TotalBalance(owner string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total uint64
	for _, c := range l.coins {
		if c.owner == owner {
			total += c.balance
		}
	}
	return total
}

// Records returns a copy of the submission log in admission order
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// MaxInFlight returns the highest number of concurrently executing transactions seen
func (l *Ledger) MaxInFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxInFlight
}

// GasCoins lists coins owned by owner, largest balance first
func (l *Ledger) GasCoins(ctx context.Context, owner string) ([]domain.ResourceHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.ResourceHandle
	for id, c := range l.coins {
		if c.owner != owner {
			continue
		}
		out = append(out, domain.ResourceHandle{
			Ref:     domain.ObjectRef{ObjectID: id, Version: c.version},
			Balance: c.balance,
			State:   domain.HandleStateFree,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].Ref.ObjectID < out[j].Ref.ObjectID
	})
	return out, nil
}

// Objects returns current references; unknown ids are an error
func (l *Ledger) Objects(ctx context.Context, ids []string) ([]domain.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}

	out := make([]domain.ObjectRef, 0, len(ids))
	for _, id := range ids {
		ref, ok := l.Object(id)
		if !ok {
			return nil, fmt.Errorf("%w: object %s does not exist", domain.ErrRejectedByLedger, id)
		}
		out = append(out, ref)
	}
	return out, nil
}

// Submit executes a transaction
func (l *Ledger) Submit(ctx context.Context, tx *domain.Transaction) (*domain.Effects, error) {
	digest := tx.Digest()

	seq, err := l.admit(tx, digest)
	if err != nil {
		l.logger.Warn("transaction rejected at admission",
			zap.String("digest", digest),
			zap.Error(err))
		return nil, err
	}
	defer l.finish(digest)

	fx, err := l.run(ctx, tx, digest)
	l.complete(seq, err)
	return fx, err
}

func (l *Ledger) admit(tx *domain.Transaction, digest string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		Seq:       len(l.records),
		Digest:    digest,
		RequestID: tx.Data.Request.ID,
		Target:    tx.Data.Request.Target,
		Gas:       tx.Data.Gas,
		Start:     time.Now(),
	}

	if err := l.checkLocked(tx); err != nil {
		rec.End = rec.Start
		rec.Err = err
		l.records = append(l.records, rec)
		return 0, err
	}

	l.inUse[tx.Data.Gas.ObjectID] = digest
	for _, ref := range tx.Data.Objects {
		if o, ok := l.objects[ref.ObjectID]; ok && !o.shared {
			l.inUse[ref.ObjectID] = digest
		}
	}

	l.inFlight++
	if l.inFlight > l.maxInFlight {
		l.maxInFlight = l.inFlight
	}
	l.records = append(l.records, rec)
	return rec.Seq, nil
}

func (l *Ledger) checkLocked(tx *domain.Transaction) error {
	if len(tx.Signature) == 0 {
		return fmt.Errorf("%w: missing signature", domain.ErrRejectedByLedger)
	}

	gas := tx.Data.Gas
	c, ok := l.coins[gas.ObjectID]
	if !ok {
		return fmt.Errorf("%w: gas coin %s does not exist", domain.ErrConflictingReference, gas.ObjectID)
	}
	if c.owner != tx.Data.Sender {
		return fmt.Errorf("%w: gas coin %s is not owned by sender", domain.ErrRejectedByLedger, gas.ObjectID)
	}
	if c.version != gas.Version {
		return fmt.Errorf("%w: gas coin %s at version %d, transaction uses %d",
			domain.ErrConflictingReference, gas.ObjectID, c.version, gas.Version)
	}
	if holder, busy := l.inUse[gas.ObjectID]; busy {
		return fmt.Errorf("%w: gas coin %s locked by %s", domain.ErrConflictingReference, gas.ObjectID, holder)
	}

	for _, ref := range tx.Data.Objects {
		o, ok := l.objects[ref.ObjectID]
		if !ok {
			return fmt.Errorf("%w: object %s does not exist", domain.ErrRejectedByLedger, ref.ObjectID)
		}
		if o.shared {
			continue
		}
		if o.version != ref.Version {
			return fmt.Errorf("%w: object %s at version %d, transaction uses %d",
				domain.ErrConflictingReference, ref.ObjectID, o.version, ref.Version)
		}
		if holder, busy := l.inUse[ref.ObjectID]; busy {
			return fmt.Errorf("%w: object %s locked by %s", domain.ErrConflictingReference, ref.ObjectID, holder)
		}
	}
	return nil
}

func (l *Ledger) run(ctx context.Context, tx *domain.Transaction, digest string) (*domain.Effects, error) {
	if l.latency > 0 {
		timer := time.NewTimer(l.latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, ctx.Err())
		}
	}

	if l.hook != nil {
		if err := l.hook(ctx, tx); err != nil {
			if domain.IsLedgerFailure(err) {
				return l.abort(tx, digest, err), err
			}
			return nil, err
		}
	}

	return l.apply(tx, digest)
}

// abort charges the fee for an executed-but-failed transaction
func (l *Ledger) abort(tx *domain.Transaction, digest string, cause error) *domain.Effects {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.coins[tx.Data.Gas.ObjectID]
	charged := l.fee
	if c.balance < charged {
		charged = c.balance
	}
	c.balance -= charged
	c.version++

	return &domain.Effects{
		Digest:       digest,
		Success:      false,
		Error:        cause.Error(),
		GasObject:    domain.ObjectRef{ObjectID: tx.Data.Gas.ObjectID, Version: c.version, Digest: digest},
		GasUsed:      charged,
		FinalBalance: c.balance,
	}
}

func (l *Ledger) apply(tx *domain.Transaction, digest string) (*domain.Effects, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req := tx.Data.Request
	c := l.coins[tx.Data.Gas.ObjectID]

	var splits []uint64
	if req.Target == domain.SplitCoinsTarget {
		amounts, err := domain.DecodeU64Vector(req.Args[0].Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRejectedByLedger, err)
		}
		splits = amounts
	}

	need := l.fee + req.PaymentTotal()
	for _, amount := range splits {
		need += amount
	}
	if budget := tx.Data.GasBudget; budget > 0 && l.fee > budget {
		return nil, fmt.Errorf("%w: fee %d exceeds gas budget %d", domain.ErrInsufficientFunds, l.fee, budget)
	}
	if c.balance < need {
		return nil, fmt.Errorf("%w: gas coin %s holds %d, needs %d",
			domain.ErrInsufficientFunds, tx.Data.Gas.ObjectID, c.balance, need)
	}

	c.balance -= need
	c.version++

	fx := &domain.Effects{
		Digest:       digest,
		Success:      true,
		GasObject:    domain.ObjectRef{ObjectID: tx.Data.Gas.ObjectID, Version: c.version, Digest: digest},
		GasUsed:      l.fee,
		FinalBalance: c.balance,
	}

	for _, amount := range splits {
		id := l.newIDLocked()
		l.coins[id] = &coin{owner: tx.Data.Sender, version: 1, balance: amount}
		fx.Created = append(fx.Created, domain.CreatedObject{
			Ref:     domain.ObjectRef{ObjectID: id, Version: 1, Digest: digest},
			Type:    "0x2::coin::Coin<" + domain.NativeCoinType + ">",
			Balance: amount,
		})
	}

	for _, ref := range tx.Data.Objects {
		o := l.objects[ref.ObjectID]
		if o.shared {
			continue
		}
		o.version++
		fx.Mutated = append(fx.Mutated, domain.ObjectRef{ObjectID: ref.ObjectID, Version: o.version, Digest: digest})
	}
	for _, a := range req.Args {
		if a.Kind != domain.ArgumentObject || !a.Object.Shared || !a.Object.Mutable {
			continue
		}
		if o, ok := l.objects[a.Object.ID]; ok {
			o.version++
			fx.Mutated = append(fx.Mutated, domain.ObjectRef{ObjectID: a.Object.ID, Version: o.version, Digest: digest})
		}
	}

	return fx, nil
}

func (l *Ledger) finish(digest string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, holder := range l.inUse {
		if holder == digest {
			delete(l.inUse, id)
		}
	}
	l.inFlight--
}

func (l *Ledger) complete(seq int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records[seq].End = time.Now()
	l.records[seq].Err = err
}

func (l *Ledger) newIDLocked() string {
	l.nextID++
	sum := sha256.Sum256([]byte(fmt.Sprintf("object-%d", l.nextID)))
	return "0x" + hex.EncodeToString(sum[:])
}
