package serial

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/gasrunner/internal/application/txbuilder"
	"github.com/aescanero/gasrunner/pkg/adapters/ledger/memory"
	"github.com/aescanero/gasrunner/pkg/adapters/signer/ed25519"
	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	funds = 1_000_000
	fee   = 10
)

type fixture struct {
	exec    *Executor
	ledger  *memory.Ledger
	signer  *ed25519.Signer
	coin    domain.ResourceHandle
	counter domain.ObjectRef
}

func newFixture(t *testing.T, ledgerOpts []memory.Option, opts ...Option) *fixture {
	t.Helper()

	signer, err := ed25519.Generate()
	require.NoError(t, err)

	ledger := memory.New(append([]memory.Option{memory.WithFee(fee)}, ledgerOpts...)...)
	coin := ledger.Fund(signer.Address(), funds)
	counter := ledger.CreateObject(signer.Address(), "0x1::counter::Counter", false)

	exec := NewSerialExecutor(ledger, signer, opts...)
	t.Cleanup(func() { _ = exec.Shutdown(context.Background()) })

	return &fixture{exec: exec, ledger: ledger, signer: signer, coin: coin, counter: counter}
}

func (f *fixture) increment(id string) domain.OperationRequest {
	return domain.OperationRequest{
		ID:     id,
		Target: "0x1::counter::increment",
		Args:   []domain.Argument{domain.OwnedObject(f.counter.ObjectID), domain.PureU64(1)},
	}
}

func rejectRequest(id string) memory.Hook {
	return func(ctx context.Context, tx *domain.Transaction) error {
		if tx.Data.Request.ID == id {
			return fmt.Errorf("%w: move abort in counter::increment", domain.ErrRejectedByLedger)
		}
		return nil
	}
}

func TestExecuteInOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var outcomes []domain.ExecutionOutcome
	for _, id := range []string{"a", "b", "c"} {
		outcomes = append(outcomes, f.exec.ExecuteTransaction(ctx, f.increment(id)))
	}

	for i, o := range outcomes {
		require.True(t, o.Success, "request %d failed: %s", i, o.Error)
		assert.Equal(t, uint64(i+1), o.ConsumedResource.Ref.Version)
		assert.Equal(t, uint64(i+2), o.Effects.GasObject.Version)
		require.Len(t, o.Effects.Mutated, 1)
		assert.Equal(t, uint64(i+2), o.Effects.Mutated[0].Version)
	}

	records := f.ledger.Records()
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, []string{"a", "b", "c"}[i], rec.RequestID)
		assert.NoError(t, rec.Err)
		if i > 0 {
			assert.False(t, rec.Start.Before(records[i-1].End), "submission %d overlapped its predecessor", i)
		}
	}

	ref, ok := f.ledger.Object(f.counter.ObjectID)
	require.True(t, ok)
	assert.Equal(t, uint64(4), ref.Version)

	balance, _ := f.ledger.Balance(f.coin.ID())
	assert.Equal(t, uint64(funds-3*fee), balance)

	coin, ok := f.exec.GasCoin()
	require.True(t, ok)
	assert.Equal(t, uint64(4), coin.Ref.Version)
	assert.Equal(t, balance, coin.Balance)
}

func TestFailureDoesNotStopQueue(t *testing.T) {
	f := newFixture(t, []memory.Option{memory.WithHook(rejectRequest("b"))})

	outcomes := f.exec.ExecuteBatch(context.Background(), []domain.OperationRequest{
		f.increment("a"), f.increment("b"), f.increment("c"),
	})
	require.Len(t, outcomes, 3)

	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrSubmissionFailed)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrRejectedByLedger)
	assert.Equal(t, "rejected", outcomes[1].ErrorKind)
	require.NotNil(t, outcomes[1].Effects)
	assert.Equal(t, uint64(fee), outcomes[1].Effects.GasUsed)
	assert.True(t, outcomes[2].Success, outcomes[2].Error)

	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
	}

	// the aborted transaction still consumed a coin version and its fee
	assert.Equal(t, uint64(3), outcomes[2].ConsumedResource.Ref.Version)
	balance, _ := f.ledger.Balance(f.coin.ID())
	assert.Equal(t, uint64(funds-3*fee), balance)

	summary := domain.Summarize(outcomes)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.ByError["rejected"])
}

func TestResyncAfterConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.exec.ExecuteTransaction(ctx, f.increment("a"))
	require.True(t, first.Success)

	// spend the coin behind the executor's back
	coin, ok := f.exec.GasCoin()
	require.True(t, ok)
	tx, err := txbuilder.New(f.signer, 0).Build(ctx, domain.OperationRequest{
		ID:     "external",
		Target: "0x1::noop::run",
	}, coin, nil)
	require.NoError(t, err)
	_, err = f.ledger.Submit(ctx, tx)
	require.NoError(t, err)

	stale := f.exec.ExecuteTransaction(ctx, f.increment("b"))
	assert.False(t, stale.Success)
	assert.ErrorIs(t, stale.Err, domain.ErrConflictingReference)

	_, ok = f.exec.GasCoin()
	assert.False(t, ok, "coin should be dropped until resynchronized")

	next := f.exec.ExecuteTransaction(ctx, f.increment("c"))
	require.True(t, next.Success, next.Error)
	assert.Equal(t, uint64(3), next.ConsumedResource.Ref.Version)
}

func TestSubmissionTimeout(t *testing.T) {
	hook := func(ctx context.Context, tx *domain.Transaction) error {
		if tx.Data.Request.ID == "slow" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}
	f := newFixture(t, []memory.Option{memory.WithHook(hook)}, WithSubmissionTimeout(20*time.Millisecond))
	ctx := context.Background()

	slow := f.exec.ExecuteTransaction(ctx, f.increment("slow"))
	assert.False(t, slow.Success)
	assert.ErrorIs(t, slow.Err, domain.ErrTimeout)
	assert.Equal(t, "timeout", slow.ErrorKind)

	next := f.exec.ExecuteTransaction(ctx, f.increment("next"))
	assert.True(t, next.Success, next.Error)
}

func TestCancelPendingRequest(t *testing.T) {
	gate := make(chan struct{})
	hook := func(ctx context.Context, tx *domain.Transaction) error {
		if tx.Data.Request.ID == "a" {
			<-gate
		}
		return nil
	}
	f := newFixture(t, []memory.Option{memory.WithHook(hook)})

	first := make(chan domain.ExecutionOutcome, 1)
	go func() { first <- f.exec.ExecuteTransaction(context.Background(), f.increment("a")) }()
	require.Eventually(t, func() bool { return len(f.ledger.Records()) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan domain.ExecutionOutcome, 1)
	go func() { second <- f.exec.ExecuteTransaction(ctx, f.increment("b")) }()
	require.Eventually(t, func() bool { return f.exec.QueueDepth() == 1 }, time.Second, time.Millisecond)

	cancel()
	b := <-second
	assert.ErrorIs(t, b.Err, domain.ErrCancelled)

	close(gate)
	assert.True(t, (<-first).Success)

	c := f.exec.ExecuteTransaction(context.Background(), f.increment("c"))
	assert.True(t, c.Success, c.Error)

	var ids []string
	for _, rec := range f.ledger.Records() {
		ids = append(ids, rec.RequestID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestConcurrentCallersAreSerialized(t *testing.T) {
	f := newFixture(t, []memory.Option{memory.WithLatency(time.Millisecond)})

	var wg sync.WaitGroup
	outcomes := make([]domain.ExecutionOutcome, 10)
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = f.exec.ExecuteTransaction(context.Background(), f.increment(fmt.Sprintf("req-%d", i)))
		}()
	}
	wg.Wait()

	for _, o := range outcomes {
		assert.True(t, o.Success, o.Error)
	}
	assert.Equal(t, 1, f.ledger.MaxInFlight())
	assert.Len(t, f.ledger.Records(), 10)
}

func TestInvalidRequestIsNotSubmitted(t *testing.T) {
	f := newFixture(t, nil)

	o := f.exec.ExecuteTransaction(context.Background(), domain.OperationRequest{ID: "bad", Target: "nope"})
	assert.ErrorIs(t, o.Err, domain.ErrInvalidRequest)
	assert.Equal(t, 0, o.Attempts)
	assert.Empty(t, f.ledger.Records())
}

func TestPinnedGasCoin(t *testing.T) {
	signer, err := ed25519.Generate()
	require.NoError(t, err)

	ledger := memory.New()
	ledger.Fund(signer.Address(), 5_000_000)
	small := ledger.Fund(signer.Address(), 1_000)

	exec := NewSerialExecutor(ledger, signer, WithGasCoin(small.ID()))
	defer exec.Shutdown(context.Background())

	o := exec.ExecuteTransaction(context.Background(), domain.OperationRequest{ID: "x", Target: "0x1::noop::run"})
	require.True(t, o.Success, o.Error)
	assert.Equal(t, small.ID(), o.ConsumedResource.ID())

	missing := NewSerialExecutor(ledger, signer, WithGasCoin("0xmissing"))
	defer missing.Shutdown(context.Background())

	o = missing.ExecuteTransaction(context.Background(), domain.OperationRequest{ID: "y", Target: "0x1::noop::run"})
	assert.ErrorIs(t, o.Err, domain.ErrResourceExhausted)
}

func TestShutdownDrainsAndRefuses(t *testing.T) {
	f := newFixture(t, []memory.Option{memory.WithLatency(5 * time.Millisecond)})

	var wg sync.WaitGroup
	results := make(chan domain.ExecutionOutcome, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.exec.ExecuteTransaction(context.Background(), f.increment(fmt.Sprintf("req-%d", i)))
		}()
	}
	require.Eventually(t, func() bool { return len(f.ledger.Records()) > 0 }, time.Second, time.Millisecond)

	require.NoError(t, f.exec.Shutdown(context.Background()))
	wg.Wait()
	close(results)

	for o := range results {
		if o.Success {
			continue
		}
		assert.ErrorIs(t, o.Err, domain.ErrExecutorClosed)
	}

	o := f.exec.ExecuteTransaction(context.Background(), f.increment("late"))
	assert.ErrorIs(t, o.Err, domain.ErrExecutorClosed)
}
