package workers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/gasrunner/internal/application/serial"
	"github.com/aescanero/gasrunner/pkg/adapters/ledger/memory"
	"github.com/aescanero/gasrunner/pkg/adapters/signer/ed25519"
	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requests(prefix string, n int) []domain.OperationRequest {
	reqs := make([]domain.OperationRequest, n)
	for i := range reqs {
		reqs[i] = noop(fmt.Sprintf("%s-%d", prefix, i))
	}
	return reqs
}

func TestSerialAndParallelOnOneSigner(t *testing.T) {
	signer, err := ed25519.Generate()
	require.NoError(t, err)

	ledger := memory.New(memory.WithFee(1), memory.WithLatency(2*time.Millisecond))
	ledger.Fund(signer.Address(), 100_000)
	ledger.Fund(signer.Address(), 50_000)

	serialExec := serial.NewSerialExecutor(ledger, signer)
	defer serialExec.Shutdown(context.Background())

	parallelExec, err := NewParallelExecutor(ledger, signer, poolConfig())
	require.NoError(t, err)
	defer parallelExec.Shutdown(context.Background())

	ctx := context.Background()
	var serialOut, parallelOut []domain.ExecutionOutcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		serialOut = serialExec.ExecuteBatch(ctx, requests("s", 20))
	}()
	go func() {
		defer wg.Done()
		parallelOut = parallelExec.ExecuteBatch(ctx, requests("p", 20))
	}()
	wg.Wait()

	serialCoins := map[string]bool{}
	for _, o := range serialOut {
		require.True(t, o.Success, "%s: %s", o.Request.ID, o.Error)
		serialCoins[o.ConsumedResource.ID()] = true
	}
	assert.Len(t, serialCoins, 1)

	for _, o := range parallelOut {
		require.True(t, o.Success, "%s: %s", o.Request.ID, o.Error)
		assert.False(t, serialCoins[o.ConsumedResource.ID()],
			"%s ran on the serial executor's coin", o.Request.ID)
	}

	byCoin := map[string][]memory.Record{}
	for _, r := range ledger.Records() {
		assert.NotErrorIs(t, r.Err, domain.ErrConflictingReference, r.RequestID)
		byCoin[r.Gas.ObjectID] = append(byCoin[r.Gas.ObjectID], r)
	}
	for coin, recs := range byCoin {
		sort.Slice(recs, func(i, j int) bool { return recs[i].Start.Before(recs[j].Start) })
		for i := 1; i < len(recs); i++ {
			assert.False(t, recs[i].Start.Before(recs[i-1].End),
				"coin %s used by %s and %s at once", coin, recs[i-1].RequestID, recs[i].RequestID)
		}
	}
}

func TestPoolSkipsSerialCoin(t *testing.T) {
	signer, err := ed25519.Generate()
	require.NoError(t, err)

	ledger := memory.New(memory.WithFee(1))
	only := ledger.Fund(signer.Address(), 100_000)

	serialExec := serial.NewSerialExecutor(ledger, signer)
	parallelExec, err := NewParallelExecutor(ledger, signer, poolConfig())
	require.NoError(t, err)
	defer parallelExec.Shutdown(context.Background())

	ctx := context.Background()
	o := serialExec.ExecuteTransaction(ctx, noop("s-0"))
	require.True(t, o.Success, o.Error)
	assert.Equal(t, only.ID(), o.ConsumedResource.ID())

	o = parallelExec.ExecuteTransaction(ctx, noop("p-0"))
	assert.False(t, o.Success)
	assert.ErrorIs(t, o.Err, domain.ErrResourceExhausted)

	o = serialExec.ExecuteTransaction(ctx, noop("s-1"))
	require.True(t, o.Success, o.Error)

	require.NoError(t, serialExec.Shutdown(ctx))

	o = parallelExec.ExecuteTransaction(ctx, noop("p-1"))
	require.True(t, o.Success, o.Error)
	assert.NotEqual(t, only.ID(), o.ConsumedResource.ID())
}
