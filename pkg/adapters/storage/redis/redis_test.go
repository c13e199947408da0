package redis

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStorage(t *testing.T, ttl time.Duration) (*BatchStorage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewBatchStorage(client, ttl, zap.NewNop()), mr
}

func TestSaveAndGetBatch(t *testing.T) {
	s, mr := newStorage(t, time.Hour)
	ctx := context.Background()

	state := &domain.BatchState{
		BatchID: "b-1",
		Mode:    domain.ExecutionModeSerial,
		Status:  domain.BatchStatusCompleted,
		Outcomes: []domain.ExecutionOutcome{
			{Index: 0, Success: true, Attempts: 1},
		},
		Summary: domain.Summary{Total: 1, Succeeded: 1},
	}
	require.NoError(t, s.SaveBatch(ctx, state))

	assert.True(t, mr.Exists(keyPrefix+"b-1"))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"b-1"))

	got, err := s.GetBatch(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, got.Status)
	assert.Equal(t, 1, got.Summary.Succeeded)
	require.Len(t, got.Outcomes, 1)
	assert.True(t, got.Outcomes[0].Success)
}

func TestBatchExpires(t *testing.T) {
	s, mr := newStorage(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.SaveBatch(ctx, &domain.BatchState{BatchID: "b-1"}))
	mr.FastForward(2 * time.Minute)

	_, err := s.GetBatch(ctx, "b-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAndDeleteBatches(t *testing.T) {
	s, mr := newStorage(t, 0)
	ctx := context.Background()

	require.NoError(t, mr.Set("unrelated", "x"))
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.SaveBatch(ctx, &domain.BatchState{BatchID: id}))
	}

	ids, err := s.ListBatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	require.NoError(t, s.DeleteBatch(ctx, "b"))
	ids, err = s.ListBatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)
}
