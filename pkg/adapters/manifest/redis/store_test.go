package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewStore(client, "")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, map[string]string{"house::House": "0xdef"}))
	assert.Equal(t, "0xdef", mr.HGet(DefaultKey, "house::House"))

	id, found, err := store.Resolve(ctx, "house::House")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "0xdef", id)

	_, found, err = store.Resolve(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolveConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, found, err := NewStore(client, "k").Resolve(context.Background(), "x")
	assert.Error(t, err)
	assert.False(t, found)
}
