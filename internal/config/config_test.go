package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "memory", cfg.Ledger.Backend)
	assert.Equal(t, 10, cfg.Pool.BatchSize)
	assert.Equal(t, uint64(500_000_000), cfg.Pool.InitialBalance)
	assert.Equal(t, 5, cfg.Executor.MaxConcurrency)
	assert.Equal(t, 200*time.Millisecond, cfg.Executor.RetryDelay)
	assert.Equal(t, time.Hour, cfg.Timeouts.BatchExecutionTimeout)
	assert.True(t, cfg.Breaker.Enabled)
	assert.False(t, cfg.UsesRedis())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GASRUNNER_HTTP_PORT", "8181")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("POOL_BATCH_SIZE", "20")
	t.Setenv("POOL_HANDLE_BALANCE", "1000000")
	t.Setenv("EXECUTOR_SUBMISSION_TIMEOUT", "5s")
	t.Setenv("MANIFEST_NAMES", "game,house")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.HTTPPort)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 20, cfg.Pool.BatchSize)
	assert.Equal(t, uint64(1_000_000), cfg.Pool.HandleBalance)
	assert.Equal(t, 5*time.Second, cfg.Executor.SubmissionTimeout)
	assert.Equal(t, []string{"game", "house"}, cfg.Manifest.Names)
	assert.True(t, cfg.UsesRedis())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "GASRUNNER_GRPC_PORT", "70000"},
		{"unknown storage", "STORAGE_BACKEND", "postgres"},
		{"unknown events", "EVENTS_BACKEND", "kafka"},
		{"unknown ledger", "LEDGER_BACKEND", "mainnet"},
		{"zero batch size", "POOL_BATCH_SIZE", "0"},
		{"minimum above initial", "POOL_MINIMUM_BALANCE", "600000000"},
		{"zero concurrency", "EXECUTOR_MAX_CONCURRENCY", "0"},
		{"negative retries", "EXECUTOR_MAX_RETRIES", "-1"},
		{"bad log level", "LOG_LEVEL", "trace"},
		{"unparsable duration", "EXECUTOR_RETRY_DELAY", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRedisAddrRequiredWhenUsed(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Redis.Addr = ""
	assert.NoError(t, cfg.Validate())

	cfg.Events.Backend = "redis"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis address")
}
