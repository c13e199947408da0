package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the gasrunner service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"GASRUNNER_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"GASRUNNER_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// APIToken protects /api/v1 when set
	APIToken string `env:"GASRUNNER_API_TOKEN"`

	// Redis configuration
	Redis RedisConfig

	Storage  StorageConfig
	Events   EventsConfig
	Ledger   LedgerConfig
	Pool     PoolConfig
	Executor ExecutorConfig
	Manifest ManifestConfig
	Breaker  BreakerConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// StorageConfig selects where batch states are kept
type StorageConfig struct {
	Backend string        `env:"STORAGE_BACKEND" envDefault:"memory"`
	TTL     time.Duration `env:"STORAGE_TTL" envDefault:"24h"`
}

// EventsConfig selects the event bus
type EventsConfig struct {
	Backend       string `env:"EVENTS_BACKEND" envDefault:"memory"`
	ConsumerGroup string `env:"EVENTS_CONSUMER_GROUP"`
	MaxLen        int64  `env:"EVENTS_MAX_LEN" envDefault:"10000"`
}

// LedgerConfig configures the ledger gateway and the signing key
type LedgerConfig struct {
	Backend   string        `env:"LEDGER_BACKEND" envDefault:"memory"`
	Funds     uint64        `env:"LEDGER_FUNDS" envDefault:"10000000000"`
	Fee       uint64        `env:"LEDGER_FEE" envDefault:"1000000"`
	Latency   time.Duration `env:"LEDGER_LATENCY" envDefault:"50ms"`
	SignerKey string        `env:"SIGNER_KEY"`
}

// PoolConfig sizes the gas coin pool of the parallel executor
type PoolConfig struct {
	InitialBalance   uint64        `env:"POOL_INITIAL_BALANCE" envDefault:"500000000"`
	MinimumBalance   uint64        `env:"POOL_MINIMUM_BALANCE" envDefault:"5000000"`
	BatchSize        int           `env:"POOL_BATCH_SIZE" envDefault:"10"`
	HandleBalance    uint64        `env:"POOL_HANDLE_BALANCE"`
	MaxHandles       int           `env:"POOL_MAX_HANDLES"`
	RefillWatermark  int           `env:"POOL_REFILL_WATERMARK" envDefault:"2"`
	ReplenishTimeout time.Duration `env:"POOL_REPLENISH_TIMEOUT" envDefault:"30s"`
}

// ExecutorConfig holds serial and parallel executor configuration
type ExecutorConfig struct {
	MaxConcurrency      int           `env:"EXECUTOR_MAX_CONCURRENCY" envDefault:"5"`
	SubmissionTimeout   time.Duration `env:"EXECUTOR_SUBMISSION_TIMEOUT" envDefault:"30s"`
	MaxRetries          int           `env:"EXECUTOR_MAX_RETRIES" envDefault:"2"`
	RetryDelay          time.Duration `env:"EXECUTOR_RETRY_DELAY" envDefault:"200ms"`
	GasBudget           uint64        `env:"EXECUTOR_GAS_BUDGET" envDefault:"50000000"`
	QueueSize           int           `env:"EXECUTOR_QUEUE_SIZE" envDefault:"256"`
	HealthCheckInterval time.Duration `env:"EXECUTOR_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
	MaxBatchSize        int           `env:"EXECUTOR_MAX_BATCH_SIZE" envDefault:"10000"`
}

// ManifestConfig locates the deployment manifest
type ManifestConfig struct {
	Backend  string   `env:"MANIFEST_BACKEND" envDefault:"file"`
	Path     string   `env:"MANIFEST_PATH" envDefault:"dsl.json"`
	RedisKey string   `env:"MANIFEST_REDIS_KEY" envDefault:"gasrunner:manifest"`
	Names    []string `env:"MANIFEST_NAMES" envSeparator:","`
}

// BreakerConfig configures the circuit breaker around the ledger gateway
type BreakerConfig struct {
	Enabled     bool          `env:"BREAKER_ENABLED" envDefault:"true"`
	MaxFailures uint32        `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	OpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"10s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	BatchExecutionTimeout time.Duration `env:"TIMEOUT_BATCH_EXECUTION" envDefault:"3600s"` // 1 hour
	ShutdownTimeout       time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if err := oneOf("storage backend", c.Storage.Backend, "memory", "redis"); err != nil {
		return err
	}
	if err := oneOf("events backend", c.Events.Backend, "memory", "redis"); err != nil {
		return err
	}
	if err := oneOf("ledger backend", c.Ledger.Backend, "memory"); err != nil {
		return err
	}
	if err := oneOf("manifest backend", c.Manifest.Backend, "file", "redis"); err != nil {
		return err
	}

	// Validate Redis config
	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Ledger.Funds == 0 {
		return fmt.Errorf("ledger funds must be positive")
	}

	// Validate pool config
	if c.Pool.BatchSize < 1 {
		return fmt.Errorf("pool batch size must be at least 1")
	}
	if c.Pool.MinimumBalance >= c.Pool.InitialBalance {
		return fmt.Errorf("pool minimum balance %d must be below initial balance %d",
			c.Pool.MinimumBalance, c.Pool.InitialBalance)
	}

	// Validate executor config
	if c.Executor.MaxConcurrency < 1 {
		return fmt.Errorf("executor max concurrency must be at least 1")
	}
	if c.Executor.MaxRetries < 0 {
		return fmt.Errorf("executor max retries cannot be negative")
	}
	if c.Executor.SubmissionTimeout <= 0 {
		return fmt.Errorf("executor submission timeout must be positive")
	}
	if c.Executor.QueueSize < 1 {
		return fmt.Errorf("executor queue size must be at least 1")
	}

	if c.Manifest.Backend == "file" && c.Manifest.Path == "" {
		return fmt.Errorf("manifest path is required for the file backend")
	}

	if c.Timeouts.BatchExecutionTimeout <= 0 {
		return fmt.Errorf("batch execution timeout must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// UsesRedis reports whether any backend needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Storage.Backend == "redis" || c.Events.Backend == "redis" || c.Manifest.Backend == "redis"
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported %s: %s (must be one of %v)", name, value, allowed)
}
