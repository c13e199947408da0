package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/gasrunner/internal/application/gaspool"
	"github.com/aescanero/gasrunner/internal/application/orchestrator"
	"github.com/aescanero/gasrunner/internal/application/serial"
	"github.com/aescanero/gasrunner/internal/application/workers"
	"github.com/aescanero/gasrunner/internal/config"
	memoryevents "github.com/aescanero/gasrunner/pkg/adapters/events/memory"
	redisevents "github.com/aescanero/gasrunner/pkg/adapters/events/redis"
	"github.com/aescanero/gasrunner/pkg/adapters/ledger/breaker"
	"github.com/aescanero/gasrunner/pkg/adapters/ledger/memory"
	"github.com/aescanero/gasrunner/pkg/adapters/manifest/file"
	redismanifest "github.com/aescanero/gasrunner/pkg/adapters/manifest/redis"
	"github.com/aescanero/gasrunner/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/gasrunner/pkg/adapters/signer/ed25519"
	memorystorage "github.com/aescanero/gasrunner/pkg/adapters/storage/memory"
	redisstorage "github.com/aescanero/gasrunner/pkg/adapters/storage/redis"
	"github.com/aescanero/gasrunner/pkg/api/grpc"
	"github.com/aescanero/gasrunner/pkg/api/http"
	"github.com/aescanero/gasrunner/pkg/api/websocket"
	"github.com/aescanero/gasrunner/pkg/domain"
	"github.com/aescanero/gasrunner/pkg/ports"

	prom "github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting gasrunner",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx := context.Background()

	// Initialize Redis client when a backend needs it
	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	signer, err := loadSigner(cfg.Ledger.SignerKey, logger)
	if err != nil {
		logger.Fatal("failed to load signer", zap.Error(err))
	}

	// Ledger and demo deployment
	ledger := memory.New(
		memory.WithFee(cfg.Ledger.Fee),
		memory.WithLatency(cfg.Ledger.Latency),
		memory.WithLogger(logger.Named("ledger")),
	)
	dep, err := deploy(ctx, ledger, signer.Address(), cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to deploy demo objects", zap.Error(err))
	}

	manifest, err := openManifest(cfg, redisClient)
	if err != nil {
		logger.Fatal("failed to open manifest", zap.Error(err))
	}

	names := cfg.Manifest.Names
	if len(names) == 0 {
		names = dep.names
	}
	bindings, err := orchestrator.LoadBindings(ctx, manifest, names)
	if err != nil {
		logger.Fatal("failed to load manifest bindings", zap.Error(err))
	}

	var gateway ports.LedgerGateway = ledger
	if cfg.Breaker.Enabled {
		gateway = breaker.New(ledger, breaker.Settings{
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: cfg.Breaker.OpenTimeout,
		}, logger.Named("breaker"))
	}

	metricsCollector := prometheus.NewCollector(prom.DefaultRegisterer)

	// Initialize executors
	serialExec := serial.NewSerialExecutor(gateway, signer,
		serial.WithLogger(logger.Named("serial")),
		serial.WithMetrics(metricsCollector),
		serial.WithGasCoin(dep.serialCoin),
		serial.WithGasBudget(cfg.Executor.GasBudget),
		serial.WithSubmissionTimeout(cfg.Executor.SubmissionTimeout),
		serial.WithQueueSize(cfg.Executor.QueueSize),
	)

	parallelExec, err := workers.NewParallelExecutor(gateway, signer, gaspool.Config{
		InitialBalance:   cfg.Pool.InitialBalance,
		MinimumBalance:   cfg.Pool.MinimumBalance,
		BatchSize:        cfg.Pool.BatchSize,
		HandleBalance:    cfg.Pool.HandleBalance,
		MaxHandles:       cfg.Pool.MaxHandles,
		RefillWatermark:  cfg.Pool.RefillWatermark,
		SplitGasReserve:  cfg.Ledger.Fee,
		SourceCoinID:     dep.sourceCoin,
		ReplenishTimeout: cfg.Pool.ReplenishTimeout,
	},
		workers.WithLogger(logger.Named("parallel")),
		workers.WithMetrics(metricsCollector),
		workers.WithMaxConcurrency(cfg.Executor.MaxConcurrency),
		workers.WithSubmissionTimeout(cfg.Executor.SubmissionTimeout),
		workers.WithRetries(cfg.Executor.MaxRetries, cfg.Executor.RetryDelay),
		workers.WithGasBudget(cfg.Executor.GasBudget),
		workers.WithHealthCheckInterval(cfg.Executor.HealthCheckInterval),
	)
	if err != nil {
		logger.Fatal("failed to create parallel executor", zap.Error(err))
	}

	// Initialize storage and events
	var batchStorage ports.BatchStorage = memorystorage.NewBatchStorage()
	if cfg.Storage.Backend == "redis" {
		batchStorage = redisstorage.NewBatchStorage(redisClient, cfg.Storage.TTL, logger.Named("storage"))
	}

	var eventBus ports.EventBus = memoryevents.NewEventBus(logger.Named("events"))
	if cfg.Events.Backend == "redis" {
		eventBus = redisevents.NewStreamsEventBus(
			redisClient,
			cfg.Events.ConsumerGroup,
			fmt.Sprintf("gasrunner-%d", os.Getpid()),
			cfg.Events.MaxLen,
			logger.Named("events"),
		)
	}

	orchestratorMgr := orchestrator.NewManager(
		map[domain.ExecutionMode]orchestrator.Executor{
			domain.ExecutionModeSerial:   serialExec,
			domain.ExecutionModeParallel: parallelExec,
		},
		eventBus,
		batchStorage,
		metricsCollector,
		orchestrator.NewValidator(cfg.Executor.MaxBatchSize),
		bindings,
		logger.Named("orchestrator"),
		cfg.Timeouts.BatchExecutionTimeout,
	)

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Addr:         cfg.GetHTTPAddr(),
		Orchestrator: orchestratorMgr,
		Parallel:     parallelExec,
		Serial:       serialExec,
		Logger:       logger.Named("http"),
		APIToken:     cfg.APIToken,
	})

	wsHandler := websocket.NewHandler(eventBus, orchestratorMgr, orchestrator.EventsTopic, logger.Named("websocket"))
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Addr:          cfg.GetGRPCAddr(),
		Ready:         parallelExec.Health().IsHealthy,
		CheckInterval: cfg.Executor.HealthCheckInterval,
		Logger:        logger.Named("grpc"),
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("gasrunner started",
		zap.String("http_addr", cfg.GetHTTPAddr()),
		zap.String("grpc_addr", cfg.GetGRPCAddr()),
		zap.String("sender", signer.Address()),
		zap.Strings("bindings", bindings.Names()),
		zap.Int("max_concurrency", cfg.Executor.MaxConcurrency))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := serialExec.Shutdown(shutdownCtx); err != nil {
		logger.Error("serial executor shutdown error", zap.Error(err))
	}

	if err := parallelExec.Shutdown(shutdownCtx); err != nil {
		logger.Error("parallel executor shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("gasrunner shut down complete")
}

// deployment describes what the in-memory ledger was seeded with
type deployment struct {
	serialCoin string
	sourceCoin string
	names      []string
}

// deploy funds the sender and publishes the demo objects to the manifest
func deploy(ctx context.Context, ledger *memory.Ledger, owner string, cfg *config.Config, client *goredis.Client) (*deployment, error) {
	serialFunds := cfg.Ledger.Funds / 10
	serialCoin := ledger.Fund(owner, serialFunds)
	sourceCoin := ledger.Fund(owner, cfg.Ledger.Funds-serialFunds)

	counter := ledger.CreateObject(owner, "0x1::counter::Counter", false)
	house := ledger.CreateObject(owner, "0x1::game::House", true)

	entries := []file.Entry{
		{Type: "counter", ID: counter.ObjectID},
		{Type: "house", ID: house.ObjectID},
	}

	switch cfg.Manifest.Backend {
	case "redis":
		ids := make(map[string]string, len(entries))
		for _, e := range entries {
			ids[e.Type] = e.ID
		}
		if err := redismanifest.NewStore(client, cfg.Manifest.RedisKey).Put(ctx, ids); err != nil {
			return nil, err
		}
	default:
		if err := file.Write(cfg.Manifest.Path, entries); err != nil {
			return nil, err
		}
	}

	return &deployment{
		serialCoin: serialCoin.ID(),
		sourceCoin: sourceCoin.ID(),
		names:      []string{"counter", "house"},
	}, nil
}

func openManifest(cfg *config.Config, client *goredis.Client) (ports.ManifestStore, error) {
	if cfg.Manifest.Backend == "redis" {
		return redismanifest.NewStore(client, cfg.Manifest.RedisKey), nil
	}
	return file.Open(cfg.Manifest.Path)
}

func loadSigner(key string, logger *zap.Logger) (*ed25519.Signer, error) {
	if key != "" {
		return ed25519.FromBase64(key)
	}

	signer, err := ed25519.Generate()
	if err != nil {
		return nil, err
	}
	logger.Warn("SIGNER_KEY not set, using an ephemeral key", zap.String("address", signer.Address()))
	return signer, nil
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
