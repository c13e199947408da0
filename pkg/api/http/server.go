package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/gasrunner/internal/application/orchestrator"
	"github.com/aescanero/gasrunner/internal/application/serial"
	"github.com/aescanero/gasrunner/internal/application/workers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	server       *http.Server
	orchestrator *orchestrator.Manager
	parallel     *workers.ParallelExecutor
	serial       *serial.Executor
	logger       *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Addr         string
	Orchestrator *orchestrator.Manager
	Parallel     *workers.ParallelExecutor
	Serial       *serial.Executor
	Logger       *zap.Logger

	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer

	// APIToken protects /api/v1 with a bearer token when set
	APIToken string
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:       router,
		orchestrator: cfg.Orchestrator,
		parallel:     cfg.Parallel,
		serial:       cfg.Serial,
		logger:       logger,
	}

	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(cfg *Config) {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	metrics := promhttp.Handler()
	if cfg.Gatherer != nil {
		metrics = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}
	s.router.GET("/metrics", gin.WrapH(metrics))

	// API v1
	v1 := s.router.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg.APIToken))
	{
		// Executor state
		v1.GET("/pool", s.handleGetPool)
		v1.GET("/lanes", s.handleGetLanes)
		v1.GET("/serial", s.handleGetSerial)

		// Batch endpoints
		v1.POST("/batches", s.handleSubmitBatch)
		v1.GET("/batches", s.handleListBatches)
		v1.GET("/batches/:id", s.handleGetBatch)
		v1.GET("/batches/:id/result", s.handleGetResult)
		v1.POST("/batches/:id/cancel", s.handleCancelBatch)
		v1.DELETE("/batches/:id", s.handleDeleteBatch)
	}
}

// SetupWebSocket adds the batch event stream to the server
func (s *Server) SetupWebSocket(handler interface{}) {
	if wsHandler, ok := handler.(interface {
		HandleBatchStream(*gin.Context)
	}); ok {
		s.router.GET("/api/v1/batches/:id/stream", wsHandler.HandleBatchStream)
	}
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()))
	}
}
