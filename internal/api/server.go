// Package api exposes the interpretation pipeline over HTTP: a JSON API
// under /api/v1, the browser form the original web tool shipped with,
// and websocket streams for batch progress and live metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/batch"
	"github.com/pft-interp-server/internal/cache"
	"github.com/pft-interp-server/internal/database"
	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/middleware"
	"github.com/pft-interp-server/internal/monitoring"
	"github.com/pft-interp-server/internal/report"
	"github.com/pft-interp-server/internal/service"
	"github.com/pft-interp-server/pkg/gli"
)

const serverVersion = "1.1.0"

// RecordStore is the persistence surface the API consumes. Nil means the
// server runs without stored interpretations.
type RecordStore interface {
	domain.RecordRepository
	Count(ctx context.Context, filter domain.RecordFilter) (int64, error)
}

// Dependencies carries the collaborators the server exposes over HTTP.
// Records and DB stay nil when Postgres persistence is disabled; the
// cache may run memory-only.
type Dependencies struct {
	Interpreter *service.InterpreterService
	Parser      *service.RecordParser
	Reports     *report.Generator
	Reference   *gli.Model
	Cache       *cache.InterpretationCache
	Batches     *batch.Manager
	Metrics     *monitoring.Metrics
	Records     RecordStore
	DB          *database.DB
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server

	interpreter *service.InterpreterService
	parser      *service.RecordParser
	reports     *report.Generator
	reference   *gli.Model
	cache       *cache.InterpretationCache
	batches     *batch.Manager
	metrics     *monitoring.Metrics
	records     RecordStore
	db          *database.DB

	maxBatchRecords int
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, logger *logrus.Logger, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics()
	}

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	server := &Server{
		configManager:   configManager,
		logger:          logger,
		router:          router,
		interpreter:     deps.Interpreter,
		parser:          deps.Parser,
		reports:         deps.Reports,
		reference:       deps.Reference,
		cache:           deps.Cache,
		batches:         deps.Batches,
		metrics:         deps.Metrics,
		records:         deps.Records,
		db:              deps.DB,
		maxBatchRecords: cfg.Batch.MaxRecords,
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.RateLimit(cfg.RateLimit))
	router.Use(corsMiddleware())
	router.Use(server.metricsMiddleware())

	// Setup routes
	server.setupRoutes()

	return server
}

// Router returns the configured gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is canceled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"addr":        addr,
			"tls_enabled": cfg.TLSEnabled,
		}).Info("HTTP server listening")

		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("starting server: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.loadTemplates()

	// Browser form endpoints
	s.router.GET("/", s.handleIndex)
	s.router.POST("/interpret-form", s.handleInterpretForm)

	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RequestTimeout(s.configManager.GetServerConfig().WriteTimeout))
	{
		v1.POST("/interpret", s.handleInterpret)
		v1.POST("/batch", s.handleBatchSubmit)
		v1.GET("/batch/:id", s.handleBatchStatus)
		v1.GET("/interpretations", s.handleListInterpretations)
		v1.GET("/interpretations/:id", s.handleGetInterpretation)
		v1.GET("/reference", s.handleReference)
		v1.GET("/metrics", s.handleMetrics)
	}

	// Websocket streams stay outside the request timeout; they live for
	// the duration of the job or the client connection.
	streams := s.router.Group("/api/v1")
	{
		streams.GET("/batch/:id/stream", s.handleBatchStream)
		streams.GET("/metrics/stream", s.handleMetricsStream)
	}
}

// handleHealth reports liveness plus the state of optional backends.
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if s.db != nil {
		if err := s.db.Health(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			healthy = false
		} else {
			checks["database"] = "healthy"
		}
	}
	if s.cache != nil && s.cache.RedisEnabled() {
		if err := s.cache.Health(c.Request.Context()); err != nil {
			checks["redis"] = "unhealthy"
			healthy = false
		} else {
			checks["redis"] = "healthy"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC(),
		"version":   serverVersion,
		"checks":    checks,
	})
}

// metricsMiddleware counts requests and error responses.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.metrics.RecordHTTPRequest()
		c.Next()
		if c.Writer.Status() >= http.StatusBadRequest {
			s.metrics.RecordHTTPError()
		}
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
