// Package mcp exposes the spirometry interpretation pipeline as a Model
// Context Protocol tool server. The server runs without external services:
// interpretation results live in an in-memory cache and history persists
// to SQLite under the configured data directory.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/cache"
	"github.com/pft-interp-server/internal/config"
	"github.com/pft-interp-server/internal/history"
	"github.com/pft-interp-server/internal/quality"
	"github.com/pft-interp-server/internal/report"
	"github.com/pft-interp-server/internal/service"
	"github.com/pft-interp-server/pkg/gli"
)

const (
	serverName    = "pft-interp-mcp"
	serverVersion = "v1.1.0"
)

// Server wires the interpretation services into an MCP tool server.
type Server struct {
	config      *config.LiteConfig
	mcpServer   *mcp.Server
	interpreter *service.InterpreterService
	parser      *service.RecordParser
	reports     *report.Generator
	reference   *gli.Model
	results     *cache.InterpretationCache
	history     history.Store
	logger      *logrus.Logger
}

// Option is a functional option for Server.
type Option func(*Server) error

// WithHistoryStore sets a custom history store.
func WithHistoryStore(store history.Store) Option {
	return func(s *Server) error {
		s.history = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// NewServer creates the MCP server and registers its tools. With the stdio
// transport stdout carries the protocol, so all logging goes to stderr.
func NewServer(cfg *config.LiteConfig, opts ...Option) (*Server, error) {
	server := &Server{
		config: cfg,
		logger: logrus.New(),
	}

	if cfg.LogFormat == "text" {
		server.logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		server.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	server.logger.SetLevel(level)

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if server.history == nil {
		store, err := history.NewSQLiteStore(cfg.HistoryDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		server.history = store
	}

	results, err := cache.NewInterpretationCache(cache.Config{
		MemorySize: cfg.CacheMaxItems,
		TTL:        cfg.CacheTTL,
	}, nil, server.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	server.results = results

	server.interpreter = service.NewInterpreterService(server.logger)
	server.parser = service.NewRecordParser(server.logger)
	server.reports = report.NewGenerator(server.logger, server.interpreter, quality.NewAssessor(server.logger))
	server.reference = gli.NewModel()

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	server.registerTools()

	server.logger.WithFields(logrus.Fields{
		"data_dir":  cfg.DataDir,
		"transport": cfg.Transport,
	}).Info("MCP server initialized")
	return server, nil
}

// Start runs the server on the configured transport until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	switch s.config.Transport {
	case "http":
		return s.serveHTTP(ctx)
	default:
		s.logger.Info("Serving MCP over stdio")
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	}
}

// serveHTTP exposes the MCP server over the streamable HTTP transport.
func (s *Server) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("port", s.config.HTTPPort).Info("Serving MCP over HTTP")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("MCP HTTP server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// Close cleans up server resources.
func (s *Server) Close() error {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close history store")
			return err
		}
	}
	return nil
}

// History returns the history store for external access.
func (s *Server) History() history.Store {
	return s.history
}
