// Package main starts the spirometry interpretation HTTP server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/api"
	"github.com/pft-interp-server/internal/batch"
	"github.com/pft-interp-server/internal/cache"
	"github.com/pft-interp-server/internal/config"
	"github.com/pft-interp-server/internal/database"
	"github.com/pft-interp-server/internal/domain"
	"github.com/pft-interp-server/internal/monitoring"
	"github.com/pft-interp-server/internal/quality"
	"github.com/pft-interp-server/internal/report"
	"github.com/pft-interp-server/internal/repository"
	"github.com/pft-interp-server/internal/service"
	"github.com/pft-interp-server/pkg/gli"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)

	metrics := monitoring.NewMetrics()
	interpreter := service.NewInterpreterService(logger)
	parser := service.NewRecordParser(logger)
	reports := report.NewGenerator(logger, interpreter, quality.NewAssessor(logger))

	resultCache, err := cache.NewInterpretationCache(cache.Config{
		RedisURL:   cfg.Cache.RedisURL,
		TTL:        cfg.Cache.DefaultTTL,
		MemorySize: cfg.Cache.MemorySize,
	}, metrics, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize interpretation cache")
	}

	processor := batch.NewProcessor(logger, interpreter, parser, metrics, cfg.Batch.Workers)

	deps := api.Dependencies{
		Interpreter: interpreter,
		Parser:      parser,
		Reports:     reports,
		Reference:   gli.NewModel(),
		Cache:       resultCache,
		Batches:     batch.NewManager(logger, processor),
		Metrics:     metrics,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.Enabled {
		db := connectDatabase(ctx, &cfg.Database, logger)
		defer db.Close()

		deps.DB = db
		deps.Records = repository.NewInterpretationRepository(db.Pool, logger)
	}

	server := api.NewServer(configManager, logger, deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting spirometry interpretation server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

// connectDatabase opens the pgx pool and runs pending migrations when
// auto-migration is enabled.
func connectDatabase(ctx context.Context, cfg *domain.DatabaseConfig, logger *logrus.Logger) *database.DB {
	dbConfig := database.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Database:    cfg.Database,
		Username:    cfg.Username,
		Password:    cfg.Password,
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		MaxConnLife: cfg.ConnMaxLifetime,
		MaxConnIdle: cfg.ConnMaxIdleTime,
		SSLMode:     cfg.SSLMode,
	}

	db, err := database.NewConnection(ctx, dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	if cfg.AutoMigrate {
		migrator, err := database.NewMigrator(dbConfig.URL(), cfg.MigrationsPath, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize migrations")
		}
		if err := migrator.Up(); err != nil {
			logger.WithError(err).Fatal("Database migration failed")
		}
		if err := migrator.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close migrator")
		}
	}

	return db
}

// newLogger builds the process logger from the logging config.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	switch cfg.Output {
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger
}
