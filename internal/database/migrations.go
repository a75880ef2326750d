package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// Migrator applies SQL migrations from a directory against the service
// database. The interpretations schema lives in migrations/ at the
// repository root.
type Migrator struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrator creates a migrator reading migration files from
// migrationsPath.
func NewMigrator(databaseURL, migrationsPath string, logger *logrus.Logger) (*Migrator, error) {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		databaseURL,
	)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}

	return &Migrator{
		migrate: m,
		log:     logger,
	}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	m.log.Info("Applying database migrations")

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.log.Info("Database schema is up to date")
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	m.logVersion("Migrations applied")
	return nil
}

// Down rolls back a single migration.
func (m *Migrator) Down() error {
	m.log.Info("Rolling back one migration")

	if err := m.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.log.Info("No migrations to roll back")
			return nil
		}
		return fmt.Errorf("rolling back migration: %w", err)
	}

	m.logVersion("Migration rolled back")
	return nil
}

// Version returns the current schema version and dirty flag.
func (m *Migrator) Version() (uint, bool, error) {
	return m.migrate.Version()
}

func (m *Migrator) logVersion(message string) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		m.log.WithError(err).Warn("Could not read migration version")
		return
	}
	m.log.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info(message)
}

// Close releases the migrator's source and database handles.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}
