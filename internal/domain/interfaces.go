package domain

import (
	"context"
	"time"
)

// Interpreter converts one validated test record into an immutable
// interpretation. Implementations must be pure apart from logging: identical
// inputs yield identical interpretations.
type Interpreter interface {
	Interpret(record *TestRecord) (*Interpretation, error)
}

// RecordValidator checks a test record against the intake contract and
// returns every violated rule, not just the first.
type RecordValidator interface {
	ValidateTestRecord(record *TestRecord) []error
}

// ConfigManager provides access to runtime configuration.
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	Validate() error
}

// RecordRepository defines persistence for interpretation records on the
// Postgres-backed deployment path.
type RecordRepository interface {
	Save(ctx context.Context, record *InterpretationRecord) error
	GetByID(ctx context.Context, id string) (*InterpretationRecord, error)
	List(ctx context.Context, filter RecordFilter) ([]*InterpretationRecord, error)
	Delete(ctx context.Context, id string) error
}

// RecordFilter narrows repository listings. Zero From/To times leave the
// creation-date range unbounded on that side.
type RecordFilter struct {
	PatientID string
	Pattern   Pattern
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
