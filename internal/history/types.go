// Package history provides persistent storage for completed spirometry
// interpretations. Every interpretation run through the CLI, the MCP
// server or the API can be recorded with its input and result so prior
// runs remain auditable and exportable.
package history

import (
	"context"
	"io"
	"time"

	"github.com/pft-interp-server/internal/domain"
)

// Store defines the interface for interpretation history storage.
type Store interface {
	// Save stores an interpretation record. A record with an existing
	// ID is updated in place.
	Save(ctx context.Context, record *domain.InterpretationRecord) error

	// Get retrieves a record by ID. Returns domain.ErrNotFound when no
	// record has that ID.
	Get(ctx context.Context, id string) (*domain.InterpretationRecord, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter domain.RecordFilter) ([]*domain.InterpretationRecord, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)

	// Delete removes a record by ID.
	Delete(ctx context.Context, id string) error

	// ExportJSON exports all records to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports records from a JSON reader. Records whose ID
	// already exists are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// Export is the JSON export envelope.
type Export struct {
	Version    string                         `json:"version"`
	ExportedAt time.Time                      `json:"exported_at"`
	Count      int                            `json:"count"`
	Records    []*domain.InterpretationRecord `json:"records"`
}

const (
	exportVersion = "1.0"

	// defaultListLimit bounds unpaginated listings.
	defaultListLimit = 100

	// maxExportLimit is the maximum number of records exported at once.
	maxExportLimit = 1000000
)
