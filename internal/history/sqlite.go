package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pft-interp-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite. It is the
// default backend for CLI and MCP deployments that run without a
// database server.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite history store. It creates the
// database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes. Pattern,
// severity and confidence are denormalized out of the interpretation
// document so listings can filter without parsing JSON.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS interpretations (
		id TEXT PRIMARY KEY,
		patient_id TEXT DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		pattern TEXT NOT NULL,
		severity TEXT NOT NULL,
		confidence INTEGER NOT NULL,
		demographics TEXT NOT NULL,
		results TEXT NOT NULL,
		interpretation TEXT NOT NULL,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_interpretations_patient_id ON interpretations(patient_id);
	CREATE INDEX IF NOT EXISTS idx_interpretations_pattern ON interpretations(pattern);
	CREATE INDEX IF NOT EXISTS idx_interpretations_created_at ON interpretations(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// recordColumns encodes the JSON document columns of a record.
func recordColumns(record *domain.InterpretationRecord) (demographics, results, interpretation []byte, err error) {
	demographics, err = json.Marshal(record.Demographics)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode demographics: %w", err)
	}
	results, err = json.Marshal(record.Results)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode results: %w", err)
	}
	interpretation, err = json.Marshal(record.Interpretation)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode interpretation: %w", err)
	}
	return demographics, results, interpretation, nil
}

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into an InterpretationRecord.
func scanRecord(s scanner) (*domain.InterpretationRecord, error) {
	record := &domain.InterpretationRecord{}
	var demographics, results, interpretation []byte

	err := s.Scan(
		&record.ID, &record.PatientID, &record.Source,
		&demographics, &results, &interpretation,
		&record.ProcessingTimeMS, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(demographics, &record.Demographics); err != nil {
		return nil, fmt.Errorf("failed to decode demographics: %w", err)
	}
	if err := json.Unmarshal(results, &record.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	if err := json.Unmarshal(interpretation, &record.Interpretation); err != nil {
		return nil, fmt.Errorf("failed to decode interpretation: %w", err)
	}
	return record, nil
}

// Save stores an interpretation record, updating in place when the ID
// already exists.
func (s *SQLiteStore) Save(ctx context.Context, record *domain.InterpretationRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	demographics, results, interpretation, err := recordColumns(record)
	if err != nil {
		return err
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interpretations (
			id, patient_id, source, pattern, severity, confidence,
			demographics, results, interpretation,
			processing_time_ms, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			patient_id = excluded.patient_id,
			source = excluded.source,
			pattern = excluded.pattern,
			severity = excluded.severity,
			confidence = excluded.confidence,
			demographics = excluded.demographics,
			results = excluded.results,
			interpretation = excluded.interpretation,
			processing_time_ms = excluded.processing_time_ms,
			updated_at = excluded.updated_at
	`,
		record.ID,
		record.PatientID,
		record.Source,
		string(record.Interpretation.Pattern),
		string(record.Interpretation.Severity),
		record.Interpretation.Confidence,
		demographics,
		results,
		interpretation,
		record.ProcessingTimeMS,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.InterpretationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, patient_id, source,
			demographics, results, interpretation,
			processing_time_ms, created_at, updated_at
		FROM interpretations
		WHERE id = ?
	`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return record, nil
}

// List returns records matching the filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter domain.RecordFilter) ([]*domain.InterpretationRecord, error) {
	query := `
		SELECT id, patient_id, source,
			demographics, results, interpretation,
			processing_time_ms, created_at, updated_at
		FROM interpretations
	`

	var conditions []string
	var args []interface{}
	if filter.PatientID != "" {
		conditions = append(conditions, "patient_id = ?")
		args = append(args, filter.PatientID)
	}
	if filter.Pattern != "" {
		conditions = append(conditions, "pattern = ?")
		args = append(args, string(filter.Pattern))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.To)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*domain.InterpretationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// Count returns the total number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM interpretations").Scan(&count)
	return count, err
}

// Delete removes a record by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM interpretations WHERE id = ?", id)
	return err
}

// ExportJSON exports all records to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, domain.RecordFilter{Limit: maxExportLimit})
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	export := &Export{
		Version:    exportVersion,
		ExportedAt: time.Now(),
		Count:      len(all),
		Records:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports records from a JSON reader, skipping IDs that
// already exist.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, record := range export.Records {
		_, err := s.Get(ctx, record.ID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if err := s.Save(ctx, record); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
