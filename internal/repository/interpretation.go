// Package repository provides PostgreSQL persistence for interpretation
// records on the server deployment path. It speaks pgx directly against
// the pooled connection owned by internal/database.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pft-interp-server/internal/domain"
)

// defaultListLimit bounds unpaginated listings.
const defaultListLimit = 100

// InterpretationRepository handles interpretation record persistence
type InterpretationRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewInterpretationRepository creates a new interpretation repository
func NewInterpretationRepository(db *pgxpool.Pool, logger *logrus.Logger) *InterpretationRepository {
	return &InterpretationRepository{
		db:  db,
		log: logger,
	}
}

// Save inserts an interpretation record, updating in place when the ID
// already exists. The stored created_at survives updates.
func (r *InterpretationRepository) Save(ctx context.Context, record *domain.InterpretationRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	// Marshal JSONB fields
	demographicsJSON, err := json.Marshal(record.Demographics)
	if err != nil {
		return fmt.Errorf("marshaling demographics: %w", err)
	}

	resultsJSON, err := json.Marshal(record.Results)
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}

	interpretationJSON, err := json.Marshal(record.Interpretation)
	if err != nil {
		return fmt.Errorf("marshaling interpretation: %w", err)
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	query := `
		INSERT INTO interpretations (
			id, patient_id, source, pattern, severity, confidence,
			demographics, results, interpretation,
			processing_time_ms, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		ON CONFLICT (id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			source = EXCLUDED.source,
			pattern = EXCLUDED.pattern,
			severity = EXCLUDED.severity,
			confidence = EXCLUDED.confidence,
			demographics = EXCLUDED.demographics,
			results = EXCLUDED.results,
			interpretation = EXCLUDED.interpretation,
			processing_time_ms = EXCLUDED.processing_time_ms,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at`

	err = r.db.QueryRow(ctx, query,
		record.ID,
		record.PatientID,
		record.Source,
		string(record.Interpretation.Pattern),
		string(record.Interpretation.Severity),
		record.Interpretation.Confidence,
		demographicsJSON,
		resultsJSON,
		interpretationJSON,
		record.ProcessingTimeMS,
		record.CreatedAt,
		record.UpdatedAt,
	).Scan(&record.CreatedAt)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"interpretation_id": record.ID,
			"pattern":           record.Interpretation.Pattern,
			"error":             err,
		}).Error("Failed to save interpretation")
		return fmt.Errorf("saving interpretation: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"interpretation_id": record.ID,
		"pattern":           record.Interpretation.Pattern,
		"severity":          record.Interpretation.Severity,
		"confidence":        record.Interpretation.Confidence,
		"processing_time":   record.ProcessingTimeMS,
	}).Info("Interpretation saved successfully")

	return nil
}

// GetByID retrieves an interpretation record by its ID
func (r *InterpretationRepository) GetByID(ctx context.Context, id string) (*domain.InterpretationRecord, error) {
	query := `
		SELECT id, patient_id, source, demographics, results, interpretation,
			   processing_time_ms, created_at, updated_at
		FROM interpretations
		WHERE id = $1`

	record, err := scanInterpretationRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("interpretation not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"interpretation_id": id,
			"error":             err,
		}).Error("Failed to get interpretation by ID")
		return nil, fmt.Errorf("getting interpretation by ID: %w", err)
	}

	return record, nil
}

// List retrieves interpretation records matching the filter, newest first
func (r *InterpretationRepository) List(ctx context.Context, filter domain.RecordFilter) ([]*domain.InterpretationRecord, error) {
	query := `
		SELECT id, patient_id, source, demographics, results, interpretation,
			   processing_time_ms, created_at, updated_at
		FROM interpretations`

	conditions, args := filterConditions(filter)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": filter.PatientID,
			"pattern":    filter.Pattern,
			"error":      err,
		}).Error("Failed to list interpretations")
		return nil, fmt.Errorf("listing interpretations: %w", err)
	}
	defer rows.Close()

	var records []*domain.InterpretationRecord
	for rows.Next() {
		record, err := scanInterpretationRow(rows)
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"patient_id": filter.PatientID,
				"error":      err,
			}).Error("Failed to scan interpretation row")
			return nil, fmt.Errorf("scanning interpretation row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating interpretation rows: %w", err)
	}

	return records, nil
}

// Count returns the number of records matching the filter. Used alongside
// List for pagination metadata.
func (r *InterpretationRepository) Count(ctx context.Context, filter domain.RecordFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM interpretations`

	conditions, args := filterConditions(filter)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting interpretations: %w", err)
	}
	return count, nil
}

// Delete removes an interpretation record from the database
func (r *InterpretationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM interpretations WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"interpretation_id": id,
			"error":             err,
		}).Error("Failed to delete interpretation")
		return fmt.Errorf("deleting interpretation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("interpretation not found: %w", domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"interpretation_id": id,
	}).Info("Interpretation deleted successfully")

	return nil
}

// filterConditions translates a record filter into positional SQL
// conditions shared by List and Count.
func filterConditions(filter domain.RecordFilter) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.Pattern != "" {
		args = append(args, string(filter.Pattern))
		conditions = append(conditions, fmt.Sprintf("pattern = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return conditions, args
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanInterpretationRow scans one row and unmarshals the JSONB documents.
func scanInterpretationRow(row rowScanner) (*domain.InterpretationRecord, error) {
	var record domain.InterpretationRecord
	var demographicsJSON, resultsJSON, interpretationJSON []byte

	err := row.Scan(
		&record.ID,
		&record.PatientID,
		&record.Source,
		&demographicsJSON,
		&resultsJSON,
		&interpretationJSON,
		&record.ProcessingTimeMS,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Unmarshal JSONB fields
	if err := json.Unmarshal(demographicsJSON, &record.Demographics); err != nil {
		return nil, fmt.Errorf("unmarshaling demographics: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &record.Results); err != nil {
		return nil, fmt.Errorf("unmarshaling results: %w", err)
	}
	if err := json.Unmarshal(interpretationJSON, &record.Interpretation); err != nil {
		return nil, fmt.Errorf("unmarshaling interpretation: %w", err)
	}

	return &record, nil
}
