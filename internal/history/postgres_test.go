package history

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pft-interp-server/internal/domain"
)

// getTestDB returns a database connection for testing.
// Skip test if TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *sql.DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)

	// Create interpretations table for testing
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS interpretations (
			id TEXT PRIMARY KEY,
			patient_id TEXT DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			pattern TEXT NOT NULL,
			severity TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			demographics JSONB NOT NULL,
			results JSONB NOT NULL,
			interpretation JSONB NOT NULL,
			processing_time_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	require.NoError(t, err)

	// Clean up before test
	_, err = db.Exec("DELETE FROM interpretations")
	require.NoError(t, err)

	return db
}

func TestPostgresStore_Save(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	record := historyRecord("imp-001", "PT-100", domain.OBSTRUCTIVE)

	err = store.Save(ctx, record)
	require.NoError(t, err)
	assert.False(t, record.CreatedAt.IsZero())
	assert.False(t, record.UpdatedAt.IsZero())
}

func TestPostgresStore_SaveUpdate(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	record := historyRecord("imp-001", "PT-100", domain.OBSTRUCTIVE)

	// First save
	err = store.Save(ctx, record)
	require.NoError(t, err)
	firstCreated := record.CreatedAt

	// Update
	record.PatientID = "PT-200"
	record.ProcessingTimeMS = 99
	err = store.Save(ctx, record)
	require.NoError(t, err)

	// Should update, not create new
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Original created_at is kept through the upsert
	assert.WithinDuration(t, firstCreated, record.CreatedAt, time.Second)

	retrieved, err := store.Get(ctx, "imp-001")
	require.NoError(t, err)
	assert.Equal(t, "PT-200", retrieved.PatientID)
	assert.Equal(t, 99, retrieved.ProcessingTimeMS)
}

func TestPostgresStore_Get(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	record := historyRecord("imp-001", "PT-100", domain.OBSTRUCTIVE)
	err = store.Save(ctx, record)
	require.NoError(t, err)

	retrieved, err := store.Get(ctx, "imp-001")
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, domain.OBSTRUCTIVE, retrieved.Interpretation.Pattern)
	assert.Equal(t, domain.MODERATE, retrieved.Interpretation.Severity)
	assert.Equal(t, 65, retrieved.Demographics.Age)
	assert.InDelta(t, 2.53, retrieved.Results.PreBronchodilator.FEV1.Liters, 0.0001)
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	retrieved, err := store.Get(ctx, "does-not-exist")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, retrieved)
}

func TestPostgresStore_List(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	records := []*domain.InterpretationRecord{
		historyRecord("imp-001", "PT-100", domain.OBSTRUCTIVE),
		historyRecord("imp-002", "PT-100", domain.NORMAL),
		historyRecord("imp-003", "PT-200", domain.OBSTRUCTIVE),
	}
	for _, record := range records {
		require.NoError(t, store.Save(ctx, record))
	}

	all, err := store.List(ctx, domain.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byPatient, err := store.List(ctx, domain.RecordFilter{PatientID: "PT-100"})
	require.NoError(t, err)
	assert.Len(t, byPatient, 2)

	byPattern, err := store.List(ctx, domain.RecordFilter{Pattern: domain.OBSTRUCTIVE})
	require.NoError(t, err)
	assert.Len(t, byPattern, 2)

	paged, err := store.List(ctx, domain.RecordFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestPostgresStore_Delete(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	record := historyRecord("imp-001", "PT-100", domain.OBSTRUCTIVE)
	require.NoError(t, store.Save(ctx, record))

	err = store.Delete(ctx, "imp-001")
	require.NoError(t, err)

	retrieved, err := store.Get(ctx, "imp-001")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, retrieved)
}

func TestPostgresStore_ExportImport(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, historyRecord("imp-001", "PT-100", domain.OBSTRUCTIVE)))
	require.NoError(t, store.Save(ctx, historyRecord("imp-002", "PT-200", domain.NORMAL)))

	// Export
	var buf bytes.Buffer
	err = store.ExportJSON(ctx, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "imp-001")
	assert.Contains(t, buf.String(), `"version"`)

	// Re-import into the same store skips everything
	imported, skipped, err := store.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 2, skipped)

	// Import lands in an emptied store
	_, err = db.Exec("DELETE FROM interpretations")
	require.NoError(t, err)

	imported, skipped, err = store.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, skipped)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
