package adapter

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/claude-mem/internal/store"
)

func setupMigrator(t *testing.T) *Migrator {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &Config{
		ID:   "foreign",
		Name: "foreign system",
		Fields: FieldMap{
			ID:        "uid",
			Title:     "heading",
			Narrative: "body",
			Timestamp: "created",
		},
		Transforms: Transforms{Timestamp: TimestampEpochMs},
	}
	return NewMigrator(cfg, store.NewSessionStore(db), store.NewObservationStore(db), slog.Default())
}

func record(uid int, title string, created int64) string {
	return fmt.Sprintf(`{"uid":"ext-%d","heading":"%s","body":"text","created":%d}`, uid, title, created)
}

func TestMigrateBatch(t *testing.T) {
	m := setupMigrator(t)

	records := []string{
		record(1, "first", 1700000000001),
		record(2, "second", 1700000000002),
		record(2, "second", 1700000000002), // exact duplicate tuple
		`not json`,
	}

	var progress []int
	result, err := m.MigrateBatch(records, MigrateOptions{
		TargetProject:   "acme",
		ContinueOnError: true,
		OnProgress:      func(done, total int) { progress = append(progress, done) },
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.Errors)
	assert.NotEmpty(t, progress)
	assert.GreaterOrEqual(t, result.DurationMs, int64(0))

	// Duplicate reports the same row id as the original.
	require.Len(t, result.Records, 4)
	assert.Equal(t, result.Records[1].ID, result.Records[2].ID)
	assert.True(t, result.Records[2].Duplicate)
}

func TestMigrateBatchStopsOnError(t *testing.T) {
	m := setupMigrator(t)

	records := []string{`broken`, record(1, "first", 1700000000001)}
	result, err := m.MigrateBatch(records, MigrateOptions{
		TargetProject:   "acme",
		ContinueOnError: false,
	})
	require.Error(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 0, result.Imported)
}

func TestMigrateBatchDryRun(t *testing.T) {
	m := setupMigrator(t)

	result, err := m.MigrateBatch([]string{record(1, "first", 1700000000001)}, MigrateOptions{
		TargetProject: "acme",
		DryRun:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	// Nothing was written: a real run afterwards imports fresh.
	real, err := m.MigrateBatch([]string{record(1, "first", 1700000000001)}, MigrateOptions{
		TargetProject: "acme",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, real.Imported)
	assert.Equal(t, 0, real.Duplicates)
}
