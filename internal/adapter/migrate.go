package adapter

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/iammorganparry/claude-mem/internal/models"
	"github.com/iammorganparry/claude-mem/internal/store"
)

// MigrateOptions parameterizes one migration batch run.
type MigrateOptions struct {
	TargetProject   string
	MemorySessionID string
	BatchSize       int
	ContinueOnError bool
	DryRun          bool
	OnProgress      func(done, total int)
}

// RecordResult reports the outcome of one migrated record.
type RecordResult struct {
	ExternalID string `json:"externalId"`
	ID         int64  `json:"id,omitempty"`
	Imported   bool   `json:"imported"`
	Duplicate  bool   `json:"duplicate"`
	Error      string `json:"error,omitempty"`
}

// MigrateResult summarizes a migration batch.
type MigrateResult struct {
	Total      int            `json:"total"`
	Imported   int            `json:"imported"`
	Duplicates int            `json:"duplicates"`
	Errors     int            `json:"errors"`
	Records    []RecordResult `json:"records"`
	DurationMs int64          `json:"durationMs"`
}

// Migrator composes the schema adapter with the store's importer.
// Deduplication is entirely delegated to the store's
// (memory_session_id, title, created_at_epoch) uniqueness.
type Migrator struct {
	cfg          *Config
	sessions     *store.SessionStore
	observations *store.ObservationStore
	logger       *slog.Logger
}

// NewMigrator creates a migration pipeline for one adapter config.
func NewMigrator(cfg *Config, sessions *store.SessionStore, observations *store.ObservationStore, logger *slog.Logger) *Migrator {
	return &Migrator{
		cfg:          cfg,
		sessions:     sessions,
		observations: observations,
		logger:       logger,
	}
}

// MigrateBatch transforms and imports a batch of foreign JSON records.
func (m *Migrator) MigrateBatch(externals []string, opts MigrateOptions) (*MigrateResult, error) {
	start := time.Now()
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.TargetProject == "" {
		opts.TargetProject = "unknown"
	}
	memorySessionID := opts.MemorySessionID
	if memorySessionID == "" {
		memorySessionID = fmt.Sprintf("import-%s-%s", m.cfg.ID, opts.TargetProject)
	}

	var sess *models.Session
	if !opts.DryRun {
		var err error
		sess, err = m.sessions.CreateSession("import:"+memorySessionID, opts.TargetProject, "")
		if err != nil {
			return nil, fmt.Errorf("create import session: %w", err)
		}
		if err := m.sessions.UpdateMemorySessionID(sess.ID, memorySessionID); err != nil {
			return nil, fmt.Errorf("pin import session id: %w", err)
		}
		sess.MemorySessionID = memorySessionID
	}

	result := &MigrateResult{Total: len(externals)}
	for i := 0; i < len(externals); i += opts.BatchSize {
		end := i + opts.BatchSize
		if end > len(externals) {
			end = len(externals)
		}

		for _, record := range externals[i:end] {
			rec := m.migrateOne(sess, record, opts)
			result.Records = append(result.Records, rec)
			switch {
			case rec.Error != "":
				result.Errors++
				if !opts.ContinueOnError {
					result.DurationMs = time.Since(start).Milliseconds()
					return result, fmt.Errorf("record %s: %s", rec.ExternalID, rec.Error)
				}
			case rec.Duplicate:
				result.Duplicates++
			case rec.Imported:
				result.Imported++
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(end, len(externals))
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

func (m *Migrator) migrateOne(sess *models.Session, record string, opts MigrateOptions) RecordResult {
	internal, err := m.cfg.Transform(record)
	if err != nil {
		return RecordResult{Error: err.Error()}
	}

	rec := RecordResult{ExternalID: internal.ExternalID}
	if opts.DryRun {
		rec.Imported = true
		return rec
	}

	res, err := m.observations.ImportObservation(sess, internal.Parsed, 0, internal.Timestamp)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.ID = res.ID
	rec.Imported = res.Imported
	rec.Duplicate = !res.Imported
	return rec
}
