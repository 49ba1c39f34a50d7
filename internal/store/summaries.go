package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// SummaryStore handles SessionSummary rows on SQLite. At most one summary
// exists per memory session, enforced by a unique index.
type SummaryStore struct {
	db *DB
}

// NewSummaryStore creates a new summary store.
func NewSummaryStore(db *DB) *SummaryStore {
	return &SummaryStore{db: db}
}

// StoreSummary inserts a session's final summary. A second summary for the
// same memory session returns the existing row id with Imported=false.
func (s *SummaryStore) StoreSummary(sess *models.Session, parsed models.ParsedSummary) (models.StoreResult, error) {
	return s.insert(sess, parsed, time.Now().UnixMilli())
}

// ImportSummary stores a summary with an externally assigned timestamp.
func (s *SummaryStore) ImportSummary(sess *models.Session, parsed models.ParsedSummary, createdAtEpoch int64) (models.StoreResult, error) {
	return s.insert(sess, parsed, createdAtEpoch)
}

func (s *SummaryStore) insert(sess *models.Session, parsed models.ParsedSummary, epoch int64) (models.StoreResult, error) {
	var existingID int64
	err := s.db.QueryRow(`
		SELECT id FROM session_summaries WHERE memory_session_id = ?
	`, sess.MemorySessionID).Scan(&existingID)
	if err == nil {
		return models.StoreResult{ID: existingID, Imported: false}, nil
	}
	if err != sql.ErrNoRows {
		return models.StoreResult{}, fmt.Errorf("check summary exists: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO session_summaries (
			session_id, content_session_id, memory_session_id, project,
			request, investigated, learned, completed, next_steps, notes,
			created_at_epoch
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.ContentSessionID, sess.MemorySessionID, sess.Project,
		parsed.Request, parsed.Investigated, parsed.Learned,
		parsed.Completed, parsed.NextSteps, parsed.Notes, epoch)
	if err != nil {
		return models.StoreResult{}, fmt.Errorf("insert summary: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.StoreResult{}, fmt.Errorf("summary insert id: %w", err)
	}
	return models.StoreResult{ID: id, Imported: true}, nil
}

// GetByMemorySessionID fetches the summary for a memory session, or nil.
func (s *SummaryStore) GetByMemorySessionID(memorySessionID string) (*models.Summary, error) {
	return s.scanOne(s.db.QueryRow(`
		SELECT `+summaryColumns+` FROM session_summaries WHERE memory_session_id = ?
	`, memorySessionID))
}

// GetByID fetches a summary by row id, or nil.
func (s *SummaryStore) GetByID(id int64) (*models.Summary, error) {
	return s.scanOne(s.db.QueryRow(`
		SELECT `+summaryColumns+` FROM session_summaries WHERE id = ?
	`, id))
}

// ListRecent returns the newest summaries, optionally filtered by project.
func (s *SummaryStore) ListRecent(project string, limit int) ([]*models.Summary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + summaryColumns + ` FROM session_summaries`
	args := []any{}
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY created_at_epoch DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Count returns the number of stored summaries.
func (s *SummaryStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM session_summaries`).Scan(&count)
	return count, err
}

const summaryColumns = `id, session_id, content_session_id, memory_session_id, project,
	request, investigated, learned, completed, next_steps, notes, created_at_epoch`

func (s *SummaryStore) scanOne(row *sql.Row) (*models.Summary, error) {
	var sum models.Summary
	var request, investigated, learned, completed, nextSteps, notes sql.NullString

	err := row.Scan(&sum.ID, &sum.SessionID, &sum.ContentSessionID, &sum.MemorySessionID,
		&sum.Project, &request, &investigated, &learned, &completed, &nextSteps, &notes,
		&sum.CreatedAtEpoch)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}

	sum.Request = request.String
	sum.Investigated = investigated.String
	sum.Learned = learned.String
	sum.Completed = completed.String
	sum.NextSteps = nextSteps.String
	sum.Notes = notes.String
	return &sum, nil
}

func scanSummary(rows *sql.Rows) (*models.Summary, error) {
	var sum models.Summary
	var request, investigated, learned, completed, nextSteps, notes sql.NullString

	err := rows.Scan(&sum.ID, &sum.SessionID, &sum.ContentSessionID, &sum.MemorySessionID,
		&sum.Project, &request, &investigated, &learned, &completed, &nextSteps, &notes,
		&sum.CreatedAtEpoch)
	if err != nil {
		return nil, fmt.Errorf("scan summary: %w", err)
	}

	sum.Request = request.String
	sum.Investigated = investigated.String
	sum.Learned = learned.String
	sum.Completed = completed.String
	sum.NextSteps = nextSteps.String
	sum.Notes = notes.String
	return &sum, nil
}
