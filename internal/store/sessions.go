package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// SessionStore handles Session rows on SQLite.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new session store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// CreateSession creates a session if one doesn't exist for the content
// session id, or returns the existing row. Idempotent on content_session_id.
func (s *SessionStore) CreateSession(contentSessionID, project, userPrompt string) (*models.Session, error) {
	existing, err := s.GetByContentSessionID(contentSessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UnixMilli()
	res, err := s.db.Exec(`
		INSERT INTO sessions (content_session_id, project, status, started_at, user_prompt)
		VALUES (?, ?, ?, ?, ?)
	`, contentSessionID, project, models.SessionActive, now, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("session insert id: %w", err)
	}

	return &models.Session{
		ID:               id,
		ContentSessionID: contentSessionID,
		Project:          project,
		Status:           models.SessionActive,
		StartedAt:        now,
		UserPrompt:       userPrompt,
	}, nil
}

// GetByID fetches a session by row id.
func (s *SessionStore) GetByID(id int64) (*models.Session, error) {
	return s.scanOne(s.db.QueryRow(`
		SELECT id, content_session_id, memory_session_id, project, status, started_at, user_prompt
		FROM sessions WHERE id = ?
	`, id))
}

// GetByContentSessionID fetches a session by the host's opaque session id.
func (s *SessionStore) GetByContentSessionID(contentSessionID string) (*models.Session, error) {
	return s.scanOne(s.db.QueryRow(`
		SELECT id, content_session_id, memory_session_id, project, status, started_at, user_prompt
		FROM sessions WHERE content_session_id = ?
	`, contentSessionID))
}

func (s *SessionStore) scanOne(row *sql.Row) (*models.Session, error) {
	var sess models.Session
	var memorySessionID sql.NullString

	err := row.Scan(&sess.ID, &sess.ContentSessionID, &memorySessionID,
		&sess.Project, &sess.Status, &sess.StartedAt, &sess.UserPrompt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if memorySessionID.Valid {
		sess.MemorySessionID = memorySessionID.String
	}
	return &sess, nil
}

// UpdateMemorySessionID assigns the extractor's session identifier. The id
// is assigned at most once: re-assigning the same value is a no-op, a
// different value is an error.
func (s *SessionStore) UpdateMemorySessionID(sessionDBID int64, memorySessionID string) error {
	sess, err := s.GetByID(sessionDBID)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %d not found", sessionDBID)
	}
	if sess.MemorySessionID != "" {
		if sess.MemorySessionID == memorySessionID {
			return nil
		}
		return fmt.Errorf("session %d already has memory_session_id %q", sessionDBID, sess.MemorySessionID)
	}

	_, err = s.db.Exec(`UPDATE sessions SET memory_session_id = ? WHERE id = ?`, memorySessionID, sessionDBID)
	if err != nil {
		return fmt.Errorf("set memory_session_id: %w", err)
	}
	return nil
}

// MarkCompleted transitions a session to the completed status.
func (s *SessionStore) MarkCompleted(sessionDBID int64) error {
	return s.setStatus(sessionDBID, models.SessionCompleted)
}

// MarkFailed transitions a session to the failed status.
func (s *SessionStore) MarkFailed(sessionDBID int64) error {
	return s.setStatus(sessionDBID, models.SessionFailed)
}

func (s *SessionStore) setStatus(sessionDBID int64, status models.SessionStatus) error {
	_, err := s.db.Exec(`UPDATE sessions SET status = ? WHERE id = ?`, status, sessionDBID)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	return nil
}

// ListProjects returns the distinct project names seen across sessions.
func (s *SessionStore) ListProjects() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT project FROM sessions ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
