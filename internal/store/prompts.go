package store

import (
	"fmt"
	"time"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// PromptStore handles UserPrompt rows on SQLite.
type PromptStore struct {
	db *DB
}

// NewPromptStore creates a new prompt store.
func NewPromptStore(db *DB) *PromptStore {
	return &PromptStore{db: db}
}

// StoreUserPrompt records one turn's user input.
func (s *PromptStore) StoreUserPrompt(contentSessionID string, promptNumber int, promptText string) (*models.UserPrompt, error) {
	now := time.Now().UnixMilli()
	res, err := s.db.Exec(`
		INSERT INTO user_prompts (content_session_id, prompt_number, prompt_text, created_at_epoch)
		VALUES (?, ?, ?, ?)
	`, contentSessionID, promptNumber, promptText, now)
	if err != nil {
		return nil, fmt.Errorf("insert user prompt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user prompt insert id: %w", err)
	}

	return &models.UserPrompt{
		ID:               id,
		ContentSessionID: contentSessionID,
		PromptNumber:     promptNumber,
		PromptText:       promptText,
		CreatedAtEpoch:   now,
	}, nil
}

// NextPromptNumber returns the next monotone prompt number for a session.
func (s *PromptStore) NextPromptNumber(contentSessionID string) (int, error) {
	var next int
	err := s.db.QueryRow(`
		SELECT COALESCE(MAX(prompt_number), 0) + 1 FROM user_prompts WHERE content_session_id = ?
	`, contentSessionID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next prompt number: %w", err)
	}
	return next, nil
}

// ListBySession returns all prompts for a content session, oldest first.
func (s *PromptStore) ListBySession(contentSessionID string) ([]*models.UserPrompt, error) {
	rows, err := s.db.Query(`
		SELECT id, content_session_id, prompt_number, prompt_text, created_at_epoch
		FROM user_prompts
		WHERE content_session_id = ?
		ORDER BY prompt_number ASC
	`, contentSessionID)
	if err != nil {
		return nil, fmt.Errorf("list user prompts: %w", err)
	}
	defer rows.Close()

	var prompts []*models.UserPrompt
	for rows.Next() {
		var p models.UserPrompt
		if err := rows.Scan(&p.ID, &p.ContentSessionID, &p.PromptNumber, &p.PromptText, &p.CreatedAtEpoch); err != nil {
			return nil, fmt.Errorf("scan user prompt: %w", err)
		}
		prompts = append(prompts, &p)
	}
	return prompts, rows.Err()
}
