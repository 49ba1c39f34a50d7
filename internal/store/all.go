package store

import (
	"fmt"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// The All* readers exist for the vector backend's backfill pass, which
// reconciles every relational row against its expected documents.

// All returns every observation, oldest first.
func (s *ObservationStore) All() ([]*models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT ` + observationColumns + ` FROM observations ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("all observations: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// All returns every summary, oldest first.
func (s *SummaryStore) All() ([]*models.Summary, error) {
	rows, err := s.db.Query(`
		SELECT ` + summaryColumns + ` FROM session_summaries ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("all summaries: %w", err)
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

// All returns every user prompt, oldest first.
func (s *PromptStore) All() ([]*models.UserPrompt, error) {
	rows, err := s.db.Query(`
		SELECT id, content_session_id, prompt_number, prompt_text, created_at_epoch
		FROM user_prompts ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("all user prompts: %w", err)
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

// BackfillSource adapts the three stores to the vector backend's Source.
type BackfillSource struct {
	Observations *ObservationStore
	Summaries    *SummaryStore
	Prompts      *PromptStore
}

func (s *BackfillSource) AllObservations() ([]*models.Observation, error) {
	return s.Observations.All()
}

func (s *BackfillSource) AllSummaries() ([]*models.Summary, error) {
	return s.Summaries.All()
}

func (s *BackfillSource) AllUserPrompts() ([]*models.UserPrompt, error) {
	return s.Prompts.All()
}
