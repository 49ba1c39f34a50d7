package store

import (
	"fmt"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// SearchStore serves the read APIs used by the UI and MCP search.
type SearchStore struct {
	db  *DB
	obs *ObservationStore
}

// NewSearchStore creates a new search store.
func NewSearchStore(db *DB, obs *ObservationStore) *SearchStore {
	return &SearchStore{db: db, obs: obs}
}

// SearchByText finds observations whose title, subtitle, narrative, or facts
// contain the query substring. This is the non-semantic fallback path; the
// vector backend serves semantic queries.
func (s *SearchStore) SearchByText(query, project string, limit int) ([]*models.Observation, error) {
	if limit <= 0 {
		limit = 20
	}

	like := "%" + query + "%"
	sqlQuery := `
		SELECT ` + observationColumns + `
		FROM observations
		WHERE (title LIKE ? OR subtitle LIKE ? OR narrative LIKE ? OR facts LIKE ?)`
	args := []any{like, like, like, like}
	if project != "" {
		sqlQuery += ` AND project = ?`
		args = append(args, project)
	}
	sqlQuery += ` ORDER BY created_at_epoch DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search by text: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetTimeline returns up to radius observations on either side of the anchor
// in the anchor's project, ordered chronologically, with the anchor marked.
func (s *SearchStore) GetTimeline(anchorID int64, radius int) ([]*models.TimelineEntry, error) {
	if radius <= 0 {
		radius = 5
	}

	anchor, err := s.obs.GetByID(anchorID)
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return nil, fmt.Errorf("anchor observation %d not found", anchorID)
	}

	before, err := s.window(anchor, `
		SELECT `+observationColumns+`
		FROM observations
		WHERE project = ? AND (created_at_epoch < ? OR (created_at_epoch = ? AND id < ?))
		ORDER BY created_at_epoch DESC, id DESC
		LIMIT ?
	`, radius)
	if err != nil {
		return nil, err
	}

	after, err := s.window(anchor, `
		SELECT `+observationColumns+`
		FROM observations
		WHERE project = ? AND (created_at_epoch > ? OR (created_at_epoch = ? AND id > ?))
		ORDER BY created_at_epoch ASC, id ASC
		LIMIT ?
	`, radius)
	if err != nil {
		return nil, err
	}

	// before comes back newest-first; reverse into chronological order.
	entries := make([]*models.TimelineEntry, 0, len(before)+len(after)+1)
	for i := len(before) - 1; i >= 0; i-- {
		entries = append(entries, &models.TimelineEntry{Observation: before[i]})
	}
	entries = append(entries, &models.TimelineEntry{Observation: anchor, IsAnchor: true})
	for _, obs := range after {
		entries = append(entries, &models.TimelineEntry{Observation: obs})
	}
	return entries, nil
}

func (s *SearchStore) window(anchor *models.Observation, query string, radius int) ([]*models.Observation, error) {
	rows, err := s.db.Query(query, anchor.Project, anchor.CreatedAtEpoch, anchor.CreatedAtEpoch, anchor.ID, radius)
	if err != nil {
		return nil, fmt.Errorf("timeline window: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}
