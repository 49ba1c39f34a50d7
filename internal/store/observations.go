package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// ObservationStore handles Observation rows on SQLite. Rows are append-only;
// the dedup key (memory_session_id, title, created_at_epoch) is enforced by
// a unique index.
type ObservationStore struct {
	db *DB
}

// NewObservationStore creates a new observation store.
func NewObservationStore(db *DB) *ObservationStore {
	return &ObservationStore{db: db}
}

// StoreObservations inserts a batch of parsed observations for a session and
// returns one result per input, in order. Duplicate dedup tuples return the
// existing row id with Imported=false.
func (s *ObservationStore) StoreObservations(sess *models.Session, batch []models.ParsedObservation, promptNumber int) ([]models.StoreResult, error) {
	results := make([]models.StoreResult, 0, len(batch))
	for _, parsed := range batch {
		res, err := s.insert(sess, parsed, promptNumber, time.Now().UnixMilli())
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ImportObservation stores one observation with an externally assigned
// timestamp. Used by the migration pipeline; dedup semantics are identical
// to StoreObservations.
func (s *ObservationStore) ImportObservation(sess *models.Session, parsed models.ParsedObservation, promptNumber int, createdAtEpoch int64) (models.StoreResult, error) {
	return s.insert(sess, parsed, promptNumber, createdAtEpoch)
}

func (s *ObservationStore) insert(sess *models.Session, parsed models.ParsedObservation, promptNumber int, epoch int64) (models.StoreResult, error) {
	if !parsed.Type.IsValid() {
		parsed.Type = models.ObservationDiscovery
	}
	if parsed.Title == "" {
		parsed.Title = "Untitled"
	}

	// Dedup: an identical (memory_session_id, title, created_at_epoch)
	// tuple returns the existing row.
	var existingID int64
	err := s.db.QueryRow(`
		SELECT id FROM observations
		WHERE memory_session_id = ? AND title = ? AND created_at_epoch = ?
	`, sess.MemorySessionID, parsed.Title, epoch).Scan(&existingID)
	if err == nil {
		return models.StoreResult{ID: existingID, Imported: false}, nil
	}
	if err != sql.ErrNoRows {
		return models.StoreResult{}, fmt.Errorf("check observation dedup: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO observations (
			session_id, content_session_id, memory_session_id, project,
			type, title, subtitle, narrative, text,
			facts, concepts, files_read, files_modified,
			prompt_number, created_at_epoch
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.ContentSessionID, sess.MemorySessionID, sess.Project,
		parsed.Type, parsed.Title, parsed.Subtitle, parsed.Narrative, parsed.Text,
		marshalList(parsed.Facts), marshalList(parsed.Concepts),
		marshalList(parsed.FilesRead), marshalList(parsed.FilesModified),
		promptNumber, epoch)
	if err != nil {
		return models.StoreResult{}, fmt.Errorf("insert observation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.StoreResult{}, fmt.Errorf("observation insert id: %w", err)
	}
	return models.StoreResult{ID: id, Imported: true}, nil
}

// GetByID fetches one observation by row id.
func (s *ObservationStore) GetByID(id int64) (*models.Observation, error) {
	obs, err := s.GetByIDs([]int64{id})
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, nil
	}
	return obs[0], nil
}

// GetByIDs fetches observations by row ids, preserving store order.
func (s *ObservationStore) GetByIDs(ids []int64) ([]*models.Observation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(`
		SELECT `+observationColumns+`
		FROM observations
		WHERE id IN (`+placeholders+`)
		ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("get observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// ListBySession returns observations for a session row id, oldest first.
func (s *ObservationStore) ListBySession(sessionDBID int64, limit int) ([]*models.Observation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT `+observationColumns+`
		FROM observations
		WHERE session_id = ?
		ORDER BY created_at_epoch ASC, id ASC
		LIMIT ?
	`, sessionDBID, limit)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// ListRecent returns the newest observations, optionally filtered by project.
func (s *ObservationStore) ListRecent(project string, limit int) ([]*models.Observation, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + observationColumns + ` FROM observations`
	args := []any{}
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY created_at_epoch DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// Count returns the number of observations, optionally scoped to a project.
func (s *ObservationStore) Count(project string) (int, error) {
	var count int
	var err error
	if project == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM observations`).Scan(&count)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM observations WHERE project = ?`, project).Scan(&count)
	}
	return count, err
}

const observationColumns = `id, session_id, content_session_id, memory_session_id, project,
	type, title, subtitle, narrative, text, facts, concepts, files_read, files_modified,
	prompt_number, created_at_epoch`

func scanObservations(rows *sql.Rows) ([]*models.Observation, error) {
	var observations []*models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

func scanObservation(rows *sql.Rows) (*models.Observation, error) {
	var obs models.Observation
	var subtitle, narrative, text sql.NullString
	var facts, concepts, filesRead, filesModified sql.NullString

	err := rows.Scan(&obs.ID, &obs.SessionID, &obs.ContentSessionID, &obs.MemorySessionID,
		&obs.Project, &obs.Type, &obs.Title, &subtitle, &narrative, &text,
		&facts, &concepts, &filesRead, &filesModified,
		&obs.PromptNumber, &obs.CreatedAtEpoch)
	if err != nil {
		return nil, fmt.Errorf("scan observation: %w", err)
	}

	obs.Subtitle = subtitle.String
	obs.Narrative = narrative.String
	obs.Text = text.String
	obs.Facts = unmarshalList(facts.String)
	obs.Concepts = unmarshalList(concepts.String)
	obs.FilesRead = unmarshalList(filesRead.String)
	obs.FilesModified = unmarshalList(filesModified.String)
	return &obs, nil
}

func marshalList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalList(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}
