package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// PendingMessageStore handles the per-session work queue consumed by the
// session agent. Rows transition processed_at=NULL -> processed_at=now
// exactly once; the in_flight marker exists only so a crashed consumer's
// rows can be detected and resurrected on worker start.
type PendingMessageStore struct {
	db *DB
}

// NewPendingMessageStore creates a new pending message store.
func NewPendingMessageStore(db *DB) *PendingMessageStore {
	return &PendingMessageStore{db: db}
}

// EnqueueObservationMessage appends a tool-call capture to the queue.
func (s *PendingMessageStore) EnqueueObservationMessage(sessionDBID int64, toolName, toolInput, toolResponse string, promptNumber int, cwd string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO pending_messages (session_id, type, tool_name, tool_input, tool_response, prompt_number, cwd, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionDBID, models.PendingObservation, toolName, toolInput, toolResponse, promptNumber, cwd, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("enqueue observation message: %w", err)
	}
	return res.LastInsertId()
}

// EnqueueSummaryMessage appends a summarize request to the queue.
func (s *PendingMessageStore) EnqueueSummaryMessage(sessionDBID int64, promptNumber int, lastAssistantMessage string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO pending_messages (session_id, type, prompt_number, last_assistant_message, enqueued_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionDBID, models.PendingSummarize, promptNumber, lastAssistantMessage, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("enqueue summary message: %w", err)
	}
	return res.LastInsertId()
}

// NextPending returns the oldest unprocessed message for a session and marks
// it in-flight, or nil when the queue is drained. In-flight rows are not
// handed out again: a row abandoned by a failed consumer stays parked until
// ResetStuckMessages clears the marker on worker start.
func (s *PendingMessageStore) NextPending(sessionDBID int64) (*models.PendingMessage, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, type, tool_name, tool_input, tool_response,
		       prompt_number, cwd, last_assistant_message, enqueued_at, processed_at
		FROM pending_messages
		WHERE session_id = ? AND processed_at IS NULL AND in_flight = 0
		ORDER BY enqueued_at ASC, id ASC
		LIMIT 1
	`, sessionDBID)

	msg, err := scanPendingMessage(row)
	if err != nil || msg == nil {
		return msg, err
	}

	if _, err := s.db.Exec(`UPDATE pending_messages SET in_flight = 1 WHERE id = ?`, msg.ID); err != nil {
		return nil, fmt.Errorf("mark in-flight: %w", err)
	}
	return msg, nil
}

// MarkProcessed records that a message was fully handled. Called only after
// the derived rows were committed, so a crash beforehand leaves the message
// eligible for retry.
func (s *PendingMessageStore) MarkProcessed(messageID int64) error {
	_, err := s.db.Exec(`
		UPDATE pending_messages SET processed_at = ?, in_flight = 0 WHERE id = ?
	`, time.Now().UnixMilli(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// PendingCount returns how many consumable messages a session has queued.
// Parked in-flight rows are excluded; they only return to the queue via
// ResetStuckMessages.
func (s *PendingMessageStore) PendingCount(sessionDBID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pending_messages WHERE session_id = ? AND processed_at IS NULL AND in_flight = 0
	`, sessionDBID).Scan(&count)
	return count, err
}

// ResetStuckMessages clears the in-flight marker on unprocessed rows. Run at
// worker start so messages orphaned by a crashed generator are re-consumed.
func (s *PendingMessageStore) ResetStuckMessages() (int, error) {
	res, err := s.db.Exec(`
		UPDATE pending_messages SET in_flight = 0 WHERE in_flight = 1 AND processed_at IS NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("reset stuck messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CleanupProcessed deletes processed rows older than the cutoff.
func (s *PendingMessageStore) CleanupProcessed(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.Exec(`
		DELETE FROM pending_messages WHERE processed_at IS NOT NULL AND processed_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup processed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanPendingMessage(row *sql.Row) (*models.PendingMessage, error) {
	var msg models.PendingMessage
	var toolName, toolInput, toolResponse, cwd, lastAssistant sql.NullString
	var processedAt sql.NullInt64

	err := row.Scan(&msg.ID, &msg.SessionID, &msg.Type, &toolName, &toolInput, &toolResponse,
		&msg.PromptNumber, &cwd, &lastAssistant, &msg.EnqueuedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pending message: %w", err)
	}

	msg.ToolName = toolName.String
	msg.ToolInput = toolInput.String
	msg.ToolResponse = toolResponse.String
	msg.CWD = cwd.String
	msg.LastAssistantMessage = lastAssistant.String
	if processedAt.Valid {
		msg.ProcessedAt = &processedAt.Int64
	}
	return &msg, nil
}
