package vectorstore

import (
	"context"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// Document types indexed by the vector backend.
const (
	DocTypeObservation = "observation"
	DocTypeSummary     = "session_summary"
	DocTypeUserPrompt  = "user_prompt"
)

// Filters narrows a query. All provided fields are conjunctive; zero values
// mean "any".
type Filters struct {
	Project         string
	DocType         string
	MemorySessionID string
	MinEpoch        int64
	MaxEpoch        int64
}

// Result is one scored document from a query, deduplicated so the
// best-scoring document per owning row wins.
type Result struct {
	DocID    string         `json:"docId"`
	SQLiteID int64          `json:"sqliteId"`
	DocType  string         `json:"docType"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Content  string         `json:"content,omitempty"`
}

// Stats describes a backend's current state.
type Stats struct {
	Backend    string `json:"backend"`
	Documents  int    `json:"documents"`
	Collection string `json:"collection"`
	Dimensions int    `json:"dimensions"`
	LastSync   int64  `json:"lastSync"`
}

// Backend is the contract every vector store variant satisfies. Mutating
// calls are driven from a single goroutine per session; Query is safe for
// concurrent use.
type Backend interface {
	// Initialize must tolerate an uninitialized backing store and create
	// required schema or collections.
	Initialize(ctx context.Context) error

	SyncObservation(ctx context.Context, obs *models.Observation) error
	SyncSummary(ctx context.Context, sum *models.Summary) error
	SyncUserPrompt(ctx context.Context, prompt *models.UserPrompt) error

	Query(ctx context.Context, query string, limit int, filters Filters) ([]Result, error)

	// EnsureBackfilled scans the relational store for rows whose expected
	// document ids are absent and syncs them. Idempotent and resumable.
	EnsureBackfilled(ctx context.Context) error

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// DocumentDeleter is an optional capability for removing documents by id.
type DocumentDeleter interface {
	DeleteDocuments(ctx context.Context, ids []string) error
}

// RemoteAttacher is an optional capability for attaching a read-only remote
// database for federated queries.
type RemoteAttacher interface {
	AttachRemote(path string) error
}

// FederatedQuerier is an optional capability for weighted multi-source
// queries across the local store and attached remotes.
type FederatedQuerier interface {
	QueryFederated(ctx context.Context, query string, limit int) ([]Result, error)
}

// Source exposes the relational rows a backend reconciles against during
// backfill. Implemented over the Store's read APIs.
type Source interface {
	AllObservations() ([]*models.Observation, error)
	AllSummaries() ([]*models.Summary, error)
	AllUserPrompts() ([]*models.UserPrompt, error)
}
