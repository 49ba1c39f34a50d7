package vectorstore

import (
	"context"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// DisabledBackend satisfies the Backend contract with no-ops. Used when the
// vector backend is configured off; the relational store still accepts all
// writes.
type DisabledBackend struct{}

// NewDisabledBackend creates the no-op backend.
func NewDisabledBackend() *DisabledBackend {
	return &DisabledBackend{}
}

func (b *DisabledBackend) Initialize(ctx context.Context) error { return nil }

func (b *DisabledBackend) SyncObservation(ctx context.Context, obs *models.Observation) error {
	return nil
}

func (b *DisabledBackend) SyncSummary(ctx context.Context, sum *models.Summary) error { return nil }

func (b *DisabledBackend) SyncUserPrompt(ctx context.Context, prompt *models.UserPrompt) error {
	return nil
}

func (b *DisabledBackend) Query(ctx context.Context, query string, limit int, filters Filters) ([]Result, error) {
	return nil, nil
}

func (b *DisabledBackend) EnsureBackfilled(ctx context.Context) error { return nil }

func (b *DisabledBackend) Stats(ctx context.Context) (Stats, error) {
	return Stats{Backend: "none"}, nil
}

func (b *DisabledBackend) Close() error { return nil }
