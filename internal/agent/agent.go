// Package agent implements the per-session state machine that drives the
// extractor LLM through a continuing conversation and fans parsed results
// into the relational store and the vector backend.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iammorganparry/claude-mem/internal/llm"
	"github.com/iammorganparry/claude-mem/internal/models"
	"github.com/iammorganparry/claude-mem/internal/store"
	"github.com/iammorganparry/claude-mem/internal/vectorstore"
)

// State names for the session agent lifecycle.
type State string

const (
	StateInitializing State = "initializing"
	StateRunningInit  State = "running_init"
	StateDraining     State = "draining"
	StateSummarizing  State = "summarizing"
	StateDone         State = "done"
	StateAborted      State = "aborted"
	StateFailed       State = "failed"
)

// ProviderFactory builds a provider bound to one capture session. The
// claude provider needs the session id to register its children with the
// supervisor; HTTP providers ignore it.
type ProviderFactory func(sessionDBID int64) llm.Provider

// Agent drives extractor conversations. One Agent serves all sessions; the
// per-session conversation state lives on the stack of each Run call.
type Agent struct {
	primary  ProviderFactory
	fallback ProviderFactory

	sessions     *store.SessionStore
	observations *store.ObservationStore
	summaries    *store.SummaryStore
	pending      *store.PendingMessageStore
	backend      vectorstore.Backend

	maxContextMessages int
	maxTokens          int
	logger             *slog.Logger
}

// New creates the session agent. fallback may be nil.
func New(
	primary, fallback ProviderFactory,
	sessions *store.SessionStore,
	observations *store.ObservationStore,
	summaries *store.SummaryStore,
	pending *store.PendingMessageStore,
	backend vectorstore.Backend,
	maxContextMessages, maxTokens int,
	logger *slog.Logger,
) *Agent {
	return &Agent{
		primary:            primary,
		fallback:           fallback,
		sessions:           sessions,
		observations:       observations,
		summaries:          summaries,
		pending:            pending,
		backend:            backend,
		maxContextMessages: maxContextMessages,
		maxTokens:          maxTokens,
		logger:             logger,
	}
}

// run is the per-session conversation state threaded through one Run call.
type run struct {
	sess       *models.Session
	provider   llm.Provider
	onFallback bool
	history    []llm.Message
	state      State
	summarized bool
}

// Run executes the state machine for one generator pass: init the
// conversation, drain pending messages in order, and finish. A transient
// connectivity failure hands the conversation off to the fallback
// provider; a provider 4xx fails the session.
func (a *Agent) Run(ctx context.Context, sess *models.Session, messages <-chan *models.PendingMessage) error {
	r := &run{
		sess:     sess,
		provider: a.primary(sess.ID),
		state:    StateInitializing,
	}

	r.history = []llm.Message{
		llm.BuildSystemPrompt(sess.Project, sess.ContentSessionID, sess.UserPrompt),
	}

	if err := a.initConversation(ctx, r); err != nil {
		return a.fail(ctx, r, err)
	}

	r.state = StateDraining
	for msg := range messages {
		if ctx.Err() != nil {
			r.state = StateAborted
			return ctx.Err()
		}
		if err := a.handleMessage(ctx, r, msg); err != nil {
			return a.fail(ctx, r, err)
		}
	}

	if r.summarized {
		if err := a.sessions.MarkCompleted(sess.ID); err != nil {
			a.logger.Error("mark session completed failed", "session", sess.ID, "error", err)
		}
	}
	r.state = StateDone
	return nil
}

// initConversation posts the opening history and pins the memory session
// id before any observation is written.
func (a *Agent) initConversation(ctx context.Context, r *run) error {
	r.state = StateRunningInit

	resp, err := a.completeTurn(ctx, r)
	if err != nil {
		return err
	}

	memorySessionID := resp.SessionID
	if memorySessionID == "" {
		memorySessionID = fmt.Sprintf("%s-%s", r.provider.Name(), r.sess.ContentSessionID)
	}
	if err := a.sessions.UpdateMemorySessionID(r.sess.ID, memorySessionID); err != nil {
		return fmt.Errorf("persist memory session id: %w", err)
	}
	r.sess.MemorySessionID = memorySessionID

	if resp.Text != "" {
		r.history = append(r.history, llm.Message{Role: llm.RoleAssistant, Content: resp.Text})
	}
	return nil
}

func (a *Agent) handleMessage(ctx context.Context, r *run, msg *models.PendingMessage) error {
	switch msg.Type {
	case models.PendingSummarize:
		r.state = StateSummarizing
		if err := a.handleSummarize(ctx, r, msg); err != nil {
			return err
		}
		r.summarized = true
	default:
		if err := a.handleObservation(ctx, r, msg); err != nil {
			return err
		}
	}
	return a.pending.MarkProcessed(msg.ID)
}

func (a *Agent) handleObservation(ctx context.Context, r *run, msg *models.PendingMessage) error {
	prompt := llm.BuildObservationPrompt(msg.ToolName, msg.ToolInput, msg.ToolResponse, msg.CWD)
	r.history = append(r.history, prompt)

	resp, err := a.completeTurn(ctx, r)
	if err != nil {
		return err
	}
	r.history = append(r.history, llm.Message{Role: llm.RoleAssistant, Content: resp.Text})

	parsed := llm.ParseObservations(resp.Text)
	if len(parsed) == 0 {
		// A response with no observations is a valid outcome.
		a.logger.Debug("no observations extracted", "session", r.sess.ID, "tool", msg.ToolName)
		return nil
	}

	results, err := a.observations.StoreObservations(r.sess, parsed, msg.PromptNumber)
	if err != nil {
		return fmt.Errorf("store observations: %w", err)
	}

	for _, res := range results {
		if !res.Imported {
			continue
		}
		obs, err := a.observations.GetByID(res.ID)
		if err != nil || obs == nil {
			a.logger.Error("reload stored observation failed", "id", res.ID, "error", err)
			continue
		}
		if err := a.backend.SyncObservation(ctx, obs); err != nil {
			// Best-effort: the backfill pass reconciles on next start.
			a.logger.Warn("vector sync failed", "doc", res.ID, "error", err)
		}
	}
	return nil
}

func (a *Agent) handleSummarize(ctx context.Context, r *run, msg *models.PendingMessage) error {
	prompt := llm.BuildSummaryPrompt(r.sess.UserPrompt, msg.LastAssistantMessage)
	r.history = append(r.history, prompt)

	resp, err := a.completeTurn(ctx, r)
	if err != nil {
		return err
	}
	r.history = append(r.history, llm.Message{Role: llm.RoleAssistant, Content: resp.Text})

	parsed := llm.ParseSummary(resp.Text)
	if parsed == nil {
		a.logger.Warn("no summary extracted", "session", r.sess.ID,
			"response", llm.TruncatePayload(resp.Text, 500))
		return nil
	}

	res, err := a.summaries.StoreSummary(r.sess, *parsed)
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	if res.Imported {
		sum, err := a.summaries.GetByID(res.ID)
		if err != nil || sum == nil {
			a.logger.Error("reload stored summary failed", "id", res.ID, "error", err)
			return nil
		}
		if err := a.backend.SyncSummary(ctx, sum); err != nil {
			a.logger.Warn("vector sync failed", "summary", res.ID, "error", err)
		}
	}
	return nil
}

// completeTurn truncates history to the context caps and posts it to the
// active provider. A transient connectivity error triggers a one-time
// hand-off to the fallback provider with the same history; observations
// already committed are not retracted.
func (a *Agent) completeTurn(ctx context.Context, r *run) (*llm.Response, error) {
	truncated, dropped := llm.TruncateHistory(r.history, a.maxContextMessages, a.maxTokens)
	if dropped > 0 {
		// Truncation is logged but silent to the model.
		a.logger.Debug("history truncated", "session", r.sess.ID, "dropped", dropped)
		r.history = truncated
	}

	resp, err := r.provider.Complete(ctx, r.history)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if llm.IsTransient(err) && a.fallback != nil && !r.onFallback {
		a.logger.Warn("provider unreachable, falling back",
			"session", r.sess.ID, "provider", r.provider.Name(), "error", err)
		r.provider = a.fallback(r.sess.ID)
		r.onFallback = true
		return r.provider.Complete(ctx, r.history)
	}
	return nil, err
}

// fail marks the session failed unless the run was cancelled; pending
// messages stay unprocessed for later retry.
func (a *Agent) fail(ctx context.Context, r *run, err error) error {
	if ctx.Err() != nil {
		r.state = StateAborted
		return ctx.Err()
	}
	r.state = StateFailed
	if markErr := a.sessions.MarkFailed(r.sess.ID); markErr != nil {
		a.logger.Error("mark session failed errored", "session", r.sess.ID, "error", markErr)
	}
	return err
}
