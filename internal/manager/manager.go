// Package manager sits between the HTTP layer and the session agent. It
// queues hook messages per session, feeds them to the agent as an ordered
// stream, and enforces at most one active generator per session.
package manager

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iammorganparry/claude-mem/internal/models"
	"github.com/iammorganparry/claude-mem/internal/store"
)

// Generator runs a session agent to completion over an ordered message
// stream. The stream ends (channel close) when the queue is drained.
type Generator interface {
	Run(ctx context.Context, sess *models.Session, messages <-chan *models.PendingMessage) error
}

// Manager owns the per-session generator slots.
type Manager struct {
	sessions  *store.SessionStore
	prompts   *store.PromptStore
	pending   *store.PendingMessageStore
	generator Generator
	logger    *slog.Logger

	lastActivity atomic.Int64 // unix millis of the newest hook

	mu       sync.Mutex
	active   map[int64]*sessionState
	wg       sync.WaitGroup
	shutdown bool
}

// sessionState tracks one session's generator slot and cancellation token.
type sessionState struct {
	ctx        context.Context
	cancel     context.CancelFunc
	running    bool
	spawnCount int
}

// New creates a session manager.
func New(sessions *store.SessionStore, prompts *store.PromptStore, pending *store.PendingMessageStore, generator Generator, logger *slog.Logger) *Manager {
	return &Manager{
		sessions:  sessions,
		prompts:   prompts,
		pending:   pending,
		generator: generator,
		logger:    logger,
		active:    make(map[int64]*sessionState),
	}
}

// OnSessionInit looks up or creates the session row for a host session.
func (m *Manager) OnSessionInit(contentSessionID, project, userPrompt string) (*models.Session, error) {
	m.touch()
	return m.sessions.CreateSession(contentSessionID, project, userPrompt)
}

func (m *Manager) touch() {
	m.lastActivity.Store(time.Now().UnixMilli())
}

// LastActivity returns when the newest hook arrived. Drives the idle
// window of the auto-push policy.
func (m *Manager) LastActivity() time.Time {
	ms := m.lastActivity.Load()
	if ms == 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

// OnUserPrompt records a prompt-submit hook: the prompt text is stored for
// searchability and the turn counter advances.
func (m *Manager) OnUserPrompt(contentSessionID, project, promptText string) (int, error) {
	m.touch()
	if _, err := m.sessions.CreateSession(contentSessionID, project, promptText); err != nil {
		return 0, err
	}
	n, err := m.prompts.NextPromptNumber(contentSessionID)
	if err != nil {
		return 0, err
	}
	if _, err := m.prompts.StoreUserPrompt(contentSessionID, n, promptText); err != nil {
		return 0, err
	}
	return n, nil
}

// OnObservation enqueues a tool-call capture and ensures a generator is
// draining the session.
func (m *Manager) OnObservation(contentSessionID, project, toolName, toolInput, toolResponse, cwd string) error {
	m.touch()
	sess, err := m.sessions.CreateSession(contentSessionID, project, "")
	if err != nil {
		return err
	}

	next, err := m.prompts.NextPromptNumber(contentSessionID)
	if err != nil {
		return err
	}
	promptNumber := next - 1
	if promptNumber < 1 {
		promptNumber = 1
	}

	if _, err := m.pending.EnqueueObservationMessage(sess.ID, toolName, toolInput, toolResponse, promptNumber, cwd); err != nil {
		return err
	}
	m.EnsureGenerator(sess.ID)
	return nil
}

// OnSummarize enqueues the end-of-session summary request.
func (m *Manager) OnSummarize(contentSessionID, project, lastAssistantMessage string) error {
	m.touch()
	sess, err := m.sessions.CreateSession(contentSessionID, project, "")
	if err != nil {
		return err
	}

	next, err := m.prompts.NextPromptNumber(contentSessionID)
	if err != nil {
		return err
	}

	if _, err := m.pending.EnqueueSummaryMessage(sess.ID, next-1, lastAssistantMessage); err != nil {
		return err
	}
	m.EnsureGenerator(sess.ID)
	return nil
}

// EnsureGenerator starts a generator for the session unless one is already
// running. This is the dedup guard: under a burst of concurrent enqueues
// exactly one generator is spawned.
func (m *Manager) EnsureGenerator(sessionDBID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return
	}

	state := m.active[sessionDBID]
	if state == nil {
		state = &sessionState{}
		state.ctx, state.cancel = context.WithCancel(context.Background())
		m.active[sessionDBID] = state
	}
	if state.running {
		return
	}
	state.running = true
	state.spawnCount++

	ctx := state.ctx
	m.wg.Add(1)
	go m.runGenerator(ctx, sessionDBID)
}

func (m *Manager) runGenerator(ctx context.Context, sessionDBID int64) {
	defer m.wg.Done()

	sess, err := m.sessions.GetByID(sessionDBID)
	if err != nil || sess == nil {
		m.logger.Error("generator aborted: session lookup failed", "session", sessionDBID, "error", err)
		m.finishGenerator(sessionDBID, false)
		return
	}

	messages := make(chan *models.PendingMessage)
	feederDone := make(chan struct{})
	feedCtx, stopFeed := context.WithCancel(ctx)

	go func() {
		defer close(messages)
		defer close(feederDone)
		for {
			if feedCtx.Err() != nil {
				return
			}
			msg, err := m.pending.NextPending(sessionDBID)
			if err != nil {
				m.logger.Error("pending queue read failed", "session", sessionDBID, "error", err)
				return
			}
			if msg == nil {
				return // queue drained: end of stream
			}
			select {
			case messages <- msg:
			case <-feedCtx.Done():
				return
			}
		}
	}()

	runErr := m.generator.Run(ctx, sess, messages)

	// Stop the feeder and unblock any in-flight send before waiting. A
	// message handed out but never consumed stays parked in-flight until
	// the next worker start resurrects it.
	stopFeed()
	for range messages {
	}
	<-feederDone

	natural := runErr == nil && ctx.Err() == nil
	if runErr != nil {
		m.logger.Warn("generator finished with error", "session", sessionDBID, "error", runErr)
	}
	m.finishGenerator(sessionDBID, natural)
}

// finishGenerator clears the generator slot. On natural completion the
// cancellation token is replaced with a fresh one so the next run is not
// born already cancelled. If work arrived during wind-down, the generator
// is restarted rather than stranding the queue until the next enqueue.
func (m *Manager) finishGenerator(sessionDBID int64, natural bool) {
	m.mu.Lock()
	state := m.active[sessionDBID]
	if state != nil {
		state.running = false
		if natural {
			state.cancel()
			state.ctx, state.cancel = context.WithCancel(context.Background())
		}
	}
	shutdown := m.shutdown
	m.mu.Unlock()

	if shutdown || !natural {
		return
	}
	if n, err := m.pending.PendingCount(sessionDBID); err == nil && n > 0 {
		m.EnsureGenerator(sessionDBID)
	}
}

// Cancel aborts the session's in-flight generator, if any.
func (m *Manager) Cancel(sessionDBID int64) {
	m.mu.Lock()
	state := m.active[sessionDBID]
	m.mu.Unlock()
	if state != nil {
		state.cancel()
	}
}

// SpawnCount reports how many generator runs a session has had. Used by
// the dedup-guard tests.
func (m *Manager) SpawnCount(sessionDBID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state := m.active[sessionDBID]; state != nil {
		return state.spawnCount
	}
	return 0
}

// TokenCancelled reports whether the session's current cancellation token
// is already cancelled.
func (m *Manager) TokenCancelled(sessionDBID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.active[sessionDBID]
	if state == nil {
		return false
	}
	return state.ctx.Err() != nil
}

// Shutdown cancels every session and waits for generators to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shutdown = true
	for _, state := range m.active {
		state.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
