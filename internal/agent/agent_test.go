package agent

import (
	"context"
	"log/slog"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/iammorganparry/claude-mem/internal/llm"
	"github.com/iammorganparry/claude-mem/internal/models"
	"github.com/iammorganparry/claude-mem/internal/store"
	"github.com/iammorganparry/claude-mem/internal/vectorstore"
)

// fakeProvider replays scripted responses or errors.
type fakeProvider struct {
	name      string
	responses []string
	err       error
	calls     int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &llm.Response{Text: "ok"}, nil
	}
	text := p.responses[0]
	p.responses = p.responses[1:]
	return &llm.Response{Text: text}, nil
}

type fixture struct {
	sessions     *store.SessionStore
	observations *store.ObservationStore
	summaries    *store.SummaryStore
	pending      *store.PendingMessageStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &fixture{
		sessions:     store.NewSessionStore(db),
		observations: store.NewObservationStore(db),
		summaries:    store.NewSummaryStore(db),
		pending:      store.NewPendingMessageStore(db),
	}
}

func newAgent(f *fixture, primary, fallback llm.Provider) *Agent {
	var fallbackFactory ProviderFactory
	if fallback != nil {
		fallbackFactory = func(int64) llm.Provider { return fallback }
	}
	return New(
		func(int64) llm.Provider { return primary },
		fallbackFactory,
		f.sessions, f.observations, f.summaries, f.pending,
		vectorstore.NewDisabledBackend(),
		40, 80000,
		slog.Default(),
	)
}

// feed enqueues rows and streams them the way the manager's feeder does.
func feed(t *testing.T, f *fixture, sessionID int64) <-chan *models.PendingMessage {
	t.Helper()
	ch := make(chan *models.PendingMessage)
	go func() {
		defer close(ch)
		for {
			msg, err := f.pending.NextPending(sessionID)
			if err != nil || msg == nil {
				return
			}
			ch <- msg
		}
	}()
	return ch
}

func TestInitObservationSummaryFlow(t *testing.T) {
	f := setup(t)

	obsXML := `<observation>
  <type>discovery</type>
  <title>Read config loader</title>
  <narrative>The loader resolves paths before env overrides.</narrative>
  <fact>env wins over file</fact>
  <file_read>/tmp/a.ts</file_read>
</observation>`
	sumXML := `<summary>
  <request>inspect the loader</request>
  <completed>reviewed the file</completed>
</summary>`

	primary := &fakeProvider{name: "lmstudio", responses: []string{"ready", obsXML, sumXML}}
	ag := newAgent(f, primary, nil)

	sess, _ := f.sessions.CreateSession("content-1", "demo", "look at /tmp/a.ts")
	if _, err := f.pending.EnqueueObservationMessage(sess.ID, "Read", `{"file_path":"/tmp/a.ts"}`, `{"ok":true}`, 1, "/work"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := f.pending.EnqueueSummaryMessage(sess.ID, 1, "done"); err != nil {
		t.Fatalf("enqueue summary: %v", err)
	}

	if err := ag.Run(context.Background(), sess, feed(t, f, sess.ID)); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Memory session id synthesized from provider + content session id.
	got, _ := f.sessions.GetByID(sess.ID)
	if got.MemorySessionID != "lmstudio-content-1" {
		t.Fatalf("memory session id = %q", got.MemorySessionID)
	}
	if got.Status != models.SessionCompleted {
		t.Fatalf("session status = %s, want completed", got.Status)
	}

	observations, _ := f.observations.ListBySession(sess.ID, 10)
	if len(observations) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(observations))
	}
	if observations[0].Type != models.ObservationDiscovery {
		t.Fatalf("observation type = %s", observations[0].Type)
	}
	if len(observations[0].FilesRead) != 1 || observations[0].FilesRead[0] != "/tmp/a.ts" {
		t.Fatalf("files_read = %v", observations[0].FilesRead)
	}

	sum, _ := f.summaries.GetByMemorySessionID("lmstudio-content-1")
	if sum == nil || sum.Completed == "" {
		t.Fatalf("summary missing or empty: %+v", sum)
	}
}

func TestTransientErrorFallsBack(t *testing.T) {
	f := setup(t)

	primary := &fakeProvider{name: "lmstudio", err: &llm.ProviderError{Provider: "lmstudio", Err: syscall.ECONNREFUSED}}
	fallback := &fakeProvider{name: "openrouter"}
	ag := newAgent(f, primary, fallback)

	sess, _ := f.sessions.CreateSession("content-1", "demo", "hello")

	ch := make(chan *models.PendingMessage)
	close(ch)
	if err := ag.Run(context.Background(), sess, ch); err != nil {
		t.Fatalf("run should succeed via fallback: %v", err)
	}

	if fallback.calls == 0 {
		t.Fatal("fallback provider was never invoked")
	}
	got, _ := f.sessions.GetByID(sess.ID)
	if got.Status == models.SessionFailed {
		t.Fatal("session must not be failed when fallback succeeds")
	}
	if got.MemorySessionID != "openrouter-content-1" {
		t.Fatalf("memory session id = %q, want fallback-derived", got.MemorySessionID)
	}
}

func TestProvider4xxDoesNotFallBack(t *testing.T) {
	f := setup(t)

	primary := &fakeProvider{name: "openrouter", err: &llm.ProviderError{Provider: "openrouter", StatusCode: 400, Err: errBadRequest}}
	fallback := &fakeProvider{name: "lmstudio"}
	ag := newAgent(f, primary, fallback)

	sess, _ := f.sessions.CreateSession("content-1", "demo", "hello")

	ch := make(chan *models.PendingMessage)
	close(ch)
	err := ag.Run(context.Background(), sess, ch)
	if err == nil {
		t.Fatal("run should surface the provider error")
	}
	if fallback.calls != 0 {
		t.Fatal("fallback must not be invoked on a 4xx")
	}

	got, _ := f.sessions.GetByID(sess.ID)
	if got.Status != models.SessionFailed {
		t.Fatalf("session status = %s, want failed", got.Status)
	}
}

func TestZeroObservationsIsNotAnError(t *testing.T) {
	f := setup(t)

	primary := &fakeProvider{name: "lmstudio", responses: []string{"ready", "nothing worth recording"}}
	ag := newAgent(f, primary, nil)

	sess, _ := f.sessions.CreateSession("content-1", "demo", "")
	if _, err := f.pending.EnqueueObservationMessage(sess.ID, "Read", "{}", "{}", 1, "/work"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := ag.Run(context.Background(), sess, feed(t, f, sess.ID)); err != nil {
		t.Fatalf("run: %v", err)
	}

	observations, _ := f.observations.ListBySession(sess.ID, 10)
	if len(observations) != 0 {
		t.Fatalf("expected no observations, got %d", len(observations))
	}

	// The message was still consumed.
	if n, _ := f.pending.PendingCount(sess.ID); n != 0 {
		t.Fatalf("queue should be drained, %d left", n)
	}
}

var errBadRequest = &badRequestErr{}

type badRequestErr struct{}

func (e *badRequestErr) Error() string { return "bad request" }
