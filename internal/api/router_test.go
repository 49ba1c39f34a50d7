package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/iammorganparry/claude-mem/internal/config"
	"github.com/iammorganparry/claude-mem/internal/manager"
	"github.com/iammorganparry/claude-mem/internal/models"
	"github.com/iammorganparry/claude-mem/internal/store"
	"github.com/iammorganparry/claude-mem/internal/vectorstore"
)

// drainGenerator consumes and marks every message without an LLM.
type drainGenerator struct {
	pending *store.PendingMessageStore
}

func (g *drainGenerator) Run(ctx context.Context, sess *models.Session, messages <-chan *models.PendingMessage) error {
	for msg := range messages {
		_ = g.pending.MarkProcessed(msg.ID)
	}
	return nil
}

type testEnv struct {
	srv          *httptest.Server
	sessions     *store.SessionStore
	observations *store.ObservationStore
	pending      *store.PendingMessageStore
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	db, err := store.Open(filepath.Join(dir, "claude-mem.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sessions := store.NewSessionStore(db)
	observations := store.NewObservationStore(db)
	summaries := store.NewSummaryStore(db)
	prompts := store.NewPromptStore(db)
	pending := store.NewPendingMessageStore(db)
	search := store.NewSearchStore(db, observations)
	backend := vectorstore.NewDisabledBackend()

	gen := &drainGenerator{pending: pending}
	mgr := manager.New(sessions, prompts, pending, gen, slog.Default())
	t.Cleanup(mgr.Shutdown)

	router := NewRouter(mgr, observations, summaries, sessions, search, backend, cfg, slog.Default())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, sessions: sessions, observations: observations, pending: pending}
}

func postHook(t *testing.T, env *testEnv, event string, payload HookEvent) *http.Response {
	t.Helper()
	body, _ := json.Marshal(payload)
	resp, err := http.Post(env.srv.URL+"/hooks/claude/"+event, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post hook: %v", err)
	}
	return resp
}

func TestHookLifecycle(t *testing.T) {
	env := setupServer(t)

	resp := postHook(t, env, "session-init", HookEvent{SessionID: "c-1", Project: "demo", Prompt: "fix it"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session-init status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	sess, _ := env.sessions.GetByContentSessionID("c-1")
	if sess == nil || sess.Project != "demo" {
		t.Fatalf("session not created: %+v", sess)
	}

	resp = postHook(t, env, "observation", HookEvent{
		SessionID: "c-1", Project: "demo",
		ToolName: "Read", ToolInput: `{"file":"/tmp/a.ts"}`, ToolResponse: `{}`, CWD: "/work",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("observation status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The drain generator consumes the queue.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := env.pending.PendingCount(sess.ID); n == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n, _ := env.pending.PendingCount(sess.ID); n != 0 {
		t.Fatalf("queue not drained, %d left", n)
	}
}

func TestHookValidation(t *testing.T) {
	env := setupServer(t)

	resp := postHook(t, env, "observation", HookEvent{Project: "demo"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing session_id should 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postHook(t, env, "no-such-event", HookEvent{SessionID: "c-1"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown event should 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestReadEndpoints(t *testing.T) {
	env := setupServer(t)

	sess, _ := env.sessions.CreateSession("c-1", "demo", "")
	_ = env.sessions.UpdateMemorySessionID(sess.ID, "mem-1")
	sess.MemorySessionID = "mem-1"

	res, err := env.observations.ImportObservation(sess, models.ParsedObservation{
		Title:     "Cache bug",
		Narrative: "stale entries",
	}, 1, 1700000000000)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	t.Run("list observations", func(t *testing.T) {
		resp, err := http.Get(env.srv.URL + "/observations?project=demo")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Observations []*models.Observation `json:"observations"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Observations) != 1 || body.Observations[0].Title != "Cache bug" {
			t.Fatalf("unexpected observations: %+v", body.Observations)
		}
	})

	t.Run("get by ids", func(t *testing.T) {
		resp, err := http.Get(env.srv.URL + "/observations/" + itoa(res.ID))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	t.Run("timeline", func(t *testing.T) {
		resp, err := http.Get(env.srv.URL + "/timeline?anchor=" + itoa(res.ID) + "&radius=2")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	t.Run("search falls back to text", func(t *testing.T) {
		resp, err := http.Get(env.srv.URL + "/search?q=Cache")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Mode != "text" {
			t.Fatalf("disabled backend should fall back to text mode, got %q", body.Mode)
		}
	})

	t.Run("projects and stats", func(t *testing.T) {
		for _, path := range []string{"/projects", "/stats", "/health"} {
			resp, err := http.Get(env.srv.URL + path)
			if err != nil {
				t.Fatalf("get %s: %v", path, err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("%s status = %d", path, resp.StatusCode)
			}
			resp.Body.Close()
		}
	})
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
