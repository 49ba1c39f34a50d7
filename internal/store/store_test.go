package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/iammorganparry/claude-mem/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionStore(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionStore(db)

	t.Run("CreateSession is idempotent on content session id", func(t *testing.T) {
		first, err := sessions.CreateSession("content-1", "demo", "fix the bug")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := sessions.CreateSession("content-1", "demo", "different prompt")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.ID != second.ID {
			t.Fatalf("expected same session id, got %d and %d", first.ID, second.ID)
		}
		if second.UserPrompt != "fix the bug" {
			t.Fatalf("existing row should win, got prompt %q", second.UserPrompt)
		}
	})

	t.Run("memory session id is assigned at most once", func(t *testing.T) {
		sess, _ := sessions.CreateSession("content-2", "demo", "")
		if err := sessions.UpdateMemorySessionID(sess.ID, "mem-a"); err != nil {
			t.Fatalf("first assignment failed: %v", err)
		}
		if err := sessions.UpdateMemorySessionID(sess.ID, "mem-a"); err != nil {
			t.Fatalf("re-assigning the same value should be a no-op: %v", err)
		}
		if err := sessions.UpdateMemorySessionID(sess.ID, "mem-b"); err == nil {
			t.Fatal("assigning a different value should fail")
		}
	})

	t.Run("status transitions", func(t *testing.T) {
		sess, _ := sessions.CreateSession("content-3", "demo", "")
		if sess.Status != models.SessionActive {
			t.Fatalf("new session status = %s", sess.Status)
		}
		if err := sessions.MarkCompleted(sess.ID); err != nil {
			t.Fatalf("mark completed: %v", err)
		}
		got, _ := sessions.GetByID(sess.ID)
		if got.Status != models.SessionCompleted {
			t.Fatalf("status = %s, want completed", got.Status)
		}
	})
}

func TestObservationDedup(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionStore(db)
	observations := NewObservationStore(db)

	sess, _ := sessions.CreateSession("content-1", "demo", "")
	_ = sessions.UpdateMemorySessionID(sess.ID, "mem-1")
	sess.MemorySessionID = "mem-1"

	parsed := models.ParsedObservation{
		Type:  models.ObservationDiscovery,
		Title: "Found it",
		Facts: []string{"a fact"},
	}

	first, err := observations.ImportObservation(sess, parsed, 1, 1700000000000)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if !first.Imported {
		t.Fatal("first import should report imported=true")
	}

	second, err := observations.ImportObservation(sess, parsed, 1, 1700000000000)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.Imported {
		t.Fatal("duplicate tuple should report imported=false")
	}
	if first.ID != second.ID {
		t.Fatalf("duplicate should return existing id: %d vs %d", first.ID, second.ID)
	}

	// A different timestamp is a different tuple.
	third, err := observations.ImportObservation(sess, parsed, 1, 1700000000001)
	if err != nil {
		t.Fatalf("third import: %v", err)
	}
	if !third.Imported || third.ID == first.ID {
		t.Fatal("distinct tuple should insert a new row")
	}
}

func TestObservationRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionStore(db)
	observations := NewObservationStore(db)

	sess, _ := sessions.CreateSession("content-1", "demo", "")
	_ = sessions.UpdateMemorySessionID(sess.ID, "mem-1")
	sess.MemorySessionID = "mem-1"

	results, err := observations.StoreObservations(sess, []models.ParsedObservation{{
		Type:          models.ObservationBugfix,
		Title:         "Guarded init",
		Narrative:     "Added a guard.",
		Facts:         []string{"f1", "f2"},
		Concepts:      []string{"concurrency"},
		FilesRead:     []string{"/tmp/a.ts"},
		FilesModified: []string{"/tmp/a.ts"},
	}}, 3)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := observations.GetByID(results[0].ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != models.ObservationBugfix || got.PromptNumber != 3 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if len(got.Facts) != 2 || got.Facts[1] != "f2" {
		t.Fatalf("facts round-trip failed: %v", got.Facts)
	}
	if len(got.FilesRead) != 1 || got.FilesRead[0] != "/tmp/a.ts" {
		t.Fatalf("files_read round-trip failed: %v", got.FilesRead)
	}
}

func TestSummaryUniquePerMemorySession(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionStore(db)
	summaries := NewSummaryStore(db)

	sess, _ := sessions.CreateSession("content-1", "demo", "")
	_ = sessions.UpdateMemorySessionID(sess.ID, "mem-1")
	sess.MemorySessionID = "mem-1"

	first, err := summaries.StoreSummary(sess, models.ParsedSummary{Request: "r", Completed: "done"})
	if err != nil {
		t.Fatalf("store summary: %v", err)
	}
	if !first.Imported {
		t.Fatal("first summary should import")
	}

	second, err := summaries.StoreSummary(sess, models.ParsedSummary{Request: "other"})
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if second.Imported || second.ID != first.ID {
		t.Fatalf("second summary should return existing row: %+v", second)
	}
}

func TestPendingQueue(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionStore(db)
	pending := NewPendingMessageStore(db)

	sess, _ := sessions.CreateSession("content-1", "demo", "")

	t.Run("consumed in enqueue order", func(t *testing.T) {
		for _, tool := range []string{"Read", "Edit", "Bash"} {
			if _, err := pending.EnqueueObservationMessage(sess.ID, tool, "{}", "{}", 1, "/work"); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
		}

		var order []string
		for {
			msg, err := pending.NextPending(sess.ID)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if msg == nil {
				break
			}
			order = append(order, msg.ToolName)
			if err := pending.MarkProcessed(msg.ID); err != nil {
				t.Fatalf("mark processed: %v", err)
			}
		}
		if len(order) != 3 || order[0] != "Read" || order[1] != "Edit" || order[2] != "Bash" {
			t.Fatalf("unexpected order: %v", order)
		}
	})

	t.Run("in-flight rows are parked until reset", func(t *testing.T) {
		id, _ := pending.EnqueueObservationMessage(sess.ID, "Grep", "{}", "{}", 1, "/work")

		msg, _ := pending.NextPending(sess.ID)
		if msg == nil || msg.ID != id {
			t.Fatalf("expected the enqueued message, got %+v", msg)
		}

		// Consumer crashed: the row is in-flight, not handed out again.
		again, _ := pending.NextPending(sess.ID)
		if again != nil {
			t.Fatalf("in-flight row should be parked, got %+v", again)
		}

		n, err := pending.ResetStuckMessages()
		if err != nil || n != 1 {
			t.Fatalf("reset stuck: n=%d err=%v", n, err)
		}

		resurrected, _ := pending.NextPending(sess.ID)
		if resurrected == nil || resurrected.ID != id {
			t.Fatal("row should be consumable after reset")
		}
		_ = pending.MarkProcessed(resurrected.ID)
	})

	t.Run("cleanup removes old processed rows", func(t *testing.T) {
		n, err := pending.CleanupProcessed(-time.Minute)
		if err != nil {
			t.Fatalf("cleanup: %v", err)
		}
		if n == 0 {
			t.Fatal("expected processed rows to be cleaned")
		}
	})
}

func TestTimeline(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionStore(db)
	observations := NewObservationStore(db)
	search := NewSearchStore(db, observations)

	sess, _ := sessions.CreateSession("content-1", "demo", "")
	_ = sessions.UpdateMemorySessionID(sess.ID, "mem-1")
	sess.MemorySessionID = "mem-1"

	var ids []int64
	for i := 0; i < 7; i++ {
		res, err := observations.ImportObservation(sess, models.ParsedObservation{
			Title: "obs",
		}, 1, int64(1700000000000+i))
		if err != nil {
			t.Fatalf("import %d: %v", i, err)
		}
		ids = append(ids, res.ID)
	}

	entries, err := search.GetTimeline(ids[3], 2)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if !entries[2].IsAnchor || entries[2].Observation.ID != ids[3] {
		t.Fatalf("anchor misplaced: %+v", entries[2])
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Observation.CreatedAtEpoch < entries[i-1].Observation.CreatedAtEpoch {
			t.Fatal("timeline not chronological")
		}
	}
}

func TestSearchByText(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionStore(db)
	observations := NewObservationStore(db)
	search := NewSearchStore(db, observations)

	sess, _ := sessions.CreateSession("content-1", "demo", "")
	_ = sessions.UpdateMemorySessionID(sess.ID, "mem-1")
	sess.MemorySessionID = "mem-1"

	_, _ = observations.ImportObservation(sess, models.ParsedObservation{
		Title:     "Cache eviction bug",
		Narrative: "Stale entries survived eviction.",
	}, 1, 1700000000000)
	_, _ = observations.ImportObservation(sess, models.ParsedObservation{
		Title: "Unrelated",
	}, 1, 1700000000001)

	hits, err := search.SearchByText("eviction", "demo", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "Cache eviction bug" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}
