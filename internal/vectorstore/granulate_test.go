package vectorstore

import (
	"testing"

	"github.com/iammorganparry/claude-mem/internal/models"
)

func TestGranulateObservation(t *testing.T) {
	t.Run("narrative plus two facts", func(t *testing.T) {
		obs := &models.Observation{
			ID:              42,
			MemorySessionID: "mem-1",
			Project:         "demo",
			Type:            models.ObservationDiscovery,
			Title:           "Found the race",
			Narrative:       "The watcher initializes twice under load.",
			Facts:           []string{"init is not guarded", "second init clobbers state"},
			CreatedAtEpoch:  1700000000000,
		}

		docs := GranulateObservation(obs)
		if len(docs) != 3 {
			t.Fatalf("expected 3 documents, got %d", len(docs))
		}

		wantIDs := []string{"obs_42_narrative", "obs_42_fact_0", "obs_42_fact_1"}
		for i, want := range wantIDs {
			if docs[i].ID != want {
				t.Fatalf("doc %d id = %q, want %q", i, docs[i].ID, want)
			}
			if docs[i].SQLiteID != 42 {
				t.Fatalf("doc %d sqlite id = %d, want 42", i, docs[i].SQLiteID)
			}
			if docs[i].DocType != DocTypeObservation {
				t.Fatalf("doc %d type = %q", i, docs[i].DocType)
			}
		}
	})

	t.Run("empty fields produce no documents", func(t *testing.T) {
		obs := &models.Observation{ID: 7, Title: "Bare"}
		if docs := GranulateObservation(obs); len(docs) != 0 {
			t.Fatalf("expected 0 documents, got %d", len(docs))
		}
	})

	t.Run("text field is indexed", func(t *testing.T) {
		obs := &models.Observation{ID: 9, Title: "t", Text: "verbatim capture"}
		docs := GranulateObservation(obs)
		if len(docs) != 1 || docs[0].ID != "obs_9_text" {
			t.Fatalf("unexpected docs: %+v", docs)
		}
	})
}

func TestGranulateSummary(t *testing.T) {
	sum := &models.Summary{
		ID:              5,
		MemorySessionID: "mem-1",
		Project:         "demo",
		Request:         "fix the watcher",
		Learned:         "init must be guarded",
		CreatedAtEpoch:  1700000000000,
	}

	docs := GranulateSummary(sum)
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].ID != "summary_5_request" || docs[1].ID != "summary_5_learned" {
		t.Fatalf("unexpected ids: %s, %s", docs[0].ID, docs[1].ID)
	}
	for _, doc := range docs {
		if doc.DocType != DocTypeSummary {
			t.Fatalf("doc type = %q", doc.DocType)
		}
	}
}

func TestGranulateUserPrompt(t *testing.T) {
	prompt := &models.UserPrompt{ID: 3, ContentSessionID: "c-1", PromptNumber: 2, PromptText: "please fix"}
	docs := GranulateUserPrompt(prompt)
	if len(docs) != 1 || docs[0].ID != "prompt_3_text" {
		t.Fatalf("unexpected docs: %+v", docs)
	}

	empty := &models.UserPrompt{ID: 4}
	if docs := GranulateUserPrompt(empty); len(docs) != 0 {
		t.Fatalf("expected no docs for empty prompt")
	}
}

func TestDedupeByOwner(t *testing.T) {
	results := []Result{
		{DocID: "obs_1_narrative", SQLiteID: 1, DocType: DocTypeObservation, Distance: 0.1},
		{DocID: "obs_1_fact_0", SQLiteID: 1, DocType: DocTypeObservation, Distance: 0.2},
		{DocID: "summary_1_request", SQLiteID: 1, DocType: DocTypeSummary, Distance: 0.3},
		{DocID: "obs_2_narrative", SQLiteID: 2, DocType: DocTypeObservation, Distance: 0.4},
	}

	deduped := dedupeByOwner(results, 10)
	if len(deduped) != 3 {
		t.Fatalf("expected 3 results after dedup, got %d", len(deduped))
	}
	if deduped[0].DocID != "obs_1_narrative" {
		t.Fatalf("best-scoring doc per owner should win, got %s", deduped[0].DocID)
	}
}
