package vectorstore

import (
	"fmt"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// Document is one indexable text fragment derived from an observation,
// summary, or user prompt. The composed id uniquely identifies it;
// re-syncing the owning row is an upsert by id.
type Document struct {
	ID              string
	SQLiteID        int64
	DocType         string
	Content         string
	MemorySessionID string
	Project         string
	CreatedAtEpoch  int64
	Metadata        map[string]any
}

// GranulateObservation splits an observation into one document per
// non-empty field among {narrative, text} plus one per fact.
func GranulateObservation(obs *models.Observation) []Document {
	base := func(field, content string) Document {
		return Document{
			ID:              fmt.Sprintf("obs_%d_%s", obs.ID, field),
			SQLiteID:        obs.ID,
			DocType:         DocTypeObservation,
			Content:         content,
			MemorySessionID: obs.MemorySessionID,
			Project:         obs.Project,
			CreatedAtEpoch:  obs.CreatedAtEpoch,
			Metadata: map[string]any{
				"type":          string(obs.Type),
				"title":         obs.Title,
				"prompt_number": obs.PromptNumber,
			},
		}
	}

	var docs []Document
	if obs.Narrative != "" {
		docs = append(docs, base("narrative", obs.Narrative))
	}
	if obs.Text != "" {
		docs = append(docs, base("text", obs.Text))
	}
	for i, fact := range obs.Facts {
		if fact == "" {
			continue
		}
		docs = append(docs, base(fmt.Sprintf("fact_%d", i), fact))
	}
	return docs
}

// GranulateSummary splits a summary into one document per non-empty field
// among the six free-form fields.
func GranulateSummary(sum *models.Summary) []Document {
	fields := []struct {
		name    string
		content string
	}{
		{"request", sum.Request},
		{"investigated", sum.Investigated},
		{"learned", sum.Learned},
		{"completed", sum.Completed},
		{"next_steps", sum.NextSteps},
		{"notes", sum.Notes},
	}

	var docs []Document
	for _, f := range fields {
		if f.content == "" {
			continue
		}
		docs = append(docs, Document{
			ID:              fmt.Sprintf("summary_%d_%s", sum.ID, f.name),
			SQLiteID:        sum.ID,
			DocType:         DocTypeSummary,
			Content:         f.content,
			MemorySessionID: sum.MemorySessionID,
			Project:         sum.Project,
			CreatedAtEpoch:  sum.CreatedAtEpoch,
			Metadata:        map[string]any{"field": f.name},
		})
	}
	return docs
}

// GranulateUserPrompt produces the single document for a user prompt.
func GranulateUserPrompt(prompt *models.UserPrompt) []Document {
	if prompt.PromptText == "" {
		return nil
	}
	return []Document{{
		ID:             fmt.Sprintf("prompt_%d_text", prompt.ID),
		SQLiteID:       prompt.ID,
		DocType:        DocTypeUserPrompt,
		Content:        prompt.PromptText,
		Project:        "",
		CreatedAtEpoch: prompt.CreatedAtEpoch,
		Metadata: map[string]any{
			"content_session_id": prompt.ContentSessionID,
			"prompt_number":      prompt.PromptNumber,
		},
	}}
}
