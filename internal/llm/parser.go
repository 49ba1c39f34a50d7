package llm

import (
	"strings"

	"github.com/iammorganparry/claude-mem/internal/models"
)

// The extractor is instructed to answer in XML, but model output is not
// trusted to be well-formed. Parsing is tolerant: unrecognized tags are
// skipped, missing fields default, and a response with no <observation>
// element contributes zero observations, which is a valid outcome rather
// than an error.

// ParseObservations extracts every observation from a model response.
func ParseObservations(response string) []models.ParsedObservation {
	blocks := extractBlocks(response, "observation")
	observations := make([]models.ParsedObservation, 0, len(blocks))
	for _, block := range blocks {
		observations = append(observations, parseObservationBlock(block))
	}
	return observations
}

func parseObservationBlock(block string) models.ParsedObservation {
	obs := models.ParsedObservation{
		Type:  models.ObservationType(strings.TrimSpace(extractTag(block, "type"))),
		Title: strings.TrimSpace(extractTag(block, "title")),
	}
	if !obs.Type.IsValid() {
		obs.Type = models.ObservationDiscovery
	}
	if obs.Title == "" {
		obs.Title = "Untitled"
	}
	if len(obs.Title) > 80 {
		obs.Title = obs.Title[:80]
	}

	obs.Subtitle = strings.TrimSpace(extractTag(block, "subtitle"))
	obs.Narrative = strings.TrimSpace(extractTag(block, "narrative"))
	obs.Text = strings.TrimSpace(extractTag(block, "text"))
	obs.Facts = extractAllTags(block, "fact")
	obs.Concepts = extractAllTags(block, "concept")
	obs.FilesRead = extractAllTags(block, "file_read")
	obs.FilesModified = extractAllTags(block, "file_modified")
	return obs
}

// ParseSummary extracts the single session summary from a model response.
// Returns nil when no <summary> element is present.
func ParseSummary(response string) *models.ParsedSummary {
	blocks := extractBlocks(response, "summary")
	if len(blocks) == 0 {
		return nil
	}
	block := blocks[0]
	return &models.ParsedSummary{
		Request:      strings.TrimSpace(extractTag(block, "request")),
		Investigated: strings.TrimSpace(extractTag(block, "investigated")),
		Learned:      strings.TrimSpace(extractTag(block, "learned")),
		Completed:    strings.TrimSpace(extractTag(block, "completed")),
		NextSteps:    strings.TrimSpace(extractTag(block, "next_steps")),
		Notes:        strings.TrimSpace(extractTag(block, "notes")),
	}
}

// extractBlocks returns the inner content of every <tag>...</tag> pair,
// ignoring anything outside them.
func extractBlocks(s, tag string) []string {
	openTag := "<" + tag + ">"
	closeTag := "</" + tag + ">"

	var blocks []string
	for {
		start := strings.Index(s, openTag)
		if start < 0 {
			break
		}
		rest := s[start+len(openTag):]
		end := strings.Index(rest, closeTag)
		if end < 0 {
			break
		}
		blocks = append(blocks, rest[:end])
		s = rest[end+len(closeTag):]
	}
	return blocks
}

// extractTag returns the inner content of the first <tag>...</tag> pair, or
// empty when absent or unterminated.
func extractTag(s, tag string) string {
	blocks := extractBlocks(s, tag)
	if len(blocks) == 0 {
		return ""
	}
	return blocks[0]
}

// extractAllTags returns the trimmed, non-empty contents of every
// <tag>...</tag> pair in order.
func extractAllTags(s, tag string) []string {
	var values []string
	for _, block := range extractBlocks(s, tag) {
		if v := strings.TrimSpace(block); v != "" {
			values = append(values, v)
		}
	}
	return values
}
