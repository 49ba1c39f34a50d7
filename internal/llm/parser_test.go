package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/claude-mem/internal/models"
)

func TestParseObservations(t *testing.T) {
	t.Run("full observation", func(t *testing.T) {
		response := `Here is what I captured:
<observation>
  <type>bugfix</type>
  <title>Guarded watcher init</title>
  <subtitle>double-init race</subtitle>
  <narrative>The watcher could initialize twice; a sync.Once now guards it.</narrative>
  <fact>init path was unguarded</fact>
  <fact>fix uses sync.Once</fact>
  <concept>concurrency</concept>
  <file_read>internal/watch/watcher.go</file_read>
  <file_modified>internal/watch/watcher.go</file_modified>
</observation>`

		parsed := ParseObservations(response)
		require.Len(t, parsed, 1)
		obs := parsed[0]
		assert.Equal(t, models.ObservationBugfix, obs.Type)
		assert.Equal(t, "Guarded watcher init", obs.Title)
		assert.Equal(t, "double-init race", obs.Subtitle)
		assert.Len(t, obs.Facts, 2)
		assert.Equal(t, []string{"concurrency"}, obs.Concepts)
		assert.Equal(t, []string{"internal/watch/watcher.go"}, obs.FilesRead)
		assert.Equal(t, []string{"internal/watch/watcher.go"}, obs.FilesModified)
	})

	t.Run("multiple observations", func(t *testing.T) {
		response := `<observation><title>First</title></observation>
junk between
<observation><title>Second</title></observation>`
		parsed := ParseObservations(response)
		require.Len(t, parsed, 2)
		assert.Equal(t, "First", parsed[0].Title)
		assert.Equal(t, "Second", parsed[1].Title)
	})

	t.Run("missing fields default", func(t *testing.T) {
		parsed := ParseObservations(`<observation><type>bogus</type></observation>`)
		require.Len(t, parsed, 1)
		assert.Equal(t, models.ObservationDiscovery, parsed[0].Type)
		assert.Equal(t, "Untitled", parsed[0].Title)
		assert.Empty(t, parsed[0].Facts)
	})

	t.Run("no observation element is a valid zero outcome", func(t *testing.T) {
		assert.Empty(t, ParseObservations("Nothing notable happened."))
	})

	t.Run("unterminated block is skipped", func(t *testing.T) {
		assert.Empty(t, ParseObservations(`<observation><title>cut off`))
	})

	t.Run("overlong title is clamped", func(t *testing.T) {
		long := make([]byte, 120)
		for i := range long {
			long[i] = 'a'
		}
		parsed := ParseObservations(`<observation><title>` + string(long) + `</title></observation>`)
		require.Len(t, parsed, 1)
		assert.Len(t, parsed[0].Title, 80)
	})
}

func TestParseSummary(t *testing.T) {
	t.Run("complete summary", func(t *testing.T) {
		response := `<summary>
  <request>Fix the race</request>
  <investigated>Watcher init paths</investigated>
  <learned>Init was unguarded</learned>
  <completed>Added sync.Once</completed>
  <next_steps>Backport to v1</next_steps>
  <notes>Flake rate dropped</notes>
</summary>`
		sum := ParseSummary(response)
		require.NotNil(t, sum)
		assert.Equal(t, "Fix the race", sum.Request)
		assert.Equal(t, "Added sync.Once", sum.Completed)
		assert.Equal(t, "Backport to v1", sum.NextSteps)
	})

	t.Run("no summary element", func(t *testing.T) {
		assert.Nil(t, ParseSummary("all done"))
	})
}
