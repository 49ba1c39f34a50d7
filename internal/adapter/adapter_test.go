package adapter

import (
	"encoding/base64"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/claude-mem/internal/embedding"
	"github.com/iammorganparry/claude-mem/internal/models"
)

func testConfig() *Config {
	return &Config{
		ID:   "foreign",
		Name: "foreign system",
		Fields: FieldMap{
			ID:        "uid",
			Title:     "heading",
			Subtitle:  "sub",
			Narrative: "body",
			Facts:     "details",
			Type:      "kind",
			Project:   "meta.project",
			Timestamp: "meta.timestamps.created",
			Embedding: "vector",
		},
	}
}

func TestTransformRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Transforms.Timestamp = TimestampEpochMs

	record := `{
		"uid": "ext-7",
		"heading": "Found cache bug",
		"sub": "stale reads",
		"body": "The cache returned stale entries after eviction.",
		"kind": "bugfix",
		"details": ["eviction skipped index update", "fixed in cache.go"],
		"meta": {"project": "acme", "timestamps": {"created": 1700000000123}},
		"vector": [0.1, 0.2, 0.3]
	}`

	out, err := cfg.Transform(record)
	require.NoError(t, err)
	assert.Equal(t, "ext-7", out.ExternalID)
	assert.Equal(t, models.ObservationBugfix, out.Parsed.Type)
	assert.Equal(t, "Found cache bug", out.Parsed.Title)
	assert.Equal(t, "stale reads", out.Parsed.Subtitle)
	assert.Equal(t, "acme", out.Project)
	assert.Equal(t, int64(1700000000123), out.Timestamp)
	assert.Equal(t, []string{"eviction skipped index update", "fixed in cache.go"}, out.Parsed.Facts)
	require.Len(t, out.Embedding, 3)
	assert.InDelta(t, 0.2, out.Embedding[1], 1e-6)
}

func TestTransformDefaults(t *testing.T) {
	cfg := testConfig()
	before := time.Now().UnixMilli()

	out, err := cfg.Transform(`{"uid": "ext-1"}`)
	require.NoError(t, err)
	assert.Equal(t, models.ObservationDiscovery, out.Parsed.Type)
	assert.Equal(t, "Untitled", out.Parsed.Title)
	assert.Equal(t, "unknown", out.Project)
	assert.GreaterOrEqual(t, out.Timestamp, before)
}

func TestTransformTimestampFormats(t *testing.T) {
	t.Run("epoch seconds", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fields.Timestamp = "created"
		cfg.Transforms.Timestamp = TimestampEpochS
		out, err := cfg.Transform(`{"created": 1700000000}`)
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000000), out.Timestamp)
	})

	t.Run("iso8601", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fields.Timestamp = "created"
		cfg.Transforms.Timestamp = TimestampISO8601
		out, err := cfg.Transform(`{"created": "2023-11-14T22:13:20Z"}`)
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000000), out.Timestamp)
	})

	t.Run("invalid iso8601 errors", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fields.Timestamp = "created"
		cfg.Transforms.Timestamp = TimestampISO8601
		_, err := cfg.Transform(`{"created": "yesterday"}`)
		assert.Error(t, err)
	})
}

func TestTransformEmbeddingFormats(t *testing.T) {
	vec := []float32{1.5, -2.25, 3.125}

	t.Run("base64 little-endian float32", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fields.Embedding = "emb"
		cfg.Transforms.Embedding = EmbeddingBase64
		encoded := base64.StdEncoding.EncodeToString(embedding.EncodeBlob(vec))

		out, err := cfg.Transform(`{"emb": "` + encoded + `"}`)
		require.NoError(t, err)
		require.Len(t, out.Embedding, 3)
		for i := range vec {
			assert.True(t, math.Abs(float64(out.Embedding[i]-vec[i])) < 1e-4)
		}
	})

	t.Run("json_array string", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fields.Embedding = "emb"
		cfg.Transforms.Embedding = EmbeddingJSONArray
		out, err := cfg.Transform(`{"emb": "[1.5, -2.25, 3.125]"}`)
		require.NoError(t, err)
		require.Len(t, out.Embedding, 3)
	})
}

func TestTransformFactsFormats(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fields.Facts = "details"
		cfg.Transforms.Facts = FactsCSV
		out, err := cfg.Transform(`{"details": "one, two , three"}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two", "three"}, out.Parsed.Facts)
	})

	t.Run("json string", func(t *testing.T) {
		cfg := testConfig()
		cfg.Fields.Facts = "details"
		cfg.Transforms.Facts = FactsJSON
		out, err := cfg.Transform(`{"details": "[\"a\",\"b\"]"}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, out.Parsed.Facts)
	})
}

func TestTransformRejectsInvalidJSON(t *testing.T) {
	cfg := testConfig()
	_, err := cfg.Transform(`not json`)
	assert.Error(t, err)
}
