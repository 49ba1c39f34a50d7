// Package adapter normalizes externally-shaped observation records into the
// internal shape via a declarative field mapping, and drives the migration
// pipeline that imports them through the store.
package adapter

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/iammorganparry/claude-mem/internal/embedding"
	"github.com/iammorganparry/claude-mem/internal/models"
)

// Timestamp formats accepted from foreign records.
const (
	TimestampEpochMs = "epoch_ms"
	TimestampEpochS  = "epoch_s"
	TimestampISO8601 = "iso8601"
)

// Embedding encodings accepted from foreign records.
const (
	EmbeddingArray     = "array"
	EmbeddingJSONArray = "json_array"
	EmbeddingBase64    = "base64"
	EmbeddingBinary    = "binary"
)

// Facts encodings accepted from foreign records.
const (
	FactsJSON  = "json"
	FactsCSV   = "csv"
	FactsArray = "array"
)

// FieldMap maps internal field names to foreign field paths. Paths support
// dot notation (metadata.timestamps.created).
type FieldMap struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Subtitle  string `json:"subtitle" yaml:"subtitle"`
	Narrative string `json:"narrative" yaml:"narrative"`
	Facts     string `json:"facts" yaml:"facts"`
	Type      string `json:"type" yaml:"type"`
	Project   string `json:"project" yaml:"project"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Embedding string `json:"embedding" yaml:"embedding"`
}

// Transforms selects the value-format translation per field.
type Transforms struct {
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Embedding string `json:"embedding" yaml:"embedding"`
	Facts     string `json:"facts" yaml:"facts"`
}

// Config is one adapter declaration.
type Config struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	URL        string     `json:"url" yaml:"url"`
	Fields     FieldMap   `json:"fields" yaml:"fields"`
	Transforms Transforms `json:"transforms" yaml:"transforms"`
}

// LoadConfig reads an adapter declaration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read adapter config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse adapter config: %w", err)
	}
	return &cfg, nil
}

// InternalObservation is the normalized result of transforming one foreign
// record.
type InternalObservation struct {
	ExternalID string
	Parsed     models.ParsedObservation
	Project    string
	Timestamp  int64 // epoch milliseconds
	Embedding  []float32
}

// Transform maps one foreign JSON record into the internal shape. Missing
// paths yield defaults: type=discovery, project=unknown, timestamp=now.
func (c *Config) Transform(record string) (*InternalObservation, error) {
	if !gjson.Valid(record) {
		return nil, fmt.Errorf("record is not valid JSON")
	}

	out := &InternalObservation{
		ExternalID: gjson.Get(record, c.Fields.ID).String(),
		Project:    "unknown",
		Timestamp:  time.Now().UnixMilli(),
	}

	out.Parsed.Type = models.ObservationDiscovery
	if c.Fields.Type != "" {
		if t := models.ObservationType(gjson.Get(record, c.Fields.Type).String()); t.IsValid() {
			out.Parsed.Type = t
		}
	}

	out.Parsed.Title = gjson.Get(record, c.Fields.Title).String()
	if out.Parsed.Title == "" {
		out.Parsed.Title = "Untitled"
	}
	out.Parsed.Subtitle = gjson.Get(record, c.Fields.Subtitle).String()
	out.Parsed.Narrative = gjson.Get(record, c.Fields.Narrative).String()

	if c.Fields.Project != "" {
		if p := gjson.Get(record, c.Fields.Project).String(); p != "" {
			out.Project = p
		}
	}

	if c.Fields.Timestamp != "" {
		if ts := gjson.Get(record, c.Fields.Timestamp); ts.Exists() {
			parsed, err := parseTimestamp(ts, c.Transforms.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", c.Fields.Timestamp, err)
			}
			out.Timestamp = parsed
		}
	}

	if c.Fields.Facts != "" {
		facts, err := parseFacts(gjson.Get(record, c.Fields.Facts), c.Transforms.Facts)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", c.Fields.Facts, err)
		}
		out.Parsed.Facts = facts
	}

	if c.Fields.Embedding != "" {
		if v := gjson.Get(record, c.Fields.Embedding); v.Exists() {
			vec, err := parseEmbedding(v, c.Transforms.Embedding)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", c.Fields.Embedding, err)
			}
			out.Embedding = vec
		}
	}
	return out, nil
}

func parseTimestamp(value gjson.Result, format string) (int64, error) {
	switch format {
	case TimestampEpochS:
		return value.Int() * 1000, nil
	case TimestampISO8601:
		t, err := time.Parse(time.RFC3339, value.String())
		if err != nil {
			return 0, fmt.Errorf("parse iso8601 timestamp %q: %w", value.String(), err)
		}
		return t.UnixMilli(), nil
	default: // epoch_ms
		return value.Int(), nil
	}
}

func parseFacts(value gjson.Result, format string) ([]string, error) {
	if !value.Exists() {
		return nil, nil
	}
	switch format {
	case FactsCSV:
		var facts []string
		for _, part := range strings.Split(value.String(), ",") {
			if p := strings.TrimSpace(part); p != "" {
				facts = append(facts, p)
			}
		}
		return facts, nil
	case FactsJSON:
		var facts []string
		if err := json.Unmarshal([]byte(value.String()), &facts); err != nil {
			return nil, fmt.Errorf("parse json facts: %w", err)
		}
		return facts, nil
	default: // array
		if !value.IsArray() {
			return nil, fmt.Errorf("facts value is not an array")
		}
		var facts []string
		value.ForEach(func(_, v gjson.Result) bool {
			facts = append(facts, v.String())
			return true
		})
		return facts, nil
	}
}

func parseEmbedding(value gjson.Result, format string) ([]float32, error) {
	switch format {
	case EmbeddingBase64, EmbeddingBinary:
		// Base64 embeddings decode as IEEE 754 little-endian float32.
		raw, err := base64.StdEncoding.DecodeString(value.String())
		if err != nil {
			return nil, fmt.Errorf("decode base64 embedding: %w", err)
		}
		return embedding.DecodeBlob(raw)
	case EmbeddingJSONArray:
		var vec []float32
		if err := json.Unmarshal([]byte(value.String()), &vec); err != nil {
			return nil, fmt.Errorf("parse json embedding: %w", err)
		}
		return vec, nil
	default: // array
		if !value.IsArray() {
			return nil, fmt.Errorf("embedding value is not an array")
		}
		var vec []float32
		value.ForEach(func(_, v gjson.Result) bool {
			vec = append(vec, float32(v.Float()))
			return true
		})
		return vec, nil
	}
}
