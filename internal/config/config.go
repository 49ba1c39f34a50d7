package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Provider names accepted for the extractor LLM.
const (
	ProviderClaude     = "claude"
	ProviderLMStudio   = "lmstudio"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Vector backend names.
const (
	BackendChroma    = "chroma"
	BackendSqliteVec = "sqlite-vec"
	BackendNone      = "none"
)

// Config holds every recognized option from settings.json, with env
// overrides applied on top.
type Config struct {
	Port int `json:"port"`

	// Extractor provider
	Provider         string `json:"provider"`
	FallbackProvider string `json:"fallbackProvider,omitempty"`
	ClaudeBinary     string `json:"claudeBinary,omitempty"`
	LMStudioURL      string `json:"lmstudioUrl,omitempty"`
	OpenRouterURL    string `json:"openrouterUrl,omitempty"`
	GeminiURL        string `json:"geminiUrl,omitempty"`
	Model            string `json:"model,omitempty"`
	APIKey           string `json:"apiKey,omitempty"`

	// Vector backend
	VectorBackend   string `json:"vectorBackend"`
	EmbeddingURL    string `json:"embeddingUrl,omitempty"`
	EmbeddingModel  string `json:"embeddingModel,omitempty"`
	EmbeddingDim    int    `json:"embeddingDimensions,omitempty"`
	EmbeddingAPIKey string `json:"embeddingApiKey,omitempty"`
	ChromaCommand   string `json:"chromaCommand,omitempty"`
	VectorDBPath    string `json:"-"`
	ChromaDataDir   string `json:"-"`

	// Federation
	FederationMaxRemotes  int      `json:"federationMaxRemotes,omitempty"`
	FederationTimeoutSecs int      `json:"federationTimeoutSeconds,omitempty"`
	FederationBudgetSecs  int      `json:"federationBudgetSeconds,omitempty"`
	FederationDecay       string   `json:"federationDecay,omitempty"`
	FederationAllowList   []string `json:"federationAllowList,omitempty"`
	FederationReadOnly    bool     `json:"federationReadOnly"`

	// Replication / export
	SyncEnabled     bool   `json:"syncEnabled"`
	SyncRemoteName  string `json:"syncRemoteName,omitempty"`
	SyncRemoteURL   string `json:"syncRemoteUrl,omitempty"`
	SyncAutoPush    bool   `json:"syncAutoPush"`
	SyncIdleSeconds int    `json:"syncIdleSeconds,omitempty"`

	// Context truncation caps
	MaxContextMessages int `json:"maxContextMessages,omitempty"`
	MaxTokens          int `json:"maxTokens,omitempty"`

	LogLevel string `json:"logLevel,omitempty"`

	// Derived paths, never serialized.
	BaseDir      string `json:"-"`
	DBPath       string `json:"-"`
	ExportDir    string `json:"-"`
	LogDir       string `json:"-"`
	SettingsPath string `json:"-"`
}

// BaseDir resolves the state directory. CLAUDE_PLUGIN_ROOT wins, then
// CLAUDE_MEM_DIR, then the standalone directory under the user's home,
// then the marketplace install location. The first existing location wins;
// the standalone directory is the default when none exist yet.
func BaseDir() string {
	if root := os.Getenv("CLAUDE_PLUGIN_ROOT"); root != "" {
		return root
	}
	if dir := os.Getenv("CLAUDE_MEM_DIR"); dir != "" {
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude-mem"
	}

	standalone := filepath.Join(home, ".claude-mem")
	marketplace := filepath.Join(home, ".claude", "plugins", "marketplace", "claude-mem")
	for _, dir := range []string{standalone, marketplace} {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
	}
	return standalone
}

// Load reads settings.json from the base directory (if present), applies env
// overrides and defaults, and validates the result.
func Load() (*Config, error) {
	return LoadFrom(BaseDir())
}

// LoadFrom loads configuration rooted at an explicit base directory.
func LoadFrom(baseDir string) (*Config, error) {
	cfg := defaults(baseDir)

	data, err := os.ReadFile(cfg.SettingsPath)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse settings.json: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read settings.json: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func defaults(baseDir string) *Config {
	return &Config{
		Port:                  37777,
		Provider:              ProviderClaude,
		ClaudeBinary:          "claude",
		LMStudioURL:           "http://localhost:1234/v1",
		OpenRouterURL:         "https://openrouter.ai/api/v1",
		GeminiURL:             "https://generativelanguage.googleapis.com/v1beta/openai",
		VectorBackend:         BackendSqliteVec,
		EmbeddingURL:          "http://localhost:1234/v1",
		EmbeddingModel:        "text-embedding-nomic-embed-text-v1.5",
		EmbeddingDim:          768,
		ChromaCommand:         "chroma-mcp",
		FederationMaxRemotes:  3,
		FederationTimeoutSecs: 5,
		FederationBudgetSecs:  15,
		FederationDecay:       "golden",
		FederationReadOnly:    true,
		SyncRemoteName:        "origin",
		SyncAutoPush:          false,
		SyncIdleSeconds:       300,
		MaxContextMessages:    40,
		MaxTokens:             80000,
		LogLevel:              "info",
		BaseDir:               baseDir,
		DBPath:                filepath.Join(baseDir, "claude-mem.db"),
		VectorDBPath:          filepath.Join(baseDir, "vectors.db"),
		ChromaDataDir:         filepath.Join(baseDir, "vector-db"),
		ExportDir:             filepath.Join(baseDir, "export"),
		LogDir:                filepath.Join(baseDir, "logs"),
		SettingsPath:          filepath.Join(baseDir, "settings.json"),
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CLAUDE_MEM_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("CLAUDE_MEM_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("CLAUDE_MEM_VECTOR_BACKEND"); v != "" {
		cfg.VectorBackend = v
	}
	if v := os.Getenv("CLAUDE_MEM_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("CLAUDE_MEM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks the configuration for coherent values.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	switch c.Provider {
	case ProviderClaude, ProviderLMStudio, ProviderOpenRouter, ProviderGemini:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.FallbackProvider != "" {
		switch c.FallbackProvider {
		case ProviderClaude, ProviderLMStudio, ProviderOpenRouter, ProviderGemini:
		default:
			return fmt.Errorf("unknown fallback provider %q", c.FallbackProvider)
		}
	}
	switch c.VectorBackend {
	case BackendChroma, BackendSqliteVec, BackendNone:
	default:
		return fmt.Errorf("unknown vector backend %q", c.VectorBackend)
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.EmbeddingDim)
	}
	if c.FederationMaxRemotes > 3 {
		return fmt.Errorf("at most 3 federation remotes are supported, got %d", c.FederationMaxRemotes)
	}
	if c.MaxContextMessages < 2 {
		return fmt.Errorf("maxContextMessages must allow the system message plus one turn, got %d", c.MaxContextMessages)
	}
	return nil
}

// ProviderBaseURL returns the OpenAI-compatible base URL for a named
// provider, or empty for the claude provider (which is not HTTP-based).
func (c *Config) ProviderBaseURL(provider string) string {
	switch provider {
	case ProviderLMStudio:
		return c.LMStudioURL
	case ProviderOpenRouter:
		return c.OpenRouterURL
	case ProviderGemini:
		return c.GeminiURL
	}
	return ""
}

// Save writes the settings back to settings.json atomically.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.BaseDir, 0o755); err != nil {
		return fmt.Errorf("create base dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmp := c.SettingsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, c.SettingsPath); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
