package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 37777 {
		t.Fatalf("default port = %d", cfg.Port)
	}
	if cfg.Provider != ProviderClaude {
		t.Fatalf("default provider = %s", cfg.Provider)
	}
	if cfg.VectorBackend != BackendSqliteVec {
		t.Fatalf("default backend = %s", cfg.VectorBackend)
	}
	if cfg.FederationDecay != "golden" {
		t.Fatalf("default decay = %s", cfg.FederationDecay)
	}
	if filepath.Base(cfg.DBPath) != "claude-mem.db" {
		t.Fatalf("db path = %s", cfg.DBPath)
	}
}

func TestLoadSettingsFile(t *testing.T) {
	dir := t.TempDir()
	settings := `{"port": 40000, "provider": "lmstudio", "vectorBackend": "none", "maxContextMessages": 10}`
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(settings), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 40000 || cfg.Provider != ProviderLMStudio || cfg.VectorBackend != BackendNone {
		t.Fatalf("settings not applied: %+v", cfg)
	}
	if cfg.MaxContextMessages != 10 {
		t.Fatalf("maxContextMessages = %d", cfg.MaxContextMessages)
	}
}

func TestEnvOverridesSettings(t *testing.T) {
	dir := t.TempDir()
	settings := `{"provider": "lmstudio"}`
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(settings), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	t.Setenv("CLAUDE_MEM_PROVIDER", "openrouter")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != ProviderOpenRouter {
		t.Fatalf("env override not applied: %s", cfg.Provider)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name     string
		settings string
	}{
		{"bad port", `{"port": -1}`},
		{"bad provider", `{"provider": "gpt5"}`},
		{"bad backend", `{"vectorBackend": "pinecone"}`},
		{"too many remotes", `{"federationMaxRemotes": 4}`},
		{"bad context cap", `{"maxContextMessages": 1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(tc.settings), 0o644); err != nil {
				t.Fatalf("write settings: %v", err)
			}
			if _, err := LoadFrom(dir); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBaseDirPrecedence(t *testing.T) {
	t.Setenv("CLAUDE_PLUGIN_ROOT", "/plugin/root")
	t.Setenv("CLAUDE_MEM_DIR", "/mem/dir")
	if got := BaseDir(); got != "/plugin/root" {
		t.Fatalf("plugin root should win, got %s", got)
	}

	t.Setenv("CLAUDE_PLUGIN_ROOT", "")
	if got := BaseDir(); got != "/mem/dir" {
		t.Fatalf("CLAUDE_MEM_DIR should win next, got %s", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg.Port = 41000
	if err := cfg.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Port != 41000 {
		t.Fatalf("saved port not reloaded: %d", reloaded.Port)
	}
}
