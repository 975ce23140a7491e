package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Search.VectorWeight != 0.7 || cfg.Search.TextWeight != 0.3 {
		t.Errorf("weights = %v/%v", cfg.Search.VectorWeight, cfg.Search.TextWeight)
	}
	if cfg.Chunking.MaxTokens != 400 || cfg.Chunking.OverlapTokens != 80 {
		t.Errorf("chunking = %d/%d", cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Embedding.Model != "text-embedding-3-large" {
		t.Errorf("model = %q", cfg.Embedding.Model)
	}
}

func TestLoadJSON5WithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	content := `{
		// comments and trailing commas are allowed
		databasePath: "/tmp/test.db",
		search: {
			vectorWeight: 0.6,
			textWeight: 0.4,
		},
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("databasePath = %q", cfg.DatabasePath)
	}
	if cfg.Search.VectorWeight != 0.6 {
		t.Errorf("vectorWeight = %v", cfg.Search.VectorWeight)
	}
	// Untouched fields keep their defaults.
	if cfg.Chunking.MaxTokens != 400 {
		t.Errorf("maxTokens = %d", cfg.Chunking.MaxTokens)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json5")
	content := `{ chunking: { maxTokens: 50, overlapTokens: 80 } }`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for overlap >= max")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("RECALL_DB", "/tmp/env.db")
	t.Setenv("RECALL_MEMORY_FILE", "/tmp/env-memory.md")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Embedding.APIKey)
	}
	if cfg.DatabasePath != "/tmp/env.db" {
		t.Errorf("db = %q", cfg.DatabasePath)
	}
	if cfg.MemoryFile != "/tmp/env-memory.md" {
		t.Errorf("memory file = %q", cfg.MemoryFile)
	}
}

func TestNormalizeSessionID(t *testing.T) {
	cases := map[string]string{
		"":                DefaultSessionID,
		"  ":              DefaultSessionID,
		"simple":          "simple",
		"My Session!":     "my-session",
		"--weird--input--": "weird--input",
		"UPPER_case-9":    "upper_case-9",
	}
	for in, want := range cases {
		if got := NormalizeSessionID(in); got != want {
			t.Errorf("NormalizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}

	long := NormalizeSessionID("name with spaces " + strings.Repeat("a", 100))
	if len(long) > 64 {
		t.Errorf("long id not truncated: %d chars", len(long))
	}
}
