// Package config loads the engine configuration from a JSON5 file with
// environment-variable overrides for secrets and paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// Config is the full engine configuration.
type Config struct {
	DatabasePath string `json:"databasePath"`
	MemoryFile   string `json:"memoryFile"`
	LogLevel     string `json:"logLevel"` // debug, info, warn, error

	Embedding EmbeddingConfig `json:"embedding"`
	Search    SearchConfig    `json:"search"`
	Chunking  ChunkingConfig  `json:"chunking"`
	Indexing  IndexingConfig  `json:"indexing"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	APIKey            string `json:"apiKey"`
	Model             string `json:"model"`
	BaseURL           string `json:"baseUrl"`
	Dimensions        int    `json:"dimensions"`
	RequestsPerMinute int    `json:"requestsPerMinute"`
}

// SearchConfig configures hybrid search scoring.
type SearchConfig struct {
	VectorWeight float64 `json:"vectorWeight"`
	TextWeight   float64 `json:"textWeight"`
	MinScore     float64 `json:"minScore"`
	MaxResults   int     `json:"maxResults"`
}

// ChunkingConfig configures text chunking, in estimated tokens.
type ChunkingConfig struct {
	MaxTokens     int `json:"maxTokens"`
	OverlapTokens int `json:"overlapTokens"`
}

// IndexingConfig configures the background indexing queue.
type IndexingConfig struct {
	DebounceMs int `json:"debounceMs"`
}

// Default returns the documented defaults. Paths resolve under the user's
// home directory.
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".recall")

	return &Config{
		DatabasePath: filepath.Join(base, "recall.db"),
		MemoryFile:   filepath.Join(base, "memory.md"),
		LogLevel:     "info",
		Embedding: EmbeddingConfig{
			Model:             "text-embedding-3-large",
			Dimensions:        3072,
			RequestsPerMinute: 0,
		},
		Search: SearchConfig{
			VectorWeight: 0.7,
			TextWeight:   0.3,
			MinScore:     0.3,
			MaxResults:   10,
		},
		Chunking: ChunkingConfig{
			MaxTokens:     400,
			OverlapTokens: 80,
		},
		Indexing: IndexingConfig{
			DebounceMs: 1000,
		},
	}
}

// Load reads a JSON5 config file, layered over the defaults and under the
// environment overrides. A missing file is not an error: defaults plus
// environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json5.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables. The API key deliberately has no
// config-file-only mode: the env var always wins when set.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("RECALL_DB"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("RECALL_MEMORY_FILE"); v != "" {
		cfg.MemoryFile = v
	}
}

// Validate rejects configurations the engine cannot run with. A missing API
// key is valid: the engine degrades to keyword-only search.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("databasePath is required")
	}
	if c.Search.VectorWeight < 0 || c.Search.TextWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.VectorWeight == 0 && c.Search.TextWeight == 0 {
		return fmt.Errorf("at least one search weight must be positive")
	}
	if c.Chunking.OverlapTokens >= c.Chunking.MaxTokens && c.Chunking.MaxTokens > 0 {
		return fmt.Errorf("chunking overlap (%d) must be smaller than max tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.MaxTokens)
	}
	return nil
}
