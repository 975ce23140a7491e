package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/recall/internal/config"
	"github.com/nextlevelbuilder/recall/internal/embed"
	"github.com/nextlevelbuilder/recall/internal/memory"
	"github.com/nextlevelbuilder/recall/internal/store"
	"github.com/nextlevelbuilder/recall/internal/store/sqlite"
)

// loadConfig resolves the config from --config, the default location and
// environment overrides, then applies remaining CLI flags on top.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".recall", "config.json5")
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DatabasePath = flagDB
	}
	return cfg, nil
}

// openEngine builds the full pipeline: store, embedding client (absent
// without an API key, degrading to keyword-only) and engine.
func openEngine() (*memory.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := sqlite.Open(cfg.DatabasePath, sqlite.Options{VectorDims: cfg.Embedding.Dimensions})
	if err != nil {
		return nil, nil, err
	}

	var provider store.EmbeddingProvider
	model := cfg.Embedding.Model
	if cfg.Embedding.APIKey != "" {
		client, err := embed.New(embed.Config{
			APIKey:            cfg.Embedding.APIKey,
			Model:             cfg.Embedding.Model,
			BaseURL:           cfg.Embedding.BaseURL,
			RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
		})
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		provider = client
		model = client.Model()
	} else {
		slog.Warn("no embedding API key configured, running keyword-only")
	}

	var debounce time.Duration
	if cfg.Indexing.DebounceMs > 0 {
		debounce = time.Duration(cfg.Indexing.DebounceMs) * time.Millisecond
	}

	engine := memory.NewEngine(st, provider, model, memory.Config{
		MemoryPath:   cfg.MemoryFile,
		ChunkTokens:  cfg.Chunking.MaxTokens,
		ChunkOverlap: cfg.Chunking.OverlapTokens,
		VectorWeight: cfg.Search.VectorWeight,
		TextWeight:   cfg.Search.TextWeight,
		MinScore:     cfg.Search.MinScore,
		MaxResults:   cfg.Search.MaxResults,
		Debounce:     debounce,
	})
	return engine, cfg, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
