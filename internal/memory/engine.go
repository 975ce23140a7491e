package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/recall/internal/store"
	"github.com/nextlevelbuilder/recall/internal/store/sqlite"
)

const hotCacheSize = 512

// Config tunes the engine. Zero values select the documented defaults.
type Config struct {
	MemoryPath    string // working-memory markdown file
	ChunkTokens   int    // default 400
	ChunkOverlap  int    // default 80
	VectorWeight  float64
	TextWeight    float64
	MinScore      float64 // default 0.3
	MaxResults    int     // default 10
	Debounce      time.Duration
	WatchDebounce time.Duration
}

// Engine orchestrates the retrieval pipeline: it owns the store, the hybrid
// searcher and the indexing queue, and holds the embedding provider (which
// may be nil, leaving the engine in keyword-only mode).
type Engine struct {
	store    *sqlite.Store
	provider store.EmbeddingProvider
	model    string
	cfg      Config
	searcher *Searcher
	queue    *IndexQueue
	hot      *lru.Cache[string, []float32]
}

// NewEngine wires an engine around an opened store. provider may be nil;
// model names the embedding model for cache keying and chunk attribution
// (ignored when provider is nil).
func NewEngine(st *sqlite.Store, provider store.EmbeddingProvider, model string, cfg Config) *Engine {
	if cfg.ChunkTokens <= 0 {
		cfg.ChunkTokens = 400
	}
	if cfg.ChunkTokens > 0 && cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 80
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.3
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}

	hot, _ := lru.New[string, []float32](hotCacheSize)

	e := &Engine{
		store:    st,
		provider: provider,
		model:    model,
		cfg:      cfg,
		searcher: NewSearcher(st, cfg.VectorWeight, cfg.TextWeight),
		hot:      hot,
	}
	e.queue = NewIndexQueue(cfg.Debounce, e.indexTranscript)
	return e
}

// StoreMessageParams carries one conversation entry into the engine.
type StoreMessageParams struct {
	SessionID  string
	Channel    string
	Role       store.Role
	Type       store.TranscriptType
	Content    string
	TaskID     *int64
	TaskStatus string
	Metadata   map[string]any
}

// StoreMessage appends a transcript entry and schedules it for background
// indexing. Task bookkeeping entries are persisted but never indexed; they
// are operational noise in search results.
func (e *Engine) StoreMessage(ctx context.Context, p StoreMessageParams) (string, error) {
	if strings.TrimSpace(p.Content) == "" {
		return "", fmt.Errorf("store message: empty content")
	}
	if p.Type == "" {
		p.Type = store.TypeMessage
	}
	if p.Role == "" {
		p.Role = store.RoleUser
	}

	t := store.Transcript{
		ID:         NewID(),
		SessionID:  p.SessionID,
		Channel:    p.Channel,
		Role:       p.Role,
		Type:       p.Type,
		Content:    p.Content,
		TaskID:     p.TaskID,
		TaskStatus: p.TaskStatus,
		Metadata:   p.Metadata,
		CreatedAt:  time.Now().UnixMilli(),
	}
	if err := e.store.InsertTranscript(ctx, t); err != nil {
		return "", err
	}

	if p.Type != store.TypeTask {
		e.queue.Schedule(t.ID)
	}
	return t.ID, nil
}

// Search embeds the query (when a provider is configured and vectors are
// usable) and runs hybrid retrieval. An embedding failure degrades the search
// to keyword-only instead of failing it.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = e.cfg.MaxResults
	}
	if opts.MinScore <= 0 {
		opts.MinScore = e.cfg.MinScore
	}

	var queryEmbedding []float32
	if e.provider != nil && e.store.Status().VectorAvailable {
		vec, err := e.provider.EmbedQuery(ctx, query)
		if err != nil {
			slog.Warn("query embedding failed, keyword-only search", "error", err)
		} else {
			queryEmbedding = vec
		}
	}

	return e.searcher.Search(ctx, query, queryEmbedding, opts)
}

// Timeframe restricts transcript search to a recency window.
type Timeframe string

const (
	TimeframeToday Timeframe = "today"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeAll   Timeframe = "all"
)

// TranscriptSearchOptions selects transcript entries directly, without
// touching the chunk index.
type TranscriptSearchOptions struct {
	Query     string
	Timeframe Timeframe
	Roles     []store.Role
	Channels  []string
	Limit     int
}

// TranscriptResult is a transcript entry with a display snippet.
type TranscriptResult struct {
	store.Transcript
	Snippet string `json:"snippet"`
}

// SearchTranscripts scans the raw conversation log, newest first.
func (e *Engine) SearchTranscripts(ctx context.Context, opts TranscriptSearchOptions) ([]TranscriptResult, error) {
	filter := store.TranscriptFilter{
		Query:    opts.Query,
		Since:    timeframeStart(opts.Timeframe, time.Now()),
		Roles:    opts.Roles,
		Channels: opts.Channels,
		Limit:    opts.Limit,
	}

	rows, err := e.store.SearchTranscripts(ctx, filter)
	if err != nil {
		return nil, err
	}

	results := make([]TranscriptResult, 0, len(rows))
	for _, t := range rows {
		results = append(results, TranscriptResult{
			Transcript: t,
			Snippet:    Snippet(t.Content, 150),
		})
	}
	return results, nil
}

// timeframeStart maps a timeframe to a unix-ms lower bound; zero means
// unbounded. "today" is midnight local time, not a rolling 24 hours.
func timeframeStart(tf Timeframe, now time.Time) int64 {
	switch tf {
	case TimeframeToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).UnixMilli()
	case TimeframeWeek:
		return now.AddDate(0, 0, -7).UnixMilli()
	case TimeframeMonth:
		return now.AddDate(0, -1, 0).UnixMilli()
	default:
		return 0
	}
}

// Sync re-indexes the working-memory file if its content changed since the
// last sync. A missing file clears nothing and is not an error.
func (e *Engine) Sync(ctx context.Context) error {
	if e.cfg.MemoryPath == "" {
		return nil
	}
	content, err := e.readWorkingMemory()
	if err != nil {
		return fmt.Errorf("read working memory: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return e.indexDocument(ctx, e.cfg.MemoryPath, content)
}

// indexDocument chunks, embeds and stores one document, replacing any prior
// chunks for the path. Unchanged content (same whole-document hash as the
// last indexing) is skipped entirely.
func (e *Engine) indexDocument(ctx context.Context, path string, content string) error {
	docHash := ContentHash(content)

	if stored, ok := e.store.DocumentHash(ctx, path, store.SourceDocument); ok && stored == docHash {
		return nil
	}
	// Single-chunk documents carry the document hash on the chunk row itself;
	// honor that marker for databases predating the documents table.
	if ok, err := e.store.HasChunkWithHash(ctx, path, docHash, store.SourceDocument); err == nil && ok {
		return e.store.SetDocumentHash(ctx, path, store.SourceDocument, docHash, time.Now().UnixMilli())
	}

	chunks := ChunkText(content, ChunkOptions{
		MaxTokens:     e.cfg.ChunkTokens,
		OverlapTokens: e.cfg.ChunkOverlap,
	})

	if err := e.store.DeleteChunksByPath(ctx, path, store.SourceDocument); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}

	embeddings := e.embedChunks(ctx, chunks)
	now := time.Now().UnixMilli()

	for i, chunk := range chunks {
		c := store.Chunk{
			ID:        NewID(),
			Source:    store.SourceDocument,
			Path:      path,
			Content:   chunk.Content,
			Hash:      chunk.Hash,
			StartLine: chunk.StartLine,
			EndLine:   chunk.EndLine,
			CreatedAt: now,
		}
		if embeddings != nil && len(embeddings[i]) > 0 {
			c.Embedding = embeddings[i]
			c.Model = e.model
		}
		if err := e.store.InsertChunk(ctx, c); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := e.store.SetDocumentHash(ctx, path, store.SourceDocument, docHash, now); err != nil {
		return err
	}

	slog.Info("document indexed", "path", path, "chunks", len(chunks))
	return nil
}

// indexTranscript is the queue's processing function: chunk one transcript
// entry and insert its index rows.
func (e *Engine) indexTranscript(ctx context.Context, id string) error {
	t, err := e.store.GetTranscript(ctx, id)
	if err != nil {
		return fmt.Errorf("load transcript %s: %w", id, err)
	}

	chunks := ChunkText(t.Content, ChunkOptions{
		MaxTokens:     e.cfg.ChunkTokens,
		OverlapTokens: e.cfg.ChunkOverlap,
	})
	if len(chunks) == 0 {
		return nil
	}

	embeddings := e.embedChunks(ctx, chunks)

	for i, chunk := range chunks {
		c := store.Chunk{
			ID:           NewID(),
			TranscriptID: t.ID,
			Source:       store.SourceTranscript,
			Content:      chunk.Content,
			Hash:         chunk.Hash,
			StartLine:    chunk.StartLine,
			EndLine:      chunk.EndLine,
			CreatedAt:    time.Now().UnixMilli(),
		}
		if embeddings != nil && len(embeddings[i]) > 0 {
			c.Embedding = embeddings[i]
			c.Model = e.model
		}
		if err := e.store.InsertChunk(ctx, c); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}

// embedChunks returns one vector per chunk, consulting the in-process LRU and
// the persistent cache before calling the provider. Embedding failures return
// nil: chunks are stored without vectors and remain keyword-searchable.
func (e *Engine) embedChunks(ctx context.Context, chunks []TextChunk) [][]float32 {
	if e.provider == nil || !e.store.Status().VectorAvailable || len(chunks) == 0 {
		return nil
	}

	vectors := make([][]float32, len(chunks))
	var missTexts []string
	var missIdx []int

	for i, chunk := range chunks {
		if vec, ok := e.hot.Get(chunk.Hash); ok {
			vectors[i] = vec
			continue
		}
		if vec, ok := e.store.CachedEmbedding(ctx, chunk.Hash, e.model); ok {
			e.hot.Add(chunk.Hash, vec)
			vectors[i] = vec
			continue
		}
		missTexts = append(missTexts, chunk.Content)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		fresh, err := e.provider.EmbedBatch(ctx, missTexts)
		if err != nil {
			slog.Warn("chunk embedding failed, storing without vectors", "error", err)
			return nil
		}
		now := time.Now().UnixMilli()
		for j, i := range missIdx {
			vectors[i] = fresh[j]
			if len(fresh[j]) > 0 {
				hash := chunks[i].Hash
				e.hot.Add(hash, fresh[j])
				if err := e.store.CacheEmbedding(ctx, hash, e.model, fresh[j], now); err != nil {
					slog.Warn("embedding cache write failed", "error", err)
				}
			}
		}
	}
	return vectors
}

// Flush synchronously processes everything pending in the indexing queue.
func (e *Engine) Flush(ctx context.Context) {
	e.queue.Flush(ctx)
}

// Status reports the underlying store's capabilities.
func (e *Engine) Status() store.Status {
	return e.store.Status()
}

// Close drains the indexing queue, then releases the store.
func (e *Engine) Close(ctx context.Context) error {
	e.queue.Close(ctx)
	return e.store.Close()
}
