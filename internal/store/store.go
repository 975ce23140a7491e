// Package store defines the persisted row types and shared contracts for the
// retrieval engine: transcripts (the append-only conversation log), chunks
// (the derived, searchable index rows) and the embedding provider boundary.
// The SQLite implementation lives in store/sqlite; nothing outside that
// package issues raw writes or sees raw database rows.
package store

import "context"

// Source identifies where a chunk came from.
type Source string

const (
	// SourceTranscript marks chunks derived from a conversation transcript.
	SourceTranscript Source = "transcript"
	// SourceDocument marks chunks derived from a standalone document
	// (the working-memory file).
	SourceDocument Source = "document"
)

// Role is the author of a transcript entry.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
)

// TranscriptType classifies a transcript entry.
type TranscriptType string

const (
	TypeMessage    TranscriptType = "message"
	TypeThought    TranscriptType = "thought"
	TypeTask       TranscriptType = "task"
	TypeReflection TranscriptType = "reflection"
)

// Transcript is one entry in the append-only conversation log.
// Created once on ingestion, never mutated.
type Transcript struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Role       Role           `json:"role"`
	Type       TranscriptType `json:"type"`
	Content    string         `json:"content"`
	TaskID     *int64         `json:"task_id,omitempty"`
	TaskStatus string         `json:"task_status,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  int64          `json:"created_at"` // unix milliseconds
}

// Chunk is an indexed text fragment. TranscriptID is empty for
// document-sourced chunks; Path is empty for transcript-sourced chunks.
// Embedding is nil when no vector was computed.
type Chunk struct {
	ID           string    `json:"id"`
	TranscriptID string    `json:"transcript_id,omitempty"`
	Source       Source    `json:"source"`
	Path         string    `json:"path,omitempty"`
	Content      string    `json:"content"`
	Hash         string    `json:"hash"`
	StartLine    int       `json:"start_line"`
	EndLine      int       `json:"end_line"`
	Embedding    []float32 `json:"embedding,omitempty"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    int64     `json:"created_at"`
}

// Status reports what the underlying database supports. Capability absence
// is not an error: the searcher degrades instead of failing.
type Status struct {
	Initialized     bool     `json:"initialized"`
	SchemaVersion   int      `json:"schema_version"`
	FTSAvailable    bool     `json:"fts_available"`
	VectorAvailable bool     `json:"vector_available"`
	VectorDims      int      `json:"vector_dims,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

// Hit is a raw candidate row returned by one of the store's search
// primitives, before score normalization and fusion.
type Hit struct {
	ID        string
	Content   string
	Source    Source
	Path      string
	StartLine int
	EndLine   int
	CreatedAt int64
	Distance  float64 // vector search: cosine distance, smaller is closer
	Rank      float64 // keyword search: BM25 rank, lower is better
}

// TranscriptFilter selects transcript rows for a direct filtered scan
// (no embedding involved). Zero values mean "no constraint".
type TranscriptFilter struct {
	Query    string   // substring match on content
	Since    int64    // unix ms lower bound on created_at
	Roles    []Role   // any of
	Channels []string // any of
	Limit    int      // default 20
}

// EmbeddingProvider generates vector embeddings for text.
// EmbedBatch always returns a slice the same length as its input; entries for
// empty or whitespace-only texts are empty vectors.
type EmbeddingProvider interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
