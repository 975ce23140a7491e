package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// InsertChunk writes a chunk row and, when the keyword index is available,
// its FTS entry, in one transaction. The embedding must match the store's
// fixed dimensionality (or be absent).
func (s *Store) InsertChunk(ctx context.Context, c store.Chunk) error {
	if c.Embedding != nil && len(c.Embedding) != s.dims {
		return fmt.Errorf("insert chunk %s: embedding has %d dims, store fixed at %d",
			c.ID, len(c.Embedding), s.dims)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var embedding any
	if c.Embedding != nil {
		embedding = encodeVector(c.Embedding)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO chunks
		(id, transcript_id, source, path, content, hash, start_line, end_line, embedding, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, nullStr(c.TranscriptID), string(c.Source), nullStr(c.Path),
		c.Content, c.Hash, c.StartLine, c.EndLine, embedding, c.Model, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}

	if s.status.FTSAvailable {
		// Keyword index failures are non-fatal: the chunk row is still
		// reachable via vector search and the LIKE fallback.
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks_fts (content, id, source, path)
			VALUES (?, ?, ?, ?)`,
			c.Content, c.ID, string(c.Source), c.Path); err != nil {
			return fmt.Errorf("insert fts entry: %w", err)
		}
	}

	return tx.Commit()
}

// HasChunkWithHash reports whether any chunk exists for (path, hash, source).
// Used for change detection: a matching row means the document content is
// unchanged and re-indexing can be skipped.
func (s *Store) HasChunkWithHash(ctx context.Context, path, hash string, source store.Source) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chunks WHERE path = ? AND hash = ? AND source = ? LIMIT 1`,
		path, hash, string(source)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteChunksByPath removes all chunks (and keyword-index entries) for a
// path+source pair.
func (s *Store) DeleteChunksByPath(ctx context.Context, path string, source store.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if s.status.FTSAvailable {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunks_fts WHERE path = ? AND source = ?`,
			path, string(source)); err != nil {
			return fmt.Errorf("delete fts entries: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE path = ? AND source = ?`,
		path, string(source)); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	return tx.Commit()
}

// ChunksByPath returns all chunks for a path+source in line order.
func (s *Store) ChunksByPath(ctx context.Context, path string, source store.Source) ([]store.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, transcript_id, source, path, content, hash,
		start_line, end_line, model, created_at
		FROM chunks WHERE path = ? AND source = ? ORDER BY start_line`,
		path, string(source))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ChunksByTranscript returns all chunks derived from one transcript.
func (s *Store) ChunksByTranscript(ctx context.Context, transcriptID string) ([]store.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, transcript_id, source, path, content, hash,
		start_line, end_line, model, created_at
		FROM chunks WHERE transcript_id = ? ORDER BY start_line`, transcriptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ChunkCount returns the number of stored chunks.
func (s *Store) ChunkCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// DocumentHash returns the whole-document hash recorded at last indexing.
// Used for change detection on multi-chunk documents, where no single chunk
// hash equals the document hash.
func (s *Store) DocumentHash(ctx context.Context, path string, source store.Source) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM documents WHERE path = ? AND source = ?`,
		path, string(source)).Scan(&hash)
	if err != nil {
		return "", false
	}
	return hash, true
}

// SetDocumentHash records the whole-document hash after (re)indexing.
func (s *Store) SetDocumentHash(ctx context.Context, path string, source store.Source, hash string, indexedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (path, source, hash, indexed_at) VALUES (?, ?, ?, ?)`,
		path, string(source), hash, indexedAt)
	return err
}

// CachedEmbedding looks up a previously computed embedding by content hash.
func (s *Store) CachedEmbedding(ctx context.Context, hash, model string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM embedding_cache WHERE hash = ? AND model = ?`,
		hash, model).Scan(&blob)
	if err != nil || len(blob) == 0 {
		return nil, false
	}
	return decodeVector(blob), true
}

// CacheEmbedding stores an embedding keyed by content hash.
func (s *Store) CacheEmbedding(ctx context.Context, hash, model string, embedding []float32, createdAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embedding_cache (hash, embedding, model, created_at) VALUES (?, ?, ?, ?)`,
		hash, encodeVector(embedding), model, createdAt)
	return err
}

func scanChunks(rows *sql.Rows) ([]store.Chunk, error) {
	var chunks []store.Chunk
	for rows.Next() {
		var c store.Chunk
		var transcriptID, path, model sql.NullString
		if err := rows.Scan(&c.ID, &transcriptID, &c.Source, &path, &c.Content, &c.Hash,
			&c.StartLine, &c.EndLine, &model, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.TranscriptID = transcriptID.String
		c.Path = path.String
		c.Model = model.String
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// nullStr maps "" to NULL for nullable text columns.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
