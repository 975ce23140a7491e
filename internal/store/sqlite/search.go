package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// SearchVector returns the top-K chunks by ascending cosine distance to the
// query embedding, restricted to rows with a stored vector. Returns an error
// when vector search is unavailable; callers branch on Status first.
func (s *Store) SearchVector(ctx context.Context, embedding []float32, limit int, sources []store.Source) ([]store.Hit, error) {
	if !s.Status().VectorAvailable {
		return nil, fmt.Errorf("vector search unavailable")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filter, args := sourceFilter(sources, "source")
	query := fmt.Sprintf(`SELECT id, content, source, path, start_line, end_line, created_at,
		%s(embedding, ?) AS distance
		FROM chunks
		WHERE embedding IS NOT NULL%s
		ORDER BY distance ASC
		LIMIT ?`, distanceFunc, filter)

	all := append([]any{encodeVector(embedding)}, args...)
	all = append(all, limit)

	rows, err := s.db.QueryContext(ctx, query, all...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []store.Hit
	for rows.Next() {
		h, err := scanHit(rows, &scanExtra{distance: true})
		if err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchKeyword runs an FTS5 query built from the raw search text and returns
// hits ordered by ascending BM25 rank (lower is better). A query with no
// alphanumeric tokens yields no hits.
func (s *Store) SearchKeyword(ctx context.Context, query string, limit int, sources []store.Source) ([]store.Hit, error) {
	if !s.Status().FTSAvailable {
		return nil, fmt.Errorf("keyword search unavailable")
	}

	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filter, args := sourceFilter(sources, "c.source")
	q := fmt.Sprintf(`SELECT f.id, c.content, c.source, c.path, c.start_line, c.end_line, c.created_at,
		bm25(chunks_fts) AS rank
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.id
		WHERE chunks_fts MATCH ?%s
		ORDER BY rank
		LIMIT ?`, filter)

	all := append([]any{ftsQuery}, args...)
	all = append(all, limit)

	rows, err := s.db.QueryContext(ctx, q, all...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var hits []store.Hit
	for rows.Next() {
		h, err := scanHit(rows, &scanExtra{rank: true})
		if err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchLike is the degraded fallback when neither index is available:
// plain substring match ordered by recency.
func (s *Store) SearchLike(ctx context.Context, query string, limit int, sources []store.Source) ([]store.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter, args := sourceFilter(sources, "source")
	q := fmt.Sprintf(`SELECT id, content, source, path, start_line, end_line, created_at
		FROM chunks
		WHERE content LIKE ?%s
		ORDER BY created_at DESC
		LIMIT ?`, filter)

	all := append([]any{"%" + query + "%"}, args...)
	all = append(all, limit)

	rows, err := s.db.QueryContext(ctx, q, all...)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	defer rows.Close()

	var hits []store.Hit
	for rows.Next() {
		h, err := scanHit(rows, nil)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

type scanExtra struct {
	distance bool
	rank     bool
}

func scanHit(rows *sql.Rows, extra *scanExtra) (store.Hit, error) {
	var h store.Hit
	var path sql.NullString
	var startLine, endLine sql.NullInt64

	dest := []any{&h.ID, &h.Content, &h.Source, &path, &startLine, &endLine, &h.CreatedAt}
	switch {
	case extra != nil && extra.distance:
		dest = append(dest, &h.Distance)
	case extra != nil && extra.rank:
		dest = append(dest, &h.Rank)
	}

	if err := rows.Scan(dest...); err != nil {
		return store.Hit{}, err
	}
	h.Path = path.String
	h.StartLine = int(startLine.Int64)
	h.EndLine = int(endLine.Int64)
	return h, nil
}

// sourceFilter builds an optional parameterized "AND col IN (...)" clause.
func sourceFilter(sources []store.Source, col string) (string, []any) {
	if len(sources) == 0 {
		return "", nil
	}
	args := make([]any, len(sources))
	for i, src := range sources {
		args[i] = string(src)
	}
	return fmt.Sprintf(" AND %s IN (%s)", col, placeholders(len(sources))), args
}

var ftsTokenRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

// buildFTSQuery converts raw query text into an AND-conjunction of quoted
// exact tokens, e.g. `"tandarts" AND "afspraak"`. Returns "" when the text
// contains no alphanumeric tokens.
func buildFTSQuery(raw string) string {
	tokens := ftsTokenRe.FindAllString(raw, -1)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " AND ")
}
