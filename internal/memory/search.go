package memory

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/recall/internal/store"
	"github.com/nextlevelbuilder/recall/internal/store/sqlite"
)

const snippetLen = 200

// SearchOptions narrows a hybrid search.
type SearchOptions struct {
	MaxResults int     // default 10
	MinScore   float64 // fused-score floor, 0 disables filtering
	Sources    []store.Source
}

// SearchResult is one scored hit from hybrid search. Score is the fused
// value; VectorScore and TextScore are the per-signal contributions (zero
// when the hit was absent from that signal's candidates).
type SearchResult struct {
	ID          string       `json:"id"`
	Source      store.Source `json:"source"`
	Content     string       `json:"content"`
	Snippet     string       `json:"snippet"`
	Score       float64      `json:"score"`
	VectorScore float64      `json:"vectorScore"`
	TextScore   float64      `json:"textScore"`
	Path        string       `json:"path,omitempty"`
	StartLine   int          `json:"startLine,omitempty"`
	EndLine     int          `json:"endLine,omitempty"`
}

// Searcher fuses vector and keyword search over the chunk store with a
// weighted score combination. It degrades to whichever signal is available
// and to a plain substring scan when neither index exists.
type Searcher struct {
	store        *sqlite.Store
	vectorWeight float64
	textWeight   float64
}

// NewSearcher creates a hybrid searcher. Non-positive weights fall back to
// the 0.7/0.3 vector/text default.
func NewSearcher(st *sqlite.Store, vectorWeight, textWeight float64) *Searcher {
	if vectorWeight <= 0 && textWeight <= 0 {
		vectorWeight, textWeight = 0.7, 0.3
	}
	return &Searcher{store: st, vectorWeight: vectorWeight, textWeight: textWeight}
}

// Search runs vector and keyword retrieval concurrently, merges candidates by
// chunk id and returns the top fused-score results. A nil or empty query
// embedding skips the vector signal. Capability absence never fails the
// search; a sub-search error degrades that signal and is logged.
func (s *Searcher) Search(ctx context.Context, query string, queryEmbedding []float32, opts SearchOptions) ([]SearchResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	// Over-fetch candidates so fusion reorders a meaningful pool.
	candidateLimit := max(maxResults*3, 50)

	status := s.store.Status()
	useVector := status.VectorAvailable && len(queryEmbedding) > 0
	useKeyword := status.FTSAvailable

	if !useVector && !useKeyword {
		return s.searchFallback(ctx, query, maxResults, opts)
	}

	var vectorHits, keywordHits []store.Hit
	g, gctx := errgroup.WithContext(ctx)

	if useVector {
		g.Go(func() error {
			hits, err := s.store.SearchVector(gctx, queryEmbedding, candidateLimit, opts.Sources)
			if err != nil {
				slog.Warn("vector search failed, degrading", "error", err)
				return nil
			}
			vectorHits = hits
			return nil
		})
	}
	if useKeyword {
		g.Go(func() error {
			hits, err := s.store.SearchKeyword(gctx, query, candidateLimit, opts.Sources)
			if err != nil {
				slog.Warn("keyword search failed, degrading", "error", err)
				return nil
			}
			keywordHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Weighted fusion applies only when both signals ran; a single surviving
	// signal keeps its raw 0-1 scores so degraded modes still clear a
	// minScore tuned for fused output.
	results := s.merge(vectorHits, keywordHits, useVector && useKeyword)

	if opts.MinScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= opts.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// merge unions the two candidate sets by chunk id and computes the fused
// score. A chunk present in both sets gets contributions from both signals.
func (s *Searcher) merge(vectorHits, keywordHits []store.Hit, fuse bool) []SearchResult {
	byID := make(map[string]*SearchResult)
	var order []string

	add := func(h store.Hit) *SearchResult {
		if r, ok := byID[h.ID]; ok {
			return r
		}
		r := &SearchResult{
			ID:        h.ID,
			Source:    h.Source,
			Content:   h.Content,
			Snippet:   Snippet(h.Content, snippetLen),
			Path:      h.Path,
			StartLine: h.StartLine,
			EndLine:   h.EndLine,
		}
		byID[h.ID] = r
		order = append(order, h.ID)
		return r
	}

	for _, h := range vectorHits {
		add(h).VectorScore = distanceToScore(h.Distance)
	}
	for _, h := range keywordHits {
		add(h).TextScore = bm25RankToScore(h.Rank)
	}

	results := make([]SearchResult, 0, len(order))
	for _, id := range order {
		r := byID[id]
		if fuse {
			r.Score = s.vectorWeight*r.VectorScore + s.textWeight*r.TextScore
		} else {
			r.Score = math.Max(r.VectorScore, r.TextScore)
		}
		results = append(results, *r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// searchFallback handles the fully degraded store: substring match with a
// fixed mid-range score, so MinScore filtering still behaves consistently.
func (s *Searcher) searchFallback(ctx context.Context, query string, maxResults int, opts SearchOptions) ([]SearchResult, error) {
	const fallbackScore = 0.5

	if opts.MinScore > fallbackScore {
		return nil, nil
	}

	hits, err := s.store.SearchLike(ctx, query, maxResults, opts.Sources)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{
			ID:        h.ID,
			Source:    h.Source,
			Content:   h.Content,
			Snippet:   Snippet(h.Content, snippetLen),
			Score:     fallbackScore,
			Path:      h.Path,
			StartLine: h.StartLine,
			EndLine:   h.EndLine,
		})
	}
	return results, nil
}
