package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/recall/internal/store"
	"github.com/nextlevelbuilder/recall/internal/store/sqlite"
)

func newTestSearcher(t *testing.T) (*Searcher, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "search.db"), sqlite.Options{VectorDims: 3})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewSearcher(st, 0.7, 0.3), st
}

func seedChunk(t *testing.T, st *sqlite.Store, id, content string, embedding []float32) {
	t.Helper()
	err := st.InsertChunk(context.Background(), store.Chunk{
		ID: id, Source: store.SourceTranscript, Content: content,
		Hash: ContentHash(content), Embedding: embedding, CreatedAt: 1,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestSearchFusesBothSignals(t *testing.T) {
	s, st := newTestSearcher(t)
	ctx := context.Background()

	// "both" matches the query keyword and sits near the query vector;
	// the others match only one signal each.
	seedChunk(t, st, "both", "dentist appointment tuesday", []float32{1, 0, 0})
	seedChunk(t, st, "vector-only", "molar checkup next month", []float32{0.95, 0.3, 0})
	seedChunk(t, st, "keyword-only", "dentist bill arrived", []float32{0, 0, 1})

	results, err := s.Search(ctx, "dentist", []float32{1, 0, 0}, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].ID != "both" {
		t.Errorf("dual-signal hit not ranked first: %s", results[0].ID)
	}
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score %v outside [0,1] for %s", r.Score, r.ID)
		}
		if r.ID == "both" {
			if r.VectorScore == 0 || r.TextScore == 0 {
				t.Errorf("dual hit missing a signal: vec=%v text=%v", r.VectorScore, r.TextScore)
			}
			want := 0.7*r.VectorScore + 0.3*r.TextScore
			if diff := r.Score - want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("fused score %v, want %v", r.Score, want)
			}
		}
	}
}

func TestSearchMinScoreFilters(t *testing.T) {
	s, st := newTestSearcher(t)
	ctx := context.Background()

	seedChunk(t, st, "far", "dentist mention", []float32{0, 0, 1})

	// Keyword matches but the vector is orthogonal: fused score stays low.
	results, err := s.Search(ctx, "dentist", []float32{1, 0, 0}, SearchOptions{MinScore: 0.95})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("min-score filter passed %d results", len(results))
	}
}

func TestSearchMaxResultsTruncates(t *testing.T) {
	s, st := newTestSearcher(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		seedChunk(t, st, string(rune('a'+i)), "dentist note number", []float32{1, 0, 0})
	}

	results, err := s.Search(ctx, "dentist", []float32{1, 0, 0}, SearchOptions{MaxResults: 3})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestSearchVectorOnlyWhenQueryHasNoTokens(t *testing.T) {
	s, st := newTestSearcher(t)
	ctx := context.Background()

	seedChunk(t, st, "c1", "some indexed content", []float32{1, 0, 0})

	results, err := s.Search(ctx, "???", []float32{1, 0, 0}, SearchOptions{MinScore: 0.01})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("vector-only path returned %d results", len(results))
	}
	if results[0].TextScore != 0 {
		t.Errorf("unexpected text score: %v", results[0].TextScore)
	}
}

func TestSearchKeywordOnlyWithoutEmbedding(t *testing.T) {
	s, st := newTestSearcher(t)
	ctx := context.Background()

	seedChunk(t, st, "c1", "dentist appointment", nil)

	results, err := s.Search(ctx, "dentist", nil, SearchOptions{MinScore: 0.01})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("keyword-only path returned %d results", len(results))
	}
	if results[0].VectorScore != 0 {
		t.Errorf("unexpected vector score: %v", results[0].VectorScore)
	}
}

func TestSearchSourceFilter(t *testing.T) {
	s, st := newTestSearcher(t)
	ctx := context.Background()

	seedChunk(t, st, "t1", "dentist from transcript", nil)
	err := st.InsertChunk(ctx, store.Chunk{
		ID: "d1", Source: store.SourceDocument, Path: "m.md",
		Content: "dentist from document", Hash: "h", CreatedAt: 1,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	results, err := s.Search(ctx, "dentist", nil, SearchOptions{
		MinScore: 0.01,
		Sources:  []store.Source{store.SourceDocument},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "d1" {
		t.Errorf("source filter results = %v", results)
	}
}

func TestSearchFallbackFixedScore(t *testing.T) {
	s, st := newTestSearcher(t)
	ctx := context.Background()

	seedChunk(t, st, "c1", "dentist appointment", nil)

	results, err := s.searchFallback(ctx, "dentist", 10, SearchOptions{})
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if len(results) != 1 || results[0].Score != 0.5 {
		t.Fatalf("fallback results = %v", results)
	}

	// The fixed score interacts with the threshold: above 0.5, nothing can
	// ever surface from this path.
	results, err = s.searchFallback(ctx, "dentist", 10, SearchOptions{MinScore: 0.6})
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("minScore above fixed score leaked %d results", len(results))
	}
}

func TestFusionMonotonicity(t *testing.T) {
	vectorHits := []store.Hit{
		{ID: "vec-heavy", Distance: 0.1}, // vector score 0.9
		{ID: "text-heavy", Distance: 0.9},
	}
	keywordHits := []store.Hit{
		{ID: "vec-heavy", Rank: -4}, // text score 0.2
		{ID: "text-heavy", Rank: 0}, // text score 1.0
	}

	scoreWith := func(vw, tw float64) map[string]float64 {
		s := &Searcher{vectorWeight: vw, textWeight: tw}
		out := make(map[string]float64)
		for _, r := range s.merge(vectorHits, keywordHits, true) {
			out[r.ID] = r.Score
		}
		return out
	}

	// Shift weight from text to vector: vector-dominant results must not
	// lose score, text-dominant results must not gain.
	low := scoreWith(0.5, 0.5)
	high := scoreWith(0.8, 0.2)

	if high["vec-heavy"] < low["vec-heavy"] {
		t.Errorf("vector-dominant score decreased: %v -> %v", low["vec-heavy"], high["vec-heavy"])
	}
	if high["text-heavy"] > low["text-heavy"] {
		t.Errorf("text-dominant score increased: %v -> %v", low["text-heavy"], high["text-heavy"])
	}
}

func TestSearchResultsCarrySnippets(t *testing.T) {
	s, st := newTestSearcher(t)
	ctx := context.Background()

	long := "dentist " + strings.Repeat("padding words here ", 60)
	seedChunk(t, st, "c1", long, nil)

	results, err := s.Search(ctx, "dentist", nil, SearchOptions{MinScore: 0.01})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatal("no results")
	}
	if len(results[0].Snippet) > snippetLen+4 {
		t.Errorf("snippet too long: %d", len(results[0].Snippet))
	}
}
