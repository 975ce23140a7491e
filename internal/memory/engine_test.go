package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/recall/internal/store"
	"github.com/nextlevelbuilder/recall/internal/store/sqlite"
)

// fakeEmbedder maps texts onto a 3-dimensional space by keyword so tests get
// deterministic, meaningful similarity without a live provider.
type fakeEmbedder struct {
	calls int
	fail  bool
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("provider down")
	}
	f.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = []float32{}
			continue
		}
		switch {
		case strings.Contains(text, "dentist"):
			out[i] = []float32{1, 0, 0}
		case strings.Contains(text, "groceries"):
			out[i] = []float32{0, 1, 0}
		default:
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func newTestEngine(t *testing.T, provider store.EmbeddingProvider) *Engine {
	t.Helper()
	dir := t.TempDir()
	st, err := sqlite.Open(filepath.Join(dir, "test.db"), sqlite.Options{VectorDims: 3})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	e := NewEngine(st, provider, "fake-model", Config{
		MemoryPath: filepath.Join(dir, "memory.md"),
		Debounce:   10 * time.Millisecond,
	})
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

func TestStoreMessageAndKeywordSearch(t *testing.T) {
	e := newTestEngine(t, nil) // no provider: keyword-only mode
	ctx := context.Background()

	id, err := e.StoreMessage(ctx, StoreMessageParams{
		SessionID: "s1",
		Channel:   "cli",
		Role:      store.RoleUser,
		Content:   "de tandarts afspraak is volgende week dinsdag",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if id == "" {
		t.Fatal("empty id")
	}
	e.Flush(ctx)

	results, err := e.Search(ctx, "tandarts", SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !strings.Contains(results[0].Content, "tandarts") {
		t.Errorf("wrong hit: %q", results[0].Content)
	}
	if results[0].Source != store.SourceTranscript {
		t.Errorf("source = %s", results[0].Source)
	}
}

func TestStoreMessageRejectsEmptyContent(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, err := e.StoreMessage(context.Background(), StoreMessageParams{Content: "   "}); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestTaskEntriesAreNotIndexed(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.StoreMessage(ctx, StoreMessageParams{
		SessionID: "s1", Channel: "cli", Role: store.RoleSystem,
		Type: store.TypeTask, Content: "task heartbeat checkpoint alpha",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	e.Flush(ctx)

	results, err := e.Search(ctx, "checkpoint", SearchOptions{MinScore: 0.01})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("task entry leaked into search: %v", results)
	}

	// The raw log still has it.
	transcripts, err := e.SearchTranscripts(ctx, TranscriptSearchOptions{Query: "checkpoint"})
	if err != nil {
		t.Fatalf("transcripts: %v", err)
	}
	if len(transcripts) != 1 {
		t.Errorf("task entry missing from transcript log")
	}
}

func TestHybridSearchPrefersSemanticMatch(t *testing.T) {
	provider := &fakeEmbedder{}
	e := newTestEngine(t, provider)
	ctx := context.Background()

	for _, content := range []string{
		"dentist appointment on tuesday morning",
		"groceries list for saturday shopping",
	} {
		if _, err := e.StoreMessage(ctx, StoreMessageParams{
			SessionID: "s1", Channel: "cli", Role: store.RoleUser, Content: content,
		}); err != nil {
			t.Fatalf("store: %v", err)
		}
	}
	e.Flush(ctx)

	results, err := e.Search(ctx, "dentist visit", SearchOptions{MinScore: 0.01})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if !strings.Contains(results[0].Content, "dentist") {
		t.Errorf("top result = %q", results[0].Content)
	}
	if results[0].VectorScore <= 0 {
		t.Errorf("expected vector contribution, got %v", results[0].VectorScore)
	}
	// Hit in both signals must outrank single-signal candidates.
	for _, r := range results[1:] {
		if r.Score > results[0].Score {
			t.Errorf("results not sorted by fused score")
		}
	}
}

func TestSearchDegradesWhenProviderFails(t *testing.T) {
	provider := &fakeEmbedder{}
	e := newTestEngine(t, provider)
	ctx := context.Background()

	if _, err := e.StoreMessage(ctx, StoreMessageParams{
		SessionID: "s1", Channel: "cli", Role: store.RoleUser,
		Content: "dentist appointment on tuesday",
	}); err != nil {
		t.Fatalf("store: %v", err)
	}
	e.Flush(ctx)

	provider.fail = true
	results, err := e.Search(ctx, "dentist", SearchOptions{MinScore: 0.01})
	if err != nil {
		t.Fatalf("search should degrade, not fail: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("keyword fallback returned %d results", len(results))
	}
	if results[0].VectorScore != 0 {
		t.Errorf("unexpected vector score in degraded mode: %v", results[0].VectorScore)
	}
}

func TestIndexingFailedEmbeddingStoresWithoutVector(t *testing.T) {
	provider := &fakeEmbedder{fail: true}
	e := newTestEngine(t, provider)
	ctx := context.Background()

	if _, err := e.StoreMessage(ctx, StoreMessageParams{
		SessionID: "s1", Channel: "cli", Role: store.RoleUser,
		Content: "dentist appointment despite provider outage",
	}); err != nil {
		t.Fatalf("store: %v", err)
	}
	e.Flush(ctx)

	provider.fail = false
	results, err := e.Search(ctx, "outage", SearchOptions{MinScore: 0.01})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("chunk not keyword-searchable after embed failure: %d results", len(results))
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	provider := &fakeEmbedder{}
	e := newTestEngine(t, provider)
	ctx := context.Background()

	var sb strings.Builder
	sb.WriteString("# Working Memory\n\n")
	for i := 0; i < 100; i++ {
		sb.WriteString("a line of remembered context that pads the document out considerably\n")
	}
	if err := os.WriteFile(e.cfg.MemoryPath, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := e.Sync(ctx); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	chunks, err := e.store.ChunksByPath(ctx, e.cfg.MemoryPath, store.SourceDocument)
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multi-chunk document, got %d", len(chunks))
	}
	firstCount := len(chunks)
	firstCalls := provider.calls

	// Unchanged content: second sync must be a no-op.
	if err := e.Sync(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	chunks, _ = e.store.ChunksByPath(ctx, e.cfg.MemoryPath, store.SourceDocument)
	if len(chunks) != firstCount {
		t.Errorf("chunk count changed on no-op sync: %d -> %d", firstCount, len(chunks))
	}
	if provider.calls != firstCalls {
		t.Errorf("provider called on no-op sync")
	}
}

func TestSyncReplacesChangedDocument(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	write := func(content string) {
		if err := os.WriteFile(e.cfg.MemoryPath, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	write("remember the dentist appointment\n")
	if err := e.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	write("remember the grocery run instead\n")
	if err := e.Sync(ctx); err != nil {
		t.Fatalf("re-sync: %v", err)
	}

	chunks, err := e.store.ChunksByPath(ctx, e.cfg.MemoryPath, store.SourceDocument)
	if err != nil {
		t.Fatalf("chunks: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("stale chunks survived re-sync: %d rows", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "grocery") {
		t.Errorf("chunk content = %q", chunks[0].Content)
	}
}

func TestSyncMissingFileIsNoop(t *testing.T) {
	e := newTestEngine(t, nil)
	if err := e.Sync(context.Background()); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}

func TestEmbeddingCacheAvoidsRecompute(t *testing.T) {
	provider := &fakeEmbedder{}
	e := newTestEngine(t, provider)
	ctx := context.Background()

	content := "dentist appointment reminder"
	for i := 0; i < 3; i++ {
		if _, err := e.StoreMessage(ctx, StoreMessageParams{
			SessionID: "s1", Channel: "cli", Role: store.RoleUser, Content: content,
		}); err != nil {
			t.Fatalf("store: %v", err)
		}
	}
	e.Flush(ctx)

	if provider.calls != 1 {
		t.Errorf("identical content embedded %d times, want 1", provider.calls)
	}
}

func TestSearchTranscriptsTimeframe(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := e.StoreMessage(ctx, StoreMessageParams{
		SessionID: "s1", Channel: "cli", Role: store.RoleUser, Content: "fresh message",
	}); err != nil {
		t.Fatalf("store: %v", err)
	}

	results, err := e.SearchTranscripts(ctx, TranscriptSearchOptions{Timeframe: TimeframeToday})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("today timeframe missed a just-written entry: %d", len(results))
	}

	results, err = e.SearchTranscripts(ctx, TranscriptSearchOptions{Timeframe: TimeframeAll, Query: "nothing matches"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("unexpected matches: %d", len(results))
	}
}

func TestTimeframeStart(t *testing.T) {
	now := time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC)

	today := timeframeStart(TimeframeToday, now)
	if got := time.UnixMilli(today).UTC(); got.Hour() != 0 || got.Day() != 31 {
		t.Errorf("today start = %v", got)
	}
	week := timeframeStart(TimeframeWeek, now)
	if got := time.UnixMilli(week).UTC(); got.Day() != 24 {
		t.Errorf("week start = %v", got)
	}
	if timeframeStart(TimeframeAll, now) != 0 {
		t.Error("all timeframe should be unbounded")
	}
	if timeframeStart("", now) != 0 {
		t.Error("empty timeframe should be unbounded")
	}
}

func TestAddFact(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	if err := e.AddFact(ctx, "prefers tea over coffee", ""); err != nil {
		t.Fatalf("add fact: %v", err)
	}
	if err := e.AddFact(ctx, "dentist is on Elm Street", "Places"); err != nil {
		t.Fatalf("add fact: %v", err)
	}
	if err := e.AddFact(ctx, "allergic to peanuts", ""); err != nil {
		t.Fatalf("add fact: %v", err)
	}

	content, err := e.GetWorkingMemory()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(content, "## Facts") || !strings.Contains(content, "## Places") {
		t.Fatalf("sections missing:\n%s", content)
	}

	// Both default-section facts must land under the same heading.
	factsIdx := strings.Index(content, "## Facts")
	placesIdx := strings.Index(content, "## Places")
	teaIdx := strings.Index(content, "prefers tea")
	peanutIdx := strings.Index(content, "allergic to peanuts")
	if !(factsIdx < teaIdx && factsIdx < peanutIdx) {
		t.Errorf("facts not under Facts section:\n%s", content)
	}
	if peanutIdx > placesIdx && factsIdx < placesIdx {
		t.Errorf("second fact appended outside its section:\n%s", content)
	}

	// AddFact syncs: the fact is searchable immediately.
	results, err := e.Search(ctx, "peanuts", SearchOptions{MinScore: 0.01})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Error("fact not indexed after AddFact")
	}
}

func TestAppendToSection(t *testing.T) {
	out := appendToSection("", "Facts", "- first")
	if !strings.Contains(out, "## Facts\n\n- first") {
		t.Errorf("new file layout:\n%s", out)
	}

	existing := "# Memory\n\n## Facts\n\n- old fact\n\n## Other\n\n- unrelated\n"
	out = appendToSection(existing, "Facts", "- new fact")
	factsEnd := strings.Index(out, "## Other")
	newIdx := strings.Index(out, "- new fact")
	if newIdx == -1 || newIdx > factsEnd {
		t.Errorf("entry not inside section:\n%s", out)
	}
	oldIdx := strings.Index(out, "- old fact")
	if newIdx < oldIdx {
		t.Errorf("entry not appended after existing entries:\n%s", out)
	}
}
