package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/northbound/crawlmemory/internal/embeddings"
	"github.com/northbound/crawlmemory/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Engine, embeddings.Embedder) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	embedder := embeddings.NewMockEmbedder(32)
	store, err := storage.Open(dbPath, true, embedder)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(embedder, store), store, embedder
}

func wordsText(n int) string {
	text := ""
	for i := 0; i < n; i++ {
		text += "word "
	}
	return text
}

func ingest(t *testing.T, store *storage.Engine, url, tags string) {
	t.Helper()
	ctx := context.Background()
	contentID, err := store.UpsertContent(ctx, url, "t", wordsText(600), "permanent", tags, "{}", "")
	if err != nil {
		t.Fatalf("UpsertContent: %v", err)
	}
	if _, _, err := store.GenerateAndStoreVectors(ctx, contentID, wordsText(600)); err != nil {
		t.Fatalf("GenerateAndStoreVectors: %v", err)
	}
}

func TestSearchRejectsOutOfRangeLimit(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.Search(context.Background(), "hello", 5000, nil)
	if err == nil {
		t.Fatalf("expected error for limit out of range")
	}
}

func TestSearchRejectsInvalidQuery(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.Search(context.Background(), "'; DROP TABLE crawled_content; --", 10, nil)
	if err == nil {
		t.Fatalf("expected validation error for dangerous query")
	}
}

func TestTargetSearchDiscoversAndExpands(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	ingest(t, store, "https://example.test/one", "alpha,beta")
	ingest(t, store, "https://example.test/two", "alpha,gamma")

	result, err := eng.TargetSearch(ctx, "word", 10, 10, nil)
	if err != nil {
		t.Fatalf("TargetSearch: %v", err)
	}
	if len(result.DiscoveredTags) == 0 {
		t.Fatalf("expected discovered tags from first pass")
	}
	if !result.ExpansionUsed {
		t.Fatalf("expected expansion_used true when tags discovered")
	}
}

func TestTargetSearchKeepsExplicitTagsAsFloor(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	ctx := context.Background()

	ingest(t, store, "https://example.test/explicit-only", "zzz-unique-tag")
	ingest(t, store, "https://example.test/other", "common")

	result, err := eng.TargetSearch(ctx, "word", 1, 10, []string{"zzz-unique-tag"})
	if err != nil {
		t.Fatalf("TargetSearch: %v", err)
	}

	foundExplicit := false
	for _, h := range result.Results {
		if h.URL == "https://example.test/explicit-only" {
			foundExplicit = true
		}
	}
	if !foundExplicit {
		t.Fatalf("expected the explicit-tag-only result to survive the union expansion, got %+v", result.Results)
	}
}
