package mcpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/northbound/crawlmemory/internal/blocklist"
	"github.com/northbound/crawlmemory/internal/deepcrawl"
	"github.com/northbound/crawlmemory/internal/embeddings"
	"github.com/northbound/crawlmemory/internal/fetchclient"
	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/search"
	"github.com/northbound/crawlmemory/internal/storage"
)

func newFixture(t *testing.T) (*Server, func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URLs []string `json:"urls"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		body := wordsText(600)
		resp := map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"cleaned_html": body,
					"markdown":     map[string]string{"fit_markdown": body},
					"metadata":     map[string]string{"title": "page"},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))

	blocklistDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open blocklist db: %v", err)
	}
	bl, err := blocklist.New(blocklistDB)
	if err != nil {
		t.Fatalf("blocklist.New: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	embedder := embeddings.NewMockEmbedder(32)
	store, err := storage.Open(dbPath, true, embedder)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}

	fetcher := fetchclient.New(srv.URL)
	pipeline := ingest.New(bl, fetcher, store, nil, "test-session")
	crawler := deepcrawl.New(pipeline)
	searchEngine := search.New(embedder, store)

	s := New(pipeline, crawler, searchEngine, store, bl, "secret-token", "test-session")

	cleanup := func() {
		srv.Close()
		store.Close()
		blocklistDB.Close()
	}
	return s, cleanup
}

func wordsText(n int) string {
	text := ""
	for i := 0; i < n; i++ {
		text += "word "
	}
	return text
}

func TestCrawlAndRememberStoresContent(t *testing.T) {
	s, cleanup := newFixture(t)
	defer cleanup()

	_, out, err := s.handleCrawlAndRemember(context.Background(), nil, CrawlAndRememberInput{URL: "https://example.test/a"})
	if err != nil {
		t.Fatalf("handleCrawlAndRemember: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got error %q", out.Error)
	}
	if out.Data.ContentID == 0 {
		t.Fatalf("expected non-zero content id")
	}
}

func TestCrawlURLDoesNotStore(t *testing.T) {
	s, cleanup := newFixture(t)
	defer cleanup()

	_, out, err := s.handleCrawlURL(context.Background(), nil, CrawlURLInput{URL: "https://example.test/preview"})
	if err != nil {
		t.Fatalf("handleCrawlURL: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got error %q", out.Error)
	}

	rows, err := s.store.ListContent(context.Background(), storage.ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListContent: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected crawl_url not to store anything, found %d rows", len(rows))
	}
}

func TestCrawlTempScopesToProcessSession(t *testing.T) {
	s, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()

	_, out, err := s.handleCrawlTemp(ctx, nil, CrawlTempInput{URL: "https://example.test/temp"})
	if err != nil {
		t.Fatalf("handleCrawlTemp: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success, got error %q", out.Error)
	}

	rows, err := s.store.ListContent(ctx, storage.ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListContent: %v", err)
	}
	if len(rows) != 1 || rows[0].SessionID != "test-session" {
		t.Fatalf("expected one row scoped to the process session, got %+v", rows)
	}

	_, clearOut, err := s.handleClearTempMemory(ctx, nil, ClearTempMemoryInput{})
	if err != nil {
		t.Fatalf("handleClearTempMemory: %v", err)
	}
	if !clearOut.Success || clearOut.Data.Removed != 1 {
		t.Fatalf("expected 1 row cleared, got %+v", clearOut)
	}
}

func TestSearchMemoryFindsStoredContent(t *testing.T) {
	s, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()

	if _, out, err := s.handleCrawlAndRemember(ctx, nil, CrawlAndRememberInput{URL: "https://example.test/findable"}); err != nil || !out.Success {
		t.Fatalf("seed ingest failed: err=%v out=%+v", err, out)
	}

	_, out, err := s.handleSearchMemory(ctx, nil, SearchMemoryInput{Query: "word", Limit: 5})
	if err != nil {
		t.Fatalf("handleSearchMemory: %v", err)
	}
	if !out.Success || len(out.Data) == 0 {
		t.Fatalf("expected at least one hit, got %+v", out)
	}
}

func TestForgetURLRemovesRow(t *testing.T) {
	s, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()

	if _, out, err := s.handleCrawlAndRemember(ctx, nil, CrawlAndRememberInput{URL: "https://example.test/gone"}); err != nil || !out.Success {
		t.Fatalf("seed ingest failed: err=%v out=%+v", err, out)
	}

	_, out, err := s.handleForgetURL(ctx, nil, ForgetURLInput{URL: "https://example.test/gone"})
	if err != nil {
		t.Fatalf("handleForgetURL: %v", err)
	}
	if !out.Success || out.Data.Removed != 1 {
		t.Fatalf("expected 1 row removed, got %+v", out)
	}
}

func TestBlockThenUnblockDomain(t *testing.T) {
	s, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()

	if _, out, err := s.handleBlockDomain(ctx, nil, BlockDomainInput{Pattern: "*.evil", Description: "test"}); err != nil || !out.Success {
		t.Fatalf("handleBlockDomain: err=%v out=%+v", err, out)
	}

	_, crawled, err := s.handleCrawlURL(ctx, nil, CrawlURLInput{URL: "https://site.evil/page"})
	if err != nil {
		t.Fatalf("handleCrawlURL: %v", err)
	}
	if crawled.Success {
		t.Fatalf("expected blocked domain to fail crawl")
	}

	if _, out, err := s.handleUnblockDomain(ctx, nil, UnblockDomainInput{Pattern: "*.evil", AuthToken: "wrong"}); err != nil || out.Success {
		t.Fatalf("expected unauthorized unblock to fail, got %+v (err=%v)", out, err)
	}

	if _, out, err := s.handleUnblockDomain(ctx, nil, UnblockDomainInput{Pattern: "*.evil", AuthToken: "secret-token"}); err != nil || !out.Success {
		t.Fatalf("expected authorized unblock to succeed: err=%v out=%+v", err, out)
	}
}

func TestGetDatabaseStatsReflectsIngests(t *testing.T) {
	s, cleanup := newFixture(t)
	defer cleanup()
	ctx := context.Background()

	if _, out, err := s.handleCrawlAndRemember(ctx, nil, CrawlAndRememberInput{URL: "https://example.test/stats"}); err != nil || !out.Success {
		t.Fatalf("seed ingest failed: err=%v out=%+v", err, out)
	}

	_, out, err := s.handleGetDatabaseStats(ctx, nil, GetDatabaseStatsInput{})
	if err != nil {
		t.Fatalf("handleGetDatabaseStats: %v", err)
	}
	if out.Data.TotalContent != 1 {
		t.Fatalf("expected 1 content row, got %d", out.Data.TotalContent)
	}
}
