package ingest

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
	"github.com/northbound/crawlmemory/internal/embeddings"
	"github.com/northbound/crawlmemory/internal/fetchclient"
	"github.com/northbound/crawlmemory/internal/storage"
)

func newFixture(t *testing.T, html string) (*Pipeline, *storage.Engine, func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"cleaned_html": html,
					"markdown":     map[string]string{"fit_markdown": html},
					"metadata":     map[string]string{"title": "Test Page"},
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
	engine, err := storage.Open(dbPath, true, embedder)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}

	fetcher := fetchclient.New(srv.URL)
	pipeline := New(bl, fetcher, engine, nil, "test-session")

	cleanup := func() {
		srv.Close()
		engine.Close()
		blocklistDB.Close()
	}
	return pipeline, engine, cleanup
}

func bodyWords(n int) string {
	text := ""
	for i := 0; i < n; i++ {
		text += "word "
	}
	return text
}

func TestRunStoresContentAndVectors(t *testing.T) {
	pipeline, engine, cleanup := newFixture(t, bodyWords(600))
	defer cleanup()

	report := pipeline.Run(context.Background(), Input{
		URL:       "https://example.test/article",
		Tags:      "news,tech",
		Retention: "permanent",
		Store:     true,
	})

	if !report.Success {
		t.Fatalf("expected success, got error: %s", report.Error)
	}
	if report.ContentID == 0 {
		t.Fatalf("expected non-zero content id")
	}
	if report.ChunksKept == 0 {
		t.Fatalf("expected at least one kept chunk")
	}

	rows, err := engine.ListContent(context.Background(), storage.ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListContent: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 stored row, got %d", len(rows))
	}
}

func TestRunRejectsBlockedDomain(t *testing.T) {
	pipeline, _, cleanup := newFixture(t, bodyWords(100))
	defer cleanup()

	if err := pipeline.blocklist.Add("evil.test", "test block"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	report := pipeline.Run(context.Background(), Input{
		URL:   "https://evil.test/page",
		Store: true,
	})

	if report.Success {
		t.Fatalf("expected blocked url to fail")
	}
	if report.BlockedBy == "" {
		t.Fatalf("expected BlockedBy to be set")
	}
}

func TestRunRejectsInvalidURL(t *testing.T) {
	pipeline, _, cleanup := newFixture(t, bodyWords(100))
	defer cleanup()

	report := pipeline.Run(context.Background(), Input{
		URL:   "not-a-url SELECT * FROM users",
		Store: true,
	})

	if report.Success {
		t.Fatalf("expected invalid url to fail validation")
	}
}

func TestRunWithoutStoreDoesNotWrite(t *testing.T) {
	pipeline, engine, cleanup := newFixture(t, bodyWords(100))
	defer cleanup()

	report := pipeline.Run(context.Background(), Input{
		URL:   "https://example.test/nostore",
		Store: false,
	})

	if !report.Success {
		t.Fatalf("expected success, got: %s", report.Error)
	}

	rows, err := engine.ListContent(context.Background(), storage.ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListContent: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows written, got %d", len(rows))
	}
}
