package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/northbound/crawlmemory/internal/blocklist"
	"github.com/northbound/crawlmemory/internal/embeddings"
	"github.com/northbound/crawlmemory/internal/fetchclient"
	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/storage"
)

func newFixture(t *testing.T) (*Driver, *storage.Engine, func()) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URLs []string `json:"urls"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		if strings.Contains(req.URLs[0], "fail") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		resp := map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"cleaned_html": "word word word word word word word word word word word",
					"markdown":     map[string]string{"fit_markdown": "word word word word word word word word word word word"},
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
	engine, err := storage.Open(dbPath, true, embeddings.NewMockEmbedder(32))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}

	fetcher := fetchclient.New(srv.URL)
	pipeline := ingest.New(bl, fetcher, engine, nil, "test-session")
	driver := New(pipeline)

	cleanup := func() {
		srv.Close()
		engine.Close()
		blocklistDB.Close()
	}
	return driver, engine, cleanup
}

func TestRunAggregatesSuccessAndFailure(t *testing.T) {
	driver, _, cleanup := newFixture(t)
	defer cleanup()

	urls := []string{
		"https://example.test/ok1",
		"https://example.test/ok2",
		"https://example.test/fail1",
	}

	summary, err := driver.Run(context.Background(), urls, Options{MaxConcurrent: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 3 {
		t.Fatalf("expected total 3, got %d", summary.Total)
	}
	if summary.Succeeded != 2 {
		t.Fatalf("expected 2 succeeded, got %d", summary.Succeeded)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected 1 failed, got %d", summary.Failed)
	}
}

func TestRunWritesFailedURLSidecar(t *testing.T) {
	driver, _, cleanup := newFixture(t)
	defer cleanup()

	sidecar := filepath.Join(t.TempDir(), "failed.txt")
	urls := []string{"https://example.test/fail1", "https://example.test/fail2"}

	_, err := driver.Run(context.Background(), urls, Options{MaxConcurrent: 2, FailedURLsPath: sidecar})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	for _, u := range urls {
		if !strings.Contains(string(data), u) {
			t.Fatalf("expected sidecar to contain %s, got %q", u, string(data))
		}
	}
}

func TestRunAllSucceedSkipsSidecar(t *testing.T) {
	driver, _, cleanup := newFixture(t)
	defer cleanup()

	sidecar := filepath.Join(t.TempDir(), "failed.txt")
	urls := []string{"https://example.test/ok1", "https://example.test/ok2"}

	_, err := driver.Run(context.Background(), urls, Options{MaxConcurrent: 2, FailedURLsPath: sidecar})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(sidecar); !os.IsNotExist(err) {
		t.Fatalf("expected no sidecar file when nothing failed")
	}
}
