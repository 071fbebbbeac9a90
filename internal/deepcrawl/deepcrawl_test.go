package deepcrawl

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/northbound/crawlmemory/internal/blocklist"
	"github.com/northbound/crawlmemory/internal/embeddings"
	"github.com/northbound/crawlmemory/internal/fetchclient"
	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/storage"
)

func wordsText(n int) string {
	text := ""
	for i := 0; i < n; i++ {
		text += "word "
	}
	return text
}

// newSiteFixture serves a tiny 3-page site: root links to /child1 and
// /child2, each a leaf with no further links.
func newSiteFixture(t *testing.T) (*Crawler, func()) {
	t.Helper()

	pages := map[string]string{
		"/":       `<a href="/child1">c1</a><a href="/child2">c2</a>` + wordsText(200),
		"/child1": wordsText(200),
		"/child2": wordsText(200),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URLs []string `json:"urls"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		path := "/"
		if u, err := url.Parse(req.URLs[0]); err == nil {
			path = u.Path
		}
		html := pages[path]

		resp := map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"cleaned_html": html,
					"markdown":     map[string]string{"fit_markdown": html},
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
	crawler := New(pipeline)

	cleanup := func() {
		srv.Close()
		engine.Close()
		blocklistDB.Close()
	}
	return crawler, cleanup
}

func TestRunVisitsLinkedPagesWithinDomain(t *testing.T) {
	crawler, cleanup := newSiteFixture(t)
	defer cleanup()

	report := crawler.Run(context.Background(), "https://example.test/", Options{
		MaxDepth: 2,
		MaxPages: 10,
	})

	if len(report.Stored) != 3 {
		t.Fatalf("expected 3 pages stored (root + 2 children), got %d: %+v", len(report.Stored), report.Stored)
	}
}

func TestRunRespectsMaxPages(t *testing.T) {
	crawler, cleanup := newSiteFixture(t)
	defer cleanup()

	report := crawler.Run(context.Background(), "https://example.test/", Options{
		MaxDepth: 2,
		MaxPages: 1,
	})

	if len(report.Stored)+len(report.Failed) > 1 {
		t.Fatalf("expected at most 1 page processed, got %d", len(report.Stored)+len(report.Failed))
	}
}

func TestNormalizeAppliesDefaultsToZeroValues(t *testing.T) {
	opts := Options{}.normalize()
	if opts.MaxDepth != defaultMaxDepth {
		t.Fatalf("expected default max depth %d, got %d", defaultMaxDepth, opts.MaxDepth)
	}
	if opts.MaxPages != defaultMaxPages {
		t.Fatalf("expected default max pages %d, got %d", defaultMaxPages, opts.MaxPages)
	}
}

func TestNormalizeClampsOversizedBounds(t *testing.T) {
	opts := Options{MaxDepth: 99, MaxPages: 99999}.normalize()
	if opts.MaxDepth != defaultMaxDepth {
		t.Fatalf("expected oversized depth clamped to default, got %d", opts.MaxDepth)
	}
	if opts.MaxPages != defaultMaxPages {
		t.Fatalf("expected oversized pages clamped to default, got %d", opts.MaxPages)
	}
}
