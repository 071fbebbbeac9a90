// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/northbound/crawlmemory/internal/blocklist"
	"github.com/northbound/crawlmemory/internal/database"
	"github.com/northbound/crawlmemory/internal/deepcrawl"
	"github.com/northbound/crawlmemory/internal/embeddings"
	"github.com/northbound/crawlmemory/internal/fetchclient"
	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/ratelimit"
	"github.com/northbound/crawlmemory/internal/search"
	"github.com/northbound/crawlmemory/internal/storage"
)

const testToken = "secret-token"

func newFixture(t *testing.T) (*httptest.Server, func()) {
	t.Helper()

	crawlSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := ""
		for i := 0; i < 600; i++ {
			body += "word "
		}
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

	auditDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open audit db: %v", err)
	}
	audit, err := database.NewAuditLogStore(auditDB)
	if err != nil {
		t.Fatalf("NewAuditLogStore: %v", err)
	}

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

	fetcher := fetchclient.New(crawlSrv.URL)
	pipeline := ingest.New(bl, fetcher, store, nil, "test-session")
	crawler := deepcrawl.New(pipeline)
	searchEngine := search.New(embedder, store)

	s := New(pipeline, crawler, searchEngine, store, bl, nil, audit, nil, "remove-me", "test-session")
	gate := ratelimit.New(testToken, 1000)
	apiSrv := httptest.NewServer(s.Routes(gate))

	cleanup := func() {
		apiSrv.Close()
		crawlSrv.Close()
		store.Close()
		blocklistDB.Close()
		auditDB.Close()
	}
	return apiSrv, cleanup
}

func authedRequest(t *testing.T, method, url string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthIsUnauthenticated(t *testing.T) {
	srv, cleanup := newFixture(t)
	defer cleanup()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	srv, cleanup := newFixture(t)
	defer cleanup()

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET /api/v1/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCrawlStoreThenSearchThenForget(t *testing.T) {
	srv, cleanup := newFixture(t)
	defer cleanup()

	body, _ := json.Marshal(map[string]string{"url": "https://example.test/a"})
	req := authedRequest(t, http.MethodPost, srv.URL+"/api/v1/crawl/store", body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /api/v1/crawl/store: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var report ingest.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Success {
		t.Fatalf("expected ingest success, got error %q", report.Error)
	}

	searchBody, _ := json.Marshal(map[string]interface{}{"query": "word", "limit": 5})
	searchReq := authedRequest(t, http.MethodPost, srv.URL+"/api/v1/search", searchBody)
	searchResp, err := http.DefaultClient.Do(searchReq)
	if err != nil {
		t.Fatalf("POST /api/v1/search: %v", err)
	}
	defer searchResp.Body.Close()
	if searchResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", searchResp.StatusCode)
	}
	var hits []storage.Hit
	if err := json.NewDecoder(searchResp.Body).Decode(&hits); err != nil {
		t.Fatalf("decode hits: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected at least one hit")
	}

	forgetReq := authedRequest(t, http.MethodDelete, srv.URL+"/api/v1/memory?url=https://example.test/a", nil)
	forgetResp, err := http.DefaultClient.Do(forgetReq)
	if err != nil {
		t.Fatalf("DELETE /api/v1/memory: %v", err)
	}
	defer forgetResp.Body.Close()
	if forgetResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", forgetResp.StatusCode)
	}

	again := authedRequest(t, http.MethodDelete, srv.URL+"/api/v1/memory?url=https://example.test/a", nil)
	againResp, err := http.DefaultClient.Do(again)
	if err != nil {
		t.Fatalf("DELETE /api/v1/memory (repeat): %v", err)
	}
	defer againResp.Body.Close()
	if againResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat forget, got %d", againResp.StatusCode)
	}
}

func TestBlockedDomainsAddListRemove(t *testing.T) {
	srv, cleanup := newFixture(t)
	defer cleanup()

	addBody, _ := json.Marshal(map[string]string{"pattern": "blocked.test", "description": "spam"})
	addReq := authedRequest(t, http.MethodPost, srv.URL+"/api/v1/blocked-domains", addBody)
	addResp, err := http.DefaultClient.Do(addReq)
	if err != nil {
		t.Fatalf("POST /api/v1/blocked-domains: %v", err)
	}
	defer addResp.Body.Close()
	if addResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", addResp.StatusCode)
	}

	listResp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/api/v1/blocked-domains", nil))
	if err != nil {
		t.Fatalf("GET /api/v1/blocked-domains: %v", err)
	}
	defer listResp.Body.Close()
	var patterns []blocklist.Pattern
	if err := json.NewDecoder(listResp.Body).Decode(&patterns); err != nil {
		t.Fatalf("decode patterns: %v", err)
	}
	found := false
	for _, p := range patterns {
		if p.Pattern == "blocked.test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected blocked.test in pattern list, got %+v", patterns)
	}

	removeReq := authedRequest(t, http.MethodDelete, srv.URL+"/api/v1/blocked-domains?pattern=blocked.test&keyword=remove-me", nil)
	removeResp, err := http.DefaultClient.Do(removeReq)
	if err != nil {
		t.Fatalf("DELETE /api/v1/blocked-domains: %v", err)
	}
	defer removeResp.Body.Close()
	if removeResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", removeResp.StatusCode)
	}
}

func TestRouteCatalogServed(t *testing.T) {
	srv, cleanup := newFixture(t)
	defer cleanup()

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/api/v1/help", nil))
	if err != nil {
		t.Fatalf("GET /api/v1/help: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var routes []routeDoc
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil {
		t.Fatalf("decode routes: %v", err)
	}
	if len(routes) == 0 {
		t.Fatalf("expected a non-empty route catalog")
	}
}
