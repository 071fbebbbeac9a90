package fetchclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchPrefersFitMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req crawlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.URLs) != 1 || req.URLs[0] != "https://example.test/page" {
			t.Fatalf("unexpected request urls: %+v", req.URLs)
		}
		if req.WordCountThreshold != 10 || !req.RemoveForms || !req.OnlyText {
			t.Fatalf("unexpected request flags: %+v", req)
		}

		resp := crawlResponse{Results: []crawlResponseItem{{
			CleanedHTML: "<p>hello</p>",
		}}}
		resp.Results[0].Markdown.FitMarkdown = "# hello"
		resp.Results[0].Markdown.RawMarkdown = "raw hello"
		resp.Results[0].Metadata.Title = "Hello Page"

		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Fetch(context.Background(), "https://example.test/page")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Markdown != "# hello" {
		t.Fatalf("expected fit_markdown preferred, got %q", res.Markdown)
	}
	if res.Title != "Hello Page" {
		t.Fatalf("unexpected title: %q", res.Title)
	}
}

func TestFetchFallsBackToRawMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := crawlResponse{Results: []crawlResponseItem{{}}}
		resp.Results[0].Markdown.RawMarkdown = "raw only"
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Fetch(context.Background(), "https://example.test/page")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Markdown != "raw only" {
		t.Fatalf("expected fallback to raw_markdown, got %q", res.Markdown)
	}
}

func TestFetchReturnsHTTPErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Fetch(context.Background(), "https://example.test/page")
	if err == nil {
		t.Fatalf("expected error")
	}
	fcErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if fcErr.Kind != KindHTTP {
		t.Fatalf("expected KindHTTP, got %s", fcErr.Kind)
	}
}

func TestFetchReturnsTimeoutKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(crawlResponse{Results: []crawlResponseItem{{}}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.singlePageTimeout = 5 * time.Millisecond

	_, err := c.Fetch(context.Background(), "https://example.test/page")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	fcErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if fcErr.Kind != KindTimeout {
		t.Fatalf("expected KindTimeout, got %s", fcErr.Kind)
	}
}

func TestDeepFetchStreamsEveryURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(crawlResponse{Results: []crawlResponseItem{{}}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	urls := []string{"https://example.test/a", "https://example.test/b", "https://example.test/c"}

	seen := map[string]bool{}
	for res := range c.DeepFetch(context.Background(), urls) {
		if res.Err != nil {
			t.Fatalf("unexpected error for %s: %v", res.URL, res.Err)
		}
		seen[res.URL] = true
	}
	for _, u := range urls {
		if !seen[u] {
			t.Fatalf("expected result for %s", u)
		}
	}
}
