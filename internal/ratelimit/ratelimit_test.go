package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	g := New("secret", 60)
	srv := httptest.NewServer(g.Middleware(okHandler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestMiddlewareRejectsWrongToken(t *testing.T) {
	g := New("secret", 60)
	srv := httptest.NewServer(g.Middleware(okHandler()))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestMiddlewareAllowsValidToken(t *testing.T) {
	g := New("secret", 60)
	srv := httptest.NewServer(g.Middleware(okHandler()))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGateRejectsOverLimit(t *testing.T) {
	g := New("secret", 3)

	for i := 0; i < 3; i++ {
		if !g.Allow() {
			t.Fatalf("request %d should be within limit", i+1)
		}
	}
	if g.Allow() {
		t.Fatalf("4th request should exceed the limit of 3")
	}
}

func TestMiddlewareReturns429OverLimit(t *testing.T) {
	g := New("secret", 1)
	srv := httptest.NewServer(g.Middleware(okHandler()))
	defer srv.Close()

	doRequest := func() int {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/status", nil)
		req.Header.Set("Authorization", "Bearer secret")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	if got := doRequest(); got != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", got)
	}
	if got := doRequest(); got != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", got)
	}
}
