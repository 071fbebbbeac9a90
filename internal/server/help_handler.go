// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import "net/http"

type routeDoc struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var catalog = []routeDoc{
	{"GET", "/health", "Liveness check, unauthenticated."},
	{"GET", "/api/v1/status", "Component health: database reachability, ram mode, uptime."},
	{"GET", "/api/v1/help", "This route catalog."},
	{"POST", "/api/v1/crawl", "Fetch and clean a URL without storing it."},
	{"POST", "/api/v1/crawl/store", "Fetch, chunk, embed, and store a URL."},
	{"POST", "/api/v1/crawl/temp", "Fetch and store a URL scoped to this process's session."},
	{"POST", "/api/v1/crawl/deep/store", "Depth-first crawl a site from a seed URL and store every accepted page."},
	{"POST", "/api/v1/search", "Semantic search over stored content."},
	{"POST", "/api/v1/search/target", "Two-pass semantic search with tag discovery and expansion."},
	{"GET", "/api/v1/memory", "List stored content rows."},
	{"DELETE", "/api/v1/memory", "Forget one stored URL."},
	{"DELETE", "/api/v1/memory/temp", "Clear every row stored under this process's session."},
	{"GET", "/api/v1/stats", "Aggregate content/chunk/vector/retention counts."},
	{"GET", "/api/v1/db/stats", "RAM/disk sync health."},
	{"GET", "/api/v1/domains", "Stored domains with page counts."},
	{"GET", "/api/v1/blocked-domains", "List block patterns."},
	{"POST", "/api/v1/blocked-domains", "Add a block pattern."},
	{"DELETE", "/api/v1/blocked-domains", "Remove a block pattern, authorized."},
}

// handleHelp serves GET /api/v1/help with a static route catalog.
func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}
