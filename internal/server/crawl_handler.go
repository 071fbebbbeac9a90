// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/northbound/crawlmemory/internal/database"
	"github.com/northbound/crawlmemory/internal/deepcrawl"
	"github.com/northbound/crawlmemory/internal/ingest"
)

type crawlRequest struct {
	URL             string  `json:"url"`
	Tags            string  `json:"tags"`
	RetentionPolicy string  `json:"retention_policy"`
	MaxDepth        int     `json:"max_depth"`
	MaxPages        int     `json:"max_pages"`
	IncludeExternal bool    `json:"include_external"`
	ScoreThreshold  float64 `json:"score_threshold"`
}

func decodeCrawlRequest(w http.ResponseWriter, r *http.Request) (crawlRequest, bool) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return req, false
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return req, false
	}
	return req, true
}

// handleCrawl serves POST /api/v1/crawl: fetch and clean, no store.
func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, ok := decodeCrawlRequest(w, r)
	if !ok {
		return
	}

	report := s.pipeline.Run(r.Context(), ingest.Input{URL: req.URL, Store: false})
	writeJSON(w, http.StatusOK, report)
}

// handleCrawlStore serves POST /api/v1/crawl/store: fetch, chunk, embed, store.
func (s *Server) handleCrawlStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, ok := decodeCrawlRequest(w, r)
	if !ok {
		return
	}

	report := s.pipeline.Run(r.Context(), ingest.Input{
		URL:       req.URL,
		Retention: req.RetentionPolicy,
		Tags:      req.Tags,
		Store:     true,
	})
	if report.Success {
		s.logAudit(r, database.AuditActionIngest, report.URL)
	}
	writeJSON(w, http.StatusOK, report)
}

// handleCrawlTemp serves POST /api/v1/crawl/temp: fetch and store scoped to
// the process's session.
func (s *Server) handleCrawlTemp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, ok := decodeCrawlRequest(w, r)
	if !ok {
		return
	}

	report := s.pipeline.Run(r.Context(), ingest.Input{
		URL:       req.URL,
		Retention: "session_only",
		Tags:      req.Tags,
		Store:     true,
	})
	if report.Success {
		s.logAudit(r, database.AuditActionIngest, report.URL)
	}
	writeJSON(w, http.StatusOK, report)
}

// handleDeepCrawlStore serves POST /api/v1/crawl/deep/store: depth-first
// crawl from a seed URL, storing every accepted page.
func (s *Server) handleDeepCrawlStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, ok := decodeCrawlRequest(w, r)
	if !ok {
		return
	}

	report := s.crawler.Run(r.Context(), req.URL, deepcrawl.Options{
		MaxDepth:        req.MaxDepth,
		MaxPages:        req.MaxPages,
		IncludeExternal: req.IncludeExternal,
		ScoreThreshold:  req.ScoreThreshold,
		Tags:            req.Tags,
		Retention:       req.RetentionPolicy,
	})
	s.logAudit(r, database.AuditActionIngest, fmt.Sprintf("deep crawl seed=%s pages=%d", req.URL, len(report.Stored)))
	writeJSON(w, http.StatusOK, report)
}
