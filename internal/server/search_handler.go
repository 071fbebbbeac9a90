// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/northbound/crawlmemory/internal/database"
	"github.com/northbound/crawlmemory/internal/validator"
)

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	Tags  string `json:"tags"`
}

// handleSearch serves POST /api/v1/search: single-pass semantic search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	tags, err := validator.Tags(req.Tags)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hits, err := s.search.Search(r.Context(), req.Query, req.Limit, tags)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("search failed: %v", err))
		return
	}

	s.logAudit(r, database.AuditActionSearch, req.Query)
	writeJSON(w, http.StatusOK, hits)
}

type targetSearchRequest struct {
	Query         string `json:"query"`
	InitialLimit  int    `json:"initial_limit"`
	ExpandedLimit int    `json:"expanded_limit"`
	Tags          string `json:"tags"`
}

// handleTargetSearch serves POST /api/v1/search/target: a first pass over
// the explicit tag set followed by a second pass expanded with whatever
// tags the first pass's hits themselves carried.
func (s *Server) handleTargetSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req targetSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	tags, err := validator.Tags(req.Tags)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.search.TargetSearch(r.Context(), req.Query, req.InitialLimit, req.ExpandedLimit, tags)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("search failed: %v", err))
		return
	}

	s.logAudit(r, database.AuditActionSearch, req.Query)
	writeJSON(w, http.StatusOK, result)
}
