// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"net/http"
	"strconv"

	"github.com/northbound/crawlmemory/internal/database"
	"github.com/northbound/crawlmemory/internal/storage"
)

// handleMemory serves GET /api/v1/memory (list) and DELETE /api/v1/memory
// (forget one url, via ?url=).
func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listMemory(w, r)
	case http.MethodDelete:
		s.forgetURL(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listMemory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	filter := storage.ListFilter{
		URLContains: q.Get("url"),
		Retention:   q.Get("retention"),
		Tag:         q.Get("tag"),
	}

	rows, err := s.store.ListContent(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) forgetURL(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	removed, err := s.store.ForgetURL(r.Context(), url)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if removed == 0 {
		writeError(w, http.StatusNotFound, "url not found")
		return
	}

	s.logAudit(r, database.AuditActionIngest, "forgot "+url)
	writeJSON(w, http.StatusOK, map[string]int64{"rows_removed": removed})
}

// handleClearTempMemory serves DELETE /api/v1/memory/temp: clears every row
// stored under the process's session.
func (s *Server) handleClearTempMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	removed, err := s.store.ClearSession(r.Context(), s.sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"rows_removed": removed})
}
