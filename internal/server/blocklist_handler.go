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

type blockPatternRequest struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
}

// handleBlockedDomains serves GET/POST/DELETE /api/v1/blocked-domains.
func (s *Server) handleBlockedDomains(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBlockedDomains(w, r)
	case http.MethodPost:
		s.addBlockedDomain(w, r)
	case http.MethodDelete:
		s.removeBlockedDomain(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listBlockedDomains(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.blocklist.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, patterns)
}

func (s *Server) addBlockedDomain(w http.ResponseWriter, r *http.Request) {
	var req blockPatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	pattern, err := validator.Pattern(req.Pattern)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.blocklist.Add(pattern, req.Description); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logAudit(r, database.AuditActionBlock, pattern)
	writeJSON(w, http.StatusOK, map[string]string{"pattern": pattern})
}

func (s *Server) removeBlockedDomain(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern query parameter is required")
		return
	}

	authToken := r.URL.Query().Get("keyword")
	if err := s.blocklist.Remove(pattern, authToken, s.blockRemovalToken); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	s.logAudit(r, database.AuditActionUnblock, pattern)
	writeJSON(w, http.StatusOK, map[string]string{"pattern": pattern})
}
