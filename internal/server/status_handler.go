// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"context"
	"net/http"
	"time"
)

type statusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Database      string `json:"database"`
	RAMMode       bool   `json:"ram_mode"`
	Timestamp     string `json:"timestamp"`
}

// handleStatus serves GET /api/v1/status: a quick component health check,
// distinct from /api/v1/stats's row-count aggregates.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "connected"
	if _, err := s.store.Stats(ctx); err != nil {
		dbStatus = "error"
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:        "up",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Database:      dbStatus,
		RAMMode:       s.store.RAMMode(),
		Timestamp:     nowRFC3339(),
	})
}
