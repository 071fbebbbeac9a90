// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package server exposes the knowledge base over plain net/http, the way
// the teacher's cmd/hive-server wires its own http.ServeMux: one small
// handler struct per concern, a shared JSON error envelope, and no router
// framework.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/northbound/crawlmemory/internal/blocklist"
	"github.com/northbound/crawlmemory/internal/database"
	"github.com/northbound/crawlmemory/internal/deepcrawl"
	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/logger"
	"github.com/northbound/crawlmemory/internal/ratelimit"
	"github.com/northbound/crawlmemory/internal/search"
	"github.com/northbound/crawlmemory/internal/storage"
	"github.com/northbound/crawlmemory/internal/syncmanager"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	pipeline    *ingest.Pipeline
	crawler     *deepcrawl.Crawler
	search      *search.Engine
	store       *storage.Engine
	blocklist   *blocklist.Store
	syncManager *syncmanager.Manager
	audit       *database.AuditLogStore
	metadata    *database.MetadataStore

	blockRemovalToken string
	sessionID         string
	startedAt         time.Time
}

// New builds a Server. Any of audit/metadata/syncManager may be nil: with
// no audit store /api/v1/stats omits its action counts and nothing is
// audit-logged, and with no sync manager /api/v1/db/stats answers 404.
// sessionID is the one process-lifetime session every
// session_only request is scoped to.
func New(
	pipeline *ingest.Pipeline,
	crawler *deepcrawl.Crawler,
	searchEngine *search.Engine,
	store *storage.Engine,
	bl *blocklist.Store,
	syncManager *syncmanager.Manager,
	audit *database.AuditLogStore,
	metadata *database.MetadataStore,
	blockRemovalToken string,
	sessionID string,
) *Server {
	return &Server{
		pipeline:          pipeline,
		crawler:           crawler,
		search:            searchEngine,
		store:             store,
		blocklist:         bl,
		syncManager:       syncManager,
		audit:             audit,
		metadata:          metadata,
		blockRemovalToken: blockRemovalToken,
		sessionID:         sessionID,
		startedAt:         time.Now(),
	}
}

// Routes builds the full handler tree: /health is unauthenticated, every
// other route is wrapped in gate's bearer-token and rate-limit check, and
// the whole thing is wrapped in the traffic logger.
func (s *Server) Routes(gate *ratelimit.Gate) http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("/api/v1/status", s.handleStatus)
	protected.HandleFunc("/api/v1/help", s.handleHelp)
	protected.HandleFunc("/api/v1/crawl", s.handleCrawl)
	protected.HandleFunc("/api/v1/crawl/store", s.handleCrawlStore)
	protected.HandleFunc("/api/v1/crawl/temp", s.handleCrawlTemp)
	protected.HandleFunc("/api/v1/crawl/deep/store", s.handleDeepCrawlStore)
	protected.HandleFunc("/api/v1/search", s.handleSearch)
	protected.HandleFunc("/api/v1/search/target", s.handleTargetSearch)
	protected.HandleFunc("/api/v1/memory", s.handleMemory)
	protected.HandleFunc("/api/v1/memory/temp", s.handleClearTempMemory)
	protected.HandleFunc("/api/v1/stats", s.handleStats)
	protected.HandleFunc("/api/v1/db/stats", s.handleDBStats)
	protected.HandleFunc("/api/v1/domains", s.handleDomains)
	protected.HandleFunc("/api/v1/blocked-domains", s.handleBlockedDomains)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/", gate.Middleware(protected))

	return trafficLogger(mux)
}

func trafficLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Printf("http: -> %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Printf("http: <- %s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Success: false, Error: message, Timestamp: nowRFC3339()})
}

func (s *Server) logAudit(r *http.Request, action database.AuditAction, details string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogAction(ratelimit.TokenPrefix(r.Context()), action, details); err != nil {
		logger.Warnf("server: audit log failed: %v", err)
	}
}
