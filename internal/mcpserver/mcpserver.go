// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package mcpserver exposes the knowledge base over the Model Context
// Protocol: one JSON-RPC tool per engine operation, each validating its
// arguments, invoking exactly one engine call, and wrapping the outcome in
// a uniform {success, data|error, timestamp} envelope.
package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/northbound/crawlmemory/internal/blocklist"
	"github.com/northbound/crawlmemory/internal/deepcrawl"
	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/logger"
	"github.com/northbound/crawlmemory/internal/search"
	"github.com/northbound/crawlmemory/internal/storage"
)

// Envelope is the uniform tool-response shape: success plus data, or
// failure plus a message, always timestamped.
type Envelope[T any] struct {
	Success   bool   `json:"success"`
	Data      T      `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

func ok[T any](data T) Envelope[T] {
	return Envelope[T]{Success: true, Data: data, Timestamp: now()}
}

func fail[T any](msg string) Envelope[T] {
	var zero T
	return Envelope[T]{Success: false, Data: zero, Error: msg, Timestamp: now()}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Server bridges the knowledge base engines to MCP tool calls.
type Server struct {
	mcp *mcp.Server

	pipeline  *ingest.Pipeline
	crawler   *deepcrawl.Crawler
	search    *search.Engine
	store     *storage.Engine
	blocklist *blocklist.Store

	blockRemovalToken string
	sessionID         string
}

// New builds a Server wiring every engine the tool set needs. removalToken
// authorizes unblock_domain calls. sessionID is the one process-lifetime
// session crawl_temp and clear_temp_memory operate against.
func New(pipeline *ingest.Pipeline, crawler *deepcrawl.Crawler, searchEngine *search.Engine, store *storage.Engine, bl *blocklist.Store, removalToken string, sessionID string) *Server {
	s := &Server{
		pipeline:          pipeline,
		crawler:           crawler,
		search:            searchEngine,
		store:             store,
		blocklist:         bl,
		blockRemovalToken: removalToken,
		sessionID:         sessionID,
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "crawlmemory", Version: "1.0.0"}, nil)
	s.registerTools()
	return s
}

// Serve runs the server over stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	logger.Printf("mcpserver: starting stdio transport")
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		logger.Errorf("mcpserver: stopped with error: %v", err)
		return err
	}
	logger.Printf("mcpserver: stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "crawl_url",
		Description: "Fetch and clean a single URL without storing it. Use to preview content before deciding to remember it.",
	}, s.handleCrawlURL)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "crawl_and_remember",
		Description: "Fetch a URL, chunk and embed its content, and store it permanently (or under the given retention).",
	}, s.handleCrawlAndRemember)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "crawl_temp",
		Description: "Fetch a URL and store it scoped to this process's session; removed by clear_temp_memory.",
	}, s.handleCrawlTemp)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "deep_crawl_dfs",
		Description: "Depth-first explore a site from a seed URL without storing anything. Reports which pages would be visited.",
	}, s.handleDeepCrawlDFS)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "deep_crawl_and_store",
		Description: "Depth-first explore a site from a seed URL and store every accepted page.",
	}, s.handleDeepCrawlAndStore)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_memory",
		Description: "Semantic search over everything remembered. Optionally filter by comma-separated tags (any-match).",
	}, s.handleSearchMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "target_search",
		Description: "Two-pass semantic search: an initial pass discovers related tags, a second pass expands the search using them.",
	}, s.handleTargetSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_memory",
		Description: "List stored content rows, optionally filtered by URL substring, retention, or tag.",
	}, s.handleListMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "forget_url",
		Description: "Permanently remove a stored URL and its chunks/vectors.",
	}, s.handleForgetURL)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clear_temp_memory",
		Description: "Remove every row stored under this process's session.",
	}, s.handleClearTempMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_database_stats",
		Description: "Report content/chunk/vector counts and a retention breakdown.",
	}, s.handleGetDatabaseStats)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_domains",
		Description: "List stored domains with their page counts, descending.",
	}, s.handleListDomains)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "block_domain",
		Description: "Add a wildcard block pattern (*.tld, *keyword*, or exact host) that future ingestion will reject.",
	}, s.handleBlockDomain)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "unblock_domain",
		Description: "Remove a block pattern. Requires the configured block-removal token.",
	}, s.handleUnblockDomain)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_blocked_domains",
		Description: "List every currently blocked pattern and its description.",
	}, s.handleListBlockedDomains)

	logger.Printf("mcpserver: registered 15 tools")
}
