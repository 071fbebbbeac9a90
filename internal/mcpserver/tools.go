// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/northbound/crawlmemory/internal/blocklist"
	"github.com/northbound/crawlmemory/internal/deepcrawl"
	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/search"
	"github.com/northbound/crawlmemory/internal/storage"
	"github.com/northbound/crawlmemory/internal/validator"
)

// CrawlURLInput fetches a URL without storing it.
type CrawlURLInput struct {
	URL string `json:"url" jsonschema:"the URL to fetch and clean"`
}

func (s *Server) handleCrawlURL(ctx context.Context, _ *mcp.CallToolRequest, in CrawlURLInput) (*mcp.CallToolResult, Envelope[ingest.Report], error) {
	report := s.pipeline.Run(ctx, ingest.Input{URL: in.URL, Store: false})
	return nil, reportEnvelope(report), nil
}

// CrawlAndRememberInput fetches, chunks, embeds, and stores a URL.
type CrawlAndRememberInput struct {
	URL       string `json:"url" jsonschema:"the URL to crawl and remember"`
	Retention string `json:"retention,omitempty" jsonschema:"permanent, session_only, or 30_days; default permanent"`
	Tags      string `json:"tags,omitempty" jsonschema:"comma-separated tags to attach"`
}

func (s *Server) handleCrawlAndRemember(ctx context.Context, _ *mcp.CallToolRequest, in CrawlAndRememberInput) (*mcp.CallToolResult, Envelope[ingest.Report], error) {
	report := s.pipeline.Run(ctx, ingest.Input{
		URL:       in.URL,
		Retention: in.Retention,
		Tags:      in.Tags,
		Store:     true,
	})
	return nil, reportEnvelope(report), nil
}

// CrawlTempInput fetches and stores a URL scoped to the process's session.
type CrawlTempInput struct {
	URL  string `json:"url" jsonschema:"the URL to crawl and remember temporarily"`
	Tags string `json:"tags,omitempty" jsonschema:"comma-separated tags to attach"`
}

func (s *Server) handleCrawlTemp(ctx context.Context, _ *mcp.CallToolRequest, in CrawlTempInput) (*mcp.CallToolResult, Envelope[ingest.Report], error) {
	report := s.pipeline.Run(ctx, ingest.Input{
		URL:       in.URL,
		Retention: "session_only",
		Tags:      in.Tags,
		Store:     true,
	})
	return nil, reportEnvelope(report), nil
}

func reportEnvelope(report ingest.Report) Envelope[ingest.Report] {
	if !report.Success {
		return fail[ingest.Report](report.Error)
	}
	return ok(report)
}

// DeepCrawlInput bounds one depth-first site exploration.
type DeepCrawlInput struct {
	URL             string  `json:"url" jsonschema:"seed URL to start exploring from"`
	MaxDepth        int     `json:"max_depth,omitempty" jsonschema:"maximum link depth, default 3, hard max 5"`
	MaxPages        int     `json:"max_pages,omitempty" jsonschema:"maximum pages visited, default 100, hard max 250"`
	IncludeExternal bool    `json:"include_external,omitempty" jsonschema:"follow links leaving the seed's domain, default false"`
	Tags            string  `json:"tags,omitempty" jsonschema:"comma-separated tags applied to every stored page"`
	Retention       string  `json:"retention,omitempty" jsonschema:"retention applied to every stored page, default permanent"`
	ScoreThreshold  float64 `json:"score_threshold,omitempty" jsonschema:"reserved relevance cutoff, currently advisory only"`
}

func (in DeepCrawlInput) toOptions(discoveryOnly bool) deepcrawl.Options {
	return deepcrawl.Options{
		MaxDepth:        in.MaxDepth,
		MaxPages:        in.MaxPages,
		IncludeExternal: in.IncludeExternal,
		ScoreThreshold:  in.ScoreThreshold,
		Tags:            in.Tags,
		Retention:       in.Retention,
		DiscoveryOnly:   discoveryOnly,
	}
}

func (s *Server) handleDeepCrawlDFS(ctx context.Context, _ *mcp.CallToolRequest, in DeepCrawlInput) (*mcp.CallToolResult, Envelope[deepcrawl.Report], error) {
	report := s.crawler.Run(ctx, in.URL, in.toOptions(true))
	return nil, ok(report), nil
}

func (s *Server) handleDeepCrawlAndStore(ctx context.Context, _ *mcp.CallToolRequest, in DeepCrawlInput) (*mcp.CallToolResult, Envelope[deepcrawl.Report], error) {
	report := s.crawler.Run(ctx, in.URL, in.toOptions(false))
	return nil, ok(report), nil
}

// SearchMemoryInput runs a single-pass semantic search.
type SearchMemoryInput struct {
	Query string `json:"query" jsonschema:"the search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum results, default 10, hard max 1000"`
	Tags  string `json:"tags,omitempty" jsonschema:"comma-separated tags; a hit qualifies if it has any of them"`
}

func (s *Server) handleSearchMemory(ctx context.Context, _ *mcp.CallToolRequest, in SearchMemoryInput) (*mcp.CallToolResult, Envelope[[]storage.Hit], error) {
	tags, err := validator.Tags(in.Tags)
	if err != nil {
		return nil, fail[[]storage.Hit](err.Error()), nil
	}
	hits, err := s.search.Search(ctx, in.Query, in.Limit, tags)
	if err != nil {
		return nil, fail[[]storage.Hit](err.Error()), nil
	}
	return nil, ok(hits), nil
}

// TargetSearchInput runs the two-pass tag-expanding search.
type TargetSearchInput struct {
	Query         string `json:"query" jsonschema:"the search query"`
	InitialLimit  int    `json:"initial_limit,omitempty" jsonschema:"first-pass result count, default 10"`
	ExpandedLimit int    `json:"expanded_limit,omitempty" jsonschema:"second-pass result count, default 10"`
	Tags          string `json:"tags,omitempty" jsonschema:"explicit tags; always kept in the expanded pass even if not rediscovered"`
}

func (s *Server) handleTargetSearch(ctx context.Context, _ *mcp.CallToolRequest, in TargetSearchInput) (*mcp.CallToolResult, Envelope[search.TargetResult], error) {
	tags, err := validator.Tags(in.Tags)
	if err != nil {
		return nil, fail[search.TargetResult](err.Error()), nil
	}
	result, err := s.search.TargetSearch(ctx, in.Query, in.InitialLimit, in.ExpandedLimit, tags)
	if err != nil {
		return nil, fail[search.TargetResult](err.Error()), nil
	}
	return nil, ok(result), nil
}

// ListMemoryInput filters the stored content listing.
type ListMemoryInput struct {
	URLContains string `json:"url_contains,omitempty" jsonschema:"only rows whose URL contains this substring"`
	Retention   string `json:"retention,omitempty" jsonschema:"only rows with this exact retention value"`
	Tag         string `json:"tag,omitempty" jsonschema:"only rows carrying this tag"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum rows, default 50"`
	Offset      int    `json:"offset,omitempty" jsonschema:"pagination offset, default 0"`
}

func (s *Server) handleListMemory(ctx context.Context, _ *mcp.CallToolRequest, in ListMemoryInput) (*mcp.CallToolResult, Envelope[[]storage.ContentRow], error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.store.ListContent(ctx, storage.ListFilter{
		URLContains: in.URLContains,
		Retention:   in.Retention,
		Tag:         in.Tag,
	}, limit, in.Offset)
	if err != nil {
		return nil, fail[[]storage.ContentRow](err.Error()), nil
	}
	return nil, ok(rows), nil
}

// ForgetURLInput removes one stored URL.
type ForgetURLInput struct {
	URL string `json:"url" jsonschema:"the URL to remove from memory"`
}

// ForgetURLOutput reports how many rows were removed.
type ForgetURLOutput struct {
	Removed int64 `json:"n_removed"`
}

func (s *Server) handleForgetURL(ctx context.Context, _ *mcp.CallToolRequest, in ForgetURLInput) (*mcp.CallToolResult, Envelope[ForgetURLOutput], error) {
	n, err := s.store.ForgetURL(ctx, in.URL)
	if err != nil {
		return nil, fail[ForgetURLOutput](err.Error()), nil
	}
	return nil, ok(ForgetURLOutput{Removed: n}), nil
}

// ClearTempMemoryInput takes no arguments; it always clears the calling
// process's own session.
type ClearTempMemoryInput struct{}

// ClearTempMemoryOutput reports how many rows were removed.
type ClearTempMemoryOutput struct {
	Removed int64 `json:"n_removed"`
}

func (s *Server) handleClearTempMemory(ctx context.Context, _ *mcp.CallToolRequest, _ ClearTempMemoryInput) (*mcp.CallToolResult, Envelope[ClearTempMemoryOutput], error) {
	n, err := s.store.ClearSession(ctx, s.sessionID)
	if err != nil {
		return nil, fail[ClearTempMemoryOutput](err.Error()), nil
	}
	return nil, ok(ClearTempMemoryOutput{Removed: n}), nil
}

// GetDatabaseStatsInput takes no arguments.
type GetDatabaseStatsInput struct{}

func (s *Server) handleGetDatabaseStats(ctx context.Context, _ *mcp.CallToolRequest, _ GetDatabaseStatsInput) (*mcp.CallToolResult, Envelope[storage.Stats], error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fail[storage.Stats](err.Error()), nil
	}
	return nil, ok(stats), nil
}

// ListDomainsInput takes no arguments.
type ListDomainsInput struct{}

func (s *Server) handleListDomains(ctx context.Context, _ *mcp.CallToolRequest, _ ListDomainsInput) (*mcp.CallToolResult, Envelope[[]storage.DomainCount], error) {
	counts, err := s.store.DomainCounts(ctx)
	if err != nil {
		return nil, fail[[]storage.DomainCount](err.Error()), nil
	}
	return nil, ok(counts), nil
}

// BlockDomainInput adds a block pattern.
type BlockDomainInput struct {
	Pattern     string `json:"pattern" jsonschema:"*.tld, *keyword*, or an exact host"`
	Description string `json:"description,omitempty" jsonschema:"why this pattern is blocked"`
}

func (s *Server) handleBlockDomain(_ context.Context, _ *mcp.CallToolRequest, in BlockDomainInput) (*mcp.CallToolResult, Envelope[blocklist.Pattern], error) {
	if err := s.blocklist.Add(in.Pattern, in.Description); err != nil {
		return nil, fail[blocklist.Pattern](err.Error()), nil
	}
	return nil, ok(blocklist.Pattern{Pattern: in.Pattern, Description: in.Description}), nil
}

// UnblockDomainInput removes a block pattern, authorized by token.
type UnblockDomainInput struct {
	Pattern   string `json:"pattern" jsonschema:"the pattern to remove"`
	AuthToken string `json:"auth_token" jsonschema:"must match the configured block-removal token"`
}

// UnblockDomainOutput confirms removal.
type UnblockDomainOutput struct {
	Pattern string `json:"pattern"`
}

func (s *Server) handleUnblockDomain(_ context.Context, _ *mcp.CallToolRequest, in UnblockDomainInput) (*mcp.CallToolResult, Envelope[UnblockDomainOutput], error) {
	if err := s.blocklist.Remove(in.Pattern, in.AuthToken, s.blockRemovalToken); err != nil {
		return nil, fail[UnblockDomainOutput](err.Error()), nil
	}
	return nil, ok(UnblockDomainOutput{Pattern: in.Pattern}), nil
}

// ListBlockedDomainsInput takes no arguments.
type ListBlockedDomainsInput struct{}

func (s *Server) handleListBlockedDomains(_ context.Context, _ *mcp.CallToolRequest, _ ListBlockedDomainsInput) (*mcp.CallToolResult, Envelope[[]blocklist.Pattern], error) {
	patterns, err := s.blocklist.List()
	if err != nil {
		return nil, fail[[]blocklist.Pattern](err.Error()), nil
	}
	return nil, ok(patterns), nil
}
