// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package ingest orchestrates the validate-fetch-clean-chunk-embed-store
// pipeline that turns one URL into durable content, chunk, and vector rows.
package ingest

import (
	"context"
	"fmt"

	"github.com/northbound/crawlmemory/internal/blocklist"
	"github.com/northbound/crawlmemory/internal/cleaner"
	"github.com/northbound/crawlmemory/internal/fetchclient"
	"github.com/northbound/crawlmemory/internal/kgqueue"
	"github.com/northbound/crawlmemory/internal/logger"
	"github.com/northbound/crawlmemory/internal/storage"
	"github.com/northbound/crawlmemory/internal/validator"
)

// Input describes one ingestion request.
type Input struct {
	URL       string
	Retention string
	Tags      string
	Metadata  string
	Store     bool // false => fetch only; cleaning, chunking and every write are skipped
}

// Report is the deterministic outcome of an ingestion attempt.
type Report struct {
	Success     bool   `json:"success"`
	URL         string `json:"url"`
	ContentID   int64  `json:"content_id,omitempty"`
	Title       string `json:"title,omitempty"`
	ChunksTotal int    `json:"chunks_total,omitempty"`
	ChunksKept  int    `json:"chunks_kept,omitempty"`
	Warning     string `json:"warning,omitempty"`
	Error       string `json:"error,omitempty"`
	BlockedBy   string `json:"blocked_by,omitempty"`

	// RawHTML is the fetched page body, kept only so the deep crawler can
	// extract outbound links without a second fetch. Never serialized.
	RawHTML string `json:"-"`
}

// Pipeline wires the components an ingestion needs.
type Pipeline struct {
	blocklist *blocklist.Store
	fetcher   *fetchclient.Client
	engine    *storage.Engine
	kg        *kgqueue.Notifier

	// sessionID is the one process-lifetime session id, generated at
	// startup and immutable for the life of the process. session_only
	// content is always scoped to it, never to a caller-supplied id.
	sessionID string
}

// New constructs a Pipeline. kg may be nil; KG rows are still durably
// queued, just not announced over Redis. sessionID scopes every
// session_only ingestion to the calling process's single session.
func New(bl *blocklist.Store, fetcher *fetchclient.Client, engine *storage.Engine, kg *kgqueue.Notifier, sessionID string) *Pipeline {
	return &Pipeline{blocklist: bl, fetcher: fetcher, engine: engine, kg: kg, sessionID: sessionID}
}

// Run executes the full pipeline for one URL. Steps 1-2 are fatal: a
// validation, blocklist, or fetch failure aborts with no state change.
// Cleaning never aborts; an unclean result is recorded as a warning.
func (p *Pipeline) Run(ctx context.Context, in Input) Report {
	report := Report{URL: in.URL}

	cleanURL, err := validator.URL(in.URL)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	in.URL = cleanURL

	if in.Retention != "" {
		retention, err := validator.Retention(in.Retention)
		if err != nil {
			report.Error = err.Error()
			return report
		}
		in.Retention = retention
	} else {
		in.Retention = "permanent"
	}

	tags, err := validator.Tags(in.Tags)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	blocked, err := p.blocklist.IsBlocked(in.URL)
	if err != nil {
		report.Error = fmt.Sprintf("blocklist check failed: %v", err)
		return report
	}
	if blocked.Blocked {
		report.BlockedBy = blocked.Pattern
		report.Error = fmt.Sprintf("url blocked by pattern %q: %s", blocked.Pattern, blocked.Reason)
		return report
	}

	fetched, err := p.fetcher.Fetch(ctx, in.URL)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Title = fetched.Title
	report.RawHTML = fetched.CleanedHTML

	if !in.Store {
		report.Success = true
		return report
	}

	cleaned := cleaner.Clean(fetched.Markdown, in.URL)
	if !cleaned.IsClean {
		report.Warning = "content did not meet cleanliness threshold; stored anyway"
	}

	tagsCSV := joinTags(tags)

	sessionID := ""
	if in.Retention == "session_only" {
		sessionID = p.sessionID
	}

	contentID, err := p.engine.UpsertContent(ctx, in.URL, fetched.Title, cleaned.Cleaned, in.Retention, tagsCSV, in.Metadata, sessionID)
	if err != nil {
		report.Error = fmt.Sprintf("store content: %v", err)
		return report
	}

	nChunks, nKept, err := p.engine.GenerateAndStoreVectors(ctx, contentID, cleaned.Cleaned)
	if err != nil {
		report.Error = fmt.Sprintf("generate vectors: %v", err)
		return report
	}

	if err := p.enqueueKG(ctx, contentID); err != nil {
		logger.Warnf("ingest: enqueue kg row for content %d: %v", contentID, err)
	}

	report.Success = true
	report.ContentID = contentID
	report.ChunksTotal = nChunks
	report.ChunksKept = nKept
	return report
}

func (p *Pipeline) enqueueKG(ctx context.Context, contentID int64) error {
	if p.kg == nil {
		return kgqueue.New(p.engine, nil, "").Enqueue(ctx, contentID)
	}
	return p.kg.Enqueue(ctx, contentID)
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
