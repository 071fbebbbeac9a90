// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package search wraps the storage engine's vector search with input
// validation and the two-pass target_search tag-expansion variant.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/northbound/crawlmemory/internal/embeddings"
	"github.com/northbound/crawlmemory/internal/storage"
	"github.com/northbound/crawlmemory/internal/validator"
)

const (
	defaultLimit = 10
	minLimit     = 1
	maxLimit     = 1000
)

// Engine embeds a query and ranks stored chunks against it.
type Engine struct {
	embedder embeddings.Embedder
	store    *storage.Engine
}

// New builds a search Engine around store, embedding queries with embedder.
func New(embedder embeddings.Embedder, store *storage.Engine) *Engine {
	return &Engine{embedder: embedder, store: store}
}

// Search validates query/limit/tags, embeds the query, and returns up to
// limit hits ranked descending by similarity.
func (e *Engine) Search(ctx context.Context, query string, limit int, tags []string) ([]storage.Hit, error) {
	cleanQuery, err := validator.String("query", query, validator.MaxQueryLength)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit < minLimit || limit > maxLimit {
		return nil, fmt.Errorf("search: limit must be in [%d,%d], got %d", minLimit, maxLimit, limit)
	}

	vector, err := e.embedder.EmbedText(ctx, cleanQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return e.store.Search(ctx, vector, limit, tags)
}

// TargetResult is the two-pass search outcome.
type TargetResult struct {
	Results        []storage.Hit `json:"results"`
	DiscoveredTags []string      `json:"discovered_tags"`
	ExpansionUsed  bool          `json:"expansion_used"`
}

// TargetSearch runs an initial pass, collects the tags carried by its
// hits, and — only when the first pass discovered any tags — runs a second
// pass against the union of explicitTags and discovered tags, merging and
// re-ranking by similarity. With no discovered tags it returns the first
// pass truncated to expandedLimit, even when explicitTags is non-empty. Explicit
// user-supplied tags are always the floor of the second pass: they are
// never dropped in favor of discovered tags.
func (e *Engine) TargetSearch(ctx context.Context, query string, initialLimit, expandedLimit int, explicitTags []string) (TargetResult, error) {
	if initialLimit <= 0 {
		initialLimit = defaultLimit
	}
	if expandedLimit <= 0 {
		expandedLimit = defaultLimit
	}

	first, err := e.Search(ctx, query, initialLimit, explicitTags)
	if err != nil {
		return TargetResult{}, err
	}

	discovered := discoverTags(first)
	result := TargetResult{DiscoveredTags: discovered}

	unionTags := unionStrings(explicitTags, discovered)
	if len(discovered) == 0 {
		result.Results = truncateHits(first, expandedLimit)
		result.ExpansionUsed = false
		return result, nil
	}

	second, err := e.Search(ctx, query, expandedLimit, unionTags)
	if err != nil {
		return TargetResult{}, err
	}

	merged := mergeByURL(first, second)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })

	result.Results = truncateHits(merged, expandedLimit)
	result.ExpansionUsed = true
	return result, nil
}

// discoverTags collects every tag seen across hits, ordered by descending
// frequency then lexically for ties, so the expansion is stable across
// runs on the same data.
func discoverTags(hits []storage.Hit) []string {
	counts := make(map[string]int)
	for _, h := range hits {
		for _, t := range splitTags(h.Tags) {
			counts[t]++
		}
	}

	tags := make([]string, 0, len(counts))
	for t := range counts {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	return tags
}

func splitTags(csv string) []string {
	var out []string
	for _, raw := range strings.Split(csv, ",") {
		tag := strings.TrimSpace(raw)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range a {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeByURL(a, b []storage.Hit) []storage.Hit {
	best := make(map[string]storage.Hit)
	for _, h := range a {
		best[h.URL] = h
	}
	for _, h := range b {
		if existing, ok := best[h.URL]; !ok || h.Similarity > existing.Similarity {
			best[h.URL] = h
		}
	}
	out := make([]storage.Hit, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	return out
}

func truncateHits(hits []storage.Hit, limit int) []storage.Hit {
	if len(hits) > limit {
		return hits[:limit]
	}
	return hits
}
