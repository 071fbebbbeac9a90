// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package deepcrawl explores linked pages from a seed URL depth-first,
// feeding every accepted page through the ingestion pipeline.
package deepcrawl

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/logger"
)

const (
	defaultMaxDepth = 3
	hardMaxDepth    = 5
	defaultMaxPages = 100
	hardMaxPages    = 250
	linksPerPage    = 5
	defaultTimeout  = 5 * time.Minute
)

var nonContentExtensions = []string{
	".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp",
	".pdf", ".zip", ".gz", ".tar", ".mp4", ".mp3", ".ico", ".woff", ".woff2",
}

// Options bounds one deep crawl.
type Options struct {
	MaxDepth        int
	MaxPages        int
	IncludeExternal bool
	ScoreThreshold  float64
	Timeout         time.Duration
	Tags            string
	Retention       string

	// DiscoveryOnly, when true, fetches pages and follows links without
	// persisting anything — used by the dfs-only tool variant that just
	// reports what a crawl would visit.
	DiscoveryOnly bool
}

func (o Options) normalize() Options {
	if o.MaxDepth <= 0 || o.MaxDepth > hardMaxDepth {
		o.MaxDepth = defaultMaxDepth
	}
	if o.MaxPages <= 0 || o.MaxPages > hardMaxPages {
		o.MaxPages = defaultMaxPages
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// Report aggregates the outcome of a full crawl.
type Report struct {
	SeedURL string          `json:"seed_url"`
	Stored  []ingest.Report `json:"stored"`
	Failed  []ingest.Report `json:"failed"`
}

type frontierEntry struct {
	url   string
	depth int
}

// Crawler drives the DFS traversal over a seed URL, delegating each
// accepted page's fetch/clean/chunk/embed/store work to an ingest.Pipeline
// and reusing that same fetch's HTML to discover outbound links for the
// next depth rather than fetching each page twice.
type Crawler struct {
	pipeline *ingest.Pipeline
}

// New builds a Crawler around pipeline, which performs
// validate/fetch/clean/chunk/embed/store for every accepted URL.
func New(pipeline *ingest.Pipeline) *Crawler {
	return &Crawler{pipeline: pipeline}
}

// Run performs the depth-first crawl starting at seedURL.
func (c *Crawler) Run(ctx context.Context, seedURL string, opts Options) Report {
	opts = opts.normalize()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	seedHost := hostOf(seedURL)

	report := Report{SeedURL: seedURL}
	visited := make(map[string]bool)
	frontier := []frontierEntry{{url: seedURL, depth: 0}}

	for len(frontier) > 0 {
		if ctx.Err() != nil {
			break
		}
		if len(report.Stored)+len(report.Failed) >= opts.MaxPages {
			break
		}

		// pop from the back: depth-first
		entry := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		if visited[entry.url] {
			continue
		}
		visited[entry.url] = true

		ingestReport := c.pipeline.Run(ctx, ingest.Input{
			URL:       entry.url,
			Tags:      opts.Tags,
			Retention: opts.Retention,
			Store:     !opts.DiscoveryOnly,
		})

		if !ingestReport.Success {
			report.Failed = append(report.Failed, ingestReport)
			continue
		}
		report.Stored = append(report.Stored, ingestReport)

		if entry.depth+1 > opts.MaxDepth {
			continue
		}

		links, err := extractLinks(entry.url, ingestReport.RawHTML)
		if err != nil {
			logger.Warnf("deepcrawl: extract links from %s: %v", entry.url, err)
			continue
		}

		for _, link := range links {
			if visited[link] {
				continue
			}
			if !opts.IncludeExternal && hostOf(link) != seedHost {
				continue
			}
			if hasNonContentExtension(link) {
				continue
			}
			frontier = append(frontier, frontierEntry{url: link, depth: entry.depth + 1})
		}
	}

	return report
}

func extractLinks(pageURL, html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var links []string
	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(links) >= linksPerPage {
			return false
		}
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		resolved, err := resolveLink(base, href)
		if err == nil && resolved != "" {
			links = append(links, resolved)
		}
		return true
	})

	return links, nil
}

func resolveLink(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return "", nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String(), nil
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func hasNonContentExtension(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	lower := strings.ToLower(parsed.Path)
	for _, ext := range nonContentExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
