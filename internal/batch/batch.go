// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package batch drives a bounded-concurrency recrawl of a list of URLs
// through the ingestion pipeline, aggregating per-URL outcomes.
package batch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/logger"
)

const (
	defaultMaxConcurrent = 10
	defaultPerURLTimeout = 60 * time.Second
	progressEvery        = 50
)

// Options configures one batch run.
type Options struct {
	MaxConcurrent  int
	PerURLTimeout  time.Duration
	InterDispatch  time.Duration // optional rate-shaping delay before each dispatch
	Tags           string
	Retention      string
	FailedURLsPath string // sidecar file written on completion; empty disables it
}

func (o Options) normalize() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = defaultMaxConcurrent
	}
	if o.PerURLTimeout <= 0 {
		o.PerURLTimeout = defaultPerURLTimeout
	}
	return o
}

// URLResult is one URL's outcome.
type URLResult struct {
	URL       string  `json:"url"`
	Success   bool    `json:"success"`
	DurationS float64 `json:"duration_s"`
	Error     string  `json:"error,omitempty"`
}

// Summary aggregates a full run.
type Summary struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	ElapsedS  float64     `json:"elapsed_s"`
	Results   []URLResult `json:"results"`
}

// Driver runs Ingestion over many URLs concurrently.
type Driver struct {
	pipeline *ingest.Pipeline
}

// New builds a Driver around pipeline.
func New(pipeline *ingest.Pipeline) *Driver {
	return &Driver{pipeline: pipeline}
}

// Run recrawls every URL in urls, bounded by opts.MaxConcurrent in flight
// at once, each under its own opts.PerURLTimeout. Progress is logged every
// 50 completions. On completion, failed URLs are written to
// opts.FailedURLsPath if set.
func (d *Driver) Run(ctx context.Context, urls []string, opts Options) (Summary, error) {
	opts = opts.normalize()
	start := time.Now()

	sem := make(chan struct{}, opts.MaxConcurrent)
	results := make([]URLResult, len(urls))

	var wg sync.WaitGroup
	var completed int64
	var mu sync.Mutex

	for i, rawURL := range urls {
		if opts.InterDispatch > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.InterDispatch):
			}
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = URLResult{URL: rawURL, Success: false, Error: ctx.Err().Error()}
			continue
		}

		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = d.runOne(ctx, url, opts)

			mu.Lock()
			completed++
			n := completed
			mu.Unlock()
			if n%progressEvery == 0 {
				logger.Printf("batch: progress %d/%d completed, elapsed=%s", n, len(urls), time.Since(start))
			}
		}(i, rawURL)
	}

	wg.Wait()

	summary := Summary{Total: len(urls), ElapsedS: time.Since(start).Seconds(), Results: results}
	var failedURLs []string
	for _, r := range results {
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
			failedURLs = append(failedURLs, r.URL)
		}
	}

	if opts.FailedURLsPath != "" && len(failedURLs) > 0 {
		if err := writeFailedURLs(opts.FailedURLsPath, failedURLs); err != nil {
			logger.Warnf("batch: write failed-url sidecar %s: %v", opts.FailedURLsPath, err)
		}
	}

	return summary, nil
}

func (d *Driver) runOne(ctx context.Context, url string, opts Options) URLResult {
	ctx, cancel := context.WithTimeout(ctx, opts.PerURLTimeout)
	defer cancel()

	start := time.Now()
	report := d.pipeline.Run(ctx, ingest.Input{
		URL:       url,
		Tags:      opts.Tags,
		Retention: opts.Retention,
		Store:     true,
	})
	elapsed := time.Since(start).Seconds()

	if !report.Success {
		return URLResult{URL: url, Success: false, DurationS: elapsed, Error: report.Error}
	}
	return URLResult{URL: url, Success: true, DurationS: elapsed}
}

func writeFailedURLs(path string, urls []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sidecar file: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(strings.Join(urls, "\n") + "\n")
	return err
}
