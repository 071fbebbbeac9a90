// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package fetchclient wraps the external crawl/render service over HTTP.
// It performs individual page requests only; the deep crawler drives the
// tree of requests, not this package.
package fetchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultSinglePageTimeout = 30 * time.Second
	defaultBatchTimeout      = 60 * time.Second
)

// ErrorKind classifies why a fetch failed, per the external error taxonomy.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindHTTP      ErrorKind = "http_error"
	KindNetwork   ErrorKind = "network"
	KindMalformed ErrorKind = "malformed"
)

// Error is the typed error every Client method returns on failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetchclient: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("fetchclient: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the normalized output of a single-page fetch.
type Result struct {
	Title       string
	CleanedHTML string
	Markdown    string
	Status      int
}

var excludedTags = []string{"nav", "header", "footer", "aside", "script", "style", "noscript"}

type crawlRequest struct {
	URLs               []string `json:"urls"`
	WordCountThreshold int      `json:"word_count_threshold"`
	ExcludedTags       []string `json:"excluded_tags"`
	RemoveForms        bool     `json:"remove_forms"`
	OnlyText           bool     `json:"only_text"`
}

type crawlResponseItem struct {
	CleanedHTML string `json:"cleaned_html"`
	Markdown    struct {
		FitMarkdown string `json:"fit_markdown"`
		RawMarkdown string `json:"raw_markdown"`
	} `json:"markdown"`
	Metadata struct {
		Title string `json:"title"`
	} `json:"metadata"`
	Status int `json:"status"`
}

type crawlResponse struct {
	Results []crawlResponseItem `json:"results"`
}

// Client calls a configured crawl-service endpoint.
type Client struct {
	endpoint          string
	httpClient        *http.Client
	singlePageTimeout time.Duration
	batchTimeout      time.Duration
}

// New creates a Client targeting endpoint, the crawl service URL every
// fetch POSTs its request to.
func New(endpoint string) *Client {
	return &Client{
		endpoint:          endpoint,
		httpClient:        &http.Client{},
		singlePageTimeout: defaultSinglePageTimeout,
		batchTimeout:      defaultBatchTimeout,
	}
}

// Fetch retrieves one page from the crawl service with the single-page
// timeout.
func (c *Client) Fetch(ctx context.Context, url string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.singlePageTimeout)
	defer cancel()
	return c.fetchOne(ctx, url)
}

func (c *Client) fetchOne(ctx context.Context, url string) (Result, error) {
	reqBody := crawlRequest{
		URLs:               []string{url},
		WordCountThreshold: 10,
		ExcludedTags:       excludedTags,
		RemoveForms:        true,
		OnlyText:           true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, &Error{Kind: KindMalformed, Message: "encode request body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, &Error{Kind: KindTimeout, Message: "fetch timed out", Err: err}
		}
		return Result{}, &Error{Kind: KindNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Message: "read response body", Err: err}
	}

	if resp.StatusCode >= 400 {
		return Result{}, &Error{
			Kind:    KindHTTP,
			Message: fmt.Sprintf("crawl service returned %d", resp.StatusCode),
		}
	}

	var parsed crawlResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return Result{}, &Error{Kind: KindMalformed, Message: "decode response", Err: err}
	}
	if len(parsed.Results) == 0 {
		return Result{}, &Error{Kind: KindMalformed, Message: "empty results array"}
	}

	item := parsed.Results[0]
	markdown := item.Markdown.FitMarkdown
	if markdown == "" {
		markdown = item.Markdown.RawMarkdown
	}

	status := item.Status
	if status == 0 {
		status = resp.StatusCode
	}

	return Result{
		Title:       item.Metadata.Title,
		CleanedHTML: item.CleanedHTML,
		Markdown:    markdown,
		Status:      status,
	}, nil
}

// PageResult pairs a URL with its fetch outcome for deep_fetch streaming.
type PageResult struct {
	URL    string
	Result Result
	Err    error
}

// DeepFetch fetches every url in urls with the batch timeout applied to the
// whole call, streaming each outcome on the returned channel as it
// completes. The channel is closed once every URL has been attempted or ctx
// is done.
func (c *Client) DeepFetch(ctx context.Context, urls []string) <-chan PageResult {
	out := make(chan PageResult, len(urls))

	go func() {
		defer close(out)
		ctx, cancel := context.WithTimeout(ctx, c.batchTimeout)
		defer cancel()

		for _, url := range urls {
			select {
			case <-ctx.Done():
				out <- PageResult{URL: url, Err: &Error{Kind: KindTimeout, Message: "deep fetch deadline exceeded"}}
				continue
			default:
			}

			res, err := c.fetchOne(ctx, url)
			out <- PageResult{URL: url, Result: res, Err: err}
		}
	}()

	return out
}
