// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/northbound/crawlmemory/internal/batch"
	"github.com/northbound/crawlmemory/internal/blocklist"
	"github.com/northbound/crawlmemory/internal/config"
	"github.com/northbound/crawlmemory/internal/embeddings"
	"github.com/northbound/crawlmemory/internal/fetchclient"
	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/logger"
	"github.com/northbound/crawlmemory/internal/storage"
)

var (
	urlsPath       = flag.String("urls", "", "path to a newline-delimited list of URLs to recrawl")
	tags           = flag.String("tags", "", "comma-separated tags applied to every stored page")
	retention      = flag.String("retention", "permanent", "retention policy applied to every stored page")
	maxConcurrent  = flag.Int("concurrency", 10, "maximum in-flight crawls")
	perURLTimeout  = flag.Duration("timeout", 60*time.Second, "per-URL fetch timeout")
	interDispatch  = flag.Duration("dispatch-delay", 0, "delay before dispatching each URL, for rate shaping")
	failedURLsPath = flag.String("failed-out", "", "path to write URLs that failed, one per line, defaults to <urls>.failed.txt")
	summaryPath    = flag.String("summary-out", "", "path to write the run summary as JSON, defaults to stdout")
)

func main() {
	flag.Parse()

	if *urlsPath == "" {
		logger.Fatalf("-urls is required")
	}
	if *failedURLsPath == "" {
		*failedURLsPath = *urlsPath + ".failed.txt"
	}

	if _, err := logger.Init("batchload.log"); err != nil {
		logger.Warnf("failed to initialize file logger: %v, using stdout only", err)
	}

	cfg := config.Load()

	urls, err := readURLList(*urlsPath)
	if err != nil {
		logger.Fatalf("failed to read url list: %v", err)
	}
	if len(urls) == 0 {
		logger.Fatalf("url list at %s is empty", *urlsPath)
	}

	embedder, err := embeddings.NewEmbedder(cfg.EmbedderType, map[string]string{
		"api_key":   cfg.OpenAIAPIKey,
		"model":     cfg.EmbedderModel,
		"base_url":  cfg.OllamaBaseURL,
		"dimension": strconv.Itoa(cfg.EmbedderDimension),
	})
	if err != nil {
		logger.Fatalf("failed to initialize embedder: %v", err)
	}

	store, err := storage.Open(cfg.DBPath, cfg.UseMemory, embedder)
	if err != nil {
		logger.Fatalf("failed to open storage engine: %v", err)
	}
	defer store.Close()

	bl, err := blocklist.New(store.DiskHandle())
	if err != nil {
		logger.Fatalf("failed to init blocklist store: %v", err)
	}

	sessionID := uuid.NewString()
	if err := store.CreateSession(context.Background(), sessionID); err != nil {
		logger.Fatalf("failed to create session: %v", err)
	}

	fetcher := fetchclient.New(cfg.CrawlerURL)
	pipeline := ingest.New(bl, fetcher, store, nil, sessionID)
	driver := batch.New(pipeline)

	logger.Printf("batchload: starting run of %d urls, concurrency=%d", len(urls), *maxConcurrent)

	summary, err := driver.Run(context.Background(), urls, batch.Options{
		MaxConcurrent:  *maxConcurrent,
		PerURLTimeout:  *perURLTimeout,
		InterDispatch:  *interDispatch,
		Tags:           *tags,
		Retention:      *retention,
		FailedURLsPath: *failedURLsPath,
	})
	if err != nil {
		logger.Fatalf("batch run failed: %v", err)
	}

	logger.Printf("batchload: finished, %d/%d succeeded in %.1fs", summary.Succeeded, summary.Total, summary.ElapsedS)

	if err := writeSummary(summary, *summaryPath); err != nil {
		logger.Errorf("failed to write summary: %v", err)
	}
}

func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

func writeSummary(summary batch.Summary, path string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0644)
}
