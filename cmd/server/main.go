// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/northbound/crawlmemory/internal/blocklist"
	"github.com/northbound/crawlmemory/internal/config"
	"github.com/northbound/crawlmemory/internal/database"
	"github.com/northbound/crawlmemory/internal/deepcrawl"
	"github.com/northbound/crawlmemory/internal/embeddings"
	"github.com/northbound/crawlmemory/internal/fetchclient"
	"github.com/northbound/crawlmemory/internal/ingest"
	"github.com/northbound/crawlmemory/internal/kgqueue"
	"github.com/northbound/crawlmemory/internal/logger"
	"github.com/northbound/crawlmemory/internal/mcpserver"
	"github.com/northbound/crawlmemory/internal/ratelimit"
	"github.com/northbound/crawlmemory/internal/search"
	"github.com/northbound/crawlmemory/internal/server"
	"github.com/northbound/crawlmemory/internal/storage"
	"github.com/northbound/crawlmemory/internal/syncmanager"
)

var (
	logFile  = flag.String("log-file", "crawlmemory.log", "log file path")
	stdioMCP = flag.Bool("mcp", false, "serve the MCP tool surface over stdio instead of HTTP")
)

func main() {
	flag.Parse()

	if _, err := logger.Init(*logFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v, using stdout only\n", err)
	}

	cfg := config.Load()

	embedder := initEmbedder(cfg)

	store, err := storage.Open(cfg.DBPath, cfg.UseMemory, embedder)
	if err != nil {
		logger.Fatalf("failed to open storage engine: %v", err)
	}
	defer store.Close()

	sessionID := uuid.NewString()
	if err := store.CreateSession(context.Background(), sessionID); err != nil {
		logger.Fatalf("failed to create session: %v", err)
	}
	logger.Printf("session: %s", sessionID)

	metadata, err := database.NewMetadataStore(store.DiskHandle())
	if err != nil {
		logger.Fatalf("failed to init metadata store: %v", err)
	}
	if err := metadata.EnsureInstallDate(); err != nil {
		logger.Warnf("failed to record install date: %v", err)
	}
	if err := metadata.EnsureSchemaVersion(); err != nil {
		logger.Warnf("failed to record schema version: %v", err)
	}
	needsRebuild, err := metadata.NeedsVectorRebuild(embedder.Dimension())
	if err != nil {
		logger.Warnf("failed to check embedding dimension: %v", err)
	} else if needsRebuild {
		logger.Warnf("embedder dimension changed to %d; existing vectors were built against a different width and should be re-ingested", embedder.Dimension())
	}
	if err := metadata.RecordEmbeddingDimension(embedder.Dimension()); err != nil {
		logger.Warnf("failed to record embedding dimension: %v", err)
	}

	audit, err := database.NewAuditLogStore(store.DiskHandle())
	if err != nil {
		logger.Fatalf("failed to init audit log store: %v", err)
	}

	bl, err := blocklist.New(store.DiskHandle())
	if err != nil {
		logger.Fatalf("failed to init blocklist store: %v", err)
	}

	var kg *kgqueue.Notifier
	ctx := context.Background()
	redisClient, err := config.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warnf("redis unavailable at %s: %v, knowledge-graph notifications disabled", cfg.RedisAddr, err)
	} else {
		logger.Printf("connected to redis at %s", cfg.RedisAddr)
		kg = kgqueue.New(store, redisClient, "kg:pending")
	}

	fetcher := fetchclient.New(cfg.CrawlerURL)
	pipeline := ingest.New(bl, fetcher, store, kg, sessionID)
	crawler := deepcrawl.New(pipeline)
	searchEngine := search.New(embedder, store)

	var syncManager *syncmanager.Manager
	if cfg.UseMemory {
		syncManager, err = syncmanager.New(store)
		if err != nil {
			logger.Fatalf("failed to init sync manager: %v", err)
		}
		syncManager.Start()
	}

	if *stdioMCP {
		runMCP(pipeline, crawler, searchEngine, store, bl, cfg, sessionID)
		return
	}

	httpServer := buildHTTPServer(pipeline, crawler, searchEngine, store, bl, syncManager, audit, metadata, cfg, sessionID)

	go func() {
		logger.Printf("http: listening on %s:%s", cfg.ServerHost, cfg.ServerPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, syncManager)
}

func runMCP(pipeline *ingest.Pipeline, crawler *deepcrawl.Crawler, searchEngine *search.Engine, store *storage.Engine, bl *blocklist.Store, cfg *config.Config, sessionID string) {
	mcp := mcpserver.New(pipeline, crawler, searchEngine, store, bl, cfg.BlockRemovalToken, sessionID)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if err := mcp.Serve(ctx); err != nil {
		logger.Errorf("mcp server error: %v", err)
	}
}

func buildHTTPServer(
	pipeline *ingest.Pipeline,
	crawler *deepcrawl.Crawler,
	searchEngine *search.Engine,
	store *storage.Engine,
	bl *blocklist.Store,
	syncManager *syncmanager.Manager,
	audit *database.AuditLogStore,
	metadata *database.MetadataStore,
	cfg *config.Config,
	sessionID string,
) *http.Server {
	srv := server.New(pipeline, crawler, searchEngine, store, bl, syncManager, audit, metadata, cfg.BlockRemovalToken, sessionID)
	gate := ratelimit.New(cfg.APIKey, cfg.RateLimitPerMinute)

	return &http.Server{
		Addr:    cfg.ServerHost + ":" + cfg.ServerPort,
		Handler: srv.Routes(gate),
	}
}

func initEmbedder(cfg *config.Config) embeddings.Embedder {
	embedderConfig := map[string]string{
		"api_key":   cfg.OpenAIAPIKey,
		"model":     cfg.EmbedderModel,
		"base_url":  cfg.OllamaBaseURL,
		"dimension": fmt.Sprintf("%d", cfg.EmbedderDimension),
	}

	embedder, err := embeddings.NewEmbedder(cfg.EmbedderType, embedderConfig)
	if err != nil {
		logger.Fatalf("failed to initialize embedder %q: %v", cfg.EmbedderType, err)
	}
	logger.Printf("initialized embedder: %s (dimension: %d)", cfg.EmbedderType, embedder.Dimension())
	return embedder
}

func waitForShutdown(httpServer *http.Server, syncManager *syncmanager.Manager) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")

	if syncManager != nil {
		if err := syncManager.Shutdown(ctx); err != nil {
			logger.Errorf("sync manager shutdown error: %v", err)
		}
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("http shutdown error: %v", err)
	}
	if err := logger.GetDefault().Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", err)
	}
}
