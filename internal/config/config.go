// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/northbound/crawlmemory/internal/logger"
)

// Config holds the process-wide settings built once at startup and passed
// by reference into every constructor.
type Config struct {
	IsServer  bool
	UseMemory bool

	ServerHost string
	ServerPort string

	CrawlerURL string
	DBPath     string

	APIKey             string
	RateLimitPerMinute int
	BlockRemovalToken  string

	RemoteAPIURL string
	RemoteAPIKey string

	RedisAddr     string
	RedisDB       int
	RedisPassword string

	EmbedderType      string
	EmbedderModel     string
	EmbedderDimension int
	OpenAIAPIKey      string
	OllamaBaseURL     string
}

// Load reads .env (if present) and environment variables into a Config.
// Every field has the default documented for its environment variable.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("config: no .env file loaded: %v", err)
	}

	cfg := &Config{
		IsServer:           getBool("IS_SERVER", true),
		UseMemory:          getBool("USE_MEMORY_DB", true),
		ServerHost:         getString("SERVER_HOST", "0.0.0.0"),
		ServerPort:         getString("SERVER_PORT", "8080"),
		CrawlerURL:         getString("CRAWLER_URL", "http://localhost:11235/crawl"),
		DBPath:             getString("DB_PATH", "./data/crawlmemory.db"),
		APIKey:             getString("API_KEY", ""),
		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 60),
		BlockRemovalToken:  getString("BLOCK_REMOVAL_TOKEN", ""),
		RemoteAPIURL:       getString("REMOTE_API_URL", ""),
		RemoteAPIKey:       getString("REMOTE_API_KEY", ""),
		RedisAddr:          getString("REDIS_ADDR", "127.0.0.1:6379"),
		RedisDB:            getInt("REDIS_DB", 0),
		RedisPassword:      getString("REDIS_PASSWORD", ""),
		EmbedderType:       getString("EMBEDDER_TYPE", "mock"),
		EmbedderModel:      getString("EMBEDDER_MODEL", ""),
		EmbedderDimension:  getInt("EMBEDDER_DIMENSION", 384),
		OpenAIAPIKey:       getString("OPENAI_API_KEY", ""),
		OllamaBaseURL:      getString("OLLAMA_BASE_URL", "http://localhost:11434"),
	}

	return cfg
}

// NewRedisClient dials Redis using the config's settings. Callers treat a
// non-nil error as "Redis unavailable" and continue without queue
// notifications rather than failing startup.
func NewRedisClient(ctx context.Context, cfg *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

func getString(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}
