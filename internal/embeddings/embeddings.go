// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package embeddings adapts the crawl memory's text to vectors: one
// Embedder implementation per backend (OpenAI, Ollama, or a deterministic
// mock for tests), selected by name and dimension at startup.
package embeddings

import (
	"context"
	"fmt"
	"strconv"
)

// Embedder turns text into fixed-width vectors. Every implementation must
// be deterministic for a given model and input ordering: the same text
// embedded twice produces the same vector, and EmbedBatch(texts) must equal
// EmbedText applied to each element of texts in order.
type Embedder interface {
	// EmbedText generates an embedding vector for the given text.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts (more efficient
	// than calling EmbedText in a loop for backends that batch server-side).
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the width of every vector this embedder produces.
	Dimension() int
}

// Error reports a failure within the embeddings package, satisfying the
// knowledge base's EmbedError category: construction or call failures are
// always attributable to one adapter and one operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embeddings: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewEmbedder builds an Embedder for embedderType ("openai", "ollama", or
// "mock"), reading backend settings out of config. config["dimension"], if
// set and parseable, replaces the width every backend reports through
// Dimension(). The openai and ollama adapters do not pass that width to the
// model, so the vectors they return keep the model's own width.
func NewEmbedder(embedderType string, config map[string]string) (Embedder, error) {
	dimOverride := 0
	if raw := config["dimension"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			dimOverride = n
		}
	}

	switch embedderType {
	case "openai":
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, &Error{Op: "new_embedder", Err: fmt.Errorf("openai api_key is required")}
		}
		model := config["model"]
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIEmbedder(apiKey, model, dimOverride)
	case "ollama":
		baseURL := config["base_url"]
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := config["model"]
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaEmbedder(baseURL, model, dimOverride)
	case "mock":
		dim := dimOverride
		if dim == 0 {
			dim = 384
		}
		return NewMockEmbedder(dim), nil
	default:
		return nil, &Error{Op: "new_embedder", Err: fmt.Errorf("unknown embedder type: %s", embedderType)}
	}
}
