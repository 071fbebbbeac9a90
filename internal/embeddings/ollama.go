// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const ollamaDefaultDimension = 768 // nomic-embed-text's native width

// OllamaEmbedder calls a locally-running Ollama instance's /api/embeddings
// endpoint, one request per text (Ollama has no native batch endpoint).
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
	dim     int
}

// NewOllamaEmbedder builds an OllamaEmbedder against baseURL/model.
// dimOverride, when positive, replaces the package default width; use it
// when model is not nomic-embed-text.
func NewOllamaEmbedder(baseURL, model string, dimOverride int) (*OllamaEmbedder, error) {
	dim := ollamaDefaultDimension
	if dimOverride > 0 {
		dim = dimOverride
	}

	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second}, // local inference can be slow
		dim:     dim,
	}, nil
}

// Dimension returns the configured vector width.
func (e *OllamaEmbedder) Dimension() int {
	return e.dim
}

// EmbedText requests a single embedding from Ollama.
func (e *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{Model: e.model, Prompt: text})
	if err != nil {
		return nil, &Error{Op: "ollama_embed_text", Err: err}
	}

	endpoint := fmt.Sprintf("%s/api/embeddings", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Op: "ollama_embed_text", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &Error{Op: "ollama_embed_text", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, &Error{Op: "ollama_embed_text", Err: fmt.Errorf("ollama returned %d: %s", resp.StatusCode, payload)}
	}

	var decoded struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &Error{Op: "ollama_embed_text", Err: err}
	}

	vec := make([]float32, len(decoded.Embedding))
	for i, v := range decoded.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// EmbedBatch calls EmbedText for each text in turn; Ollama offers no
// server-side batching.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, &Error{Op: "ollama_embed_batch", Err: fmt.Errorf("text %d: %w", i, err)}
		}
		out[i] = vec
	}
	return out, nil
}
