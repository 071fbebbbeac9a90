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

const openaiEmbeddingsURL = "https://api.openai.com/v1/embeddings"

// modelDimensions holds the known native widths for OpenAI's embedding
// models; anything absent here falls back to the text-embedding-3-small
// width unless dimOverride is set.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder calls OpenAI's batch embeddings endpoint.
type OpenAIEmbedder struct {
	apiKey string
	model  string
	client *http.Client
	dim    int
}

// NewOpenAIEmbedder builds an OpenAIEmbedder for model. dimOverride, when
// positive, replaces the looked-up native width for model.
func NewOpenAIEmbedder(apiKey, model string, dimOverride int) (*OpenAIEmbedder, error) {
	dim, known := modelDimensions[model]
	if !known {
		dim = modelDimensions["text-embedding-3-small"]
	}
	if dimOverride > 0 {
		dim = dimOverride
	}

	return &OpenAIEmbedder{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
		dim:    dim,
	}, nil
}

// Dimension returns the configured vector width.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// EmbedText embeds a single text via EmbedBatch.
func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends every text to OpenAI in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}{Input: texts, Model: e.model})
	if err != nil {
		return nil, &Error{Op: "openai_embed_batch", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiEmbeddingsURL, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Op: "openai_embed_batch", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &Error{Op: "openai_embed_batch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, &Error{Op: "openai_embed_batch", Err: fmt.Errorf("openai returned %d: %s", resp.StatusCode, payload)}
	}

	var decoded struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &Error{Op: "openai_embed_batch", Err: err}
	}
	if len(decoded.Data) != len(texts) {
		return nil, &Error{Op: "openai_embed_batch", Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(decoded.Data))}
	}

	out := make([][]float32, len(decoded.Data))
	for i, item := range decoded.Data {
		out[i] = make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			out[i][j] = float32(v)
		}
	}
	return out, nil
}
