package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPEmbedder calls an Ollama-compatible embedding service.
type HTTPEmbedder struct {
	endpoint   string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewHTTPEmbedder creates a client for the embedding service at endpoint
// using the given model. dimensions is the model's output dimension and is
// verified against every response.
func NewHTTPEmbedder(endpoint, model string, dimensions int) *HTTPEmbedder {
	return &HTTPEmbedder{
		endpoint:   endpoint,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding vector for the given text.
func (c *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch returns embedding vectors for all texts in one request.
func (c *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service: status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed service returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	for _, emb := range result.Embeddings {
		if len(emb) != c.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(emb), c.dimensions)
		}
	}
	return result.Embeddings, nil
}

// Dimensions returns the embedding dimension.
func (c *HTTPEmbedder) Dimensions() int {
	return c.dimensions
}

// Close is a no-op for HTTPEmbedder.
func (c *HTTPEmbedder) Close() error {
	return nil
}

// IsHealthy reports whether the embedding service is reachable.
func (c *HTTPEmbedder) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
