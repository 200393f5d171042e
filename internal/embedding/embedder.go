// Package embedding provides text embedding implementations and caching.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/rezept/internal/config"
)

// Embedder produces vector embeddings for text. Implementations must be
// deterministic for identical input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// NewEmbedder creates an embedder from configuration.
// Supported providers: "hash" (deterministic, offline) and "http"
// (Ollama-compatible embedding service). The result is wrapped in an LRU
// cache when cfg.CacheSize > 0.
func NewEmbedder(cfg *config.EmbeddingConfig) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case "hash", "":
		e = NewHashEmbedder(cfg.Dimensions)
	case "http":
		e = NewHTTPEmbedder(cfg.Endpoint, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hash, http)", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
