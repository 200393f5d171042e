// Package search turns vector neighbors into scored, filtered, validated
// search results, and checks generated answers against their sources.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/rezept/internal/config"
	"github.com/hyperjump/rezept/internal/embedding"
	"github.com/hyperjump/rezept/internal/models"
	"github.com/hyperjump/rezept/internal/store"
	"github.com/hyperjump/rezept/pkg/utils"
)

// Engine ranks recipes for a query. Each accepted candidate carries both a
// vector similarity and a keyword validation score; the two are averaged
// into a per-result confidence bucket.
type Engine struct {
	store    *store.Store
	embedder embedding.Embedder
	topK     int
	simMin   float64
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for search diagnostics.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine over the store.
func NewEngine(s *store.Store, embedder embedding.Embedder, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    s,
		embedder: embedder,
		topK:     cfg.TopK,
		simMin:   cfg.SimThreshold,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search embeds the query, ranks its nearest neighbors, and returns up to
// topK results that clear the similarity threshold and match the filters.
// Twice as many neighbors as requested are fetched so filtering does not
// starve the result set. topK <= 0 uses the configured default.
func (e *Engine) Search(ctx context.Context, query string, filters models.SearchFilters, topK int) (*models.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if topK <= 0 {
		topK = e.topK
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	candidates, err := e.store.Neighbors(vec, 2*topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]*models.SearchResult, 0, topK)
	for _, c := range candidates {
		if len(results) >= topK {
			break
		}
		similarity := 1.0 / (1.0 + c.Distance)
		if similarity < e.simMin {
			// Candidates arrive in ascending distance, so everything
			// after the first miss is below the threshold too.
			break
		}
		if !matchesFilters(c.Recipe, filters) {
			continue
		}
		validation := MatchScore(query, c.Recipe)
		results = append(results, &models.SearchResult{
			Recipe:          c.Recipe,
			Similarity:      similarity,
			ValidationScore: validation,
			Confidence:      combinedConfidence(similarity, validation),
		})
	}

	e.logger.Debug("search completed",
		zap.String("query", utils.Truncate(query, 80)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
	)

	return &models.SearchResponse{
		Query:      query,
		Results:    results,
		Count:      len(results),
		Validation: buildReport(results),
	}, nil
}

func matchesFilters(r *models.Recipe, f models.SearchFilters) bool {
	if f.Cuisine != "" && r.Cuisine != f.Cuisine {
		return false
	}
	if f.Diet != "" && r.Diet != f.Diet {
		return false
	}
	return true
}

// buildReport summarizes result-set quality. An empty result set gets a
// low-confidence report with a message instead of averages.
func buildReport(results []*models.SearchResult) *models.ValidationReport {
	if len(results) == 0 {
		return &models.ValidationReport{
			Confidence: models.ConfidenceLow,
			Message:    "No results found",
		}
	}
	var simSum, valSum float64
	for _, r := range results {
		simSum += r.Similarity
		valSum += r.ValidationScore
	}
	avgSim := simSum / float64(len(results))
	avgVal := valSum / float64(len(results))

	var issues []string
	if avgSim < 0.3 {
		issues = append(issues, "Low semantic similarity")
	}
	if avgVal < 0.2 {
		issues = append(issues, "Limited keyword matching")
	}
	return &models.ValidationReport{
		Confidence:    combinedConfidence(avgSim, avgVal),
		AvgSimilarity: avgSim,
		AvgValidation: avgVal,
		Issues:        issues,
	}
}
