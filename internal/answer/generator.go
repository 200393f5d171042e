// Package answer generates short natural-language answers from search
// results.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/rezept/internal/models"
)

// Generator produces an answer to a query from scored search results.
type Generator interface {
	Generate(ctx context.Context, query string, results []*models.SearchResult) (string, error)
}

// TemplateGenerator summarizes the top result into a fixed-form answer.
// No model involved, so the output is deterministic and cheap to validate.
type TemplateGenerator struct{}

// NewTemplateGenerator creates a template-based generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate builds a one-paragraph summary of the result set.
func (g *TemplateGenerator) Generate(_ context.Context, query string, results []*models.SearchResult) (string, error) {
	if len(results) == 0 {
		return "No recipes found.", nil
	}
	top := results[0]
	r := top.Recipe

	parts := []string{
		fmt.Sprintf("I found %d recipes for '%s'.", len(results), query),
		fmt.Sprintf("Top match: **%s**", r.Title),
	}
	if r.Cuisine != "" {
		parts = append(parts, fmt.Sprintf("Cuisine: %s", r.Cuisine))
	}
	if r.Diet != "" {
		parts = append(parts, fmt.Sprintf("Diet: %s", r.Diet))
	}
	if r.Time != "" {
		parts = append(parts, fmt.Sprintf("Time: %s", r.Time))
	}
	if len(r.Ingredients) > 0 {
		n := len(r.Ingredients)
		if n > 3 {
			n = 3
		}
		parts = append(parts, fmt.Sprintf("Ingredients include: %s", strings.Join(r.Ingredients[:n], ", ")))
	}
	parts = append(parts, fmt.Sprintf("Confidence: %s", top.Confidence))

	return strings.Join(parts, " "), nil
}
