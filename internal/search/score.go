package search

import (
	"strings"

	"github.com/hyperjump/rezept/internal/models"
	"github.com/hyperjump/rezept/pkg/utils"
)

// MatchScore computes the keyword-heuristic validation score of a recipe
// against a query. Additive, capped at 1.0: full title match in the query
// is worth the most, then per-token ingredient hits, then cuisine and diet
// mentions.
func MatchScore(query string, r *models.Recipe) float64 {
	q := strings.ToLower(query)
	score := 0.0

	if title := strings.ToLower(r.Title); title != "" && strings.Contains(q, title) {
		score += 0.3
	}

	ingredients := strings.ToLower(strings.Join(r.Ingredients, " "))
	for _, token := range utils.Tokenize(q) {
		if strings.Contains(ingredients, token) {
			score += 0.1
		}
	}

	if cuisine := strings.ToLower(r.Cuisine); cuisine != "" && strings.Contains(q, cuisine) {
		score += 0.2
	}
	if diet := strings.ToLower(r.Diet); diet != "" && strings.Contains(q, diet) {
		score += 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// combinedConfidence buckets the mean of similarity and validation score.
func combinedConfidence(similarity, validation float64) models.Confidence {
	c := (similarity + validation) / 2
	switch {
	case c > 0.7:
		return models.ConfidenceHigh
	case c > 0.4:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
