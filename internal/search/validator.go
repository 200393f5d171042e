package search

import (
	"strings"

	"github.com/hyperjump/rezept/internal/models"
	"github.com/hyperjump/rezept/pkg/utils"
)

// ValidateAnswer checks a generated answer against the recipes it was
// derived from. The answer is split into sentence facts, each fact is
// matched against every source by token overlap, and the per-source match
// ratios are averaged into a grounding score.
func ValidateAnswer(answer string, sources []*models.Recipe) *models.AnswerValidation {
	if len(sources) == 0 {
		return &models.AnswerValidation{
			Valid:      false,
			Score:      0,
			Confidence: models.ConfidenceLow,
		}
	}

	facts := splitFacts(answer)
	if len(facts) == 0 {
		return &models.AnswerValidation{
			Valid:          false,
			Score:          0,
			Confidence:     models.ConfidenceLow,
			SourcesChecked: len(sources),
		}
	}

	var total float64
	for _, src := range sources {
		blob := utils.TokenSet(src.FlatText())
		matched := 0
		for _, fact := range facts {
			if factSupported(fact, blob) {
				matched++
			}
		}
		total += float64(matched) / float64(len(facts))
	}
	score := total / float64(len(sources))

	var confidence models.Confidence
	switch {
	case score > 0.6:
		confidence = models.ConfidenceHigh
	case score > 0.3:
		confidence = models.ConfidenceMedium
	default:
		confidence = models.ConfidenceLow
	}
	return &models.AnswerValidation{
		Valid:          score > 0.3,
		Score:          score,
		Confidence:     confidence,
		SourcesChecked: len(sources),
	}
}

// splitFacts breaks an answer into sentence fragments, dropping fragments
// too short to carry a checkable claim.
func splitFacts(answer string) []string {
	fragments := strings.FieldsFunc(answer, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	facts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		f = strings.TrimSpace(f)
		if len(f) > 10 {
			facts = append(facts, f)
		}
	}
	return facts
}

// factSupported reports whether enough of the fact's tokens appear in the
// source blob for the fact to count as grounded.
func factSupported(fact string, blob map[string]struct{}) bool {
	tokens := utils.Tokenize(fact)
	if len(tokens) == 0 {
		return false
	}
	hits := 0
	for _, t := range tokens {
		if _, ok := blob[t]; ok {
			hits++
		}
	}
	return float64(hits)/float64(len(tokens)) > 0.3
}
