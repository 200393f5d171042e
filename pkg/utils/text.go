// Package utils provides shared utilities for text, math, and logging.
package utils

import "strings"

// MinTokenLength is the shortest token that counts toward match scoring.
// Shorter words ("a", "the", "and") carry no signal for keyword overlap.
const MinTokenLength = 4

// Tokenize splits s into lowercase whitespace-separated tokens of at least
// MinTokenLength characters. Both the search match scorer and the answer
// validator score keyword overlap with this tokenization.
func Tokenize(s string) []string {
	words := strings.Fields(strings.ToLower(s))
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) >= MinTokenLength {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

// TokenSet returns the tokens of s as a set.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(s) {
		set[tok] = struct{}{}
	}
	return set
}

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
