// Package models defines core data structures for recipes, change tracking, and search results.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// Recipe represents a structured recipe record. Title is the natural key;
// uniqueness is enforced by the store.
type Recipe struct {
	Title       string   `json:"title"`
	Time        string   `json:"time,omitempty"`
	Calories    *int     `json:"calories,omitempty"`
	Diet        string   `json:"diet,omitempty"`
	Cuisine     string   `json:"cuisine,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
	Steps       []string `json:"steps,omitempty"`
	Source      string   `json:"source,omitempty"`
	Content     string   `json:"content,omitempty"`
	Deleted     bool     `json:"deleted,omitempty"`
}

// Tombstone returns the record that replaces r when it is soft-deleted:
// the title is retained, everything else is cleared.
func Tombstone(title string) *Recipe {
	return &Recipe{Title: title, Deleted: true}
}

// Clone returns a deep copy of r. Slice and pointer fields get their own
// backing storage, so mutating the copy cannot touch the original.
func (r *Recipe) Clone() *Recipe {
	c := *r
	if r.Calories != nil {
		cal := *r.Calories
		c.Calories = &cal
	}
	if r.Ingredients != nil {
		c.Ingredients = append([]string(nil), r.Ingredients...)
	}
	if r.Steps != nil {
		c.Steps = append([]string(nil), r.Steps...)
	}
	return &c
}

// SearchText returns the text a recipe's embedding is derived from:
// title, cuisine, diet, ingredients, and steps concatenated.
func (r *Recipe) SearchText() string {
	parts := []string{
		r.Title,
		r.Cuisine,
		r.Diet,
		strings.Join(r.Ingredients, " "),
		strings.Join(r.Steps, " "),
	}
	return strings.Join(parts, "\n")
}

// FlatText returns the recipe flattened to a single lowercase blob of all
// fields, used for keyword-overlap scoring against answer facts.
func (r *Recipe) FlatText() string {
	parts := []string{r.Title, r.Time, r.Diet, r.Cuisine, r.Source}
	if r.Calories != nil {
		parts = append(parts, strconv.Itoa(*r.Calories))
	}
	parts = append(parts, r.Ingredients...)
	parts = append(parts, r.Steps...)
	return strings.ToLower(strings.Join(parts, " "))
}

// ContentHash returns the SHA-256 digest of the recipe's canonical JSON
// form, used to detect no-op updates without recomputing an embedding.
func (r *Recipe) ContentHash() string {
	data, err := json.Marshal(r)
	if err != nil {
		// Recipe contains only marshalable types; this cannot happen.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 8 hex characters of hash, as recorded in
// change-log entries. Returns hash unchanged if shorter.
func ShortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
