package models

// Confidence is a coarse bucket derived from a combined similarity and
// validation score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// UpdateResult is the outcome of an addOrUpdate call.
type UpdateResult struct {
	Action Action `json:"action"`
	Title  string `json:"title"`
	// PersistWarning is set when the in-memory mutation succeeded but the
	// durable snapshot could not be written. The session state remains
	// authoritative; a later successful persist recovers durability.
	PersistWarning string `json:"persist_warning,omitempty"`
}

// SearchFilters restricts search results by exact field match.
type SearchFilters struct {
	Cuisine string `json:"cuisine,omitempty"`
	Diet    string `json:"diet,omitempty"`
}

// SearchResult is one accepted search candidate.
type SearchResult struct {
	Recipe          *Recipe    `json:"recipe"`
	Similarity      float64    `json:"similarity"`
	ValidationScore float64    `json:"validation_score"`
	Confidence      Confidence `json:"confidence"`
}

// ValidationReport summarizes result quality across a whole result set.
type ValidationReport struct {
	Confidence    Confidence `json:"confidence"`
	AvgSimilarity float64    `json:"avg_similarity,omitempty"`
	AvgValidation float64    `json:"avg_validation,omitempty"`
	Issues        []string   `json:"issues,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// SearchResponse is the full response for a search request.
type SearchResponse struct {
	Query      string            `json:"query"`
	Results    []*SearchResult   `json:"results"`
	Count      int               `json:"count"`
	Validation *ValidationReport `json:"validation"`
}

// AnswerValidation scores a generated answer against the records it was
// derived from.
type AnswerValidation struct {
	Valid          bool       `json:"valid"`
	Score          float64    `json:"score"`
	Confidence     Confidence `json:"confidence"`
	SourcesChecked int        `json:"sources_checked"`
}

// Stats reports store-level counters for the status endpoint.
type Stats struct {
	TotalRecipes  int            `json:"total_recipes"`
	LiveRecipes   int            `json:"live_recipes"`
	Tombstones    int            `json:"tombstones"`
	Cuisines      map[string]int `json:"cuisine_distribution"`
	RecentChanges int            `json:"recent_changes"`
	SyncActive    bool           `json:"sync_active"`
}
