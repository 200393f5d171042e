package search

import (
	"context"
	"testing"

	"github.com/hyperjump/rezept/internal/config"
	"github.com/hyperjump/rezept/internal/embedding"
	"github.com/hyperjump/rezept/internal/models"
	"github.com/hyperjump/rezept/internal/store"
	"github.com/hyperjump/rezept/internal/vector"
)

func zucchiniNoodles() *models.Recipe {
	return &models.Recipe{
		Title:       "Zucchini Noodles",
		Time:        "15 minutes",
		Diet:        "Low-carb",
		Cuisine:     "Italian",
		Ingredients: []string{"zucchini", "garlic", "olive oil", "parmesan"},
		Steps:       []string{"Spiralize the zucchini", "Cook with garlic and olive oil", "Top with parmesan"},
	}
}

func newTestEngine(t *testing.T, simThreshold float64, recipes ...*models.Recipe) (*Engine, *store.Store) {
	t.Helper()
	embedder := embedding.NewHashEmbedder(64)
	index, err := vector.NewFlatIndex(embedder.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	s, err := store.New(embedder, index)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	for _, r := range recipes {
		if _, err := s.AddOrUpdate(ctx, r, "tester"); err != nil {
			t.Fatalf("add %s: %v", r.Title, err)
		}
	}
	cfg := &config.SearchConfig{TopK: 5, SimThreshold: simThreshold}
	return NewEngine(s, embedder, cfg), s
}

func TestSearchReturnsFilteredMatch(t *testing.T) {
	e, _ := newTestEngine(t, 0.1,
		zucchiniNoodles(),
		&models.Recipe{
			Title:       "Beef Bourguignon",
			Cuisine:     "French",
			Diet:        "high-protein",
			Ingredients: []string{"beef", "red wine", "mushrooms"},
			Steps:       []string{"Brown the beef", "Simmer in wine"},
		},
	)

	resp, err := e.Search(context.Background(), "quick Italian pasta zucchini", models.SearchFilters{Cuisine: "Italian"}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	got := resp.Results[0]
	if got.Recipe.Title != "Zucchini Noodles" {
		t.Errorf("title = %q", got.Recipe.Title)
	}
	if got.Recipe.Cuisine != "Italian" {
		t.Errorf("cuisine = %q, filter was Italian", got.Recipe.Cuisine)
	}
	if got.ValidationScore < 0.2 {
		t.Errorf("validation score = %v, want >= 0.2 for cuisine mention", got.ValidationScore)
	}
	if got.Similarity <= 0 || got.Similarity > 1 {
		t.Errorf("similarity = %v out of range", got.Similarity)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	e, _ := newTestEngine(t, 0.1, zucchiniNoodles())
	if _, err := e.Search(context.Background(), "   ", models.SearchFilters{}, 5); err == nil {
		t.Error("expected error for blank query")
	}
}

func TestSearchNoResultsReport(t *testing.T) {
	// An impossible threshold rejects every candidate.
	e, _ := newTestEngine(t, 0.999, zucchiniNoodles())
	resp, err := e.Search(context.Background(), "completely unrelated astrophysics question", models.SearchFilters{}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Count != 0 {
		t.Fatalf("count = %d, want 0", resp.Count)
	}
	if resp.Validation.Confidence != models.ConfidenceLow {
		t.Errorf("confidence = %q, want low", resp.Validation.Confidence)
	}
	if resp.Validation.Message != "No results found" {
		t.Errorf("message = %q", resp.Validation.Message)
	}
}

func TestSearchExcludesDeleted(t *testing.T) {
	e, s := newTestEngine(t, 0.1, zucchiniNoodles())
	if _, err := s.Delete(context.Background(), "Zucchini Noodles", "tester"); err != nil {
		t.Fatal(err)
	}
	resp, err := e.Search(context.Background(), "zucchini noodles", models.SearchFilters{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Count != 0 {
		t.Errorf("deleted recipe returned: %+v", resp.Results)
	}
}

func TestMatchScore(t *testing.T) {
	recipe := zucchiniNoodles()
	tests := []struct {
		name  string
		query string
		want  float64
	}{
		{"no overlap", "how do stars form", 0.0},
		{"cuisine only", "something italian tonight", 0.2},
		{"diet only", "a low-carb dinner", 0.2},
		{"ingredient token", "dish with zucchini please", 0.1},
		{"title plus ingredients", "make zucchini noodles with garlic and parmesan", 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchScore(tt.query, recipe)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("MatchScore(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestMatchScoreCapped(t *testing.T) {
	recipe := zucchiniNoodles()
	query := "italian low-carb zucchini noodles with zucchini garlic olive parmesan"
	if got := MatchScore(query, recipe); got > 1.0 {
		t.Errorf("score = %v, want capped at 1.0", got)
	}
}

func TestConfidenceMonotonic(t *testing.T) {
	order := map[models.Confidence]int{
		models.ConfidenceLow:    0,
		models.ConfidenceMedium: 1,
		models.ConfidenceHigh:   2,
	}
	prev := combinedConfidence(0, 0)
	for _, v := range []float64{0.2, 0.4, 0.5, 0.6, 0.8, 1.0} {
		cur := combinedConfidence(v, v)
		if order[cur] < order[prev] {
			t.Fatalf("confidence decreased from %q to %q at %v", prev, cur, v)
		}
		prev = cur
	}
	if combinedConfidence(1, 1) != models.ConfidenceHigh {
		t.Error("perfect scores not high confidence")
	}
	if combinedConfidence(0.1, 0.1) != models.ConfidenceLow {
		t.Error("poor scores not low confidence")
	}
}
