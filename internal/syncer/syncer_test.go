package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/rezept/internal/models"
)

type recordingIngestor struct {
	mu    sync.Mutex
	calls []call
}

type call struct {
	title string
	user  string
}

func (r *recordingIngestor) AddOrUpdate(_ context.Context, recipe *models.Recipe, user string) (*models.UpdateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{title: recipe.Title, user: user})
	return &models.UpdateResult{Action: models.ActionAdd, Title: recipe.Title}, nil
}

func (r *recordingIngestor) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]call, len(r.calls))
	copy(out, r.calls)
	return out
}

func writeRecipe(t *testing.T, dir, name, title string) string {
	t.Helper()
	content := fmt.Sprintf("Title: %s\nTime: 20 minutes\nCuisine: Test\nIngredients:\n- salt\n- pepper\nSteps:\n1. Mix\n2. Serve\n", title)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSyncerIngestsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "soup.md", "Miso Soup")
	writeRecipe(t, dir, "salad.txt", "Greek Salad")
	writeRecipe(t, dir, "notes.pdf", "Ignored")

	ing := &recordingIngestor{}
	s := New(dir, []string{".md", ".txt"}, 20*time.Millisecond, 50*time.Millisecond, ing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return len(ing.snapshot()) >= 2 })

	titles := map[string]bool{}
	for _, c := range ing.snapshot() {
		titles[c.title] = true
		if c.user != "auto_update" {
			t.Errorf("user = %q, want auto_update", c.user)
		}
	}
	if !titles["Miso Soup"] || !titles["Greek Salad"] {
		t.Errorf("ingested titles = %v", titles)
	}
	if titles["Ignored"] {
		t.Error("non-matching extension ingested")
	}
}

func TestSyncerPicksUpModification(t *testing.T) {
	dir := t.TempDir()
	path := writeRecipe(t, dir, "stew.md", "Beef Stew")

	ing := &recordingIngestor{}
	s := New(dir, []string{".md"}, 20*time.Millisecond, 50*time.Millisecond, ing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return len(ing.snapshot()) >= 1 })

	// Push the mtime forward explicitly so the change is visible even on
	// filesystems with coarse timestamp resolution.
	writeRecipe(t, dir, "stew.md", "Beef Stew Deluxe")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, c := range ing.snapshot() {
			if c.title == "Beef Stew Deluxe" {
				return true
			}
		}
		return false
	})
}

func TestSyncerPicksUpBackdatedModification(t *testing.T) {
	dir := t.TempDir()
	path := writeRecipe(t, dir, "bread.md", "Sourdough")

	ing := &recordingIngestor{}
	s := New(dir, []string{".md"}, 20*time.Millisecond, 50*time.Millisecond, ing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return len(ing.snapshot()) >= 1 })

	// A restored backup can carry an mtime older than the one on record.
	// The file still changed, so it must be re-ingested.
	writeRecipe(t, dir, "bread.md", "Sourdough Revived")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, c := range ing.snapshot() {
			if c.title == "Sourdough Revived" {
				return true
			}
		}
		return false
	})
}

func TestSyncerUnchangedFileIngestedOnce(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "pie.md", "Apple Pie")

	ing := &recordingIngestor{}
	s := New(dir, []string{".md"}, 10*time.Millisecond, 50*time.Millisecond, ing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return len(ing.snapshot()) >= 1 })
	time.Sleep(100 * time.Millisecond)
	if got := len(ing.snapshot()); got != 1 {
		t.Errorf("unchanged file ingested %d times", got)
	}
}

func TestSyncerRemovalDoesNotDelete(t *testing.T) {
	dir := t.TempDir()
	path := writeRecipe(t, dir, "gone.md", "Vanishing Dish")

	ing := &recordingIngestor{}
	s := New(dir, []string{".md"}, 10*time.Millisecond, 50*time.Millisecond, ing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool { return len(ing.snapshot()) >= 1 })
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	// The only calls ever made are adds; removal produced no mutation.
	for _, c := range ing.snapshot() {
		if c.title != "Vanishing Dish" {
			t.Errorf("unexpected call for %q", c.title)
		}
	}
	if got := len(ing.snapshot()); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestSyncerStop(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngestor{}
	s := New(dir, []string{".md"}, 10*time.Millisecond, 50*time.Millisecond, ing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !s.Running() {
		t.Error("Running() = false after Start")
	}
	s.Stop()
	if s.Running() {
		t.Error("Running() = true after Stop")
	}

	// No new ingestion after Stop.
	time.Sleep(50 * time.Millisecond)
	writeRecipe(t, dir, "late.md", "Too Late")
	time.Sleep(100 * time.Millisecond)
	if len(ing.snapshot()) != 0 {
		t.Errorf("ingested after Stop: %v", ing.snapshot())
	}
}
