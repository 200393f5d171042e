package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./data/recipes.db"
watch:
  directory: "./recipe_uploads"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "recipes.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	wantWatch := filepath.Join(dir, "recipe_uploads")
	if cfg.Watch.Directory != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directory, wantWatch)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("default dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.Provider != "hash" {
		t.Errorf("default provider: got %s", cfg.Embedding.Provider)
	}
	if cfg.Search.TopK != 5 {
		t.Errorf("default top_k: got %d", cfg.Search.TopK)
	}
	if cfg.Search.SimThreshold != 0.6 {
		t.Errorf("default sim_threshold: got %f", cfg.Search.SimThreshold)
	}
	if cfg.Watch.PollInterval() != 2*time.Second {
		t.Errorf("default poll_interval: got %v", cfg.Watch.PollInterval())
	}
	if cfg.Watch.ErrorBackoff() != 5*time.Second {
		t.Errorf("default error_backoff: got %v", cfg.Watch.ErrorBackoff())
	}
	if len(cfg.Watch.Extensions) != 2 || cfg.Watch.Extensions[0] != ".md" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
}

func TestStorageConfig_DurableOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		s := &StorageConfig{}
		if !s.DurableOrDefault() {
			t.Error("DurableOrDefault() = false, want true")
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		s := &StorageConfig{Durable: &f}
		if s.DurableOrDefault() {
			t.Error("DurableOrDefault() = true, want false")
		}
	})
}
