// Package config provides configuration loading and structs for the Rezept server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is loaded once at
// startup and treated as an immutable snapshot.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the table and index artifacts and the
// durability switch. When Durable is false no snapshots are written and
// nothing is restored at startup.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexPath    string `yaml:"index_path"`
	Durable      *bool  `yaml:"durable"`
}

// DurableOrDefault returns whether persistence is enabled; defaults to true when unset.
func (s *StorageConfig) DurableOrDefault() bool {
	if s.Durable != nil {
		return *s.Durable
	}
	return true
}

// EmbeddingConfig holds embedder settings. Provider selects the
// implementation: "hash" (deterministic, offline) or "http" (embedding
// service at Endpoint using Model).
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// SearchConfig holds search settings.
type SearchConfig struct {
	TopK         int     `yaml:"top_k"`
	SimThreshold float64 `yaml:"sim_threshold"`
}

// WatchConfig holds synchronizer settings for the watched recipe directory.
// Intervals are in seconds.
type WatchConfig struct {
	Directory           string   `yaml:"directory"`
	Extensions          []string `yaml:"extensions"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
	ErrorBackoffSeconds int      `yaml:"error_backoff_seconds"`
}

// PollInterval returns the poll interval as a duration.
func (w *WatchConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

// ErrorBackoff returns the tick-failure backoff as a duration.
func (w *WatchConfig) ErrorBackoff() time.Duration {
	return time.Duration(w.ErrorBackoffSeconds) * time.Second
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
