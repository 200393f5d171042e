// Package main is the Rezept CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/rezept/internal/answer"
	"github.com/hyperjump/rezept/internal/config"
	"github.com/hyperjump/rezept/internal/embedding"
	"github.com/hyperjump/rezept/internal/models"
	"github.com/hyperjump/rezept/internal/search"
	"github.com/hyperjump/rezept/internal/server"
	"github.com/hyperjump/rezept/internal/store"
	"github.com/hyperjump/rezept/internal/syncer"
	"github.com/hyperjump/rezept/internal/vector"
	"github.com/hyperjump/rezept/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/rezept/config.yaml"

// loadConfig loads config from path. When path is the default, a
// config.yaml in the current directory takes precedence so running from
// the project dir picks up the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "add":
		runAdd()
	case "delete":
		runDelete()
	case "changes":
		runChanges()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("rezept version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	syncOpts := []syncer.SyncerOption{syncer.WithLogger(logger)}
	sync := syncer.New(
		cfg.Watch.Directory,
		cfg.Watch.Extensions,
		cfg.Watch.PollInterval(),
		cfg.Watch.ErrorBackoff(),
		components.Store,
		syncOpts...,
	)
	syncCtx, syncCancel := context.WithCancel(context.Background())
	defer syncCancel()
	if err := sync.Start(syncCtx); err != nil {
		logger.Fatal("Failed to start syncer", zap.Error(err))
	}

	srv := server.NewServer(
		components.Engine,
		components.Store,
		components.Generator,
		sync,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	sync.Stop()
	syncCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	k := fs.Int("k", 0, "number of results (0 = server default)")
	cuisine := fs.String("cuisine", "", "filter by cuisine")
	diet := fs.String("diet", "", "filter by diet")
	withAnswer := fs.Bool("answer", false, "generate and validate an answer")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: rezept search [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	reqBody, _ := json.Marshal(map[string]interface{}{
		"query": query,
		"k":     *k,
		"filters": models.SearchFilters{
			Cuisine: *cuisine,
			Diet:    *diet,
		},
		"answer": *withAnswer,
	})
	var out struct {
		Results          []*models.SearchResult   `json:"results"`
		Count            int                      `json:"count"`
		Validation       *models.ValidationReport `json:"validation"`
		Answer           string                   `json:"answer"`
		AnswerValidation *models.AnswerValidation `json:"answer_validation"`
	}
	if err := postJSON(*serverURL+"/api/v1/search", reqBody, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	if out.Count == 0 {
		fmt.Println("No results.")
		if out.Validation != nil && out.Validation.Message != "" {
			fmt.Println(out.Validation.Message)
		}
		return
	}
	for i, res := range out.Results {
		fmt.Printf("%d. %s  (similarity %.2f, validation %.2f, confidence %s)\n",
			i+1, res.Recipe.Title, res.Similarity, res.ValidationScore, res.Confidence)
		if res.Recipe.Cuisine != "" {
			fmt.Printf("   cuisine: %s", res.Recipe.Cuisine)
			if res.Recipe.Diet != "" {
				fmt.Printf("  diet: %s", res.Recipe.Diet)
			}
			fmt.Println()
		}
	}
	if out.Answer != "" {
		fmt.Printf("\n%s\n", out.Answer)
		if out.AnswerValidation != nil {
			fmt.Printf("(answer grounding: %.2f, %s)\n", out.AnswerValidation.Score, out.AnswerValidation.Confidence)
		}
	}
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	user := fs.String("user", "", "user tag for the change log")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: rezept add [flags] <file>")
		os.Exit(1)
	}
	content, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read failed: %v\n", err)
		os.Exit(1)
	}

	reqBody, _ := json.Marshal(map[string]string{
		"content": string(content),
		"user":    *user,
	})
	var result models.UpdateResult
	if err := postJSON(*serverURL+"/api/v1/recipes", reqBody, &result); err != nil {
		fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %s\n", result.Action, result.Title)
	if result.PersistWarning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", result.PersistWarning)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: rezept delete [flags] <title>")
		os.Exit(1)
	}
	title := buildQuery(fs.Args())

	req, _ := http.NewRequest(http.MethodDelete,
		*serverURL+"/api/v1/recipes/"+url.PathEscape(title), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Delete failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("deleted: %s\n", title)
}

func runChanges() {
	fs := flag.NewFlagSet("changes", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	limit := fs.Int("limit", 20, "number of entries")
	_ = fs.Parse(os.Args[2:])

	var out struct {
		Changes []models.ChangeEntry `json:"changes"`
		Count   int                  `json:"count"`
	}
	u := fmt.Sprintf("%s/api/v1/changes?limit=%d", *serverURL, *limit)
	if err := getJSON(u, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Changes failed: %v\n", err)
		os.Exit(1)
	}
	for _, c := range out.Changes {
		fmt.Printf("%s  %-9s %s  (%s)\n",
			c.Timestamp.Format(time.RFC3339), c.Action, c.Title, c.User)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var stats models.Stats
	if err := getJSON(*serverURL+"/api/v1/status", &stats); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
		return
	}
	fmt.Printf("recipes:         %d live, %d tombstoned\n", stats.LiveRecipes, stats.Tombstones)
	fmt.Printf("recent_changes:  %d\n", stats.RecentChanges)
	fmt.Printf("sync_active:     %t\n", stats.SyncActive)
	if len(stats.Cuisines) > 0 {
		fmt.Println("cuisines:")
		for cuisine, n := range stats.Cuisines {
			fmt.Printf("  %-12s %d\n", cuisine, n)
		}
	}
}

func postJSON(u string, body []byte, out interface{}) error {
	resp, err := http.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getJSON(u string, out interface{}) error {
	resp, err := http.Get(u)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Components holds initialized services.
type Components struct {
	Embedder  embedding.Embedder
	Store     *store.Store
	Engine    *search.Engine
	Generator answer.Generator
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder, err := embedding.NewEmbedder(&cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	index, err := vector.NewFlatIndex(embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	storeOpts := []store.StoreOption{store.WithLogger(logger)}
	if cfg.Storage.DurableOrDefault() {
		persister, err := store.NewSQLitePersister(cfg.Storage.DatabasePath, cfg.Storage.IndexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize persistence: %w", err)
		}
		storeOpts = append(storeOpts, store.WithPersister(persister))
	}
	st, err := store.New(embedder, index, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	engine := search.NewEngine(st, embedder, &cfg.Search, search.WithLogger(logger))

	return &Components{
		Embedder:  embedder,
		Store:     st,
		Engine:    engine,
		Generator: answer.NewTemplateGenerator(),
	}, nil
}

func printUsage() {
	fmt.Println(`rezept - Semantic recipe search with live directory sync

Usage:
  rezept server [flags]           Start the HTTP server
  rezept search [flags] <query>   Search recipes
  rezept add [flags] <file>       Add or update a recipe from a file
  rezept delete [flags] <title>   Soft-delete a recipe
  rezept changes [flags]          Show the recent change log
  rezept status [flags]           Show store statistics
  rezept version                  Show version
  rezept help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/rezept/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8080)
  --k int            Number of results (0 = server default)
  --cuisine string   Filter by cuisine
  --diet string      Filter by diet
  --answer           Generate and validate an answer from the results
  --output string    Output format: text or json (default: text)

Examples:
  rezept server
  rezept search quick italian pasta
  rezept search --cuisine Italian --answer "low carb dinner"
  rezept add recipes/zucchini-noodles.md
  rezept delete "Zucchini Noodles"
  rezept changes --limit 10
  rezept status --output json`)
}
