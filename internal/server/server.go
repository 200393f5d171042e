// Package server provides the HTTP API for Rezept.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/rezept/internal/answer"
	"github.com/hyperjump/rezept/internal/config"
	"github.com/hyperjump/rezept/internal/search"
	"github.com/hyperjump/rezept/internal/store"
	"github.com/hyperjump/rezept/internal/syncer"
)

// Server is the HTTP server for the Rezept API.
type Server struct {
	engine    *search.Engine
	store     *store.Store
	generator answer.Generator
	syncer    *syncer.Syncer
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. syncer may be
// nil when directory watching is disabled.
func NewServer(
	engine *search.Engine,
	st *store.Store,
	generator answer.Generator,
	sync *syncer.Syncer,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:    engine,
		store:     st,
		generator: generator,
		syncer:    sync,
		config:    cfg,
		logger:    logger,
	}
}

// Router builds the HTTP routes. Exposed separately from Start so tests
// can drive the handlers without a listening socket.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/recipes", s.handleListRecipes)
	r.Get("/api/v1/recipes/{title}", s.handleGetRecipe)
	r.Post("/api/v1/recipes", s.handleAddRecipe)
	r.Delete("/api/v1/recipes/{title}", s.handleDeleteRecipe)
	r.Get("/api/v1/changes", s.handleChanges)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
