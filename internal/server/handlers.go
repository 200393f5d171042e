package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/rezept/internal/models"
	"github.com/hyperjump/rezept/internal/parse"
	"github.com/hyperjump/rezept/internal/search"
	"github.com/hyperjump/rezept/internal/store"
)

type searchRequest struct {
	Query   string               `json:"query"`
	Filters models.SearchFilters `json:"filters"`
	K       int                  `json:"k"`
	Answer  bool                 `json:"answer"`
}

type searchResponse struct {
	*models.SearchResponse
	Answer           string                   `json:"answer,omitempty"`
	AnswerValidation *models.AnswerValidation `json:"answer_validation,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("k", req.K))
	result, err := s.engine.Search(r.Context(), req.Query, req.Filters, req.K)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := &searchResponse{SearchResponse: result}
	if req.Answer && len(result.Results) > 0 {
		text, err := s.generator.Generate(r.Context(), req.Query, result.Results)
		if err != nil {
			s.logger.Error("answer generation failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		recipes := make([]*models.Recipe, len(result.Results))
		for i, res := range result.Results {
			recipes[i] = res.Recipe
		}
		resp.Answer = text
		resp.AnswerValidation = search.ValidateAnswer(text, recipes)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	all := s.store.GetAll()
	recipes := make([]*models.Recipe, 0, len(all))
	for _, recipe := range all {
		if recipe.Deleted && !includeDeleted {
			continue
		}
		recipes = append(recipes, recipe)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"recipes": recipes,
		"count":   len(recipes),
	})
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	title := urlParamTitle(r)
	recipe, ok := s.store.Get(title)
	if !ok {
		s.respondError(w, http.StatusNotFound, "recipe not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"recipe":   recipe,
		"markdown": parse.ToMarkdown(recipe),
	})
}

type addRecipeRequest struct {
	Content string `json:"content"`
	User    string `json:"user"`
}

func (s *Server) handleAddRecipe(w http.ResponseWriter, r *http.Request) {
	var req addRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if ok, missing := parse.Validate(req.Content); !ok {
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "recipe text incomplete",
			"missing": missing,
		})
		return
	}
	recipe, err := parse.Parse(req.Content, "")
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	user := req.User
	if user == "" {
		user = "user_edit"
	}
	result, err := s.store.AddOrUpdate(r.Context(), recipe, user)
	if err != nil {
		s.logger.Error("add recipe failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	title := urlParamTitle(r)
	s.logger.Debug("delete recipe request", zap.String("title", title))
	result, err := s.store.Delete(r.Context(), title, "user_edit")
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "recipe not found")
			return
		}
		s.logger.Error("delete recipe failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	changes := s.store.Changes(limit)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"changes": changes,
		"count":   len(changes),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	if s.syncer != nil {
		stats.SyncActive = s.syncer.Running()
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// urlParamTitle decodes the title path parameter, which may contain
// percent-encoded spaces.
func urlParamTitle(r *http.Request) string {
	raw := chi.URLParam(r, "title")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
