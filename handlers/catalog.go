package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"pgcats/models"
	catalogpkg "pgcats/services/catalog"
)

// catalogBuilder runs one catalog build.
type catalogBuilder interface {
	Build(context.Context, models.BuildConfig) ([]models.CatalogEntry, models.BuildReport, error)
}

var _ catalogBuilder = (*catalogpkg.Service)(nil)

var allowedSortOrders = map[string]bool{
	"popularity.desc":           true,
	"popularity.asc":            true,
	"vote_average.desc":         true,
	"vote_average.asc":          true,
	"primary_release_date.desc": true,
	"primary_release_date.asc":  true,
	"revenue.desc":              true,
}

type CatalogHandler struct {
	Service  catalogBuilder
	Library  *catalogpkg.Library
	MaxPages int
}

func NewCatalogHandler(s catalogBuilder, library *catalogpkg.Library, maxPages int) *CatalogHandler {
	if maxPages <= 0 {
		maxPages = 50
	}
	return &CatalogHandler{Service: s, Library: library, MaxPages: maxPages}
}

// BuildResponse wraps the build output with its diagnostics.
type BuildResponse struct {
	Entries []models.CatalogEntry `json:"entries"`
	Report  models.BuildReport    `json:"report"`
}

// Build handles POST /api/catalog/build: validate the request, run the
// pipeline, store the result for the discovery endpoints and return it.
func (h *CatalogHandler) Build(w http.ResponseWriter, r *http.Request) {
	var cfg models.BuildConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	// The pipeline trusts its input; all request validation happens
	// here at the boundary.
	if err := validateBuildConfig(&cfg, h.MaxPages); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, report, err := h.Service.Build(r.Context(), cfg)
	if err != nil {
		log.Printf("[handlers] catalog build failed: %v", err)
		http.Error(w, "catalog generation failed", http.StatusInternalServerError)
		return
	}

	h.Library.Replace(entries)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(BuildResponse{Entries: entries, Report: report}); err != nil {
		log.Printf("[handlers] encode build response: %v", err)
	}
}

// Current handles GET /api/catalog: the stored output of the last
// successful build.
func (h *CatalogHandler) Current(w http.ResponseWriter, r *http.Request) {
	entries := h.Library.Entries()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		log.Printf("[handlers] encode catalog: %v", err)
	}
}

func validateBuildConfig(cfg *models.BuildConfig, maxPages int) error {
	if cfg.StartYear < 1870 || cfg.StartYear > 2100 {
		return fmt.Errorf("start_year %d out of range", cfg.StartYear)
	}
	if cfg.EndYear < 1870 || cfg.EndYear > 2100 {
		return fmt.Errorf("end_year %d out of range", cfg.EndYear)
	}
	if cfg.StartYear > cfg.EndYear {
		return errors.New("start_year must not exceed end_year")
	}
	if cfg.Pages < 1 || cfg.Pages > maxPages {
		return fmt.Errorf("pages must be between 1 and %d", maxPages)
	}
	if strings.TrimSpace(cfg.Language) == "" {
		return errors.New("language is required")
	}
	if !allowedSortOrders[cfg.SortOrder] {
		return fmt.Errorf("unsupported sort_order %q", cfg.SortOrder)
	}
	if cfg.MinCriticScore < 0 || cfg.MinCriticScore > 100 {
		return errors.New("min_critic_score must be between 0 and 100")
	}
	for i, g := range cfg.Genres {
		cfg.Genres[i] = strings.ToLower(strings.TrimSpace(g))
	}
	return nil
}
