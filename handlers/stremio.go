package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"pgcats/models"
	catalogpkg "pgcats/services/catalog"
)

// catalogID is the single catalog this addon announces. The upstream
// build pipeline produces one ranked list per deployment.
const catalogID = "top"

// Manifest is the discovery-protocol descriptor served to browsing
// clients.
type Manifest struct {
	ID          string            `json:"id"`
	Version     string            `json:"version"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Types       []string          `json:"types"`
	Resources   []string          `json:"resources"`
	Catalogs    []ManifestCatalog `json:"catalogs"`
}

type ManifestCatalog struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StremioHandler serves the manifest/catalog/meta JSON endpoints from
// the stored build output.
type StremioHandler struct {
	Library      *catalogpkg.Library
	ManifestID   string
	ManifestName string
}

func NewStremioHandler(library *catalogpkg.Library, manifestID, manifestName string) *StremioHandler {
	return &StremioHandler{Library: library, ManifestID: manifestID, ManifestName: manifestName}
}

// GetManifest handles GET /manifest.json.
func (h *StremioHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	manifest := Manifest{
		ID:          h.ManifestID,
		Version:     "1.0.0",
		Name:        h.ManifestName,
		Description: "Filtered, scored and ranked movie catalogs",
		Types:       []string{"movie"},
		Resources:   []string{"catalog", "meta"},
		Catalogs: []ManifestCatalog{
			{Type: "movie", ID: catalogID, Name: h.ManifestName},
		},
	}
	writeJSON(w, manifest)
}

// catalogResponse is the catalog resource shape: entry fields are
// carried verbatim.
type catalogResponse struct {
	Metas []models.CatalogEntry `json:"metas"`
}

// GetCatalog handles GET /catalog/movie/{id}.json.
func (h *StremioHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if vars["type"] != "movie" || vars["id"] != catalogID {
		writeJSON(w, catalogResponse{Metas: []models.CatalogEntry{}})
		return
	}
	writeJSON(w, catalogResponse{Metas: h.Library.Entries()})
}

type metaResponse struct {
	Meta models.CatalogEntry `json:"meta"`
}

// GetMeta handles GET /meta/movie/{id}.json, looking one entry up by
// its IMDB id.
func (h *StremioHandler) GetMeta(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entry, ok := h.Library.Get(vars["id"])
	if vars["type"] != "movie" || !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, metaResponse{Meta: entry})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[handlers] encode response: %v", err)
	}
}
