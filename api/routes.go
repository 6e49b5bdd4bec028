package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"pgcats/handlers"
)

// corsMiddleware handles CORS for API routes so browser-based clients
// can install the addon directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter wires every route of the service.
func NewRouter(ch *handlers.CatalogHandler, sh *handlers.StremioHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	// Discovery-protocol surface consumed by media-browsing clients.
	r.HandleFunc("/manifest.json", sh.GetManifest).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/catalog/{type}/{id}.json", sh.GetCatalog).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/meta/{type}/{id}.json", sh.GetMeta).Methods(http.MethodGet, http.MethodOptions)

	// Build API consumed by the configuration frontend.
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/catalog/build", ch.Build).Methods(http.MethodPost, http.MethodOptions)
	apiRouter.HandleFunc("/catalog", ch.Current).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}
