// Package server exposes a stored road graph over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/roadgraph/internal/config"
	"github.com/sells-group/roadgraph/internal/store"
)

const (
	defaultEdgeLimit = 100
	maxEdgeLimit     = 1000
)

// Server serves node, edge and distance lookups backed by a Store.
type Server struct {
	store store.Store
	cache *ResponseCache
	cfg   config.ServerConfig
}

// New creates a Server reading from st.
func New(st store.Store, cfg config.ServerConfig) *Server {
	return &Server{
		store: st,
		cache: NewResponseCache(cfg.CacheEntries, cfg.CacheTTL),
		cfg:   cfg,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/distance", s.handleDistance)
	r.Get("/runs", s.handleRuns)
	r.Get("/cache/stats", s.handleCacheStats)
	r.Get("/nodes/{id}", s.handleNode)
	r.Route("/edges", func(r chi.Router) {
		r.Get("/", s.handleEdgesInBound)
		r.Get("/{id}", s.handleEdge)
		r.Get("/{id}/geojson", s.handleEdgeFeature)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode response")
		return
	}
	writeBody(w, status, "application/json", body)
}

func writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	writeBody(w, status, "application/json", body)
}
