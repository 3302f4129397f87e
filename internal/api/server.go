// Package api provides the HTTP server for droplog. It exposes the local
// state, entry mutations, session control, and the export endpoints to the
// UI layer.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/droplog/droplog/internal/app/export"
	"github.com/droplog/droplog/internal/app/ledger"
	"github.com/droplog/droplog/internal/app/session"
	"github.com/droplog/droplog/internal/app/syncqueue"
	"github.com/droplog/droplog/internal/domain"
	"github.com/droplog/droplog/internal/store"
)

// Server is the droplog HTTP API server.
type Server struct {
	ledger         *ledger.Ledger
	queue          *syncqueue.Queue
	session        *session.Manager
	export         *export.Service
	store          *store.Store
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(l *ledger.Ledger, q *syncqueue.Queue, s *session.Manager, e *export.Service, st *store.Store) *Server {
	return &Server{ledger: l, queue: q, session: s, export: e, store: st}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/achievements", s.handleAchievements)

		r.Post("/entries", s.handleCreateEntry)
		r.Put("/entries/{id}", s.handleEditEntry)
		r.Delete("/entries/{id}", s.handleDeleteEntry)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.Get("/sync/status", s.handleSyncStatus)

		r.Post("/session/login", s.handleLogin)
		r.Post("/session/logout", s.handleLogout)
		r.Put("/session/online", s.handleOnline)

		r.Get("/export/backup", s.handleExportBackup)
		r.Get("/export/csv", s.handleExportCSV)
		r.Post("/restore", s.handleRestore)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrBackupVersion):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsNetwork(err):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// corsMiddleware adds CORS headers for the local UI.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
