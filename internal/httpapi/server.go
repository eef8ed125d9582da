// Package httpapi exposes the daemon's read-only control surface: health and
// readiness probes, Prometheus metrics, the session status snapshot, and the
// recent session log.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/ascolta/internal/eventlog"
	"github.com/antoniostano/ascolta/internal/observability"
	"github.com/antoniostano/ascolta/internal/session"
)

// StatusSource reports the orchestrator's current phase and last session.
type StatusSource interface {
	Status() session.StatusSnapshot
}

type Server struct {
	status  StatusSource
	store   eventlog.Store
	latency *observability.LatencyWindow
}

func New(status StatusSource, store eventlog.Store, latency *observability.LatencyWindow) *Server {
	return &Server{status: status, store: store, latency: latency}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/events", s.handleEvents)
	r.Get("/v1/latency", s.handleLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "orchestrator not started")
		return
	}
	snap := s.status.Status()
	if snap.Phase == session.PhaseStopped {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "controller stopped")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready", "phase": snap.Phase})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "orchestrator not started")
		return
	}
	respondJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "event log not configured")
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be in 1..1000")
			return
		}
		limit = n
	}
	recs, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if recs == nil {
		recs = []eventlog.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": recs})
}

func (s *Server) handleLatency(w http.ResponseWriter, _ *http.Request) {
	// A nil window snapshots to an empty stage list.
	respondJSON(w, http.StatusOK, s.latency.Snapshot())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
