// Package httpapi exposes the run and script surface over HTTP.
//
// Run creation is asynchronous: POST /api/runs answers 202 with a pollable
// run snapshot, and the verdict arrives through GET /api/runs/{id} once the
// background execution finishes. Script records are stored verbatim,
// assumption hints included; the API never evaluates them.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/openstage/verity/internal/runner"
	"github.com/openstage/verity/internal/store"
)

// Server handles the HTTP API.
type Server struct {
	runner *runner.Runner
	store  *store.Store
	ids    runner.IDGenerator
}

// New creates an API server. A nil ids falls back to UUIDv7 script ids.
func New(r *runner.Runner, st *store.Store, ids runner.IDGenerator) *Server {
	if ids == nil {
		ids = runner.UUIDv7Generator{}
	}
	return &Server{runner: r, store: st, ids: ids}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)

	mux.HandleFunc("POST /api/scripts", s.handleSaveScript)
	mux.HandleFunc("GET /api/scripts", s.handleListScripts)
	mux.HandleFunc("GET /api/scripts/{id}", s.handleGetScript)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes a response body, logging (not masking) encode failures.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError answers with a JSON error envelope.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
