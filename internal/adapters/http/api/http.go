// Package api serves the replica to consumers: collection reads and
// optimistic mutations, the shared loading/error state, stats and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/rostersync/internal/domain/engine"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Collection returns the wire-form handle of a replicated collection.
	Collection(name string) (engine.Handle, error)

	Loading() bool
	Err() error

	// Reload repeats the initial load of every collection.
	Reload(ctx context.Context) error
}

// Server wires HTTP routes for the consumer API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	recordsHandler *RecordsHandler
	stateHandler   *StateHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	v := validator.New()
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		recordsHandler: NewRecordsHandler(deps, v),
		stateHandler:   NewStateHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /v1/state", MetricsMiddleware(s.stateHandler.HandleState, "state"))
	mux.HandleFunc("POST /v1/reload", MetricsMiddleware(s.stateHandler.HandleReload, "reload"))

	r := s.recordsHandler
	mux.HandleFunc("GET /v1/{collection}", MetricsMiddleware(r.HandleList, "list"))
	mux.HandleFunc("POST /v1/{collection}", MetricsMiddleware(r.HandleCreate, "create"))
	mux.HandleFunc("POST /v1/{collection}/bulk", MetricsMiddleware(r.HandleBulkUpdate, "bulk_update"))
	mux.HandleFunc("GET /v1/{collection}/{id}", MetricsMiddleware(r.HandleGet, "get"))
	mux.HandleFunc("PATCH /v1/{collection}/{id}", MetricsMiddleware(r.HandleUpdate, "update"))
	mux.HandleFunc("DELETE /v1/{collection}/{id}", MetricsMiddleware(r.HandleDelete, "delete"))
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	if n, ok := w.(errorNoter); ok {
		n.noteError(code)
	}
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps an error kind to its status and code.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, codeBadRequest, err)
	case errors.Is(err, ErrUnknownCollection), errors.Is(err, engine.ErrUnknownCollection):
		writeError(w, http.StatusNotFound, codeUnknownCollection, err)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err)
	case errors.Is(err, engine.ErrBulkPartial):
		writeError(w, http.StatusBadGateway, codeBulkPartial, err)
	case errors.Is(err, engine.ErrWrite):
		writeError(w, http.StatusBadGateway, codeWriteFailed, err)
	case errors.Is(err, engine.ErrBootstrap):
		writeError(w, http.StatusBadGateway, codeLoadFailed, err)
	case errors.Is(err, engine.ErrTornDown):
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, err)
	}
}
