package api

import (
	"encoding/json"
	"net/http"

	"forge/internal/engine"
)

// Handler wraps the engine for HTTP handlers.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a new API handler around e.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

// NewRouter builds the HTTP router exposing spec §6's table.
func NewRouter(e *engine.Engine) http.Handler {
	h := NewHandler(e)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /v1/states", h.ListStates)
	mux.HandleFunc("POST /v1/states", h.CreateState)
	// {s...} is a trailing wildcard: state names may contain slashes
	// (e.g. "ws/alice"), which a single-segment {s} cannot capture.
	// The dispatchers below split off a trailing "/conflicts" or
	// "/promote" the way a fixed suffix pattern would if the stdlib
	// mux allowed a wildcard mid-pattern.
	mux.HandleFunc("GET /v1/states/{s...}", h.GetStateDispatch)
	mux.HandleFunc("POST /v1/states/{s...}", h.PromoteDispatch)

	mux.HandleFunc("POST /v1/change-sets", h.SubmitChangeSet)
	mux.HandleFunc("GET /v1/change-sets", h.ListChangeSets)
	mux.HandleFunc("GET /v1/change-sets/{id}", h.GetChangeSet)

	mux.HandleFunc("POST /v1/ops", h.SubmitOps)
	mux.HandleFunc("GET /v1/ops/{id}", h.GetOp)

	mux.HandleFunc("GET /v1/conflicts/{id}", h.GetConflict)
	mux.HandleFunc("POST /v1/conflicts/{id}/resolve", h.ResolveConflict)

	mux.HandleFunc("GET /v1/stream/states/{s...}", h.StreamState)

	return loggingMiddleware(mux)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{OK: false, Error: msg})
}
