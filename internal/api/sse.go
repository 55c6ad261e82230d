package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"forge/internal/engine"
)

const sseKeepalive = 15 * time.Second

// StreamState handles GET /v1/stream/states/{s...}: emits an initial
// snapshot, then a state_update event per subsequent change to the
// named state, with a keepalive comment every 15s so idle connections
// aren't reaped by intermediaries. The trailing wildcard lets state
// names contain slashes (e.g. "ws/alice").
func (h *Handler) StreamState(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("s")
	if _, _, _, err := h.engine.GetState(name); err != nil {
		writeError(w, http.StatusNotFound, "state not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	subID := uuid.New().String()
	slog.Debug("sse_subscribe", slog.String("subscriber", subID), slog.String("state", name))
	events, unsubscribe := h.engine.Events().Subscribe()
	defer unsubscribe()

	if !h.writeStateSnapshot(w, name) {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != engine.EventStateUpdate || ev.State != name {
				continue
			}
			if !h.writeEvent(w, ev.Payload) {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) writeStateSnapshot(w http.ResponseWriter, state string) bool {
	st, tree, openConflicts, err := h.engine.GetState(state)
	if err != nil {
		return false
	}
	payload := struct {
		State         interface{}       `json:"state"`
		Tree          map[string]string `json:"tree"`
		OpenConflicts int               `json:"open_conflicts"`
	}{State: st, Tree: tree, OpenConflicts: len(openConflicts)}
	return h.writeEvent(w, payload)
}

func (h *Handler) writeEvent(w http.ResponseWriter, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("sse_marshal_failed", slog.String("error", err.Error()))
		return false
	}
	if _, err := fmt.Fprintf(w, "event: state_update\ndata: %s\n\n", data); err != nil {
		return false
	}
	return true
}
