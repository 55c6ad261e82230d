package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"forge/internal/ops"
)

func (h *Handler) ListStates(w http.ResponseWriter, r *http.Request) {
	states := h.engine.ListStates()
	resp := StatesListResponse{States: make([]StateSummary, 0, len(states))}
	for _, st := range states {
		conflicts := h.engine.ListConflicts(st.Name)
		open := 0
		for _, c := range conflicts {
			if c.Status == "open" {
				open++
			}
		}
		resp.States = append(resp.States, StateSummary{
			Name:          st.Name,
			Heads:         st.Heads,
			OpCount:       h.engine.OpCount(st.Name),
			OpenConflicts: open,
			BaseState:     st.BaseState,
			Policy:        st.Policy,
			CreatedAt:     st.CreatedAt,
			UpdatedAt:     st.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	var req CreateStateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	st, err := h.engine.CreateState(req.Name, req.FromState)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, CreateStateResponse{OK: true, State: st})
}

// GetStateDispatch handles GET /v1/states/{s...}. State names may
// contain slashes (e.g. "ws/alice"), so the wildcard captures the full
// remainder of the path and this dispatches on a trailing "/conflicts"
// segment the way a single-segment {s} pattern could not.
func (h *Handler) GetStateDispatch(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("s")
	if name, matched := strings.CutSuffix(raw, "/conflicts"); matched {
		h.ListStateConflicts(w, r, name)
		return
	}
	h.GetState(w, r, raw)
}

// PromoteDispatch handles POST /v1/states/{s...}, the only defined
// action on this path being a trailing "/promote".
func (h *Handler) PromoteDispatch(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("s")
	source, matched := strings.CutSuffix(raw, "/promote")
	if !matched {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.Promote(w, r, source)
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request, name string) {
	st, tree, openConflicts, err := h.engine.GetState(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "state not found")
		return
	}
	if openConflicts == nil {
		openConflicts = []ops.Conflict{}
	}
	writeJSON(w, http.StatusOK, StateDetailResponse{State: st, OpenConflicts: openConflicts, Tree: tree})
}

func (h *Handler) ListStateConflicts(w http.ResponseWriter, r *http.Request, name string) {
	if _, _, _, err := h.engine.GetState(name); err != nil {
		writeError(w, http.StatusNotFound, "state not found")
		return
	}
	writeJSON(w, http.StatusOK, ConflictsListResponse{Conflicts: h.engine.ListConflicts(name)})
}

func (h *Handler) Promote(w http.ResponseWriter, r *http.Request, source string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	var req PromoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TargetState == "" {
		writeError(w, http.StatusBadRequest, "target_state is required")
		return
	}

	result, err := h.engine.Promote(source, req.TargetState, req.Author)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		Accepted []string `json:"accepted"`
		Conflicts []string `json:"conflicts,omitempty"`
		Results interface{} `json:"results"`
	}{OK: true, Accepted: result.Accepted, Conflicts: result.Conflicts, Results: result.Results})
}
