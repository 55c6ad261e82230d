package api

import (
	"encoding/json"
	"io"
	"net/http"
)

func (h *Handler) GetConflict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := h.engine.GetConflict(id)
	if !ok {
		writeError(w, http.StatusNotFound, "conflict not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	var req ResolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.engine.Resolve(id, req.Op)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, _ := h.engine.GetConflict(id)
	writeJSON(w, http.StatusOK, ResolveResponse{OK: true, Conflict: c, SubmitResult: record})
}
