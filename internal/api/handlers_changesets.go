package api

import (
	"io"
	"net/http"

	"forge/internal/ops"
)

func (h *Handler) SubmitChangeSet(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	cs, err := decodeChangeSet(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.engine.Submit(cs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.toSubmitResponse(record))
}

func (h *Handler) toSubmitResponse(record ops.ChangeSetRecord) ChangeSetSubmitResponse {
	resp := ChangeSetSubmitResponse{
		OK:          record.Status == ops.StatusAccepted,
		ChangeSetID: record.ChangeSetID,
		Status:      record.Status,
		Accepted:    record.Accepted,
		Conflicts:   record.Conflicts,
		Results:     record.Results,
		Error:       record.Error,
	}
	for _, id := range record.Conflicts {
		if c, ok := h.engine.GetConflict(id); ok {
			resp.ConflictDetails = append(resp.ConflictDetails, c)
		}
	}
	return resp
}

func (h *Handler) ListChangeSets(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	writeJSON(w, http.StatusOK, ChangeSetsListResponse{ChangeSets: h.engine.ListChangeSets(state)})
}

func (h *Handler) GetChangeSet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cs, ok := h.engine.GetChangeSet(id)
	if !ok {
		writeError(w, http.StatusNotFound, "change set not found")
		return
	}
	writeJSON(w, http.StatusOK, cs)
}
