package api

import (
	"io"
	"net/http"

	"forge/internal/ops"
)

// SubmitOps handles POST /v1/ops: accepts {"op":...}, {"ops":[...]}, or
// a raw op, wraps them in a single change set (state taken from the
// first op), and submits exactly like POST /v1/change-sets.
func (h *Handler) SubmitOps(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	opList, err := decodeOps(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(opList) == 0 {
		writeError(w, http.StatusBadRequest, "at least one op is required")
		return
	}

	record, err := h.engine.Submit(ops.ChangeSet{State: opList[0].State, Ops: opList})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.toSubmitResponse(record))
}

func (h *Handler) GetOp(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	op, ok := h.engine.GetOp(id)
	if !ok {
		writeError(w, http.StatusNotFound, "op not found")
		return
	}
	writeJSON(w, http.StatusOK, op)
}
