// Package api implements the HTTP+SSE surface spec §6 declares: a
// net/http ServeMux exposing states, change sets, ops, and conflicts,
// plus an SSE stream of state_update snapshots.
package api

import (
	"encoding/json"
	"fmt"

	"forge/internal/ops"
)

// StateSummary is one row of GET /v1/states.
type StateSummary struct {
	Name          string     `json:"name"`
	Heads         []string   `json:"heads"`
	OpCount       int        `json:"op_count"`
	OpenConflicts int        `json:"open_conflicts"`
	BaseState     string     `json:"base_state,omitempty"`
	Policy        ops.Policy `json:"policy"`
	CreatedAt     int64      `json:"created_at"`
	UpdatedAt     int64      `json:"updated_at"`
}

// StatesListResponse is the body of GET /v1/states.
type StatesListResponse struct {
	States []StateSummary `json:"states"`
}

// CreateStateRequest is the body of POST /v1/states.
type CreateStateRequest struct {
	Name      string `json:"name"`
	FromState string `json:"from_state,omitempty"`
}

// CreateStateResponse is the body of a successful POST /v1/states.
type CreateStateResponse struct {
	OK    bool      `json:"ok"`
	State ops.State `json:"state"`
}

// StateDetailResponse is the body of GET /v1/states/{s}.
type StateDetailResponse struct {
	State         ops.State         `json:"state"`
	OpenConflicts []ops.Conflict    `json:"open_conflicts"`
	Tree          map[string]string `json:"tree"`
}

// ConflictsListResponse is the body of GET /v1/states/{s}/conflicts.
type ConflictsListResponse struct {
	Conflicts []ops.Conflict `json:"conflicts"`
}

// PromoteRequest is the body of POST /v1/states/{s}/promote.
type PromoteRequest struct {
	TargetState string `json:"target_state"`
	Author      string `json:"author"`
}

// ChangeSetsListResponse is the body of GET /v1/change-sets.
type ChangeSetsListResponse struct {
	ChangeSets []ops.ChangeSetRecord `json:"change_sets"`
}

// ChangeSetSubmitResponse is the shared shape for a change-set outcome,
// returned by both POST /v1/change-sets and POST /v1/ops.
type ChangeSetSubmitResponse struct {
	OK              bool             `json:"ok"`
	ChangeSetID     string           `json:"change_set_id"`
	Status          ops.ChangeSetStatus `json:"status"`
	Accepted        []string         `json:"accepted"`
	Conflicts       []string         `json:"conflicts,omitempty"`
	ConflictDetails []ops.Conflict   `json:"conflict_details,omitempty"`
	Results         []ops.OpResult   `json:"results"`
	Error           string           `json:"error,omitempty"`
}

// ResolveRequest is the body of POST /v1/conflicts/{id}/resolve.
type ResolveRequest struct {
	Op ops.Operation `json:"op"`
}

// ResolveResponse is the body of a successful resolve.
type ResolveResponse struct {
	OK           bool                  `json:"ok"`
	Conflict     ops.Conflict          `json:"conflict"`
	SubmitResult ops.ChangeSetRecord   `json:"submit_result"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// changeSetEnvelope decodes POST /v1/change-sets, which accepts either
// {"change_set": {...}} or a raw change set object at the top level.
type changeSetEnvelope struct {
	ChangeSet *ops.ChangeSet `json:"change_set"`
}

func decodeChangeSet(data []byte) (ops.ChangeSet, error) {
	var envelope changeSetEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.ChangeSet != nil {
		return *envelope.ChangeSet, nil
	}
	var raw ops.ChangeSet
	if err := json.Unmarshal(data, &raw); err != nil {
		return ops.ChangeSet{}, fmt.Errorf("decoding change set: %w", err)
	}
	return raw, nil
}

// opsEnvelope decodes POST /v1/ops, which accepts {"op": {...}},
// {"ops": [...]}, or a raw op object at the top level.
type opsEnvelope struct {
	Op  *ops.Operation  `json:"op"`
	Ops []ops.Operation `json:"ops"`
}

func decodeOps(data []byte) ([]ops.Operation, error) {
	var envelope opsEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Op != nil {
			return []ops.Operation{*envelope.Op}, nil
		}
		if len(envelope.Ops) > 0 {
			return envelope.Ops, nil
		}
	}
	var raw ops.Operation
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding op: %w", err)
	}
	return []ops.Operation{raw}, nil
}
