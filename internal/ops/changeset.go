package ops

import (
	"fmt"

	"forge/internal/symbol"
)

// ChangeSetStatus is the outcome recorded for a submitted change set.
type ChangeSetStatus string

const (
	StatusAccepted   ChangeSetStatus = "accepted"
	StatusConflicted ChangeSetStatus = "conflicted"
	StatusRejected   ChangeSetStatus = "rejected"
)

// OpResultStatus is the per-op outcome within a change-set record.
type OpResultStatus string

const (
	OpAccepted   OpResultStatus = "accepted"
	OpConflicted OpResultStatus = "conflicted"
	OpRejected   OpResultStatus = "rejected"
	OpSkipped    OpResultStatus = "skipped"
)

// ChangeSet is the atomic submission unit: one or more ops sharing a state.
type ChangeSet struct {
	ID       string                 `json:"id,omitempty"`
	State    string                 `json:"state"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Ops      []Operation            `json:"ops"`
}

// changeSetContentFields is hashed to derive a missing change-set id.
type changeSetContentFields struct {
	State    string                 `json:"state"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Ops      []Operation            `json:"ops"`
}

// DeriveID computes cs_<hash> over state, metadata, and ops.
func (c ChangeSet) DeriveID() (string, error) {
	return symbol.ID("cs_", changeSetContentFields{State: c.State, Metadata: c.Metadata, Ops: c.Ops})
}

// Validate checks the change set's shape: a state, non-empty ops, and
// no op declaring a state other than the change set's. It does not
// validate each op's own fields.
func (c ChangeSet) Validate() error {
	if c.State == "" {
		return fmt.Errorf("change_set: state is required")
	}
	if len(c.Ops) == 0 {
		return fmt.Errorf("change_set: ops must be non-empty")
	}
	for i, op := range c.Ops {
		if op.State != "" && op.State != c.State {
			return fmt.Errorf("change_set: op[%d].state %q does not match change_set.state %q", i, op.State, c.State)
		}
	}
	return nil
}

// OpResult records the per-op outcome inside a persisted ChangeSetRecord.
type OpResult struct {
	OpID      string         `json:"op_id"`
	Status    OpResultStatus `json:"status"`
	Duplicate bool           `json:"duplicate,omitempty"`
	Conflicts []string       `json:"conflicts,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ChangeSetRecord is the immutable audit row persisted for every submission.
type ChangeSetRecord struct {
	ChangeSetID string          `json:"change_set_id"`
	State       string          `json:"state"`
	Sequence    int64           `json:"sequence"`
	Status      ChangeSetStatus `json:"status"`
	Results     []OpResult      `json:"results"`
	Accepted    []string        `json:"accepted"`
	Conflicts   []string        `json:"conflicts,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   int64           `json:"created_at"`
}
