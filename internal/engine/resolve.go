package engine

import (
	"fmt"

	"forge/internal/ops"
)

// Resolve submits op with conflictID added to its resolves set, as a
// normal single-op change set. If op is accepted, every open conflict
// it names transitions to resolved as part of commit (§4.8); if not,
// the conflict remains open and the failure is returned in the record.
func (e *Engine) Resolve(conflictID string, op ops.Operation) (ops.ChangeSetRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.conflicts[conflictID]
	if !ok {
		return ops.ChangeSetRecord{}, fmt.Errorf("conflict %q does not exist", conflictID)
	}
	if op.State == "" {
		op.State = c.State
	}

	found := false
	for _, r := range op.Resolves {
		if r == conflictID {
			found = true
			break
		}
	}
	if !found {
		op.Resolves = append(op.Resolves, conflictID)
	}

	return e.submitLocked(ops.ChangeSet{State: op.State, Ops: []ops.Operation{op}})
}
