package engine

import (
	"fmt"

	"forge/internal/ops"
	"forge/internal/symbol"
)

// PromoteOpResult is the per-source-op outcome of a promotion.
type PromoteOpResult struct {
	SourceOpID string   `json:"source_op_id"`
	Status     string   `json:"status"` // accepted | skipped | conflicted | rejected
	NewOpID    string   `json:"new_op_id,omitempty"`
	Conflicts  []string `json:"conflicts,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// PromoteResult is promote's overall outcome.
type PromoteResult struct {
	Accepted  []string          `json:"accepted"`
	Conflicts []string          `json:"conflicts,omitempty"`
	Results   []PromoteOpResult `json:"results"`
}

// promoteContentFields is hashed to derive a deterministic promotion op
// id: re-running a partially applied promotion must produce the same
// ids at each step so idempotency kicks in on retry.
type promoteContentFields struct {
	SourceOpID  string   `json:"source_op_id"`
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	ParentHeads []string `json:"parent_heads"`
}

// Promote rebases source's op list onto target: each op not already
// promoted is cloned with a deterministic new id and resubmitted to
// target as a single-op change set, chaining parent_heads forward on
// acceptance and stopping at the first conflict or rejection.
func (e *Engine) Promote(source, target, author string) (PromoteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if source == target {
		return PromoteResult{}, fmt.Errorf("source and target states must differ")
	}
	sourceState, ok := e.states[source]
	if !ok {
		return PromoteResult{}, fmt.Errorf("source state %q does not exist", source)
	}
	if _, ok := e.states[target]; !ok {
		return PromoteResult{}, fmt.Errorf("target state %q does not exist", target)
	}

	alreadyPromoted := make(map[string]bool)
	for _, opID := range e.stateOps[target] {
		if op, ok := e.opLog[opID]; ok && op.Metadata.SourceOpID != "" {
			alreadyPromoted[op.Metadata.SourceOpID] = true
		}
	}

	// parent_heads starts at the target heads source last knew about
	// (its own base_heads), not target's live heads: seeding it from
	// the live heads would make every promoted op's parents equal
	// whatever it is about to be compared against, so the classifier's
	// ancestor-or-self check would trivially pass and no promotion
	// could ever surface a semantic_write_conflict.
	parentHeads := append([]string{}, sourceState.BaseHeads...)
	result := PromoteResult{}

	for _, opID := range e.stateOps[source] {
		if alreadyPromoted[opID] {
			result.Results = append(result.Results, PromoteOpResult{SourceOpID: opID, Status: "skipped"})
			continue
		}

		sourceOp, ok := e.opLog[opID]
		if !ok {
			continue
		}

		newID, err := symbol.ID("op_promote_", promoteContentFields{
			SourceOpID: opID, Source: source, Target: target, ParentHeads: parentHeads,
		})
		if err != nil {
			return result, fmt.Errorf("deriving promotion id for %s: %w", opID, err)
		}

		clone := sourceOp
		clone.ID = newID
		clone.State = target
		clone.Parents = append([]string{}, parentHeads...)
		clone.Resolves = nil
		clone.AcceptedAt = 0
		clone.CanonicalOrder = 0
		clone.Metadata.Author = author
		clone.Metadata.Intent = fmt.Sprintf("Promote %s from %s", opID, source)
		clone.Metadata.SourceState = source
		clone.Metadata.SourceOpID = opID
		clone.Metadata.Timestamp = e.now()

		record, err := e.submitLocked(ops.ChangeSet{State: target, Ops: []ops.Operation{clone}})
		if err != nil {
			return result, err
		}

		opResult := record.Results[0]
		switch opResult.Status {
		case ops.OpAccepted:
			result.Results = append(result.Results, PromoteOpResult{SourceOpID: opID, Status: "accepted", NewOpID: newID})
			result.Accepted = append(result.Accepted, newID)
			parentHeads = []string{newID}
		case ops.OpConflicted:
			result.Results = append(result.Results, PromoteOpResult{SourceOpID: opID, Status: "conflicted", Conflicts: opResult.Conflicts})
			result.Conflicts = append(result.Conflicts, opResult.Conflicts...)
			return result, nil
		default:
			result.Results = append(result.Results, PromoteOpResult{SourceOpID: opID, Status: "rejected", Error: opResult.Error})
			return result, nil
		}
	}

	return result, nil
}
