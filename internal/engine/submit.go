package engine

import (
	"fmt"
	"sort"

	"forge/internal/ops"
)

// Submit is the only write path for ops. It runs the normalize,
// idempotency, state-check, stage, evaluate, and commit-or-record
// steps under the engine's single writer lock. A non-nil error means
// an input error (shape, missing state): no mutation occurred. A
// returned record with no error is always a semantic outcome
// (accepted/conflicted/rejected), never itself an error.
func (e *Engine) Submit(cs ops.ChangeSet) (ops.ChangeSetRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitLocked(cs)
}

// SubmitOps wraps ops in an anonymous change set for the legacy
// submit_ops(ops) entry point.
func (e *Engine) SubmitOps(state string, opList []ops.Operation) (ops.ChangeSetRecord, error) {
	return e.Submit(ops.ChangeSet{State: state, Ops: opList})
}

func (e *Engine) submitLocked(cs ops.ChangeSet) (ops.ChangeSetRecord, error) {
	if err := e.normalize(&cs); err != nil {
		return ops.ChangeSetRecord{}, err
	}

	if existing, ok := e.changeSets[cs.ID]; ok {
		return existing, nil
	}

	if _, ok := e.states[cs.State]; !ok {
		return ops.ChangeSetRecord{}, fmt.Errorf("state %q does not exist", cs.State)
	}

	st := &stagingContext{
		state:        cs.State,
		symbolHead:   copyStringMap(e.symbolHead[cs.State]),
		symbolHash:   copyStringMap(e.symbolHash[cs.State]),
		tree:         e.materializeLocked(cs.State, make(map[string]bool)),
		localParents: make(map[string][]string),
		localOps:     make(map[string]ops.Operation),
		hasOpenConflicts: e.openConflictCountLocked(cs.State) > 0,
		policy:       e.states[cs.State].Policy,
	}

	results := make([]ops.OpResult, len(cs.Ops))
	var newConflicts []ops.Conflict
	failed := false

	for i, op := range cs.Ops {
		if failed {
			results[i] = ops.OpResult{OpID: op.ID, Status: ops.OpSkipped}
			continue
		}
		if op.State != cs.State {
			results[i] = ops.OpResult{OpID: op.ID, Status: ops.OpRejected, Error: "op.state does not match change_set.state"}
			failed = true
			continue
		}
		if err := op.Validate(); err != nil {
			results[i] = ops.OpResult{OpID: op.ID, Status: ops.OpRejected, Error: err.Error()}
			failed = true
			continue
		}
		if _, exists := e.opLog[op.ID]; exists {
			results[i] = ops.OpResult{OpID: op.ID, Status: ops.OpAccepted, Duplicate: true}
			continue
		}

		conflicts := e.classify(op, st)
		if len(conflicts) > 0 {
			newConflicts = append(newConflicts, conflicts...)
			ids := make([]string, len(conflicts))
			for j, c := range conflicts {
				ids[j] = c.ID
			}
			sort.Strings(ids)
			results[i] = ops.OpResult{OpID: op.ID, Status: ops.OpConflicted, Conflicts: ids}
			failed = true
			continue
		}

		applyEffect(e.adapters, st.tree, op)
		for _, w := range op.Writes {
			st.symbolHead[w] = op.ID
		}
		applySymbolHashBookkeeping(st.symbolHash, op)
		st.localParents[op.ID] = op.Parents
		st.localOps[op.ID] = op
		results[i] = ops.OpResult{OpID: op.ID, Status: ops.OpAccepted}
	}

	e.changeSetSeq++
	record := ops.ChangeSetRecord{
		ChangeSetID: cs.ID,
		State:       cs.State,
		Sequence:    e.changeSetSeq,
		Results:     results,
		CreatedAt:   e.now(),
	}

	if !failed {
		record.Status = ops.StatusAccepted
		record.Accepted = e.commit(cs, results)
		e.changeSets[cs.ID] = record
		e.events.Publish(Event{Kind: EventChangeSet, State: cs.State, Payload: record})
		e.publishStateUpdate(cs.State)
		e.schedulePersist()
		return record, nil
	}

	record.Status = ops.StatusConflicted
	for _, r := range results {
		if r.Status == ops.OpRejected {
			record.Status = ops.StatusRejected
			record.Error = r.Error
			break
		}
	}

	conflictIDs := make([]string, len(newConflicts))
	for i, c := range newConflicts {
		e.conflicts[c.ID] = c
		conflictIDs[i] = c.ID
	}
	sort.Strings(conflictIDs)
	record.Conflicts = conflictIDs

	e.changeSets[cs.ID] = record
	for _, c := range newConflicts {
		e.events.Publish(Event{Kind: EventConflict, State: cs.State, Payload: c})
	}
	e.events.Publish(Event{Kind: EventChangeSet, State: cs.State, Payload: record})
	e.schedulePersist()
	return record, nil
}

// commit applies every accepted op in results to the real state
// indexes: op log, per-state op order, heads, symbol_head/symbol_hash,
// and resolves any conflicts the op names. Returns the ordered list of
// accepted op ids (including duplicates, which count as accepted).
func (e *Engine) commit(cs ops.ChangeSet, results []ops.OpResult) []string {
	accepted := make([]string, 0, len(cs.Ops))
	state := e.states[cs.State]

	for i, op := range cs.Ops {
		if results[i].Duplicate {
			accepted = append(accepted, op.ID)
			continue
		}

		e.sequence++
		op.AcceptedAt = e.now()
		op.CanonicalOrder = e.sequence

		e.opLog[op.ID] = op
		e.stateOps[cs.State] = append(e.stateOps[cs.State], op.ID)
		for _, w := range op.Writes {
			e.symbolHead[cs.State][w] = op.ID
		}
		applySymbolHashBookkeeping(e.symbolHash[cs.State], op)
		updateHeads(state, op)

		for _, cid := range op.Resolves {
			c, ok := e.conflicts[cid]
			if !ok || c.Status != ops.ConflictOpen {
				continue
			}
			c.Status = ops.ConflictResolved
			c.ResolvedBy = op.ID
			c.ResolvedAt = e.now()
			e.conflicts[cid] = c
			e.events.Publish(Event{Kind: EventConflict, State: cs.State, Payload: c})
		}

		accepted = append(accepted, op.ID)
		e.events.Publish(Event{Kind: EventOpAccepted, State: cs.State, Payload: op})
	}

	state.UpdatedAt = e.now()
	return accepted
}

// updateHeads removes op.parents from heads and inserts op.id, keeping
// heads a minimal antichain of the state's most recent op ids.
func updateHeads(state *ops.State, op ops.Operation) {
	parentSet := make(map[string]bool, len(op.Parents))
	for _, p := range op.Parents {
		parentSet[p] = true
	}
	newHeads := make([]string, 0, len(state.Heads)+1)
	for _, h := range state.Heads {
		if !parentSet[h] {
			newHeads = append(newHeads, h)
		}
	}
	newHeads = append(newHeads, op.ID)
	state.Heads = newHeads
}

// normalize validates shapes, assigns missing ids (content-hash) before
// filling any default metadata, and fills default metadata timestamps.
// Deriving the id first keeps the server-assigned timestamp out of the
// hash, so resubmitting an identical, timestamp-less op reproduces the
// same id (invariant 1) instead of a fresh one each call. A shape error
// here means no mutation occurs anywhere.
func (e *Engine) normalize(cs *ops.ChangeSet) error {
	for i := range cs.Ops {
		op := &cs.Ops[i]
		if op.State == "" {
			op.State = cs.State
		}
		if err := op.Validate(); err != nil {
			return fmt.Errorf("op[%d]: %w", i, err)
		}
		if op.ID == "" {
			id, err := op.DeriveID()
			if err != nil {
				return fmt.Errorf("op[%d]: deriving id: %w", i, err)
			}
			op.ID = id
		}
		if op.Metadata.Timestamp == 0 {
			op.Metadata.Timestamp = e.now()
		}
	}

	if err := cs.Validate(); err != nil {
		return err
	}

	if cs.ID == "" {
		id, err := cs.DeriveID()
		if err != nil {
			return fmt.Errorf("deriving change_set id: %w", err)
		}
		cs.ID = id
	}
	return nil
}

// publishStateUpdate emits a self-contained snapshot for state, per
// the SSE contract: state_update payloads are never deltas.
func (e *Engine) publishStateUpdate(state string) {
	st, ok := e.states[state]
	if !ok {
		return
	}
	snapshot := struct {
		State         ops.State         `json:"state"`
		Tree          map[string]string `json:"tree"`
		OpenConflicts int               `json:"open_conflicts"`
	}{
		State:         *st,
		Tree:          e.materializeLocked(state, make(map[string]bool)),
		OpenConflicts: e.openConflictCountLocked(state),
	}
	e.events.Publish(Event{Kind: EventStateUpdate, State: state, Payload: snapshot})
}
