package engine

import (
	"sort"

	"forge/internal/adapter"
	"forge/internal/ops"
)

// SnapshotDoc is the single JSON document the engine serializes to and
// rebuilds from: everything needed to reconstruct the op log, change-set
// log, conflict table, and state metadata. Derived indexes (state_ops,
// symbol_head, symbol_hash, state.heads) are not persisted; they are
// rebuilt from this document on load.
type SnapshotDoc struct {
	Sequence          int64                  `json:"sequence"`
	ConflictSequence  int64                  `json:"conflictSequence"`
	ChangeSetSequence int64                  `json:"change_set_sequence"`
	Ops               []ops.Operation        `json:"ops"`
	ChangeSets        []ops.ChangeSetRecord  `json:"change_sets"`
	Conflicts         []ops.Conflict         `json:"conflicts"`
	States            []ops.State            `json:"states"`
}

// Snapshot returns a full point-in-time copy of persisted state.
func (e *Engine) Snapshot() SnapshotDoc {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc := SnapshotDoc{
		Sequence:          e.sequence,
		ConflictSequence:  e.conflictSeq,
		ChangeSetSequence: e.changeSetSeq,
	}
	for _, op := range e.opLog {
		doc.Ops = append(doc.Ops, op)
	}
	sort.Slice(doc.Ops, func(i, j int) bool { return doc.Ops[i].CanonicalOrder < doc.Ops[j].CanonicalOrder })

	for _, cs := range e.changeSets {
		doc.ChangeSets = append(doc.ChangeSets, cs)
	}
	sort.Slice(doc.ChangeSets, func(i, j int) bool { return doc.ChangeSets[i].Sequence < doc.ChangeSets[j].Sequence })

	for _, c := range e.conflicts {
		doc.Conflicts = append(doc.Conflicts, c)
	}
	sort.Slice(doc.Conflicts, func(i, j int) bool { return doc.Conflicts[i].ID < doc.Conflicts[j].ID })

	for _, st := range e.states {
		doc.States = append(doc.States, *st)
	}
	sort.Slice(doc.States, func(i, j int) bool { return doc.States[i].Name < doc.States[j].Name })

	return doc
}

// LoadSnapshot rebuilds a full engine from a persisted document,
// reconstructing state_ops, symbol_head, symbol_hash, and (as a
// self-heal) state.heads from the op log and state metadata.
func LoadSnapshot(doc SnapshotDoc, python *adapter.Python, opts ...Option) *Engine {
	e := New(python, opts...)
	e.states = make(map[string]*ops.State)
	e.stateOps = make(map[string][]string)
	e.symbolHead = make(map[string]map[string]string)
	e.symbolHash = make(map[string]map[string]string)

	e.sequence = doc.Sequence
	e.conflictSeq = doc.ConflictSequence
	e.changeSetSeq = doc.ChangeSetSequence

	for _, st := range doc.States {
		s := st
		e.states[st.Name] = &s
	}
	for _, op := range doc.Ops {
		e.opLog[op.ID] = op
	}
	for _, cs := range doc.ChangeSets {
		e.changeSets[cs.ChangeSetID] = cs
	}
	for _, c := range doc.Conflicts {
		e.conflicts[c.ID] = c
	}

	opsByState := make(map[string][]ops.Operation)
	for _, op := range doc.Ops {
		opsByState[op.State] = append(opsByState[op.State], op)
	}
	for state, list := range opsByState {
		sort.Slice(list, func(i, j int) bool { return list[i].CanonicalOrder < list[j].CanonicalOrder })
		opsByState[state] = list
	}

	visited := make(map[string]bool)
	var rebuild func(name string)
	rebuild = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		st, ok := e.states[name]
		if !ok {
			return
		}

		if st.BaseState != "" {
			rebuild(st.BaseState)
			e.symbolHead[name] = copyStringMap(e.symbolHead[st.BaseState])
			e.symbolHash[name] = copyStringMap(e.symbolHash[st.BaseState])
			st.Heads = append([]string{}, st.BaseHeads...)
		} else {
			e.symbolHead[name] = make(map[string]string)
			e.symbolHash[name] = make(map[string]string)
			st.Heads = nil
		}

		var ids []string
		for _, op := range opsByState[name] {
			ids = append(ids, op.ID)
			for _, w := range op.Writes {
				e.symbolHead[name][w] = op.ID
			}
			applySymbolHashBookkeeping(e.symbolHash[name], op)
			updateHeads(st, op)
		}
		e.stateOps[name] = ids
	}

	for name := range e.states {
		rebuild(name)
	}

	return e
}
