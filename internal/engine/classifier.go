package engine

import (
	"fmt"
	"sort"
	"strings"

	"forge/internal/ops"
	"forge/internal/symbol"
)

// stagingContext is the consistent view the classifier evaluates each
// op against: the state's indexes as modified by every op accepted
// earlier in the same change set, plus the change set's local ancestry
// and open-conflict flag.
type stagingContext struct {
	state            string
	symbolHead       map[string]string
	symbolHash       map[string]string
	tree             map[string]string
	localParents     map[string][]string
	localOps         map[string]ops.Operation
	hasOpenConflicts bool
	policy           ops.Policy
}

func (e *Engine) resolveParents(st *stagingContext, id string) ([]string, bool) {
	if parents, ok := st.localParents[id]; ok {
		return parents, true
	}
	if op, ok := e.opLog[id]; ok {
		return op.Parents, true
	}
	return nil, false
}

// derivedHash computes sym's content hash directly from the staged
// tree via its adapter, returning computable=false when the symbol's
// path is absent from the tree or the adapter finds no such symbol.
func (e *Engine) derivedHash(st *stagingContext, sym string) (hash string, computable bool) {
	id, err := symbol.Parse(sym)
	if err != nil {
		return "", false
	}
	text, ok := st.tree[id.Path]
	if !ok {
		return "", false
	}
	hashes, err := e.adapters.ForPath(id.Path).SymbolHashes(id.Path, text)
	if err != nil {
		return "", false
	}
	h, ok := hashes[sym]
	if !ok {
		return "", false
	}
	return h, true
}

// classify runs the four conflict rules, in order, against a single
// op and the current staging context. All rules run; every rule that
// fires contributes a conflict.
func (e *Engine) classify(op ops.Operation, st *stagingContext) []ops.Conflict {
	var conflicts []ops.Conflict

	// 1. Preconditions.
	for _, pc := range op.Preconditions {
		switch pc.Kind {
		case ops.PreconditionSymbolExists:
			if st.symbolHead[op.Target.SymbolID] == "" {
				conflicts = append(conflicts, e.newConflict(st.state, ops.ConflictPrecondition, op.Target.SymbolID,
					[]string{op.ID}, fmt.Sprintf("symbol_exists precondition failed: %s has no head", op.Target.SymbolID)))
			}
		case ops.PreconditionSignatureHash:
			resolved, computable := e.derivedHash(st, op.Target.SymbolID)
			if !computable {
				resolved = st.symbolHash[op.Target.SymbolID]
			}
			if resolved != pc.Value {
				conflicts = append(conflicts, e.newConflict(st.state, ops.ConflictPrecondition, op.Target.SymbolID,
					[]string{op.ID}, fmt.Sprintf("signature_hash precondition failed: expected %s, resolved %s", pc.Value, resolved)))
			}
		}
	}

	// 2. Semantic write conflict.
	for _, sym := range op.Writes {
		h := st.symbolHead[sym]
		if h == "" {
			continue
		}
		if !ancestorOrSelf(h, op.Parents, func(id string) ([]string, bool) { return e.resolveParents(st, id) }) {
			conflicts = append(conflicts, e.newConflict(st.state, ops.ConflictSemanticWrite, sym,
				[]string{h, op.ID}, fmt.Sprintf("concurrent write to %s", sym)))
		}
	}

	// 3. Policy conflict.
	if !st.policy.AllowOpenConflicts && st.hasOpenConflicts {
		conflicts = append(conflicts, e.newConflict(st.state, ops.ConflictPolicy, "",
			[]string{op.ID}, "state policy disallows submission while open conflicts exist"))
	}

	// 4. Verification conflict.
	path := effectPath(op)
	if strings.HasSuffix(path, ".py") && op.Effect.Kind != ops.EffectDeleteFile {
		current := st.tree[path]
		trial := map[string]string{path: current}
		applyEffect(e.adapters, trial, op)
		result := e.adapters.Python.Parse(trial[path])
		if result.ParseError {
			conflicts = append(conflicts, e.newConflict(st.state, ops.ConflictVerification, path,
				[]string{op.ID}, "python adapter parse failed after applying operation"))
		} else if len(result.Duplicates) > 0 {
			sort.Strings(result.Duplicates)
			conflicts = append(conflicts, e.newConflict(st.state, ops.ConflictVerification, path,
				[]string{op.ID}, fmt.Sprintf("duplicate top-level symbols after applying operation: %s", strings.Join(result.Duplicates, ", "))))
		}
	}

	return conflicts
}

// newConflict allocates a conflict record with the next monotonic id.
// Must be called with mu held (classify runs inside submit's lock).
func (e *Engine) newConflict(state string, kind ops.ConflictType, target string, opIDs []string, reason string) ops.Conflict {
	e.conflictSeq++
	return ops.Conflict{
		ID:        fmt.Sprintf("conf_%d", e.conflictSeq),
		State:     state,
		Ops:       opIDs,
		Type:      kind,
		Target:    target,
		Reason:    reason,
		Status:    ops.ConflictOpen,
		CreatedAt: e.now(),
	}
}
