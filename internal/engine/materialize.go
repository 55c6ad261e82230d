package engine

import "forge/internal/ops"

// effectPath resolves the file an effect targets: effect.path for
// every current effect kind, falling back to the op's target path hint
// for the legacy replace_body kind, which predates effect.path.
func effectPath(op ops.Operation) string {
	if op.Effect.Path != "" {
		return op.Effect.Path
	}
	return op.Target.PathHint
}

// applyEffect folds a single effect into tree in place: delete_file
// removes the path, upsert_file sets the path's text whatever its
// adapter, everything else is delegated to the path's adapter (which
// leaves the text unchanged for kinds it does not support).
func applyEffect(adapters *AdapterSet, tree map[string]string, op ops.Operation) {
	path := effectPath(op)
	if path == "" {
		return
	}
	if op.Effect.Kind == ops.EffectDeleteFile {
		delete(tree, path)
		return
	}
	if op.Effect.Kind == ops.EffectUpsertFile {
		tree[path] = op.Effect.Content
		return
	}
	current := tree[path]
	tree[path] = adapters.ForPath(path).Apply(op.Effect, current)
}

// Materialize returns a snapshot of state's tree: path -> text.
func (e *Engine) Materialize(state string) (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.states[state]; !ok {
		return nil, errStateNotFound(state)
	}
	return e.materializeLocked(state, make(map[string]bool)), nil
}

// materializeLocked folds base_state ancestry (breaking cycles via
// visiting) then this state's accepted ops, in canonical order, into a
// path->text map. Must be called with mu held.
func (e *Engine) materializeLocked(state string, visiting map[string]bool) map[string]string {
	tree := make(map[string]string)

	st, ok := e.states[state]
	if !ok {
		return tree
	}
	if st.BaseState != "" && !visiting[state] {
		visiting[state] = true
		for path, text := range e.materializeLocked(st.BaseState, visiting) {
			tree[path] = text
		}
	}

	for _, opID := range e.stateOps[state] {
		op, ok := e.opLog[opID]
		if !ok {
			continue
		}
		applyEffect(e.adapters, tree, op)
	}
	return tree
}
