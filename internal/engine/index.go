package engine

import (
	"forge/internal/ops"
	"forge/internal/symbol"
)

// ancestorOrSelf walks parents (committed, via resolve, and staged,
// via localParents) looking for target. It is the reflexive-transitive
// closure the semantic-write-conflict rule needs: target counts as an
// ancestor-or-self of start if it appears directly in start, or is
// reachable by repeatedly following parent edges.
func ancestorOrSelf(target string, start []string, resolve func(id string) ([]string, bool)) bool {
	visited := make(map[string]bool)
	var walk func(ids []string) bool
	walk = func(ids []string) bool {
		for _, id := range ids {
			if id == target {
				return true
			}
			if visited[id] {
				continue
			}
			visited[id] = true
			if parents, ok := resolve(id); ok && walk(parents) {
				return true
			}
		}
		return false
	}
	return walk(start)
}

// applySymbolHashBookkeeping updates a staged symbol_hash map per §4.5:
// an explicit null in effect.symbol_hashes removes the entry, an
// explicit string sets it, and legacy ops without a declared entry for
// a given written symbol fall back to effect.after_hash under kind- and
// path-specific matching rules.
func applySymbolHashBookkeeping(symbolHash map[string]string, op ops.Operation) {
	for _, sym := range op.Writes {
		hash, deleted, present := op.Effect.DeclaredHash(sym)
		if present {
			if deleted {
				delete(symbolHash, sym)
			} else {
				symbolHash[sym] = hash
			}
			continue
		}
		if legacy, ok := legacyDeclaredHash(op, sym); ok {
			symbolHash[sym] = legacy
		}
	}
}

// legacyDeclaredHash implements the fallback rules for ops that omit
// effect.symbol_hashes entirely.
func legacyDeclaredHash(op ops.Operation, sym string) (string, bool) {
	e := op.Effect
	switch e.Kind {
	case ops.EffectUpsertFile:
		if id, err := symbol.Parse(sym); err == nil && id.Fragment == symbol.FragmentDocument {
			return e.AfterHash, e.AfterHash != ""
		}
	case ops.EffectReplaceBody:
		return e.AfterHash, e.AfterHash != ""
	case ops.EffectJSONSetKey:
		if e.Path != "" && sym == symbol.JSONKeyID(e.Path, e.Key) {
			return e.AfterHash, e.AfterHash != ""
		}
	case ops.EffectPythonReplaceSymbol, ops.EffectPythonInsertSymbol:
		if e.Path != "" && sym == symbol.PythonSymbolID(e.Path, e.SymbolKind, e.SymbolName) {
			return e.AfterHash, e.AfterHash != ""
		}
	}
	return "", false
}
