// Package ops defines the wire-level data model shared by the engine and
// the language adapters: operations, effects, change sets, conflicts, and
// states, exactly as spec'd in "DATA MODEL".
package ops

import "encoding/json"

// EffectKind identifies which tagged variant an Effect carries.
type EffectKind string

const (
	EffectUpsertFile          EffectKind = "upsert_file"
	EffectDeleteFile          EffectKind = "delete_file"
	EffectJSONSetKey          EffectKind = "json_set_key"
	EffectJSONDeleteKey       EffectKind = "json_delete_key"
	EffectPythonReplaceSymbol EffectKind = "python_replace_symbol"
	EffectPythonInsertSymbol  EffectKind = "python_insert_symbol"
	EffectPythonDeleteSymbol  EffectKind = "python_delete_symbol"
	EffectReplaceBody         EffectKind = "replace_body" // legacy
)

// Effect is the tagged variant describing how a single op mutates a file.
// Fields not relevant to Kind are left zero; JSON omits them.
type Effect struct {
	Kind EffectKind `json:"kind"`
	Path string     `json:"path,omitempty"`

	// upsert_file
	Content string `json:"content,omitempty"`

	// json_set_key / json_delete_key
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	// python_replace_symbol / python_insert_symbol / python_delete_symbol
	SymbolKind      string  `json:"symbol_kind,omitempty"`
	SymbolName      string  `json:"symbol_name,omitempty"`
	BeforeContent   string  `json:"before_content,omitempty"`
	AfterContent    string  `json:"after_content,omitempty"`
	InsertAfterKey  *string `json:"insert_after_key,omitempty"`
	InsertBeforeKey *string `json:"insert_before_key,omitempty"`

	// legacy bookkeeping fallback (§4.5): declared post-effect hash used
	// when SymbolHashes omits an entry for a written symbol.
	AfterHash string `json:"after_hash,omitempty"`

	// SymbolHashes declares the post-effect hash per written symbol.
	// A present key with a nil value means the symbol was deleted.
	SymbolHashes map[string]*string `json:"symbol_hashes,omitempty"`
}

// DeclaredHash returns the declared hash for symbol from SymbolHashes,
// distinguishing "absent" (bookkeeping should fall back to legacy rules)
// from "present and null" (symbol was deleted).
func (e Effect) DeclaredHash(symbolID string) (hash string, deleted bool, present bool) {
	if e.SymbolHashes == nil {
		return "", false, false
	}
	v, ok := e.SymbolHashes[symbolID]
	if !ok {
		return "", false, false
	}
	if v == nil {
		return "", true, true
	}
	return *v, false, true
}
