// Package adapter implements the per-file-extension language adapters:
// document, json-top-level, and python-top-level. Each exposes the same
// three pure operations (symbol hashes, diff, apply) dispatched by file
// extension.
package adapter

import (
	"path"
	"strings"

	"forge/internal/ops"
	"forge/internal/symbol"
)

// Kind names an adapter.
type Kind string

const (
	KindDocument Kind = "document"
	KindJSON     Kind = "json"
	KindPython   Kind = "python"
)

// Edit is one entry in the ordered edit list produced by Diff. Its shape
// varies by adapter: json edits carry Key/BeforeValue/AfterValue, python
// edits carry SymbolKind/SymbolName/Before/After.
type Edit struct {
	// json
	Key          string `json:"key,omitempty"`
	BeforeExists bool   `json:"before_exists,omitempty"`
	AfterExists  bool   `json:"after_exists,omitempty"`
	BeforeValue  []byte `json:"before_value,omitempty"`
	AfterValue   []byte `json:"after_value,omitempty"`

	// python
	SymbolKind string `json:"symbol_kind,omitempty"`
	SymbolName string `json:"symbol_name,omitempty"`
	Before     string `json:"before,omitempty"`
	After      string `json:"after,omitempty"`
	Action     string `json:"action,omitempty"` // "insert" | "replace" | "delete"
}

// Adapter is the pure interface every language adapter implements.
type Adapter interface {
	Kind() Kind
	// SymbolHashes maps each symbol found in text to its content hash.
	SymbolHashes(path, text string) (map[string]string, error)
	// Diff returns an ordered edit list between two versions of a file,
	// or ok=false if the adapter cannot produce a structured diff (the
	// caller should fall back to file-level upsert/delete).
	Diff(path string, before, after []byte) (edits []Edit, ok bool)
	// Apply is pure and total: malformed effects return current unchanged.
	Apply(effect ops.Effect, current string) string
}

// ForPath selects the adapter for a file by extension: .py -> python,
// .json -> json, .md/.markdown/.txt/else -> document.
func ForPath(p string) Adapter {
	switch strings.ToLower(path.Ext(p)) {
	case ".py":
		return NewPython(nil)
	case ".json":
		return JSON{}
	default:
		return Document{}
	}
}

// documentAdapterName returns the symbol id adapter segment a
// document-class file carries: .md/.markdown -> markdown, .txt -> text,
// anything else -> file. "document" itself never appears in a symbol
// id; it names the Kind, not the id's adapter segment.
func documentAdapterName(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown":
		return symbol.AdapterMarkdown
	case ".txt":
		return symbol.AdapterText
	default:
		return symbol.AdapterFile
	}
}
