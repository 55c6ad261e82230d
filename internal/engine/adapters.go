package engine

import (
	"path"
	"strings"

	"forge/internal/adapter"
)

// AdapterSet resolves the adapter for a file path, keeping the single
// configured python adapter (which carries the wired parser) alive
// across calls instead of constructing a fresh one per file.
type AdapterSet struct {
	Python *adapter.Python
}

// NewAdapterSet builds a set wired to python, the shared python adapter
// instance carrying the engine's configured parser and mode.
func NewAdapterSet(python *adapter.Python) *AdapterSet {
	return &AdapterSet{Python: python}
}

// ForPath dispatches by extension exactly as adapter.ForPath does, but
// returns the engine's long-lived python adapter instead of a fresh one.
func (a *AdapterSet) ForPath(p string) adapter.Adapter {
	switch strings.ToLower(path.Ext(p)) {
	case ".py":
		return a.Python
	case ".json":
		return adapter.JSON{}
	default:
		return adapter.Document{}
	}
}
