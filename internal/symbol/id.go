package symbol

import (
	"fmt"
	"net/url"
	"strings"
)

// Adapter names embedded in a symbol id, e.g. "sym://python/pkg/mod.py#def:calc".
const (
	AdapterText     = "text"
	AdapterMarkdown = "markdown"
	AdapterFile     = "file"
	AdapterJSON     = "json"
	AdapterPython   = "python"
)

// Fragment kinds.
const (
	FragmentDocument = "document"
	FragmentKey      = "key"
	FragmentDef      = "def"
	FragmentClass    = "class"
)

// Ident is a parsed "sym://<adapter>/<path>#<fragment>" identifier.
type Ident struct {
	Adapter  string
	Path     string
	Fragment string // raw fragment, e.g. "document", "key:<enc>", "def:<enc>"
}

// String renders the identifier back to its canonical wire form.
func (id Ident) String() string {
	return fmt.Sprintf("sym://%s/%s#%s", id.Adapter, id.Path, id.Fragment)
}

// DocumentID builds a whole-file symbol id for a document adapter.
func DocumentID(adapter, path string) string {
	return Ident{Adapter: adapter, Path: normalizePath(path), Fragment: FragmentDocument}.String()
}

// JSONKeyID builds a JSON top-level key symbol id.
func JSONKeyID(path, key string) string {
	return Ident{Adapter: AdapterJSON, Path: normalizePath(path), Fragment: "key:" + url.QueryEscape(key)}.String()
}

// PythonSymbolID builds a python top-level def/class symbol id.
func PythonSymbolID(path, kind, name string) string {
	return Ident{Adapter: AdapterPython, Path: normalizePath(path), Fragment: kind + ":" + url.QueryEscape(name)}.String()
}

// Parse decodes a "sym://..." identifier into its components.
func Parse(raw string) (Ident, error) {
	const scheme = "sym://"
	if !strings.HasPrefix(raw, scheme) {
		return Ident{}, fmt.Errorf("symbol: missing sym:// scheme in %q", raw)
	}
	rest := raw[len(scheme):]

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return Ident{}, fmt.Errorf("symbol: missing adapter separator in %q", raw)
	}
	adapter := rest[:slash]
	rest = rest[slash+1:]

	hash := strings.IndexByte(rest, '#')
	if hash < 0 {
		return Ident{}, fmt.Errorf("symbol: missing fragment in %q", raw)
	}
	path := rest[:hash]
	fragment := rest[hash+1:]

	if adapter == "" || path == "" || fragment == "" {
		return Ident{}, fmt.Errorf("symbol: malformed identifier %q", raw)
	}

	return Ident{Adapter: adapter, Path: path, Fragment: fragment}, nil
}

// FragmentKind returns the fragment's kind ("document", "key", "def", "class")
// and, for keyed fragments, the URL-decoded key/name.
func (id Ident) FragmentKind() (kind, name string, err error) {
	if id.Fragment == FragmentDocument {
		return FragmentDocument, "", nil
	}
	colon := strings.IndexByte(id.Fragment, ':')
	if colon < 0 {
		return "", "", fmt.Errorf("symbol: malformed fragment %q", id.Fragment)
	}
	kind = id.Fragment[:colon]
	enc := id.Fragment[colon+1:]
	decoded, err := url.QueryUnescape(enc)
	if err != nil {
		return "", "", fmt.Errorf("symbol: bad fragment encoding %q: %w", id.Fragment, err)
	}
	return kind, decoded, nil
}

// normalizePath rewrites host path separators to the "/" convention
// symbol ids always use, regardless of host OS.
func normalizePath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
