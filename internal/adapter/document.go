package adapter

import (
	"forge/internal/ops"
	"forge/internal/symbol"
)

// Document treats the whole file as one opaque symbol. It backs the
// markdown, text, and generic file fragment kinds; the dispatch in
// ForPath always resolves to this implementation, with the symbol id's
// adapter segment derived from path's extension per the grammar.
type Document struct{}

func (Document) Kind() Kind { return KindDocument }

func (Document) SymbolHashes(path, text string) (map[string]string, error) {
	hash, err := symbol.ContentHash(text)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		symbol.DocumentID(documentAdapterName(path), path): hash,
	}, nil
}

// Diff always returns ok=false: document adapters are not diffed,
// callers issue file-level upsert_file/delete_file effects directly.
func (Document) Diff(path string, before, after []byte) ([]Edit, bool) {
	return nil, false
}

func (Document) Apply(effect ops.Effect, current string) string {
	switch effect.Kind {
	case ops.EffectUpsertFile:
		return effect.Content
	case ops.EffectReplaceBody:
		return effect.AfterContent
	case ops.EffectDeleteFile:
		return ""
	default:
		return current
	}
}
