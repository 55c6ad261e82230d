package adapter

import (
	"sort"
	"strings"

	"forge/internal/ops"
	"forge/internal/symbol"
)

// Python is the python-top-level adapter: symbols are the file's
// top-level def/class statements, parsed via Primary (typically the
// external AST-backed subprocess) with Fallback (the regex parser) used
// when Primary is unavailable, unless Strict disables the fallback.
type Python struct {
	Primary  Parser
	Fallback Parser
	Mode     ParserMode
	Strict   bool
}

// NewPython builds a python adapter over primary, defaulting to auto
// mode with the regex fallback enabled. A nil primary means only the
// fallback parser is ever consulted.
func NewPython(primary Parser) *Python {
	return &Python{Primary: primary, Fallback: RegexParser{}, Mode: ParserAuto}
}

func (p *Python) Kind() Kind { return KindPython }

// Parse exposes the adapter's configured parse pipeline (primary then
// fallback) so callers outside the adapter package, notably the
// engine's post-apply verification step, can re-check a file without
// duplicating the primary/fallback/strict selection logic.
func (p *Python) Parse(content string) ParseResult {
	return p.parse(content)
}

// parse runs Primary, falling back to Fallback (unless Strict) when
// Primary reports unavailability rather than a genuine syntax error.
func (p *Python) parse(content string) ParseResult {
	if p.Primary != nil {
		res := p.Primary.ParseTopLevel(content, p.mode())
		if !res.Unavailable {
			return res
		}
		if p.Strict {
			return ParseResult{ParseError: true}
		}
	} else if p.Strict {
		return ParseResult{ParseError: true}
	}
	if p.Fallback == nil {
		return ParseResult{ParseError: true}
	}
	return p.Fallback.ParseTopLevel(content, p.mode())
}

func (p *Python) mode() ParserMode {
	if p.Mode == "" {
		return ParserAuto
	}
	return p.Mode
}

// SymbolHashes maps each top-level def/class to hash(body_text). A
// parser failure yields an empty map: the caller (engine verification)
// is responsible for rejecting ops against unparsable files.
func (p *Python) SymbolHashes(path, text string) (map[string]string, error) {
	res := p.parse(text)
	if res.ParseError {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(res.Symbols))
	for _, s := range res.Symbols {
		hash, err := symbol.ContentHash(s.Body)
		if err != nil {
			return nil, err
		}
		out[symbol.PythonSymbolID(path, s.Kind, s.Name)] = hash
	}
	return out, nil
}

// Diff produces a reordered edit sequence: after-order symbol changes
// (insert or modified replace) first, then before-only symbols in
// name-sorted order (deletes). Symbols with byte-identical bodies are
// skipped. Returns ok=false if either side fails to parse or contains
// duplicate top-level names.
func (p *Python) Diff(path string, before, after []byte) ([]Edit, bool) {
	beforeRes := p.parse(string(before))
	afterRes := p.parse(string(after))
	if beforeRes.ParseError || afterRes.ParseError {
		return nil, false
	}
	if len(beforeRes.Duplicates) > 0 || len(afterRes.Duplicates) > 0 {
		return nil, false
	}

	beforeByKey := make(map[string]Symbol, len(beforeRes.Symbols))
	for _, s := range beforeRes.Symbols {
		beforeByKey[s.Kind+":"+s.Name] = s
	}
	afterByKey := make(map[string]Symbol, len(afterRes.Symbols))
	for _, s := range afterRes.Symbols {
		afterByKey[s.Kind+":"+s.Name] = s
	}

	var edits []Edit
	for _, s := range afterRes.Symbols {
		key := s.Kind + ":" + s.Name
		if b, ok := beforeByKey[key]; ok {
			if b.Body == s.Body {
				continue
			}
			edits = append(edits, Edit{
				SymbolKind: s.Kind, SymbolName: s.Name,
				Before: b.Body, After: s.Body, Action: "replace",
			})
			continue
		}
		edits = append(edits, Edit{
			SymbolKind: s.Kind, SymbolName: s.Name,
			After: s.Body, Action: "insert",
		})
	}

	var deletedKeys []string
	for key := range beforeByKey {
		if _, ok := afterByKey[key]; !ok {
			deletedKeys = append(deletedKeys, key)
		}
	}
	sort.Strings(deletedKeys)
	for _, key := range deletedKeys {
		b := beforeByKey[key]
		edits = append(edits, Edit{
			SymbolKind: b.Kind, SymbolName: b.Name,
			Before: b.Body, Action: "delete",
		})
	}

	return edits, true
}

// Apply locates the target symbol by (kind, name); replace/delete
// substitute its span, insert anchors by insert_after_key end, else
// insert_before_key start, else end of file. The written block ends
// with exactly one newline, and a newline is added before it only when
// the preceding text does not already end with one.
func (p *Python) Apply(effect ops.Effect, current string) string {
	res := p.parse(current)
	if res.ParseError {
		return current
	}

	byKey := make(map[string]Symbol, len(res.Symbols))
	for _, s := range res.Symbols {
		byKey[s.Kind+":"+s.Name] = s
	}

	switch effect.Kind {
	case ops.EffectPythonReplaceSymbol:
		s, ok := byKey[effect.SymbolKind+":"+effect.SymbolName]
		if !ok {
			return current
		}
		return current[:s.Start] + ensureTrailingNewline(effect.AfterContent) + current[s.End:]

	case ops.EffectPythonDeleteSymbol:
		s, ok := byKey[effect.SymbolKind+":"+effect.SymbolName]
		if !ok {
			return current
		}
		return current[:s.Start] + current[s.End:]

	case ops.EffectPythonInsertSymbol:
		block := ensureTrailingNewline(effect.AfterContent)
		if effect.InsertAfterKey != nil {
			if s, ok := byKey[*effect.InsertAfterKey]; ok {
				return insertAt(current, s.End, block)
			}
		}
		if effect.InsertBeforeKey != nil {
			if s, ok := byKey[*effect.InsertBeforeKey]; ok {
				return insertAt(current, s.Start, block)
			}
		}
		return insertAt(current, len(current), block)

	default:
		return current
	}
}

// ensureTrailingNewline guarantees an inserted or replacing block ends
// with exactly one newline.
func ensureTrailingNewline(s string) string {
	return strings.TrimRight(s, "\n") + "\n"
}

// insertAt splices block into text at offset, separating it from
// preceding text by a newline when needed. block already ends with
// exactly one newline courtesy of ensureTrailingNewline.
func insertAt(text string, offset int, block string) string {
	prefix := text[:offset]
	suffix := text[offset:]
	if prefix != "" && !strings.HasSuffix(prefix, "\n") {
		prefix += "\n"
	}
	return prefix + block + suffix
}
