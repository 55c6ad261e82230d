package adapter

// ParserMode selects which backend the external parser process should
// prefer for a parse_top_level request.
type ParserMode string

const (
	ParserAuto        ParserMode = "auto"
	ParserPreferAST   ParserMode = "ast"
	ParserPreferLibCST ParserMode = "libcst"
)

// Symbol is one top-level def/class span as reported by a Parser.
type Symbol struct {
	Kind  string // "def" | "class"
	Name  string
	Start int
	End   int
	Body  string
}

// ParseResult is the outcome of parsing one Python source file's
// top-level defs and classes. ParseError means the parser ran and
// determined the content itself cannot be parsed (a real syntax
// error); Unavailable means the parser could not run at all (missing
// binary, timeout, oversize output) and callers should fall back per
// parser mode instead of treating the content as broken.
type ParseResult struct {
	Symbols     []Symbol
	Order       []string // "kind:name" in source order
	Duplicates  []string // "kind:name" keys that appeared more than once
	ParseError  bool
	Unavailable bool
}

// Parser abstracts Python top-level symbol extraction so the external
// AST-backed subprocess and the pure regex fallback satisfy the same
// interface; the python adapter is indifferent to which one it holds.
type Parser interface {
	ParseTopLevel(content string, mode ParserMode) ParseResult
}

// toParseResult turns a flat symbol list into the map/order/duplicates
// shape the python adapter and engine verification step expect,
// extending each symbol's span to the next symbol's start (or EOF for
// the last) so inter-symbol whitespace belongs to the preceding symbol.
func toParseResult(content string, syms []Symbol) ParseResult {
	res := ParseResult{}
	seen := make(map[string]int)

	for i := range syms {
		if i+1 < len(syms) {
			syms[i].End = syms[i+1].Start
		} else {
			syms[i].End = len(content)
		}
		if syms[i].End < syms[i].Start {
			syms[i].End = syms[i].Start
		}
		syms[i].Body = content[syms[i].Start:syms[i].End]
	}

	for _, s := range syms {
		key := s.Kind + ":" + s.Name
		seen[key]++
		if seen[key] == 2 {
			res.Duplicates = append(res.Duplicates, key)
		}
		res.Order = append(res.Order, key)
		res.Symbols = append(res.Symbols, s)
	}
	return res
}
