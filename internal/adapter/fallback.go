package adapter

import "regexp"

// topLevelDefRe matches a def or class statement starting at column 0,
// the pure regex fallback used when the AST-backed subprocess is
// unavailable (unless strict mode disables the fallback entirely).
var topLevelDefRe = regexp.MustCompile(`(?m)^(def|class)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// RegexParser is a total, dependency-free approximation of Python
// top-level symbol extraction: it never fails, so ParseError is always
// false, but it cannot see decorators, nested indentation edge cases,
// or syntax errors the way an AST parser would.
type RegexParser struct{}

// ParseTopLevel ignores mode: the regex fallback has no libcst/ast
// distinction to offer.
func (RegexParser) ParseTopLevel(content string, mode ParserMode) ParseResult {
	matches := topLevelDefRe.FindAllStringSubmatchIndex(content, -1)
	syms := make([]Symbol, 0, len(matches))
	for _, m := range matches {
		kind := content[m[2]:m[3]]
		name := content[m[4]:m[5]]
		syms = append(syms, Symbol{Kind: kind, Name: name, Start: m[0]})
	}
	return toParseResult(content, syms)
}
