// Package fallback finds function and method headers with per-language
// regular expressions. It is used when no structured outline exists for a
// document's language.
//
// The matcher is a heuristic, not a parser. It reports headers inside string
// literals and comments, misses headers split across unusual line breaks, and
// knows only where a header starts: every candidate it returns has a
// zero-width range at the first non-blank character of the header line.
package fallback

import (
	"regexp"
	"strings"

	"github.com/jward/scopelens/internal/outline"
)

type family int

const (
	braceFamily family = iota + 1
	defFamily
)

var languageFamilies = map[string]family{
	"javascript":      braceFamily,
	"javascriptreact": braceFamily,
	"typescript":      braceFamily,
	"typescriptreact": braceFamily,
	"tsx":             braceFamily,
	"java":            braceFamily,
	"c":               braceFamily,
	"cpp":             braceFamily,
	"csharp":          braceFamily,
	"go":              braceFamily,
	"php":             braceFamily,
	"kotlin":          braceFamily,
	"rust":            braceFamily,
	"swift":           braceFamily,
	"dart":            braceFamily,
	"python":          defFamily,
}

var (
	// function name(...) {   export default async function* name(...) {
	fnKeywordRe = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\b\s*\*?\s*([A-Za-z_$][\w$]*)\s*(?:<[^>]*>)?\s*\(.*\)[^;{}]*\{`)

	// const name = (...) =>   let name = async x =>
	arrowRe = regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*(?::[^=]+)?=>`)

	// func (r *T) name(...) {   fun name(...) {   pub fn name(...) {
	// Group 1 is the receiver, if any.
	funcKeywordRe = regexp.MustCompile(`^\s*(?:[a-z]+\s+)*(?:func|fun|fn)\s+(\([^)]*\)\s*)?([A-Za-z_]\w*)\s*(?:<[^>]*>|\[[^\]]*\])?\s*\(.*\{`)

	// int main(...) {   public static void name(...) throws X {   Foo::bar(...) {
	// Group 1 is the modifier/type prefix, group 2 the name.
	headerRe = regexp.MustCompile(`^\s*((?:[\w$<>\[\],.:?]+[\s*&]+)*?)(~?[A-Za-z_$][\w$]*(?:::~?[A-Za-z_]\w*)*)\s*\([^;]*\)[^;{}()=]*\{`)

	// def name(...):   async def name(...):
	defRe  = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	selfRe = regexp.MustCompile(`^\s*(?:async\s+)?def\s+\w+\s*\(\s*(?:self|cls)\b`)
)

// notNames are words the header pattern would otherwise take for a name.
var notNames = map[string]bool{
	"if": true, "for": true, "foreach": true, "while": true, "switch": true,
	"catch": true, "return": true, "else": true, "do": true, "try": true,
	"synchronized": true, "using": true, "lock": true, "with": true,
	"function": true, "new": true, "typeof": true, "sizeof": true,
	"await": true, "throw": true, "elif": true, "when": true, "match": true,
}

// notPrefixes are words that make a parenthesised header a type declaration
// or an expression rather than a callable.
var notPrefixes = map[string]bool{
	"class": true, "struct": true, "interface": true, "enum": true,
	"record": true, "new": true, "return": true, "throw": true, "await": true,
	"else": true,
}

// Supported reports whether language has a header pattern.
func Supported(language string) bool {
	_, ok := languageFamilies[language]
	return ok
}

// Match returns one zero-width candidate per header found in text, in order
// of appearance. Unknown languages yield nil.
func Match(text, language string) []*outline.Candidate {
	fam, ok := languageFamilies[language]
	if !ok {
		return nil
	}

	var out []*outline.Candidate
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		var (
			name string
			kind outline.Kind
			ok   bool
		)
		switch fam {
		case braceFamily:
			name, kind, ok = matchBrace(line)
		case defFamily:
			name, kind, ok = matchDef(line)
		}
		if !ok {
			continue
		}
		col := len(line) - len(strings.TrimLeft(line, " \t"))
		start := outline.Position{Line: i, Column: col}
		out = append(out, &outline.Candidate{
			Name:  name,
			Kind:  kind,
			Range: outline.Range{Start: start, End: start},
		})
	}
	return out
}

func matchBrace(line string) (string, outline.Kind, bool) {
	indented := line != strings.TrimLeft(line, " \t")

	if m := fnKeywordRe.FindStringSubmatch(line); m != nil {
		return m[1], outline.Function, true
	}
	if m := arrowRe.FindStringSubmatch(line); m != nil {
		return m[1], outline.Function, true
	}
	if m := funcKeywordRe.FindStringSubmatch(line); m != nil {
		if notNames[m[2]] {
			return "", 0, false
		}
		if m[1] != "" || indented {
			return m[2], outline.Method, true
		}
		return m[2], outline.Function, true
	}
	if m := headerRe.FindStringSubmatch(line); m != nil {
		name := m[2]
		if notNames[name] {
			return "", 0, false
		}
		for _, word := range strings.Fields(m[1]) {
			if notPrefixes[strings.Trim(word, "*&")] {
				return "", 0, false
			}
		}
		if indented || strings.Contains(name, "::") {
			return name, outline.Method, true
		}
		return name, outline.Function, true
	}
	return "", 0, false
}

func matchDef(line string) (string, outline.Kind, bool) {
	m := defRe.FindStringSubmatch(line)
	if m == nil {
		return "", 0, false
	}
	if m[1] != "" && selfRe.MatchString(line) {
		return m[2], outline.Method, true
	}
	return m[2], outline.Function, true
}

// Bound gives zero-width candidates an explicit body. Candidate i ends just
// past the last non-blank character before candidate i+1 starts, or before
// the end of text for the last one, so blank lines between two headers
// belong to neither. Candidates must be in order of appearance.
func Bound(cands []*outline.Candidate, text string) {
	idx := outline.NewLineIndex(text)
	for i, c := range cands {
		if !c.Range.IsZero() {
			continue
		}
		limit := len(text)
		if i+1 < len(cands) {
			limit = idx.Offset(cands[i+1].Range.Start)
		}
		start := idx.Offset(c.Range.Start)
		end := limit
		for end > start && isBlank(text[end-1]) {
			end--
		}
		c.Range.End = idx.Position(end)
	}
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
