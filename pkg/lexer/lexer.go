package lexer

import (
	"fmt"
	"strings"

	"github.com/coregx/coregex"
)

// rule pairs a token kind with the pattern that recognizes it.
type rule struct {
	kind    Kind
	pattern string
	exact   *coregex.Regexp // pattern anchored to the whole span
}

// rules is the ordered pattern table. Order is significant: a matched span
// is classified by the first rule whose pattern matches it exactly, so
// keywords must precede IDENTIFIER and longer operators their prefixes.
var rules = []*rule{
	{kind: Print, pattern: `\boida\.sag\b`},
	{kind: Let, pattern: `\bheast\b`},
	{kind: If, pattern: `\bwenn\b`},
	{kind: Else, pattern: `\bsonst\b`},
	{kind: False, pattern: `\bsichaned\b`},
	{kind: Colon, pattern: `:`},
	{kind: True, pattern: `\bbasst\b`},
	{kind: Function, pattern: `\bhawara\b`},
	{kind: And, pattern: `\bund\b`},
	{kind: Or, pattern: `\boda\b`},
	{kind: Return, pattern: `\bspeicher\b`},
	{kind: Comparison, pattern: `\b(?:gleich|isned|klanaglei|größerglei|gößerglei|klana|größer)\b`},
	{kind: Arithmetic, pattern: `\b(?:plusplus|minusminus|mal|dividier|plus|minus)\b`},
	{kind: FilterArrow, pattern: `=>`},
	{kind: Assign, pattern: `\+=|-=|\*=|/=|=`},
	{kind: Number, pattern: `\d+`},
	{kind: String, pattern: `"(?:.*?)"`},
	{kind: LBracket, pattern: `\[`},
	{kind: RBracket, pattern: `\]`},
	{kind: LBrace, pattern: `\{`},
	{kind: RBrace, pattern: `\}`},
	{kind: LParen, pattern: `\(`},
	{kind: RParen, pattern: `\)`},
	{kind: Separator, pattern: `,`},
	{kind: Semicolon, pattern: `;`},
	{kind: For, pattern: `\baufi\b`},
	{kind: While, pattern: `\bgeh\s+weida\b`},
	{kind: ForEach, pattern: `\bfiaOis\b`},
	{kind: As, pattern: `\bals\b`},
	{kind: Dot, pattern: `\.`},
	{kind: Comment, pattern: `\bkommentar\b`},
	{kind: Fetch, pattern: `\bholma\b`},
	{kind: Identifier, pattern: `[a-zA-Z_]\w*`},
}

// composite is the alternation of every rule pattern in table order.
var composite *coregex.Regexp

func init() {
	parts := make([]string, len(rules))
	for i, r := range rules {
		parts[i] = "(" + r.pattern + ")"
		r.exact = mustCompile("^(?:" + r.pattern + ")$")
	}
	composite = mustCompile(strings.Join(parts, "|"))
}

func mustCompile(pattern string) *coregex.Regexp {
	re, err := coregex.Compile(pattern)
	if err != nil {
		panic(fmt.Sprintf("lexer: compiling %q: %v", pattern, err))
	}
	return re
}

// Tokenize scans source in a single pass and returns its tokens in order.
// It never fails: whitespace and characters no rule recognizes are skipped.
func Tokenize(source string) []Token {
	spans := composite.FindAllStringIndex(source, -1)
	tokens := make([]Token, 0, len(spans))
	for _, span := range spans {
		text := source[span[0]:span[1]]
		kind, ok := classify(text)
		if !ok {
			continue
		}
		if kind == String {
			text = strings.TrimPrefix(strings.TrimSuffix(text, `"`), `"`)
		}
		tokens = append(tokens, Token{Kind: kind, Value: text, Pos: span[0]})
	}
	return tokens
}

// classify resolves the kind of a matched span by testing the rules in
// table order.
func classify(text string) (Kind, bool) {
	for _, r := range rules {
		if r.exact.MatchString(text) {
			return r.kind, true
		}
	}
	return "", false
}

// Kinds returns the token kinds in classification order.
func Kinds() []Kind {
	kinds := make([]Kind, len(rules))
	for i, r := range rules {
		kinds[i] = r.kind
	}
	return kinds
}
