// Package lexer turns oida source text into a flat sequence of tokens.
package lexer

// Kind represents the type of a lexical token.
type Kind string

const (
	Print       Kind = "PRINT"        // oida.sag
	Let         Kind = "LET"          // heast
	If          Kind = "IF"           // wenn
	Else        Kind = "ELSE"         // sonst
	False       Kind = "FALSE"        // sichaned
	Colon       Kind = "COLON"        // :
	True        Kind = "TRUE"         // basst
	Function    Kind = "FUNCTION"     // hawara
	And         Kind = "AND"          // und
	Or          Kind = "OR"           // oda
	Return      Kind = "RETURN"       // speicher
	Comparison  Kind = "COMPARISON"   // gleich, isned, klana, größer, ...
	Arithmetic  Kind = "ARITHMETIC"   // plus, minus, mal, dividier, plusplus, minusminus
	FilterArrow Kind = "FILTER_ARROW" // =>
	Assign      Kind = "ASSIGN"       // = += -= *= /=
	Number      Kind = "NUMBER"       // unsigned digit run
	String      Kind = "STRING"       // "..." without the quotes
	LBracket    Kind = "LBRACKET"     // [
	RBracket    Kind = "RBRACKET"     // ]
	LBrace      Kind = "LBRACE"       // {
	RBrace      Kind = "RBRACE"       // }
	LParen      Kind = "LPAREN"       // (
	RParen      Kind = "RPAREN"       // )
	Separator   Kind = "SEPARATOR"    // ,
	Semicolon   Kind = "SEMICOLON"    // ;
	For         Kind = "FOR"          // aufi
	While       Kind = "WHILE"        // geh weida
	ForEach     Kind = "FOREACH"      // fiaOis
	As          Kind = "AS"           // als
	Dot         Kind = "DOT"          // .
	Comment     Kind = "COMMENT"      // kommentar
	Fetch       Kind = "FETCH"        // holma
	Identifier  Kind = "IDENTIFIER"   // [a-zA-Z_]\w*
)

// Token represents a single lexical token.
type Token struct {
	Kind  Kind
	Value string // lexeme; string literals without their quotes
	Pos   int    // byte offset in source
}

// String returns a debug-friendly representation of the token.
func (t Token) String() string {
	return string(t.Kind) + " " + t.Value
}
