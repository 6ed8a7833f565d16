// Package token defines the classified lexical units produced by the SQL
// tokenizer and the rule set that drives classification.
//
// A Token is immutable once produced. Its Kind is coarse (keyword, name,
// value, ...) and its Subkind refines it (a keyword that names a function,
// a value that is a bind parameter, a block comment, ...).
package token

import "fmt"

// Kind is the coarse classification of a token.
type Kind int

const (
	EOF Kind = iota
	Keyword
	Name
	Value
	Symbol
	Operator
	Comment
)

var kindNames = map[Kind]string{
	EOF:      "EOF",
	Keyword:  "KEYWORD",
	Name:     "NAME",
	Value:    "VALUE",
	Symbol:   "SYMBOL",
	Operator: "OPERATOR",
	Comment:  "COMMENT",
}

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", k)
}

// Subkind refines a Kind.
type Subkind int

//nolint:revive // grouped by the Kind they refine
const (
	None Subkind = iota

	// Keyword subkinds
	Function // keyword names a built-in function (COUNT, CAST, ...)
	Datatype // keyword names a data type (VARCHAR, NUMBER, ...)

	// Name subkinds
	QuotedName // "x" or `x`

	// Value subkinds
	String         // 'text'
	Number         // 123, 4.5, 1e10
	Date           // DATE '2020-01-01', TIMESTAMP '...'
	NamedBind      // :name
	PositionalBind // ? or ?1

	// Symbol subkinds
	OpenParen
	CloseParen
	Comma
	Dot
	Semicolon

	// Operator subkinds
	OuterJoin // (+)
	ParenStar // (*)

	// Comment subkinds
	LineComment  // -- text
	BlockComment // /* text */
)

var subkindNames = map[Subkind]string{
	None:           "",
	Function:       "function",
	Datatype:       "datatype",
	QuotedName:     "quoted",
	String:         "string",
	Number:         "number",
	Date:           "date",
	NamedBind:      "named-bind",
	PositionalBind: "positional-bind",
	OpenParen:      "open-paren",
	CloseParen:     "close-paren",
	Comma:          "comma",
	Dot:            "dot",
	Semicolon:      "semicolon",
	OuterJoin:      "outer-join",
	ParenStar:      "paren-star",
	LineComment:    "line",
	BlockComment:   "block",
}

// String returns a human-readable representation of the subkind.
func (s Subkind) String() string {
	if name, ok := subkindNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SUBKIND(%d)", s)
}

// Token represents a lexical token with position information.
//
// Raw is the exact source text. Norm is the case-normalized text: keywords
// and unquoted names are upper-cased, multi-word keywords are joined with
// single spaces, quoted names lose their quotes and bind parameters lose
// their marker.
type Token struct {
	Raw     string
	Norm    string
	Kind    Kind
	Subkind Subkind
	Pos     Position
	Length  int
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Pos.Offset + t.Length
}

// Is reports whether the token is a keyword whose normalized text equals kw.
func (t Token) Is(kw string) bool {
	return t.Kind == Keyword && t.Norm == kw
}

// IsSymbol reports whether the token is the given symbol subkind.
func (t Token) IsSymbol(s Subkind) bool {
	return t.Kind == Symbol && t.Subkind == s
}

// IsWord reports whether the token is word-like (keyword, name or value).
func (t Token) IsWord() bool {
	return t.Kind == Keyword || t.Kind == Name || t.Kind == Value
}

// IsBind reports whether the token is a named or positional bind parameter.
func (t Token) IsBind() bool {
	return t.Kind == Value && (t.Subkind == NamedBind || t.Subkind == PositionalBind)
}

func (t Token) String() string {
	if t.Kind == EOF {
		return "EOF"
	}
	return fmt.Sprintf("%s(%q)@%d", t.Kind, t.Raw, t.Pos.Offset)
}
