// Package lexer converts SQL text into a lazy stream of classified tokens.
//
// Tokens are produced on demand by Next. The lexer supports rewinding by
// exactly one token with Back, which is all the parser needs for its
// single-token lookahead. To restart, construct a new Lexer over the same
// text.
package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// LexError is a lexical fault: an unterminated quoted literal, quoted
// identifier or block comment.
type LexError struct {
	Pos     token.Position
	Length  int
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lexer error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Span returns the start and byte length of the offending text.
func (e *LexError) Span() (token.Position, int) {
	return e.Pos, e.Length
}

// Error messages
const (
	ErrUnterminatedString  = "unterminated string literal"
	ErrUnterminatedIdent   = "unterminated quoted identifier"
	ErrUnterminatedComment = "unterminated block comment"
)

// Lexer tokenizes SQL input.
type Lexer struct {
	input string
	rule  *token.Rule

	pos  int // current byte offset
	line int // current line number (1-based)
	col  int // current column number (1-based)

	last    token.Token
	hasLast bool
	backed  bool
	err     error
}

// New creates a Lexer over input. A nil rule means token.DefaultRule().
func New(input string, rule *token.Rule) *Lexer {
	if rule == nil {
		rule = token.DefaultRule()
	}
	return &Lexer{
		input: input,
		rule:  rule,
		line:  1,
		col:   1,
	}
}

// Input returns the text being tokenized.
func (l *Lexer) Input() string {
	return l.input
}

// Rule returns the rule set driving classification.
func (l *Lexer) Rule() *token.Rule {
	return l.rule
}

// Next returns the next token. At end of input it returns an EOF token,
// repeatedly. Once a lexical fault occurs every later call returns it.
func (l *Lexer) Next() (token.Token, error) {
	if l.backed {
		l.backed = false
		return l.last, nil
	}
	if l.err != nil {
		return token.Token{Kind: token.EOF, Pos: l.position()}, l.err
	}
	tok, err := l.scan()
	if err != nil {
		l.err = err
		return token.Token{Kind: token.EOF, Pos: l.position()}, err
	}
	l.last, l.hasLast = tok, true
	return tok, nil
}

// Back rewinds the stream by one token so the next call to Next returns
// the most recent token again. Only one token of pushback is kept; a
// second Back without an intervening Next has no further effect.
func (l *Lexer) Back() {
	if l.hasLast {
		l.backed = true
	}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() (token.Token, error) {
	tok, err := l.Next()
	if err != nil {
		return tok, err
	}
	l.Back()
	return tok, nil
}

// Tokenize returns every token of input up to and including EOF.
func Tokenize(input string, rule *token.Rule) ([]token.Token, error) {
	l := New(input, rule)
	var tokens []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == token.EOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) position() token.Position {
	return token.Position{Line: l.line, Column: l.col, Offset: l.pos}
}

// peek returns the byte at pos+n or 0 past the end.
func (l *Lexer) peek(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

// advance moves n bytes forward, tracking line and column.
func (l *Lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.input); i++ {
		if l.input[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.advance(1)
	}
}

func (l *Lexer) make(start token.Position, kind token.Kind, sub token.Subkind, norm string) token.Token {
	raw := l.input[start.Offset:l.pos]
	if norm == "" {
		norm = raw
	}
	return token.Token{
		Raw:     raw,
		Norm:    norm,
		Kind:    kind,
		Subkind: sub,
		Pos:     start,
		Length:  l.pos - start.Offset,
	}
}

func (l *Lexer) scan() (token.Token, error) {
	l.skipWhitespace()
	start := l.position()

	if l.pos >= len(l.input) {
		return token.Token{Kind: token.EOF, Pos: start}, nil
	}

	rest := l.input[l.pos:]
	ch := l.input[l.pos]

	switch {
	case strings.HasPrefix(rest, l.rule.LineComment):
		return l.scanLineComment(start), nil
	case strings.HasPrefix(rest, l.rule.BlockOpen):
		return l.scanBlockComment(start)
	case ch == l.rule.StringQuote:
		return l.scanString(start)
	case strings.IndexByte(l.rule.IdentQuotes, ch) >= 0:
		return l.scanQuotedIdent(start, ch)
	case isDigit(ch) || (ch == '.' && isDigit(l.peek(1)) && !l.followsWord()):
		return l.scanNumber(start), nil
	case isIdentStart(rest):
		return l.scanWord(start)
	}

	switch ch {
	case '(':
		switch {
		case strings.HasPrefix(rest, "(+)"):
			l.advance(3)
			return l.make(start, token.Operator, token.OuterJoin, ""), nil
		case strings.HasPrefix(rest, "(*)"):
			l.advance(3)
			return l.make(start, token.Operator, token.ParenStar, ""), nil
		}
		l.advance(1)
		return l.make(start, token.Symbol, token.OpenParen, ""), nil
	case ')':
		l.advance(1)
		return l.make(start, token.Symbol, token.CloseParen, ""), nil
	case ',':
		l.advance(1)
		return l.make(start, token.Symbol, token.Comma, ""), nil
	case '.':
		l.advance(1)
		return l.make(start, token.Symbol, token.Dot, ""), nil
	case ';':
		l.advance(1)
		return l.make(start, token.Symbol, token.Semicolon, ""), nil
	case ':':
		if l.peek(1) == ':' {
			l.advance(2)
			return l.make(start, token.Operator, token.None, ""), nil
		}
		if isIdentStart(rest[1:]) {
			l.advance(1)
			l.readIdent()
			return l.make(start, token.Value, token.NamedBind, l.input[start.Offset+1:l.pos]), nil
		}
		l.advance(1)
		return l.make(start, token.Operator, token.None, ""), nil
	case '?', '$':
		if ch == '$' && !isDigit(l.peek(1)) {
			break
		}
		l.advance(1)
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.advance(1)
		}
		return l.make(start, token.Value, token.PositionalBind, ""), nil
	}

	if op := l.matchOperator(rest); op > 0 {
		l.advance(op)
		return l.make(start, token.Operator, token.None, ""), nil
	}

	// Anything else is passed through as an unclassified symbol; the
	// parser decides whether it is acceptable.
	_, size := utf8.DecodeRuneInString(rest)
	l.advance(size)
	return l.make(start, token.Symbol, token.None, ""), nil
}

var multiCharOperators = []string{"||", "<=", ">=", "<>", "!=", "=>", "->>", "->"}

// matchOperator returns the byte length of the operator at the start of
// rest, or 0.
func (l *Lexer) matchOperator(rest string) int {
	best := 0
	for _, op := range multiCharOperators {
		if len(op) > best && strings.HasPrefix(rest, op) {
			best = len(op)
		}
	}
	if best > 0 {
		return best
	}
	switch rest[0] {
	case '+', '-', '*', '/', '%', '=', '<', '>', '^', '&', '|', '~', '!':
		return 1
	}
	return 0
}

// followsWord reports whether the byte before the cursor ends a word, a
// quoted identifier or a parenthesis, in which case "." is a qualifier dot.
func (l *Lexer) followsWord() bool {
	if l.pos == 0 {
		return false
	}
	prev := l.input[l.pos-1]
	return isIdentByte(prev) || prev == '"' || prev == '`' || prev == ')'
}

// scanLineComment reads up to, not including, the next line break. A lone
// CR counts as a line break.
func (l *Lexer) scanLineComment(start token.Position) token.Token {
	for l.pos < len(l.input) && l.input[l.pos] != '\n' && l.input[l.pos] != '\r' {
		l.advance(1)
	}
	return l.make(start, token.Comment, token.LineComment, "")
}

func (l *Lexer) scanBlockComment(start token.Position) (token.Token, error) {
	l.advance(len(l.rule.BlockOpen))
	end := strings.Index(l.input[l.pos:], l.rule.BlockClose)
	if end < 0 {
		l.advance(len(l.input) - l.pos)
		return token.Token{}, &LexError{Pos: start, Length: l.pos - start.Offset, Message: ErrUnterminatedComment}
	}
	l.advance(end + len(l.rule.BlockClose))
	return l.make(start, token.Comment, token.BlockComment, ""), nil
}

// scanString reads a quoted string literal. A doubled quote is an escaped
// quote and does not terminate the literal.
func (l *Lexer) scanString(start token.Position) (token.Token, error) {
	if err := l.readQuoted(start, l.rule.StringQuote, ErrUnterminatedString); err != nil {
		return token.Token{}, err
	}
	return l.make(start, token.Value, token.String, ""), nil
}

func (l *Lexer) scanQuotedIdent(start token.Position, quote byte) (token.Token, error) {
	if err := l.readQuoted(start, quote, ErrUnterminatedIdent); err != nil {
		return token.Token{}, err
	}
	raw := l.input[start.Offset:l.pos]
	q := string(quote)
	inner := strings.ReplaceAll(raw[1:len(raw)-1], q+q, q)
	return l.make(start, token.Name, token.QuotedName, inner), nil
}

func (l *Lexer) readQuoted(start token.Position, quote byte, msg string) error {
	l.advance(1) // opening quote
	for l.pos < len(l.input) {
		if l.input[l.pos] == quote {
			if l.peek(1) == quote {
				l.advance(2)
				continue
			}
			l.advance(1)
			return nil
		}
		l.advance(1)
	}
	return &LexError{Pos: start, Length: l.pos - start.Offset, Message: msg}
}

// scanNumber reads an integer, decimal or scientific literal.
func (l *Lexer) scanNumber(start token.Position) token.Token {
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.advance(1)
	}
	// A trailing "." as in "3." belongs to the number unless a word follows.
	if l.peek(0) == '.' && (isDigit(l.peek(1)) || !isIdentByte(l.peek(1)) || l.exponentAt(1)) {
		l.advance(1)
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.advance(1)
		}
	}
	if l.exponentAt(0) {
		l.advance(1)
		if s := l.peek(0); s == '+' || s == '-' {
			l.advance(1)
		}
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.advance(1)
		}
	}
	return l.make(start, token.Value, token.Number, "")
}

// exponentAt reports whether an exponent such as e5 or E-3 starts n bytes ahead.
func (l *Lexer) exponentAt(n int) bool {
	if c := l.peek(n); c != 'e' && c != 'E' {
		return false
	}
	if s := l.peek(n + 1); s == '+' || s == '-' {
		n++
	}
	return isDigit(l.peek(n + 1))
}

func (l *Lexer) readIdent() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isIdentRune(r) {
			return
		}
		l.advance(size)
	}
}

// scanWord reads an unquoted word and classifies it. Keywords that begin
// a compound keyword are extended greedily, and date keywords directly
// followed by a string literal become a single date value.
func (l *Lexer) scanWord(start token.Position) (token.Token, error) {
	l.readIdent()
	word := l.input[start.Offset:l.pos]
	upper := strings.ToUpper(word)

	if l.rule.DateKeywords[upper] {
		if tok, ok, err := l.tryDate(start, upper); ok || err != nil {
			return tok, err
		}
	}

	if cands := l.rule.Compounds(upper); len(cands) > 0 {
		if tok, ok := l.tryCompound(start, cands); ok {
			return tok, nil
		}
	}

	kind, sub := l.rule.Classify(upper)
	return l.make(start, kind, sub, upper), nil
}

func (l *Lexer) tryDate(start token.Position, upper string) (token.Token, bool, error) {
	save := *l
	l.skipWhitespace()
	if l.pos >= len(l.input) || l.input[l.pos] != l.rule.StringQuote {
		*l = save
		return token.Token{}, false, nil
	}
	strStart := l.position()
	if err := l.readQuoted(start, l.rule.StringQuote, ErrUnterminatedString); err != nil {
		return token.Token{}, false, err
	}
	norm := upper + " " + l.input[strStart.Offset:l.pos]
	return l.make(start, token.Value, token.Date, norm), true, nil
}

// tryCompound attempts each candidate word sequence, longest first. Words
// of a compound are separated by whitespace only.
func (l *Lexer) tryCompound(start token.Position, cands [][]string) (token.Token, bool) {
	save := *l
	for _, words := range cands {
		*l = save
		matched := true
		for _, w := range words[1:] {
			if l.pos >= len(l.input) || !isSpace(l.input[l.pos]) {
				matched = false
				break
			}
			l.skipWhitespace()
			wordStart := l.pos
			if !isIdentStart(l.input[l.pos:]) {
				matched = false
				break
			}
			l.readIdent()
			if !strings.EqualFold(l.input[wordStart:l.pos], w) {
				matched = false
				break
			}
		}
		if matched {
			return l.make(start, token.Keyword, token.None, strings.Join(words, " ")), true
		}
	}
	*l = save
	return token.Token{}, false
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentByte(ch byte) bool {
	return ch == '_' || ch == '$' || ch == '#' || isDigit(ch) || ch >= utf8.RuneSelf ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentStart(s string) bool {
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || unicode.IsLetter(r)
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '$' || r == '#' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
