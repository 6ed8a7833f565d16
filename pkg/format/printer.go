package format

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/leapstack-labs/sqlscope/pkg/lexer"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// item is a token with the layout facts taken from the input around it.
type item struct {
	tok   token.Token
	blank bool // a blank line precedes the token
	glued bool // no whitespace between the previous token and this one
	slash bool // a "/" standing alone on its line
}

type frameKind uint8

const (
	frameStatement frameKind = iota // top level or subquery
	frameInline                     // contents stay on one line
	frameList                       // one item per line
	frameDecode                     // DECODE: one search/result pair per line
)

// frame is pushed on "(" and restores the layout state on ")".
type frame struct {
	kind  frameKind
	open  int // indent of the line holding "("
	level int // level to restore on ")"
	base  int // indent of statement and clause keywords

	started bool // a token was printed in this frame
	joined  bool // JOIN indent active
	cases   int  // open CASE expressions
	between int  // BETWEEN awaiting its AND
	commas  int
}

// Printer handles SQL formatting with proper indentation and style.
type Printer struct {
	rule    Rule
	tokens  *token.Rule
	compact bool
	eol     string

	output      *bytes.Buffer
	level       int // indent for the next line break
	lineIndent  int // indent of the current line
	col         int
	atLineStart bool

	pendingNL bool
	forcedNL  bool
	nlLevel   int

	stack []*frame

	prev         token.Token // last printed significant token
	prevText     string
	hasPrev      bool
	prevUnary    bool
	afterComment bool
	stmtOpen     bool
}

func newPrinter(rule Rule, tokens *token.Rule, compact bool) *Printer {
	return &Printer{
		rule:        rule,
		tokens:      tokens,
		compact:     compact,
		eol:         rule.OutNewLineCode.Code(),
		output:      &bytes.Buffer{},
		atLineStart: true,
		stack:       []*frame{{kind: frameStatement}},
	}
}

// String returns the formatted output.
func (p *Printer) String() string {
	if p.compact || p.output.Len() == 0 {
		return p.output.String()
	}
	return p.output.String() + p.eol
}

func (p *Printer) top() *frame {
	return p.stack[len(p.stack)-1]
}

// ---------- Input Analysis ----------

// items pairs each token with its surrounding whitespace facts.
func items(sql string, toks []token.Token) []item {
	out := make([]item, 0, len(toks))
	prevEnd := 0
	for i, t := range toks {
		if t.Kind == token.EOF {
			break
		}
		gap := sql[prevEnd:t.Pos.Offset]
		it := item{
			tok:   t,
			blank: countLineBreaks(gap) >= 2,
			glued: i > 0 && gap == "",
		}
		if t.Kind == token.Operator && t.Raw == "/" {
			after := ""
			if i+1 < len(toks) {
				after = sql[t.End():toks[i+1].Pos.Offset]
			}
			last := i+1 >= len(toks) || toks[i+1].Kind == token.EOF
			it.slash = (i == 0 || countLineBreaks(gap) > 0) && (last || countLineBreaks(after) > 0)
		}
		out = append(out, it)
		prevEnd = t.End()
	}
	return out
}

// countLineBreaks counts CRLF, CR and LF line breaks in s.
func countLineBreaks(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			n++
		case '\r':
			n++
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		}
	}
	return n
}

// nextSignificant returns the first non-comment token after index i.
func nextSignificant(its []item, i int) (token.Token, bool) {
	for j := i + 1; j < len(its); j++ {
		if its[j].tok.Kind != token.Comment {
			return its[j].tok, true
		}
	}
	return token.Token{}, false
}

// ---------- Driver ----------

func (p *Printer) run(sql string, toks []token.Token) {
	its := items(sql, toks)
	carryBlank := false
	for i, it := range its {
		it.blank = (it.blank || carryBlank) && !p.rule.RemoveEmptyLine && !p.compact
		carryBlank = false

		tok := it.tok
		if tok.Kind == token.Comment {
			if p.rule.RemoveComment {
				carryBlank = it.blank
				continue
			}
			p.comment(it)
			continue
		}

		switch {
		case tok.IsSymbol(token.Semicolon) || it.slash:
			p.endStatement(it)
		case p.compact:
			p.word(it, p.text(tok))
		case tok.IsSymbol(token.OpenParen):
			nxt, _ := nextSignificant(its, i)
			p.openParen(it, nxt)
		case tok.IsSymbol(token.CloseParen):
			p.closeParen(it)
		case tok.IsSymbol(token.Comma):
			p.comma(it)
		case tok.Kind == token.Keyword:
			p.keyword(it)
		default:
			p.word(it, p.text(tok))
		}
	}
	p.finish()
}

func (p *Printer) finish() {
	if !p.stmtOpen {
		return
	}
	switch p.rule.OutSQLSeparator {
	case SeparatorSemicolon:
		p.attach(";")
	case SeparatorSlash:
		p.forceNewline(0)
		p.attach("/")
	}
}

// ---------- Statements and Clauses ----------

func (p *Printer) endStatement(it item) {
	switch p.rule.OutSQLSeparator {
	case SeparatorSemicolon:
		if p.stmtOpen {
			p.attach(";")
		}
	case SeparatorSlash:
		if p.stmtOpen {
			p.forceNewline(0)
			p.attach("/")
		}
	default:
		if it.slash {
			p.forceNewline(0)
			p.attach("/")
		} else {
			p.attach(";")
		}
	}
	p.stack = p.stack[:1]
	*p.stack[0] = frame{kind: frameStatement}
	p.level = 0
	p.prev, p.prevText, p.hasPrev = token.Token{}, "", false
	p.prevUnary = false
	p.stmtOpen = false
	if p.compact && !it.slash {
		return
	}
	p.forceNewline(0)
}

var statementStarts = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"CREATE": true, "CREATE OR REPLACE": true, "DROP": true, "WITH": true,
}

var clauses = map[string]bool{
	"FROM": true, "WHERE": true, "GROUP BY": true, "HAVING": true, "ORDER BY": true,
	"SET": true, "VALUES": true, "LIMIT": true, "OFFSET": true, "FETCH": true, "INTO": true,
}

var setOperators = map[string]bool{
	"UNION": true, "UNION ALL": true, "MINUS": true, "EXCEPT": true, "INTERSECT": true,
}

var joins = map[string]bool{
	"JOIN": true, "INNER JOIN": true, "CROSS JOIN": true, "NATURAL JOIN": true,
	"LEFT JOIN": true, "LEFT OUTER JOIN": true, "RIGHT JOIN": true,
	"RIGHT OUTER JOIN": true, "FULL JOIN": true, "FULL OUTER JOIN": true,
}

func (p *Printer) keyword(it item) {
	f := p.top()
	kw := it.tok.Norm
	text := p.text(it.tok)
	stmt := f.kind == frameStatement

	switch {
	case stmt && statementStarts[kw] && p.startsStatement(f, kw):
		p.newline(f.base)
		p.word(it, text)
		p.level = f.base + 1
		f.joined, f.cases, f.between = false, 0, 0
		if kw == "SELECT" || kw == "UPDATE" || kw == "DELETE" {
			p.newline(p.level)
		}

	case stmt && clauses[kw] && !(kw == "INTO" && p.prev.Is("INSERT")):
		p.newline(f.base)
		p.word(it, text)
		p.level = f.base + 1
		f.joined = false
		p.newline(p.level)

	case stmt && setOperators[kw]:
		p.newline(f.base)
		p.word(it, text)
		p.newline(f.base)

	case stmt && joins[kw]:
		p.newline(f.base + 1)
		p.word(it, text)
		p.level = f.base + 2
		f.joined = true

	case stmt && kw == "ON" && p.prev.Kind != token.Keyword:
		p.newline(p.level)
		p.word(it, text)

	case (kw == "DISTINCT" || kw == "ALL" || kw == "UNIQUE") && p.prev.Is("SELECT") && !p.forcedNL:
		p.pendingNL = false
		p.word(it, text)
		p.newline(p.level)

	case kw == "AND" && f.between > 0:
		f.between--
		if stmt && !p.rule.BetweenSpecialFormat {
			p.andOr(it, text)
			return
		}
		p.word(it, text)

	case stmt && (kw == "AND" || kw == "OR"):
		p.andOr(it, text)

	case kw == "BETWEEN" || kw == "NOT BETWEEN":
		f.between++
		p.word(it, text)

	case kw == "CASE" || kw == "SEQUENCE":
		p.word(it, text)
		if kw == "CASE" {
			f.cases++
		}
		p.level++

	case (kw == "WHEN" || kw == "ELSE") && f.cases > 0:
		if stmt {
			p.newline(p.level)
		}
		p.word(it, text)

	case kw == "END" && f.cases > 0:
		f.cases--
		p.level--
		if stmt {
			p.newline(p.level)
		}
		p.word(it, text)

	default:
		p.word(it, text)
	}
}

// startsStatement reports whether kw begins a new statement rather than
// continuing one, as in FOR UPDATE or ON DELETE.
func (p *Printer) startsStatement(f *frame, kw string) bool {
	switch kw {
	case "WITH":
		return !f.started
	case "SELECT":
		return true
	}
	return !p.hasPrev || !(p.prev.Is("FOR") || p.prev.Is("ON"))
}

func (p *Printer) andOr(it item, text string) {
	if p.rule.NewLineBeforeAndOr {
		p.newline(p.level)
		p.word(it, text)
		return
	}
	p.word(it, text)
	p.newline(p.level)
}

// ---------- Parentheses and Lists ----------

func (p *Printer) openParen(it item, next token.Token) {
	kind := frameInline
	call := p.isCall(it)
	switch {
	case next.Is("SELECT") || next.Is("WITH"):
		kind = frameStatement
	case call && p.prev.Norm == "DECODE" && p.rule.DecodeSpecialFormat:
		kind = frameDecode
	case call && p.prev.Kind == token.Keyword && p.prev.Subkind == token.Datatype:
		if p.rule.NewLineDataTypeParen {
			kind = frameList
		}
	case call:
		if p.rule.NewLineFunctionParen {
			kind = frameList
		}
	case p.prev.Is("IN") || p.prev.Is("NOT IN"):
		if !p.rule.InSpecialFormat {
			kind = frameList
		}
	}

	p.word(it, "(")
	f := &frame{kind: kind, open: p.lineIndent, level: p.level, base: p.top().base}
	p.stack = append(p.stack, f)
	if kind != frameInline {
		f.base = p.lineIndent + 1
		p.level = f.base
		p.newline(p.level)
	}
}

func (p *Printer) closeParen(it item) {
	if len(p.stack) == 1 {
		p.word(it, ")")
		return
	}
	f := p.top()
	p.stack = p.stack[:len(p.stack)-1]
	if f.kind != frameInline {
		p.newline(f.open)
	}
	p.word(it, ")")
	p.level = f.level
}

func (p *Printer) comma(it item) {
	f := p.top()
	breaks := false
	switch f.kind {
	case frameStatement:
		if f.joined {
			f.joined = false
			p.level = f.base + 1
		}
		breaks = true
	case frameList:
		breaks = true
	case frameDecode:
		f.commas++
		breaks = f.commas%2 == 1
	}
	if !breaks {
		p.word(it, ",")
		return
	}
	if p.rule.NewLineBeforeComma {
		p.newline(p.level)
		p.word(it, ",")
		return
	}
	p.word(it, ",")
	p.newline(p.level)
}

// isCall reports whether the "(" in it opens an argument list or a type
// precision rather than a group or column list.
func (p *Printer) isCall(it item) bool {
	if !p.hasPrev {
		return false
	}
	switch {
	case p.prev.Kind == token.Keyword:
		return p.prev.Subkind == token.Function || p.prev.Subkind == token.Datatype
	case p.prev.Kind == token.Name:
		return it.glued
	}
	return false
}

// ---------- Comments ----------

func (p *Printer) comment(it item) {
	if p.compact {
		p.emit(it, it.tok.Raw, p.output.Len() > 0 && !p.atLineStart)
	} else {
		p.emit(it, it.tok.Raw, !p.atLineStart)
	}
	p.afterComment = true
	if it.tok.Subkind == token.LineComment {
		p.forceNewline(p.level)
	}
}

// ---------- Output ----------

// newline requests a line break before the next token, indented to level.
// The most recent request sets the indent.
func (p *Printer) newline(level int) {
	if p.compact {
		return
	}
	p.nlLevel = level
	p.pendingNL = true
}

// forceNewline requests a line break that later tokens cannot cancel.
func (p *Printer) forceNewline(level int) {
	p.pendingNL = true
	p.forcedNL = true
	if p.compact {
		level = 0
	}
	p.nlLevel = level
}

func (p *Printer) flushNewline(blank bool) {
	if blank && !p.pendingNL {
		p.pendingNL = true
		p.nlLevel = p.level
	}
	if !p.pendingNL {
		return
	}
	if p.output.Len() > 0 {
		p.output.WriteString(p.eol)
		if blank {
			if p.rule.IndentEmptyLine {
				p.writeIndent(p.nlLevel)
			}
			p.output.WriteString(p.eol)
		}
	}
	p.writeIndent(p.nlLevel)
	p.lineIndent = p.nlLevel
	p.atLineStart = true
	p.pendingNL, p.forcedNL = false, false
}

func (p *Printer) writeIndent(level int) {
	if p.compact {
		p.col = 0
		return
	}
	for i := 0; i < level; i++ {
		p.output.WriteString(p.rule.IndentString)
	}
	p.col = level * utf8.RuneCountInString(p.rule.IndentString)
}

// word prints a significant token.
func (p *Printer) word(it item, text string) {
	space := p.needSpace(it, text)
	if !p.compact && p.rule.WordBreak && p.rule.Width > 0 && space && !p.pendingNL && !p.atLineStart &&
		p.col+1+utf8.RuneCountInString(text) > p.rule.Width {
		p.newline(p.level + 1)
	}
	p.emit(it, text, space)

	p.prevUnary = isSign(it.tok) && p.signIsUnary()
	p.prev, p.prevText, p.hasPrev = it.tok, text, true
	p.afterComment = false
	p.top().started = true
	p.stmtOpen = true
}

// attach prints a separator directly after the previous token.
func (p *Printer) attach(text string) {
	p.emit(item{}, text, false)
}

func (p *Printer) emit(it item, text string, space bool) {
	p.flushNewline(it.blank && p.output.Len() > 0)
	if space && !p.atLineStart {
		p.output.WriteByte(' ')
		p.col++
	}
	p.output.WriteString(text)
	if i := strings.LastIndexAny(text, "\r\n"); i >= 0 {
		p.col = utf8.RuneCountInString(text[i+1:])
	} else {
		p.col += utf8.RuneCountInString(text)
	}
	p.atLineStart = false
}

// needSpace reports whether a space separates the previous output from
// the token in it.
func (p *Printer) needSpace(it item, text string) bool {
	if p.afterComment {
		return true
	}
	if !p.hasPrev {
		return p.output.Len() > 0
	}
	prev, cur := p.prev, it.tok
	space := true
	switch {
	case cur.IsSymbol(token.Comma), cur.IsSymbol(token.CloseParen), cur.IsSymbol(token.Dot):
		space = false
	case prev.IsSymbol(token.OpenParen), prev.IsSymbol(token.Dot):
		space = false
	case cur.Subkind == token.OuterJoin:
		space = false
	case cur.Subkind == token.ParenStar:
		space = !(prev.Kind == token.Name || prev.Kind == token.Keyword && prev.Subkind == token.Function)
	case cur.IsSymbol(token.OpenParen):
		space = !p.isCall(it)
	case cur.Norm == "::" && cur.Kind == token.Operator, prev.Norm == "::" && prev.Kind == token.Operator:
		space = false
	case p.prevUnary:
		space = false
	}
	if !space && !p.separable(p.prevText, text) {
		return true
	}
	return space
}

// separable reports whether a and b written without a space still lex as
// the same two tokens.
func (p *Printer) separable(a, b string) bool {
	toks, err := lexer.Tokenize(a+b, p.tokens)
	if err != nil || len(toks) != 3 {
		return false
	}
	return toks[0].Raw == a && toks[1].Raw == b
}

func isSign(t token.Token) bool {
	return t.Kind == token.Operator && t.Subkind == token.None && (t.Raw == "-" || t.Raw == "+" || t.Raw == "~")
}

// signIsUnary reports whether a sign about to become prev follows
// something that cannot end an operand.
func (p *Printer) signIsUnary() bool {
	if !p.hasPrev {
		return true
	}
	prev := p.prev
	switch prev.Kind {
	case token.Operator:
		return prev.Subkind == token.None
	case token.Symbol:
		return prev.IsSymbol(token.OpenParen) || prev.IsSymbol(token.Comma)
	case token.Keyword:
		switch prev.Norm {
		case "NULL", "TRUE", "FALSE", "END":
			return false
		}
		return prev.Subkind == token.None
	}
	return false
}

// text returns the output spelling of t.
func (p *Printer) text(t token.Token) string {
	switch t.Kind {
	case token.Keyword:
		return p.rule.ConvertKeyword.Apply(strings.Join(strings.Fields(t.Raw), " "))
	case token.Name:
		if t.Subkind == token.QuotedName {
			return t.Raw
		}
		return p.rule.ConvertName.Apply(t.Raw)
	case token.Value:
		if t.Subkind == token.Date {
			q := strings.IndexByte(t.Raw, p.tokens.StringQuote)
			if q > 0 {
				return p.rule.ConvertKeyword.Apply(strings.TrimSpace(t.Raw[:q])) + " " + t.Raw[q:]
			}
		}
	}
	return t.Raw
}
