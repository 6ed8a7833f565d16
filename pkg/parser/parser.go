// Package parser builds a syntax tree from SQL text.
//
// # Usage
//
//	tree, err := parser.Parse("SELECT a, b FROM t WHERE a = 1")
//	if err != nil {
//	    var fault parser.Fault
//	    if errors.As(err, &fault) { ... }
//	}
//
// # Grammar Overview
//
// The parser is recursive descent and scope aware. The first keyword of a
// statement selects one of six statement parsers; each is a loop of clause
// parsers:
//
//	input      → statement_chain (";" statement_chain)*
//	chain      → statement ((UNION [ALL] | MINUS | EXCEPT | INTERSECT) statement)*
//	statement  → select | insert | update | delete | create | drop | "(" chain ")"
//	select     → [WITH cte_list] SELECT [DISTINCT] items [INTO target]
//	             [FROM from] [WHERE expr] [GROUP BY exprs] [HAVING expr]
//	             [ORDER BY order_items] [LIMIT exprs] [OFFSET expr] [FETCH ...]
//
// Opening "(" pushes the current scope, closing ")" restores it, so the
// same clause parsers serve subqueries, argument lists and grouped
// conditions. Expressions are built by re-parenting operands under new
// operator nodes according to precedence.
//
// See each file for detailed grammar rules for that section.
package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/sqlscope/pkg/ast"
	"github.com/leapstack-labs/sqlscope/pkg/lexer"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// MaxRepeat is the number of consecutive fetches of identical token text
// after which the parser gives up with a LoopGuardError.
const MaxRepeat = 1000

// scopeEntry is pushed when "(" is consumed.
type scopeEntry struct {
	scope ast.Scope
	paren ast.NodeID
	open  token.Token
}

// Parser parses SQL into an ast.Tree. A Parser is single use.
type Parser struct {
	ctx  context.Context
	lex  *lexer.Lexer
	rule *token.Rule
	tree *ast.Tree

	tok     token.Token // most recently consumed token
	scope   ast.Scope
	stack   []scopeEntry
	pending []token.Token // comments not yet placed in the tree

	lastRaw    string
	lastOffset int
	repeat     int

	err error
}

// New creates a parser for sql. A nil rule means token.DefaultRule().
func New(ctx context.Context, sql string, rule *token.Rule) *Parser {
	if ctx == nil {
		ctx = context.Background()
	}
	lex := lexer.New(sql, rule)
	return &Parser{
		ctx:  ctx,
		lex:  lex,
		rule: lex.Rule(),
		tree: ast.NewTree(sql),

		lastOffset: -1,
	}
}

// Parse parses sql with the default rule set.
func Parse(sql string) (*ast.Tree, error) {
	return New(context.Background(), sql, nil).Parse()
}

// ParseWithRule parses sql with a custom rule set.
func ParseWithRule(sql string, rule *token.Rule) (*ast.Tree, error) {
	return New(context.Background(), sql, rule).Parse()
}

// ParseContext parses sql, aborting between tokens once ctx is done.
func ParseContext(ctx context.Context, sql string, rule *token.Rule) (*ast.Tree, error) {
	return New(ctx, sql, rule).Parse()
}

// Parse runs the parser. On failure the partial tree is discarded.
func (p *Parser) Parse() (*ast.Tree, error) {
	p.parseRoot()
	if p.err != nil {
		return nil, p.err
	}
	p.flushComments(p.tree.Root, int(^uint(0)>>1))
	return p.tree, nil
}

// ScopeDepth returns the number of open parenthesis scopes.
func (p *Parser) ScopeDepth() int {
	return len(p.stack)
}

// ---------- Token Helpers ----------

func (p *Parser) eof() token.Token {
	return token.Token{Kind: token.EOF, Pos: p.tok.Pos}
}

// next consumes and returns the next significant token. Comments are
// queued for placement. After a fault it only returns EOF.
func (p *Parser) next() token.Token {
	for p.err == nil {
		tok, err := p.lex.Next()
		if err != nil {
			p.fail(err)
			break
		}
		p.guard(tok)
		if p.err != nil {
			break
		}
		if tok.Kind == token.Comment {
			p.pending = append(p.pending, tok)
			continue
		}
		p.tok = tok
		return tok
	}
	return p.eof()
}

// peek returns the next significant token without consuming it.
func (p *Parser) peek() token.Token {
	saved := p.tok
	tok := p.next()
	if p.err == nil {
		p.lex.Back()
	}
	p.tok = saved
	return tok
}

// guard counts consecutive tokens with the same raw text. A token fetched
// again after Back is only counted once.
func (p *Parser) guard(tok token.Token) {
	if tok.Pos.Offset == p.lastOffset {
		return
	}
	p.lastOffset = tok.Pos.Offset
	if tok.Raw == p.lastRaw {
		p.repeat++
	} else {
		p.lastRaw, p.repeat = tok.Raw, 1
	}
	if p.repeat > MaxRepeat {
		p.fail(&LoopGuardError{Pos: tok.Pos, Text: tok.Raw, Count: p.repeat})
	}
}

func (p *Parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *Parser) failed() bool {
	return p.err != nil
}

// canceled reports whether the context is done, recording the fault.
func (p *Parser) canceled() bool {
	if p.err != nil {
		return true
	}
	if err := p.ctx.Err(); err != nil {
		p.fail(fmt.Errorf("%w: %w", ErrCanceled, err))
		return true
	}
	return false
}

// unexpected records an UnexpectedTokenError for tok.
func (p *Parser) unexpected(tok token.Token, expected string) {
	if p.err != nil {
		return
	}
	if tok.Kind == token.EOF && len(p.stack) > 0 && expected == ")" {
		p.fail(&UnmatchedParenError{Pos: p.stack[len(p.stack)-1].open.Pos, Open: true})
		return
	}
	p.fail(&UnexpectedTokenError{Pos: tok.Pos, Length: tok.Length, Text: tok.Raw, Expected: expected})
}

// accept consumes the next token when it is the keyword kw.
func (p *Parser) accept(kw string) (token.Token, bool) {
	if tok := p.peek(); tok.Is(kw) {
		return p.next(), true
	}
	return token.Token{}, false
}

// expectKeyword consumes the keyword kw or records a fault.
func (p *Parser) expectKeyword(kw string) (token.Token, bool) {
	tok := p.next()
	if !tok.Is(kw) {
		p.unexpected(tok, kw)
		return tok, false
	}
	return tok, true
}

// ---------- Tree Helpers ----------

// add attaches a node built from n to parent, stamping the current scope.
// Queued comments that precede the node are placed first when parent can
// hold them.
func (p *Parser) add(parent ast.NodeID, n ast.Node) ast.NodeID {
	if holdsComments(p.tree.Kind(parent)) {
		p.flushComments(parent, n.Offset)
	}
	n.Scope = p.scope
	return p.tree.Add(parent, n)
}

// addToken attaches a leaf node for tok.
func (p *Parser) addToken(parent ast.NodeID, kind ast.Kind, tok token.Token) ast.NodeID {
	return p.add(parent, ast.Node{
		Kind:    kind,
		Text:    nodeText(tok),
		Norm:    tok.Norm,
		Subkind: tok.Subkind,
		Offset:  tok.Pos.Offset,
		Length:  tok.Length,
	})
}

func holdsComments(k ast.Kind) bool {
	return k == ast.Root || k == ast.Parentheses || k == ast.With || k.IsStatement() || k.IsClause()
}

// flushComments places queued comments that start before offset.
func (p *Parser) flushComments(parent ast.NodeID, offset int) {
	kept := p.pending[:0]
	for _, c := range p.pending {
		if c.Pos.Offset < offset {
			p.tree.Add(parent, ast.Node{
				Kind:    ast.Comment,
				Scope:   p.scope,
				Text:    c.Raw,
				Norm:    c.Norm,
				Subkind: c.Subkind,
				Offset:  c.Pos.Offset,
				Length:  c.Length,
			})
			continue
		}
		kept = append(kept, c)
	}
	p.pending = kept
}

// nodeText is the text a node keeps for tok: keywords have their inner
// whitespace collapsed, everything else is kept as written.
func nodeText(tok token.Token) string {
	if tok.Kind == token.Keyword && strings.ContainsAny(tok.Raw, " \t\r\n") {
		return strings.Join(strings.Fields(tok.Raw), " ")
	}
	return tok.Raw
}

// ---------- Scope Stack ----------

func (p *Parser) push(paren ast.NodeID, open token.Token) {
	p.stack = append(p.stack, scopeEntry{scope: p.scope, paren: paren, open: open})
}

func (p *Parser) pop() {
	if len(p.stack) == 0 {
		return
	}
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	p.scope = top.scope
}
