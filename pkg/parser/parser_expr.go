package parser

import (
	"github.com/leapstack-labs/sqlscope/pkg/ast"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// Operator precedence levels (higher binds tighter).
const (
	PrecOr         = 1
	PrecAnd        = 2
	PrecNot        = 3
	PrecComparison = 4 // = <> < > <= >= LIKE IN IS BETWEEN
	PrecAddition   = 5 // + - ||
	PrecMultiply   = 6 // * / %
	PrecUnary      = 7 // unary - + ~ PRIOR
	PrecPostfix    = 8 // ::
)

// binaryPrecedence returns the precedence of tok used as a binary operator.
func binaryPrecedence(tok token.Token) (int, bool) {
	switch tok.Kind {
	case token.Keyword:
		switch tok.Norm {
		case "OR":
			return PrecOr, true
		case "AND":
			return PrecAnd, true
		case "LIKE", "NOT LIKE", "IN", "NOT IN", "IS", "IS NOT", "BETWEEN", "NOT BETWEEN":
			return PrecComparison, true
		}
	case token.Operator:
		if tok.Subkind != token.None {
			return 0, false
		}
		switch tok.Norm {
		case "=", "<>", "!=", "<", ">", "<=", ">=", "=>", "->", "->>":
			return PrecComparison, true
		case "+", "-", "||", "&", "|", "^":
			return PrecAddition, true
		case "*", "/", "%":
			return PrecMultiply, true
		case "::":
			return PrecPostfix, true
		}
	}
	return 0, false
}

// reserved keywords never start an operand and are never taken as names.
var reserved = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP BY": true, "HAVING": true,
	"ORDER BY": true, "PARTITION BY": true, "LIMIT": true, "OFFSET": true, "FETCH": true,
	"UNION": true, "UNION ALL": true, "MINUS": true, "EXCEPT": true, "INTERSECT": true,
	"AND": true, "OR": true, "ON": true, "USING": true, "AS": true, "ASC": true, "DESC": true,
	"NULLS FIRST": true, "NULLS LAST": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"INTO": true, "VALUES": true, "SET": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"CREATE": true, "CREATE OR REPLACE": true, "DROP": true, "WITH": true, "OVER": true,
	"IS": true, "IS NOT": true, "IN": true, "NOT IN": true, "LIKE": true, "NOT LIKE": true,
	"BETWEEN": true, "NOT BETWEEN": true, "JOIN": true, "INNER JOIN": true, "CROSS JOIN": true,
	"NATURAL JOIN": true, "LEFT JOIN": true, "LEFT OUTER JOIN": true, "RIGHT JOIN": true,
	"RIGHT OUTER JOIN": true, "FULL JOIN": true, "FULL OUTER JOIN": true, "INNER": true,
	"LEFT": true, "RIGHT": true, "FULL": true, "CROSS": true, "NATURAL": true, "OUTER": true,
	"DISTINCT": true, "ALL": true, "BY": true, "FOR": true,
}

func isReserved(norm string) bool {
	return reserved[norm]
}

// nodeFor builds a node template of the given kind for tok.
func nodeFor(kind ast.Kind, tok token.Token) ast.Node {
	return ast.Node{
		Kind:    kind,
		Text:    nodeText(tok),
		Norm:    tok.Norm,
		Subkind: tok.Subkind,
		Offset:  tok.Pos.Offset,
		Length:  tok.Length,
	}
}

// valueKind maps a value token to its node kind.
func valueKind(tok token.Token) ast.Kind {
	if tok.IsBind() {
		return ast.BindParameter
	}
	return ast.Value
}

// ---------- Expressions ----------

// parseExpression parses one expression into container and returns its
// root, or NoNode when no operand starts at the cursor. Operators with a
// precedence below minPrec end the expression.
//
// Each new binary operator walks up from the most recent operand while the
// enclosing operator binds at least as tightly, then takes the place of the
// node it stopped at and adopts it as its left operand. Ties therefore
// associate to the left.
func (p *Parser) parseExpression(container ast.NodeID, minPrec int) ast.NodeID {
	last := p.parseOperand(container)
	if last == ast.NoNode {
		return ast.NoNode
	}

	for !p.canceled() {
		tok := p.peek()
		if tok.Subkind == token.OuterJoin {
			p.next()
			p.unexpected(tok, "column before outer-join marker")
			break
		}
		prec, ok := binaryPrecedence(tok)
		if !ok || prec < minPrec {
			break
		}
		p.next()

		target := last
		for {
			parent := p.tree.Parent(target)
			if parent == container || parent == ast.NoNode {
				break
			}
			pn := p.tree.Node(parent)
			if pn.Kind != ast.Operator || pn.Precedence < prec {
				break
			}
			target = parent
		}

		op := p.tree.New(ast.Node{
			Kind:       ast.Operator,
			Scope:      p.scope,
			Text:       nodeText(tok),
			Norm:       tok.Norm,
			Offset:     tok.Pos.Offset,
			Length:     tok.Length,
			Precedence: prec,
			Assoc:      ast.AssocLeft,
		})
		p.tree.Replace(target, op)
		p.tree.Attach(op, target)

		switch tok.Norm {
		case "BETWEEN", "NOT BETWEEN":
			if p.parseExpression(op, PrecComparison+1) == ast.NoNode {
				p.unexpected(p.next(), "expression")
				return op
			}
			if _, ok := p.expectKeyword("AND"); !ok {
				return op
			}
			if p.parseExpression(op, PrecComparison+1) == ast.NoNode {
				p.unexpected(p.next(), "expression")
				return op
			}
			last = op
		case "::":
			last = p.parseType(op)
		default:
			last = p.parseOperand(op)
			if last == ast.NoNode {
				p.unexpected(p.next(), "expression")
				return op
			}
		}
	}

	root := last
	for {
		parent := p.tree.Parent(root)
		if parent == container || parent == ast.NoNode {
			return root
		}
		root = parent
	}
}

// parseOperand parses a single operand into container. For a prefix
// operator chain it returns the innermost operand so that the caller's
// precedence walk starts there.
func (p *Parser) parseOperand(container ast.NodeID) ast.NodeID {
	tok := p.next()

	switch tok.Kind {
	case token.Value:
		return p.addToken(container, valueKind(tok), tok)

	case token.Name:
		return p.parseNameOperand(container, tok)

	case token.Symbol:
		if tok.IsSymbol(token.OpenParen) {
			p.lex.Back()
			return p.parseParenthesized(container, ast.NoNode, ast.ScopeDefault)
		}

	case token.Operator:
		switch tok.Norm {
		case "-", "+", "~":
			return p.parseUnary(container, tok, PrecUnary)
		case "*":
			return p.addToken(container, ast.Column, tok)
		}

	case token.Keyword:
		switch tok.Norm {
		case "NULL", "TRUE", "FALSE":
			return p.addToken(container, ast.Value, tok)
		case "CASE":
			return p.parseCase(container, tok)
		case "CAST":
			return p.parseCast(container, tok)
		case "NOT", "NOT EXISTS", "EXISTS":
			return p.parseUnary(container, tok, PrecNot)
		case "PRIOR":
			return p.parseUnary(container, tok, PrecUnary)
		}
		if isReserved(tok.Norm) {
			break
		}
		if nxt := p.peek(); nxt.IsSymbol(token.OpenParen) || nxt.Subkind == token.ParenStar {
			return p.parseCall(container, nodeFor(ast.Function, tok))
		}
		return p.parseNameOperand(container, tok)
	}

	if tok.Kind != token.EOF {
		p.lex.Back()
	}
	return ast.NoNode
}

// parseNameOperand parses a possibly qualified column, a call through a
// qualified name, or a column followed by (+).
func (p *Parser) parseNameOperand(container ast.NodeID, tok token.Token) ast.NodeID {
	name := p.qualifiedName(tok)
	if nxt := p.peek(); nxt.IsSymbol(token.OpenParen) || nxt.Subkind == token.ParenStar {
		name.Kind = ast.Function
		return p.parseCall(container, name)
	}
	if p.peek().Subkind == token.OuterJoin {
		p.next()
		name.OuterJoin = true
	}
	return p.add(container, name)
}

// parseUnary parses a prefix operator and its operand.
func (p *Parser) parseUnary(container ast.NodeID, tok token.Token, prec int) ast.NodeID {
	n := nodeFor(ast.Operator, tok)
	n.Unary = true
	n.Assoc = ast.AssocRight
	n.Precedence = prec
	op := p.add(container, n)

	inner := p.parseOperand(op)
	if inner == ast.NoNode {
		p.unexpected(p.next(), "expression")
		return op
	}
	return inner
}

// ---------- Parentheses ----------

// parseParenthesized parses "(" ... ")" into container. The current scope
// is pushed on "(" and narrowed to narrow when it is not ScopeDefault; ")"
// restores it. Contents are a query chain or an expression list. fn links
// the node to the Function or Cast owning the argument list.
func (p *Parser) parseParenthesized(container, fn ast.NodeID, narrow ast.Scope) ast.NodeID {
	open := p.next()
	if !open.IsSymbol(token.OpenParen) {
		p.unexpected(open, "(")
		return ast.NoNode
	}
	n := nodeFor(ast.Parentheses, open)
	n.Function = fn
	n.EndOffset = -1
	par := p.add(container, n)
	p.push(par, open)
	if narrow != ast.ScopeDefault {
		p.scope = narrow
	}

	switch q := p.peek(); {
	case q.Is("SELECT"), q.Is("WITH"):
		p.parseStatementChain(par)
	case q.IsSymbol(token.CloseParen):
	default:
		p.parseList(par, fn != ast.NoNode)
	}

	p.closeParen(par)
	return par
}

// closeParen consumes ")" for par and pops its scope.
func (p *Parser) closeParen(par ast.NodeID) {
	tok := p.next()
	if !tok.IsSymbol(token.CloseParen) {
		p.unexpected(tok, ")")
		return
	}
	p.tree.Node(par).EndOffset = tok.Pos.Offset
	p.pop()
}

// parseList parses a comma separated expression list inside parentheses.
// In argument lists DISTINCT/ALL prefixes and FROM/FOR separators (as in
// EXTRACT(YEAR FROM d)) are kept as keywords.
func (p *Parser) parseList(par ast.NodeID, args bool) {
	for !p.canceled() {
		q := p.peek()
		if args && (q.Is("DISTINCT") || q.Is("ALL") || q.Is("FROM") || q.Is("FOR")) {
			p.addToken(par, ast.Keyword, p.next())
			continue
		}
		item := p.parseExpression(par, 0)
		if item == ast.NoNode {
			return
		}
		if p.tree.Kind(item) == ast.Parentheses {
			p.parseSetOperations(par, p.scope)
		}
		q = p.peek()
		switch {
		case q.IsSymbol(token.Comma):
			p.addToken(par, ast.Comma, p.next())
		case args && (q.Is("FROM") || q.Is("FOR")):
		default:
			return
		}
	}
}

// ---------- Functions ----------

// parseCall parses a function call: the Function node built from name,
// its argument Parentheses and an optional OVER window.
func (p *Parser) parseCall(container ast.NodeID, name ast.Node) ast.NodeID {
	name.Kind = ast.Function
	fn := p.add(container, name)

	if q := p.peek(); q.Subkind == token.ParenStar {
		p.next()
		n := ast.Node{
			Kind:      ast.Parentheses,
			Text:      "(",
			Norm:      "(",
			Offset:    q.Pos.Offset,
			Length:    1,
			EndOffset: q.End() - 1,
			Function:  fn,
		}
		par := p.add(fn, n)
		p.add(par, ast.Node{Kind: ast.Column, Text: "*", Norm: "*", Offset: q.Pos.Offset + 1, Length: 1})
	} else {
		p.parseParenthesized(fn, fn, ast.ScopeDefault)
	}

	if over, ok := p.accept("OVER"); ok {
		p.parseOver(fn, over)
	}
	return fn
}

// parseOver parses OVER name | OVER "(" [PARTITION BY exprs] [ORDER BY items] [frame] ")".
func (p *Parser) parseOver(fn ast.NodeID, tok token.Token) {
	over := p.addToken(fn, ast.Over, tok)
	q := p.peek()
	if q.Kind == token.Name {
		p.addToken(over, ast.Column, p.next())
		return
	}
	open := p.next()
	if !open.IsSymbol(token.OpenParen) {
		p.unexpected(open, "(")
		return
	}
	n := nodeFor(ast.Parentheses, open)
	n.EndOffset = -1
	par := p.add(over, n)
	p.push(par, open)

	for !p.canceled() {
		q := p.peek()
		switch {
		case q.Is("PARTITION BY"):
			p.parseListClause(par, ast.PartitionBy, ast.ScopePartition)
		case q.Is("ORDER BY"):
			p.parseOrderBy(par)
		case q.IsSymbol(token.CloseParen), q.Kind == token.EOF:
			p.closeParen(par)
			return
		case q.Kind == token.Keyword || q.Kind == token.Name:
			// Frame clause: ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW
			p.addToken(par, ast.Keyword, p.next())
		case q.Kind == token.Value:
			p.addToken(par, valueKind(q), p.next())
		default:
			p.unexpected(p.next(), ")")
			return
		}
	}
}

// parseCast parses CAST "(" expr AS type ")".
func (p *Parser) parseCast(container ast.NodeID, tok token.Token) ast.NodeID {
	cast := p.addToken(container, ast.Cast, tok)

	open := p.next()
	if !open.IsSymbol(token.OpenParen) {
		p.unexpected(open, "(")
		return cast
	}
	n := nodeFor(ast.Parentheses, open)
	n.Function = cast
	n.EndOffset = -1
	par := p.add(cast, n)
	p.push(par, open)

	if p.parseExpression(par, 0) == ast.NoNode {
		p.unexpected(p.next(), "expression")
		return cast
	}
	as, ok := p.expectKeyword("AS")
	if !ok {
		return cast
	}
	p.addToken(par, ast.Keyword, as)
	p.parseType(par)
	p.closeParen(par)
	return cast
}

// parseType parses a data type name with optional precision, e.g.
// VARCHAR2(20) or NUMBER(10, 2).
func (p *Parser) parseType(container ast.NodeID) ast.NodeID {
	tok := p.next()
	if tok.Kind != token.Keyword && tok.Kind != token.Name {
		p.unexpected(tok, "data type")
		return ast.NoNode
	}
	typ := p.addToken(container, ast.Type, tok)
	if p.peek().IsSymbol(token.OpenParen) {
		p.parseParenthesized(typ, ast.NoNode, ast.ScopeDefault)
	}
	return typ
}

// ---------- CASE ----------

// parseCase parses
//
//	case → CASE [operand] (WHEN expr THEN expr)* [ELSE expr] END
//
// A CASE that runs into end of input or a token it cannot use is kept
// with Complete false; that is not a fault.
func (p *Parser) parseCase(container ast.NodeID, tok token.Token) ast.NodeID {
	c := p.addToken(container, ast.Case, tok)

	if q := p.peek(); !q.Is("WHEN") && !q.Is("END") && q.Kind != token.EOF {
		if p.parseExpression(c, 0) == ast.NoNode {
			return c
		}
	}

	for !p.canceled() {
		q := p.peek()
		var kind ast.Kind
		switch {
		case q.Is("WHEN"):
			kind = ast.When
		case q.Is("THEN"):
			kind = ast.Then
		case q.Is("ELSE"):
			kind = ast.Else
		case q.Is("END"):
			p.next()
			p.tree.Node(c).Complete = true
			return c
		default:
			return c
		}
		p.next()
		branch := p.addToken(c, kind, q)
		if p.parseExpression(branch, 0) == ast.NoNode {
			p.unexpected(p.next(), "expression")
			return c
		}
	}
	return c
}
