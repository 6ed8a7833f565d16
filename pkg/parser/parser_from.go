package parser

import (
	"github.com/leapstack-labs/sqlscope/pkg/ast"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// parseFrom parses the FROM clause.
//
//	from     → table_ref ("," table_ref | join)*
//	join     → join_kw table_ref [ON expr | USING "(" columns ")"]
//	join_kw  → [INNER | LEFT [OUTER] | RIGHT [OUTER] | FULL [OUTER] | CROSS | NATURAL] JOIN
func (p *Parser) parseFrom(stmt ast.NodeID) {
	tok := p.next()
	p.scope = ast.ScopeFrom
	from := p.addToken(stmt, ast.From, tok)
	p.parseTableRef(from)

	for !p.canceled() {
		q := p.peek()
		switch {
		case q.IsSymbol(token.Comma):
			p.addToken(from, ast.Comma, p.next())
			p.parseTableRef(from)
		case isJoin(q):
			p.parseJoin(from)
		default:
			return
		}
	}
}

func isJoin(tok token.Token) bool {
	if tok.Kind != token.Keyword {
		return false
	}
	switch tok.Norm {
	case "JOIN", "INNER JOIN", "CROSS JOIN", "NATURAL JOIN",
		"LEFT JOIN", "LEFT OUTER JOIN",
		"RIGHT JOIN", "RIGHT OUTER JOIN",
		"FULL JOIN", "FULL OUTER JOIN":
		return true
	}
	return false
}

// parseJoin parses one join. The joined table and its ON/USING condition
// are children of the Join node.
func (p *Parser) parseJoin(from ast.NodeID) {
	tok := p.next()
	join := p.addToken(from, ast.Join, tok)
	p.parseTableRef(join)

	switch q := p.peek(); {
	case q.Is("ON"):
		p.next()
		p.scope = ast.ScopeOn
		on := p.addToken(join, ast.On, q)
		if p.parseExpression(on, 0) == ast.NoNode {
			p.unexpected(p.next(), "join condition")
		}
		p.scope = ast.ScopeFrom
	case q.Is("USING"):
		p.next()
		p.scope = ast.ScopeOn
		on := p.addToken(join, ast.On, q)
		if !p.peek().IsSymbol(token.OpenParen) {
			p.unexpected(p.next(), "(")
			return
		}
		p.parseParenthesized(on, ast.NoNode, ast.ScopeOn)
		p.scope = ast.ScopeFrom
	}
}

// parseTableRef parses a table name, table function or parenthesized
// subquery, with an optional alias.
func (p *Parser) parseTableRef(container ast.NodeID) ast.NodeID {
	return p.tableRef(container, true)
}

// parseTableName parses a table name with an optional alias. A following
// "(" is left for the caller, as in INSERT INTO t (a, b).
func (p *Parser) parseTableName(container ast.NodeID) ast.NodeID {
	return p.tableRef(container, false)
}

func (p *Parser) tableRef(container ast.NodeID, calls bool) ast.NodeID {
	q := p.peek()
	var id ast.NodeID
	switch {
	case q.IsSymbol(token.OpenParen):
		id = p.parseParenthesized(container, ast.NoNode, ast.ScopeDefault)
	case q.Kind == token.Name || (q.Kind == token.Keyword && !isReserved(q.Norm)):
		p.next()
		name := p.qualifiedName(q)
		if nxt := p.peek(); calls && (nxt.IsSymbol(token.OpenParen) || nxt.Subkind == token.ParenStar) {
			name.Kind = ast.Function
			id = p.parseCall(container, name)
		} else {
			name.Kind = ast.Table
			id = p.add(container, name)
		}
	default:
		p.unexpected(p.next(), "table")
		return ast.NoNode
	}
	p.parseAlias(id, true)
	return id
}

// parseAlias parses [AS] alias after an alias-capable node. With implicit
// set, a bare name directly following the node is taken as its alias.
func (p *Parser) parseAlias(id ast.NodeID, implicit bool) {
	if id == ast.NoNode || p.failed() {
		return
	}
	q := p.peek()
	var kw token.Token
	switch {
	case q.Is("AS"):
		kw = p.next()
		q = p.peek()
		if !isAliasName(q) {
			p.unexpected(p.next(), "alias")
			return
		}
	case implicit && q.Kind == token.Name:
	default:
		return
	}

	n := p.tree.Node(id)
	if !n.Kind.AliasCapable() {
		p.unexpected(q, "end of expression")
		return
	}
	p.next()
	n.HasAlias = true
	n.Alias = q.Raw
	n.AliasOffset = q.Pos.Offset
	n.AliasLength = q.Length
	n.AliasKeyword = kw.Raw
}

func isAliasName(tok token.Token) bool {
	switch tok.Kind {
	case token.Name:
		return true
	case token.Value:
		return tok.Subkind == token.String
	case token.Keyword:
		return !isReserved(tok.Norm)
	}
	return false
}

// qualifiedName builds a node template for first and any ".part" suffixes
// that follow it. The template's kind is Column; callers retag it.
func (p *Parser) qualifiedName(first token.Token) ast.Node {
	n := ast.Node{
		Kind:    ast.Column,
		Text:    first.Raw,
		Norm:    first.Norm,
		Subkind: first.Subkind,
		Offset:  first.Pos.Offset,
		Length:  first.Length,
	}
	for !p.failed() && p.peek().IsSymbol(token.Dot) {
		p.next()
		part := p.next()
		switch {
		case part.Kind == token.Name, part.Kind == token.Keyword,
			part.Kind == token.Operator && part.Raw == "*":
		default:
			p.unexpected(part, "name")
			return n
		}
		n.Text += "." + part.Raw
		n.Norm += "." + part.Norm
		n.Subkind = part.Subkind
		n.Length = part.End() - n.Offset
	}
	return n
}
