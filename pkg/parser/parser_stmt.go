package parser

import (
	"github.com/leapstack-labs/sqlscope/pkg/ast"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// ---------- Root and Statement Dispatch ----------

// parseRoot parses statement chains separated by ";" until end of input.
func (p *Parser) parseRoot() {
	root := p.tree.Root
	for !p.canceled() {
		tok := p.peek()
		switch {
		case tok.Kind == token.EOF:
			return
		case tok.IsSymbol(token.Semicolon):
			p.next()
			if last := p.lastStatement(root); last != ast.NoNode {
				p.tree.Node(last).Terminated = true
			}
		case tok.IsSymbol(token.CloseParen):
			p.next()
			p.fail(&UnmatchedParenError{Pos: tok.Pos})
		default:
			p.scope = ast.ScopeDefault
			p.parseStatementChain(root)
			after := p.peek()
			if after.Kind != token.EOF && !after.IsSymbol(token.Semicolon) && !after.IsSymbol(token.CloseParen) {
				p.next()
				p.unexpected(after, "end of statement")
			}
		}
	}
}

// lastStatement returns the last statement-like child of parent that is
// not yet terminated.
func (p *Parser) lastStatement(parent ast.NodeID) ast.NodeID {
	kids := p.tree.Children(parent)
	for i := len(kids) - 1; i >= 0; i-- {
		n := p.tree.Node(kids[i])
		if n.Kind == ast.Comment {
			continue
		}
		if (n.Kind.IsStatement() || n.Kind == ast.Parentheses) && !n.Terminated {
			return kids[i]
		}
		return ast.NoNode
	}
	return ast.NoNode
}

// parseStatementChain parses a statement followed by any set operations,
// splicing each operand in as a sibling under container.
func (p *Parser) parseStatementChain(container ast.NodeID) ast.NodeID {
	entry := p.scope
	first := p.parseStatement(container)
	p.parseSetOperations(container, entry)
	return first
}

// parseSetOperations handles UNION [ALL] / MINUS / EXCEPT / INTERSECT.
// Markers and spliced statements take the scope the chain started in.
func (p *Parser) parseSetOperations(container ast.NodeID, entry ast.Scope) {
	for !p.canceled() {
		tok := p.peek()
		kind, ok := setOperator(tok)
		if !ok {
			return
		}
		p.next()
		p.scope = entry
		p.addToken(container, kind, tok)

		nxt := p.peek()
		if !nxt.Is("SELECT") && !nxt.Is("WITH") && !nxt.IsSymbol(token.OpenParen) {
			p.next()
			p.unexpected(nxt, "SELECT")
			return
		}
		p.parseStatement(container)
	}
}

func setOperator(tok token.Token) (ast.Kind, bool) {
	if tok.Kind != token.Keyword {
		return 0, false
	}
	switch tok.Norm {
	case "UNION", "UNION ALL":
		return ast.Union, true
	case "MINUS", "EXCEPT":
		return ast.Minus, true
	case "INTERSECT":
		return ast.Intersect, true
	}
	return 0, false
}

// parseStatement dispatches on the first significant token.
func (p *Parser) parseStatement(container ast.NodeID) ast.NodeID {
	tok := p.peek()
	switch {
	case tok.Is("SELECT"):
		return p.parseSelect(container)
	case tok.Is("WITH"):
		return p.parseWith(container)
	case tok.IsSymbol(token.OpenParen):
		return p.parseParenthesized(container, ast.NoNode, ast.ScopeDefault)
	case tok.Is("INSERT"):
		return p.parseInsert(container)
	case tok.Is("UPDATE"):
		return p.parseUpdate(container)
	case tok.Is("DELETE"):
		return p.parseDelete(container)
	case tok.Is("CREATE"), tok.Is("CREATE OR REPLACE"):
		return p.parseCreate(container)
	case tok.Is("DROP"):
		return p.parseDrop(container)
	}
	p.next()
	p.unexpected(tok, "statement")
	return ast.NoNode
}

// ---------- SELECT ----------

// parseSelect parses a SELECT statement.
//
//	select → SELECT [DISTINCT|ALL|UNIQUE] item ("," item)* [INTO ...] clause*
func (p *Parser) parseSelect(container ast.NodeID) ast.NodeID {
	tok := p.next()
	sel := p.addToken(container, ast.Select, tok)

	p.scope = ast.ScopeSelect
	list := p.add(sel, ast.Node{Kind: ast.SelectList, Offset: tok.End()})
	if q := p.peek(); q.Is("DISTINCT") || q.Is("ALL") || q.Is("UNIQUE") {
		p.addToken(list, ast.Keyword, p.next())
	}
	p.parseSelectItems(list)

	if into, ok := p.accept("INTO"); ok {
		p.parseSelectInto(sel, into)
	}

	p.parseSelectClauses(sel)
	return sel
}

// parseSelectItems parses the comma separated projection list.
func (p *Parser) parseSelectItems(list ast.NodeID) {
	for !p.canceled() {
		item := p.parseExpression(list, 0)
		if item == ast.NoNode {
			tok := p.next()
			p.unexpected(tok, "expression")
			return
		}
		p.parseAlias(item, true)

		comma := p.peek()
		if !comma.IsSymbol(token.Comma) {
			return
		}
		p.addToken(list, ast.Comma, p.next())
	}
}

// parseSelectInto parses INTO OUTFILE 'file' or INTO target [, target].
func (p *Parser) parseSelectInto(sel ast.NodeID, into token.Token) {
	p.scope = ast.ScopeInto
	clause := p.addToken(sel, ast.Into, into)
	if of, ok := p.accept("OUTFILE"); ok {
		out := p.addToken(clause, ast.Outfile, of)
		file := p.next()
		if file.Kind != token.Value {
			p.unexpected(file, "file name")
			return
		}
		p.addToken(out, ast.Value, file)
		return
	}
	p.parseExpressionList(clause)
}

// parseSelectClauses parses the clauses that may follow the projection.
func (p *Parser) parseSelectClauses(sel ast.NodeID) {
	for !p.canceled() {
		tok := p.peek()
		switch {
		case tok.Is("FROM"):
			p.parseFrom(sel)
		case tok.Is("WHERE"):
			p.parseCondition(sel, ast.Where, ast.ScopeWhere)
		case tok.Is("GROUP BY"):
			p.parseListClause(sel, ast.GroupBy, ast.ScopeGroup)
		case tok.Is("HAVING"):
			p.parseCondition(sel, ast.Having, ast.ScopeHaving)
		case tok.Is("ORDER BY"):
			p.parseOrderBy(sel)
		case tok.Is("LIMIT"):
			p.parseListClause(sel, ast.Limit, ast.ScopeLimit)
		case tok.Is("OFFSET"):
			p.parseOffset(sel)
		case tok.Is("FETCH"):
			p.parseFetch(sel)
		default:
			return
		}
	}
}

// ---------- Shared Clauses ----------

// parseCondition parses WHERE or HAVING followed by one expression.
func (p *Parser) parseCondition(stmt ast.NodeID, kind ast.Kind, scope ast.Scope) {
	tok := p.next()
	p.scope = scope
	clause := p.addToken(stmt, kind, tok)
	if p.parseExpression(clause, 0) == ast.NoNode {
		p.unexpected(p.next(), "condition")
	}
}

// parseListClause parses a keyword followed by a comma separated list.
func (p *Parser) parseListClause(stmt ast.NodeID, kind ast.Kind, scope ast.Scope) {
	tok := p.next()
	p.scope = scope
	clause := p.addToken(stmt, kind, tok)
	p.parseExpressionList(clause)
}

// parseExpressionList parses expr ("," expr)* into container. At least one
// expression is required.
func (p *Parser) parseExpressionList(container ast.NodeID) {
	for !p.canceled() {
		if p.parseExpression(container, 0) == ast.NoNode {
			p.unexpected(p.next(), "expression")
			return
		}
		if !p.peek().IsSymbol(token.Comma) {
			return
		}
		p.addToken(container, ast.Comma, p.next())
	}
}

// parseOrderBy parses ORDER BY expr [ASC|DESC] [NULLS FIRST|NULLS LAST], ...
func (p *Parser) parseOrderBy(parent ast.NodeID) {
	tok := p.next()
	p.scope = ast.ScopeOrder
	clause := p.addToken(parent, ast.OrderBy, tok)
	p.parseOrderItems(clause)
}

func (p *Parser) parseOrderItems(clause ast.NodeID) {
	for !p.canceled() {
		if p.parseExpression(clause, 0) == ast.NoNode {
			p.unexpected(p.next(), "expression")
			return
		}
		if q := p.peek(); q.Is("ASC") || q.Is("DESC") {
			p.addToken(clause, ast.Keyword, p.next())
		}
		if q := p.peek(); q.Is("NULLS FIRST") || q.Is("NULLS LAST") {
			p.addToken(clause, ast.Keyword, p.next())
		}
		if !p.peek().IsSymbol(token.Comma) {
			return
		}
		p.addToken(clause, ast.Comma, p.next())
	}
}

// parseOffset parses OFFSET expr [ROW|ROWS].
func (p *Parser) parseOffset(stmt ast.NodeID) {
	tok := p.next()
	p.scope = ast.ScopeOffset
	clause := p.addToken(stmt, ast.Offset, tok)
	if p.parseExpression(clause, 0) == ast.NoNode {
		p.unexpected(p.next(), "expression")
		return
	}
	if q := p.peek(); q.Kind == token.Name && (q.Norm == "ROW" || q.Norm == "ROWS") || q.Is("ROWS") {
		p.addToken(clause, ast.Keyword, p.next())
	}
}

// parseFetch parses FETCH {FIRST|NEXT} n {ROW|ROWS} ONLY as a Limit clause.
func (p *Parser) parseFetch(stmt ast.NodeID) {
	tok := p.next()
	p.scope = ast.ScopeLimit
	clause := p.addToken(stmt, ast.Limit, tok)
	for !p.canceled() {
		q := p.peek()
		switch {
		case q.Kind == token.Value:
			p.addToken(clause, valueKind(q), p.next())
		case q.Is("FIRST"), q.Is("ROWS"), q.Is("ONLY"),
			q.Kind == token.Name && (q.Norm == "NEXT" || q.Norm == "ROW"):
			p.addToken(clause, ast.Keyword, p.next())
		default:
			return
		}
	}
}

// ---------- WITH ----------

// parseWith parses WITH name [(cols)] AS (query), ... followed by the
// statement the CTEs belong to. The With clause becomes that statement's
// first child.
func (p *Parser) parseWith(container ast.NodeID) ast.NodeID {
	tok := p.next()
	outer := p.scope
	p.scope = ast.ScopeWith
	with := p.addToken(container, ast.With, tok)

	for !p.canceled() {
		name := p.next()
		if name.Kind != token.Name {
			p.unexpected(name, "CTE name")
			return ast.NoNode
		}
		cte := p.addToken(with, ast.Table, name)
		if p.peek().IsSymbol(token.OpenParen) {
			p.parseParenthesized(cte, ast.NoNode, ast.ScopeWith)
		}
		as, ok := p.expectKeyword("AS")
		if !ok {
			return ast.NoNode
		}
		p.addToken(with, ast.Keyword, as)
		if open := p.peek(); !open.IsSymbol(token.OpenParen) {
			p.unexpected(p.next(), "(")
			return ast.NoNode
		}
		p.parseParenthesized(with, ast.NoNode, ast.ScopeWith)

		if !p.peek().IsSymbol(token.Comma) {
			break
		}
		p.addToken(with, ast.Comma, p.next())
	}

	nxt := p.peek()
	if !nxt.Is("SELECT") && !nxt.Is("INSERT") && !nxt.Is("UPDATE") && !nxt.Is("DELETE") {
		p.unexpected(p.next(), "SELECT")
		return ast.NoNode
	}
	p.scope = outer
	stmt := p.parseStatement(container)
	if stmt != ast.NoNode {
		p.tree.AttachAt(stmt, 0, with)
	}
	return stmt
}

// ---------- INSERT ----------

// parseInsert parses
//
//	insert → INSERT INTO table [alias] ["(" columns ")"] (VALUES tuple ("," tuple)* | query)
func (p *Parser) parseInsert(container ast.NodeID) ast.NodeID {
	tok := p.next()
	ins := p.addToken(container, ast.Insert, tok)
	p.scope = ast.ScopeInsert

	if into, ok := p.accept("INTO"); ok {
		p.scope = ast.ScopeInto
		clause := p.addToken(ins, ast.Into, into)
		p.parseTableName(clause)
		if p.peek().IsSymbol(token.OpenParen) {
			p.scope = ast.ScopeInsert
			p.parseParenthesized(clause, ast.NoNode, ast.ScopeInto)
		}
	}

	for !p.canceled() {
		q := p.peek()
		switch {
		case q.Is("VALUES"):
			p.parseValues(ins)
		case q.Is("SELECT"), q.Is("WITH"), q.IsSymbol(token.OpenParen):
			p.parseStatementChain(ins)
			return ins
		default:
			return ins
		}
	}
	return ins
}

// parseValues parses VALUES (row) [, (row)]...
func (p *Parser) parseValues(stmt ast.NodeID) {
	tok := p.next()
	p.scope = ast.ScopeValues
	clause := p.addToken(stmt, ast.Values, tok)
	for !p.canceled() {
		if !p.peek().IsSymbol(token.OpenParen) {
			p.unexpected(p.next(), "(")
			return
		}
		p.parseParenthesized(clause, ast.NoNode, ast.ScopeValues)
		if !p.peek().IsSymbol(token.Comma) {
			return
		}
		p.addToken(clause, ast.Comma, p.next())
	}
}

// ---------- UPDATE ----------

// parseUpdate parses
//
//	update → UPDATE table [alias] SET assignment ("," assignment)* [WHERE expr]
func (p *Parser) parseUpdate(container ast.NodeID) ast.NodeID {
	tok := p.next()
	upd := p.addToken(container, ast.Update, tok)
	p.scope = ast.ScopeUpdate
	p.parseTableRef(upd)

	for !p.canceled() {
		q := p.peek()
		switch {
		case q.Is("SET"):
			p.next()
			p.scope = ast.ScopeSet
			clause := p.addToken(upd, ast.Set, q)
			p.parseExpressionList(clause)
		case q.Is("WHERE"):
			p.parseCondition(upd, ast.Where, ast.ScopeWhere)
		default:
			return upd
		}
	}
	return upd
}

// ---------- DELETE ----------

// parseDelete parses
//
//	delete → DELETE [FROM] table [alias] [WHERE expr]
func (p *Parser) parseDelete(container ast.NodeID) ast.NodeID {
	tok := p.next()
	del := p.addToken(container, ast.Delete, tok)
	p.scope = ast.ScopeDelete

	if p.peek().Is("FROM") {
		p.parseFrom(del)
	} else {
		p.parseTableRef(del)
	}

	for !p.canceled() {
		if !p.peek().Is("WHERE") {
			return del
		}
		p.parseCondition(del, ast.Where, ast.ScopeWhere)
	}
	return del
}

// ---------- CREATE / DROP ----------

// parseCreate parses CREATE [OR REPLACE] <object words> target <body>.
// The body is kept leniently as a flat sequence of leaves, parenthesized
// groups and embedded queries.
func (p *Parser) parseCreate(container ast.NodeID) ast.NodeID {
	tok := p.next()
	stmt := p.addToken(container, ast.Create, tok)
	p.scope = ast.ScopeCreate
	p.parseObjectTarget(stmt)
	p.parseGeneric(stmt)
	return stmt
}

// parseDrop parses DROP <object words> target [options].
func (p *Parser) parseDrop(container ast.NodeID) ast.NodeID {
	tok := p.next()
	stmt := p.addToken(container, ast.Drop, tok)
	p.scope = ast.ScopeDrop
	p.parseObjectTarget(stmt)
	p.parseGeneric(stmt)
	return stmt
}

// parseObjectTarget parses the object-type keywords and the target name.
func (p *Parser) parseObjectTarget(stmt ast.NodeID) {
	for !p.canceled() {
		q := p.peek()
		if q.Kind == token.Keyword {
			p.addToken(stmt, ast.Keyword, p.next())
			continue
		}
		if q.Kind != token.Name {
			p.unexpected(p.next(), "object name")
			return
		}
		p.next()
		name := p.qualifiedName(q)
		name.Kind = ast.Target
		p.add(stmt, name)
		return
	}
}

// parseGeneric consumes tokens up to ";", ")" or end of input, keeping
// them as leaves. SELECT starts an embedded query.
func (p *Parser) parseGeneric(container ast.NodeID) {
	for !p.canceled() {
		q := p.peek()
		switch {
		case q.Kind == token.EOF, q.IsSymbol(token.Semicolon), q.IsSymbol(token.CloseParen):
			return
		case q.Is("SELECT"):
			p.parseStatementChain(container)
		case q.IsSymbol(token.OpenParen):
			open := p.next()
			n := nodeFor(ast.Parentheses, open)
			n.EndOffset = -1
			par := p.add(container, n)
			p.push(par, open)
			p.parseGeneric(par)
			p.closeParen(par)
		case q.Kind == token.Name:
			p.next()
			p.add(container, p.qualifiedName(q))
		case q.Kind == token.Keyword && q.Subkind == token.Datatype:
			typ := p.addToken(container, ast.Type, p.next())
			if p.peek().IsSymbol(token.OpenParen) {
				p.parseParenthesized(typ, ast.NoNode, ast.ScopeDefault)
			}
		case q.Kind == token.Keyword && q.Subkind == token.Function:
			p.next()
			if nxt := p.peek(); nxt.IsSymbol(token.OpenParen) || nxt.Subkind == token.ParenStar {
				p.parseCall(container, nodeFor(ast.Function, q))
			} else {
				p.addToken(container, ast.Keyword, q)
			}
		case q.Kind == token.Keyword:
			p.addToken(container, ast.Keyword, p.next())
		case q.Kind == token.Value:
			p.addToken(container, valueKind(q), p.next())
		case q.IsSymbol(token.Comma):
			p.addToken(container, ast.Comma, p.next())
		case q.Kind == token.Operator:
			p.addToken(container, ast.Operator, p.next())
		default:
			p.unexpected(p.next(), "statement body")
			return
		}
	}
}
