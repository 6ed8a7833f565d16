package ast

// The helpers below walk upward on demand. None of them is cached, so they
// stay correct after a Replace. Reaching the top of the tree without a
// match is a normal outcome and is reported as (NoNode, false).

// Ancestor returns the nearest strict ancestor of id matching pred.
func (t *Tree) Ancestor(id NodeID, pred func(*Node) bool) (NodeID, bool) {
	if !t.valid(id) {
		return NoNode, false
	}
	for p := t.nodes[id].Parent; p != NoNode; p = t.nodes[p].Parent {
		if pred(&t.nodes[p]) {
			return p, true
		}
	}
	return NoNode, false
}

// Statement returns the nearest enclosing statement of id. A statement
// node is its own statement.
func (t *Tree) Statement(id NodeID) (NodeID, bool) {
	if t.valid(id) && t.nodes[id].Kind.IsStatement() {
		return id, true
	}
	return t.Ancestor(id, func(n *Node) bool { return n.Kind.IsStatement() })
}

// EnclosingParentheses returns the nearest Parentheses ancestor of id.
func (t *Tree) EnclosingParentheses(id NodeID) (NodeID, bool) {
	return t.Ancestor(id, func(n *Node) bool { return n.Kind == Parentheses })
}

// Expression returns the nearest ancestor of id that is an expression.
func (t *Tree) Expression(id NodeID) (NodeID, bool) {
	return t.Ancestor(id, func(n *Node) bool { return n.Kind.IsExpression() })
}

// AliasOwner returns the nearest ancestor of id that carries an alias.
func (t *Tree) AliasOwner(id NodeID) (NodeID, bool) {
	return t.Ancestor(id, func(n *Node) bool { return n.HasAlias })
}

// Clause returns the nearest clause ancestor of id.
func (t *Tree) Clause(id NodeID) (NodeID, bool) {
	return t.Ancestor(id, func(n *Node) bool { return n.Kind.IsClause() })
}

// NodeAt returns the deepest node whose own token covers offset.
func (t *Tree) NodeAt(offset int) (NodeID, bool) {
	found := NoNode
	t.Walk(t.Root, func(id NodeID, _ int) bool {
		n := &t.nodes[id]
		if n.Kind == Root {
			return true
		}
		if offset >= n.Offset && offset < n.Offset+n.Length {
			found = id
		}
		if n.HasAlias && offset >= n.AliasOffset && offset < n.AliasOffset+n.AliasLength {
			found = id
		}
		return true
	})
	return found, found != NoNode
}
