// Package visitor provides read-only traversals over an ast.Tree: a
// generic walker, the SQL regenerator, the bind-parameter collector and
// a structural printer.
//
// Every traversal tolerates partial trees. A missing child (an Operator
// without a right operand, a Case without Else) is simply not emitted.
package visitor

import "github.com/leapstack-labs/sqlscope/pkg/ast"

// Visitor is called for each node encountered by Walk. If the returned
// visitor w is not nil, Walk visits each of the node's children with w,
// followed by a call of w.Leave(id).
type Visitor interface {
	Visit(tree *ast.Tree, id ast.NodeID) (w Visitor)
	Leave(tree *ast.Tree, id ast.NodeID)
}

// Walk traverses the subtree rooted at id in depth-first order, children
// left to right.
func Walk(v Visitor, tree *ast.Tree, id ast.NodeID) {
	if tree == nil || id < 0 || int(id) >= tree.Len() {
		return
	}
	w := v.Visit(tree, id)
	if w == nil {
		return
	}
	for _, c := range tree.Children(id) {
		Walk(w, tree, c)
	}
	w.Leave(tree, id)
}

type inspector func(*ast.Tree, ast.NodeID) bool

func (f inspector) Visit(tree *ast.Tree, id ast.NodeID) Visitor {
	if f(tree, id) {
		return f
	}
	return nil
}

func (f inspector) Leave(*ast.Tree, ast.NodeID) {}

// Inspect traverses the subtree rooted at id, calling fn for each node in
// pre-order. Children are skipped when fn returns false.
func Inspect(tree *ast.Tree, id ast.NodeID, fn func(*ast.Tree, ast.NodeID) bool) {
	Walk(inspector(fn), tree, id)
}

// Fold threads an accumulator through the subtree rooted at id in
// pre-order and returns its final value.
func Fold[C any](tree *ast.Tree, id ast.NodeID, acc C, fn func(tree *ast.Tree, id ast.NodeID, acc C) C) C {
	Inspect(tree, id, func(t *ast.Tree, n ast.NodeID) bool {
		acc = fn(t, n, acc)
		return true
	})
	return acc
}
