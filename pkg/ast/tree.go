// Package ast defines the syntax tree built by the parser.
//
// Nodes live in an arena owned by a Tree and refer to one another by
// NodeID. A node's Parent is an index, never an owning reference, and a
// node is a child of at most one parent. Children are kept in source order.
//
// Trees are built by the parser and then treated as read-only, except for
// explicit subtree rewrites through Replace.
package ast

import (
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// NodeID addresses a node within its Tree.
type NodeID int32

// NoNode is the absent node.
const NoNode NodeID = -1

// Assoc is the associativity of an operator.
type Assoc uint8

const (
	AssocLeft Assoc = iota
	AssocRight
)

// Node is one vertex of the syntax tree. Which optional fields are
// meaningful depends on Kind.
type Node struct {
	ID       NodeID
	Kind     Kind
	Scope    Scope
	Parent   NodeID
	Children []NodeID

	// Text is the source text of the node's leading token (or tokens, for
	// qualified names such as a.b). Norm is its case-normalized form.
	Text    string
	Norm    string
	Subkind token.Subkind
	Offset  int
	Length  int

	// Alias, for alias-capable kinds.
	HasAlias     bool
	Alias        string
	AliasOffset  int
	AliasLength  int
	AliasKeyword string // "AS" as written, empty for an implicit alias

	// Parentheses: EndOffset is the offset of the matching ")" and stays
	// -1 until it is consumed. Function links an argument list back to
	// its Function or Cast node.
	EndOffset int
	Function  NodeID

	// Operator.
	Precedence int
	Unary      bool
	Assoc      Assoc

	// Case: set once the matching END is consumed.
	Complete bool

	// Column: followed by the (+) outer-join marker.
	OuterJoin bool

	// Statement or parenthesized query followed by ";".
	Terminated bool
}

// Tree is an arena of nodes rooted at Root.
type Tree struct {
	Source string
	Root   NodeID

	nodes []Node
}

// NewTree creates a tree holding only a Root node.
func NewTree(source string) *Tree {
	t := &Tree{Source: source}
	t.Root = t.New(Node{Kind: Root, Length: len(source)})
	return t
}

// New adds an unattached node to the arena and returns its ID.
func (t *Tree) New(n Node) NodeID {
	id := NodeID(len(t.nodes))
	n.ID = id
	n.Parent = NoNode
	n.Children = nil
	if n.Kind == Parentheses && n.EndOffset == 0 {
		n.EndOffset = -1
	}
	if n.Function == 0 {
		n.Function = NoNode
	}
	t.nodes = append(t.nodes, n)
	return id
}

// Add creates a node and appends it as the last child of parent.
func (t *Tree) Add(parent NodeID, n Node) NodeID {
	id := t.New(n)
	t.Attach(parent, id)
	return id
}

// Attach appends child to parent's children. A child that already has a
// parent is detached from it first.
func (t *Tree) Attach(parent, child NodeID) {
	if !t.valid(parent) || !t.valid(child) || parent == child {
		return
	}
	t.Detach(child)
	t.nodes[parent].Children = append(t.nodes[parent].Children, child)
	t.nodes[child].Parent = parent
}

// AttachAt inserts child into parent's children at index i, clamped to
// the valid range.
func (t *Tree) AttachAt(parent NodeID, i int, child NodeID) {
	if !t.valid(parent) || !t.valid(child) || parent == child {
		return
	}
	t.Detach(child)
	kids := t.nodes[parent].Children
	i = max(0, min(i, len(kids)))
	kids = append(kids, NoNode)
	copy(kids[i+1:], kids[i:])
	kids[i] = child
	t.nodes[parent].Children = kids
	t.nodes[child].Parent = parent
}

// Detach removes child from its parent. The node stays in the arena.
func (t *Tree) Detach(child NodeID) {
	if !t.valid(child) {
		return
	}
	p := t.nodes[child].Parent
	if p == NoNode {
		return
	}
	kids := t.nodes[p].Children
	for i, c := range kids {
		if c == child {
			t.nodes[p].Children = append(kids[:i:i], kids[i+1:]...)
			break
		}
	}
	t.nodes[child].Parent = NoNode
}

// Replace puts replacement in old's place under old's parent and detaches
// old. The replacement keeps its own children. It reports false when
// either node is invalid.
func (t *Tree) Replace(old, replacement NodeID) bool {
	if !t.valid(old) || !t.valid(replacement) || old == replacement {
		return false
	}
	t.Detach(replacement)
	p := t.nodes[old].Parent
	if p == NoNode {
		if old == t.Root {
			t.Root = replacement
		}
		return true
	}
	for i, c := range t.nodes[p].Children {
		if c == old {
			t.nodes[p].Children[i] = replacement
			break
		}
	}
	t.nodes[replacement].Parent = p
	t.nodes[old].Parent = NoNode
	return true
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// Len returns the number of nodes in the arena, attached or not.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node with the given ID, or nil. The pointer is only
// valid until the next node is added to the tree.
func (t *Tree) Node(id NodeID) *Node {
	if !t.valid(id) {
		return nil
	}
	return &t.nodes[id]
}

// Kind returns the kind of id, or Root for an invalid ID.
func (t *Tree) Kind(id NodeID) Kind {
	if !t.valid(id) {
		return Root
	}
	return t.nodes[id].Kind
}

// Parent returns the parent of id, or NoNode.
func (t *Tree) Parent(id NodeID) NodeID {
	if !t.valid(id) {
		return NoNode
	}
	return t.nodes[id].Parent
}

// Children returns the children of id in source order.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}
	return t.nodes[id].Children
}

// Child returns the i-th child of id, or NoNode when there is none.
func (t *Tree) Child(id NodeID, i int) NodeID {
	kids := t.Children(id)
	if i < 0 || i >= len(kids) {
		return NoNode
	}
	return kids[i]
}

// LastChild returns the last child of id, or NoNode.
func (t *Tree) LastChild(id NodeID) NodeID {
	kids := t.Children(id)
	if len(kids) == 0 {
		return NoNode
	}
	return kids[len(kids)-1]
}

// Statements returns the top-level statements and set-operator markers.
func (t *Tree) Statements() []NodeID {
	return t.Children(t.Root)
}

// Walk visits id and its descendants in pre-order. When fn returns false
// the node's children are skipped.
func (t *Tree) Walk(id NodeID, fn func(id NodeID, depth int) bool) {
	t.walk(id, 0, fn)
}

func (t *Tree) walk(id NodeID, depth int, fn func(NodeID, int) bool) {
	if !t.valid(id) {
		return
	}
	if !fn(id, depth) {
		return
	}
	for _, c := range t.nodes[id].Children {
		t.walk(c, depth+1, fn)
	}
}

// Find returns every node of kind k reachable from Root, in pre-order.
func (t *Tree) Find(k Kind) []NodeID {
	var out []NodeID
	t.Walk(t.Root, func(id NodeID, _ int) bool {
		if t.nodes[id].Kind == k {
			out = append(out, id)
		}
		return true
	})
	return out
}

// KindSequence returns the kinds of all nodes reachable from Root in
// pre-order, excluding Root itself.
func (t *Tree) KindSequence() []Kind {
	var out []Kind
	t.Walk(t.Root, func(id NodeID, _ int) bool {
		if id != t.Root {
			out = append(out, t.nodes[id].Kind)
		}
		return true
	})
	return out
}

// Span returns the source range covered by id and its descendants,
// including aliases and closing parentheses.
func (t *Tree) Span(id NodeID) (start, end int) {
	start, end = -1, -1
	t.Walk(id, func(n NodeID, _ int) bool {
		node := &t.nodes[n]
		if node.Kind == Root {
			return true
		}
		s, e := node.Offset, node.Offset+node.Length
		if node.HasAlias && node.AliasOffset+node.AliasLength > e {
			e = node.AliasOffset + node.AliasLength
		}
		if node.Kind == Parentheses && node.EndOffset >= 0 && node.EndOffset+1 > e {
			e = node.EndOffset + 1
		}
		if start < 0 || s < start {
			start = s
		}
		if e > end {
			end = e
		}
		return true
	})
	if start < 0 {
		return 0, 0
	}
	return start, end
}
