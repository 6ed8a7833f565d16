package visitor

import "github.com/leapstack-labs/sqlscope/pkg/ast"

// Location describes the node covering a source offset together with the
// constructs that enclose it.
type Location struct {
	Node       ast.NodeID `json:"-" yaml:"-"`
	Offset     int        `json:"offset" yaml:"offset"`
	Length     int        `json:"length" yaml:"length"`
	Kind       string     `json:"kind" yaml:"kind"`
	Text       string     `json:"text,omitempty" yaml:"text,omitempty"`
	Scope      string     `json:"scope" yaml:"scope"`
	Statement  string     `json:"statement,omitempty" yaml:"statement,omitempty"`
	Clause     string     `json:"clause,omitempty" yaml:"clause,omitempty"`
	Expression string     `json:"expression,omitempty" yaml:"expression,omitempty"`
	Alias      string     `json:"alias,omitempty" yaml:"alias,omitempty"`
}

// Locate finds the deepest node whose token covers offset.
func Locate(tree *ast.Tree, offset int) (*Location, bool) {
	if tree == nil {
		return nil, false
	}
	id, ok := tree.NodeAt(offset)
	if !ok {
		return nil, false
	}
	n := tree.Node(id)
	loc := &Location{
		Node:   id,
		Offset: n.Offset,
		Length: n.Length,
		Kind:   n.Kind.String(),
		Text:   n.Text,
		Scope:  n.Scope.String(),
	}
	if s, ok := tree.Statement(id); ok {
		loc.Statement = tree.Node(s).Kind.String()
	}
	if c, ok := tree.Clause(id); ok {
		loc.Clause = tree.Node(c).Kind.String()
	}
	if e, ok := tree.Expression(id); ok {
		loc.Expression = tree.Node(e).Kind.String()
	}
	if n.HasAlias {
		loc.Alias = n.Alias
	} else if a, ok := tree.AliasOwner(id); ok {
		loc.Alias = tree.Node(a).Alias
	}
	return loc, true
}
