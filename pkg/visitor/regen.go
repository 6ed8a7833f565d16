package visitor

import (
	"bytes"
	"strings"

	"github.com/leapstack-labs/sqlscope/pkg/ast"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// AliasCase controls the casing of alias keywords in regenerated SQL.
type AliasCase uint8

// Alias keyword casing.
const (
	AliasPreserve AliasCase = iota
	AliasUpper
	AliasLower
)

// Options configures Regenerate.
type Options struct {
	// InsertAS writes AS before aliases that were written without it.
	InsertAS bool
	// AliasCase applies to the AS keyword of every alias.
	AliasCase AliasCase

	// bind, when set, replaces the text of the index-th bind parameter.
	bind func(n *ast.Node, index int) string
}

// Regenerate rebuilds SQL text from tree. Tokens are separated by single
// spaces; commas attach to the preceding word and function argument lists
// attach to the function name. The output re-parses to a tree with the
// same node-kind sequence.
func Regenerate(tree *ast.Tree, opts Options) string {
	if tree == nil {
		return ""
	}
	r := &regenerator{tree: tree, opts: opts}
	r.node(tree.Root)
	return r.out.String()
}

// RegenerateNode rebuilds the SQL text of a single subtree.
func RegenerateNode(tree *ast.Tree, id ast.NodeID, opts Options) string {
	if tree == nil || id < 0 || int(id) >= tree.Len() {
		return ""
	}
	r := &regenerator{tree: tree, opts: opts}
	r.node(id)
	return r.out.String()
}

type regenerator struct {
	tree  *ast.Tree
	opts  Options
	out   bytes.Buffer
	glue  bool // next word is written without a leading space
	binds int
}

func (r *regenerator) word(s string) {
	if s == "" {
		return
	}
	if r.out.Len() > 0 && !r.glue {
		r.out.WriteByte(' ')
	}
	r.out.WriteString(s)
	r.glue = false
}

// attach writes s directly after the previous output.
func (r *regenerator) attach(s string) {
	r.out.WriteString(s)
	r.glue = false
}

func (r *regenerator) children(id ast.NodeID) {
	for _, c := range r.tree.Children(id) {
		r.node(c)
	}
}

func (r *regenerator) node(id ast.NodeID) {
	n := r.tree.Node(id)
	switch n.Kind {
	case ast.Root:
		r.children(id)

	case ast.Select, ast.Insert, ast.Update, ast.Delete, ast.Create, ast.Drop:
		kids := r.tree.Children(id)
		if len(kids) > 0 && r.tree.Kind(kids[0]) == ast.With {
			r.node(kids[0])
			kids = kids[1:]
		}
		r.word(n.Text)
		for _, c := range kids {
			r.node(c)
		}
		if n.Terminated {
			r.attach(";")
		}

	case ast.SelectList:
		r.children(id)

	case ast.Comma:
		r.attach(",")

	case ast.Comment:
		r.word(n.Text)
		if n.Subkind == token.LineComment {
			r.out.WriteByte('\n')
			r.glue = true
		}

	case ast.Parentheses:
		r.parentheses(id, n)
		if n.Terminated {
			r.attach(";")
		}

	case ast.Operator:
		r.operator(id, n)

	case ast.Case:
		r.word(n.Text)
		r.children(id)
		if n.Complete {
			r.word("END")
		}

	case ast.Column:
		r.word(n.Text)
		if n.OuterJoin {
			r.attach("(+)")
		}

	case ast.BindParameter:
		text := n.Text
		if r.opts.bind != nil {
			text = r.opts.bind(n, r.binds)
		}
		r.binds++
		r.word(text)

	default:
		r.word(n.Text)
		r.children(id)
	}

	if n.HasAlias {
		r.alias(n)
	}
}

// parentheses writes "( ... )" for groups and subqueries, and "(...)" for
// argument lists and type precision.
func (r *regenerator) parentheses(id ast.NodeID, n *ast.Node) {
	attached := n.Function != ast.NoNode || r.tree.Kind(n.Parent) == ast.Type
	if attached {
		r.attach("(")
		r.glue = true
		r.children(id)
		r.attach(")")
		return
	}
	r.word("(")
	r.children(id)
	r.word(")")
}

func (r *regenerator) operator(id ast.NodeID, n *ast.Node) {
	kids := r.tree.Children(id)
	if n.Unary {
		r.word(n.Text)
		if isSymbolic(n.Text) && len(kids) > 0 && r.tree.Kind(kids[0]) != ast.Operator {
			r.glue = true
		}
		for _, c := range kids {
			r.node(c)
		}
		return
	}

	if len(kids) > 0 {
		r.node(kids[0])
	}
	if n.Norm == "::" {
		r.attach(n.Text)
		r.glue = true
	} else {
		r.word(n.Text)
	}
	for i, c := range kids[min(1, len(kids)):] {
		if i == 1 && (n.Norm == "BETWEEN" || n.Norm == "NOT BETWEEN") {
			r.word("AND")
		}
		r.node(c)
	}
}

func (r *regenerator) alias(n *ast.Node) {
	kw := n.AliasKeyword
	if kw == "" && r.opts.InsertAS {
		kw = "AS"
	}
	switch r.opts.AliasCase {
	case AliasUpper:
		kw = strings.ToUpper(kw)
	case AliasLower:
		kw = strings.ToLower(kw)
	}
	r.word(kw)
	r.word(n.Alias)
}

func isSymbolic(op string) bool {
	return op != "" && !strings.ContainsAny(op[:1], "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")
}
