package visitor

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/sqlscope/pkg/ast"
	"gopkg.in/yaml.v3"
)

// DumpNode is the serializable form of a tree node.
type DumpNode struct {
	Kind     string      `json:"kind" yaml:"kind"`
	Text     string      `json:"text,omitempty" yaml:"text,omitempty"`
	Scope    string      `json:"scope" yaml:"scope"`
	Offset   int         `json:"offset" yaml:"offset"`
	Alias    string      `json:"alias,omitempty" yaml:"alias,omitempty"`
	Flags    []string    `json:"flags,omitempty" yaml:"flags,omitempty"`
	Children []*DumpNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// Dump converts the subtree rooted at id to DumpNodes.
func Dump(tree *ast.Tree, id ast.NodeID) *DumpNode {
	if tree == nil || id < 0 || int(id) >= tree.Len() {
		return nil
	}
	n := tree.Node(id)
	d := &DumpNode{
		Kind:   n.Kind.String(),
		Text:   n.Text,
		Scope:  n.Scope.String(),
		Offset: n.Offset,
		Alias:  n.Alias,
		Flags:  flags(n),
	}
	for _, c := range tree.Children(id) {
		d.Children = append(d.Children, Dump(tree, c))
	}
	return d
}

func flags(n *ast.Node) []string {
	var f []string
	if n.Kind == ast.Operator {
		if n.Unary {
			f = append(f, "unary")
		}
		f = append(f, fmt.Sprintf("prec=%d", n.Precedence))
	}
	if n.Kind == ast.Case && !n.Complete {
		f = append(f, "incomplete")
	}
	if n.OuterJoin {
		f = append(f, "outer-join")
	}
	if n.Terminated {
		f = append(f, "terminated")
	}
	if n.Kind == ast.Parentheses && n.Function != ast.NoNode {
		f = append(f, "args")
	}
	return f
}

// Print writes an indented dump of tree to w, one node per line:
//
//	Select "SELECT" [DEFAULT] @0
//	  SelectList [SELECT] @6
func Print(w io.Writer, tree *ast.Tree) error {
	if tree == nil {
		return nil
	}
	var buf bytes.Buffer
	tree.Walk(tree.Root, func(id ast.NodeID, depth int) bool {
		n := tree.Node(id)
		buf.WriteString(strings.Repeat("  ", depth))
		buf.WriteString(n.Kind.String())
		if n.Text != "" {
			fmt.Fprintf(&buf, " %q", n.Text)
		}
		fmt.Fprintf(&buf, " [%s] @%d", n.Scope, n.Offset)
		if n.HasAlias {
			fmt.Fprintf(&buf, " alias=%s", n.Alias)
		}
		if f := flags(n); len(f) > 0 {
			buf.WriteString(" (" + strings.Join(f, ", ") + ")")
		}
		buf.WriteByte('\n')
		return true
	})
	_, err := w.Write(buf.Bytes())
	return err
}

// PrintYAML writes the tree as a YAML document.
func PrintYAML(w io.Writer, tree *ast.Tree) error {
	if tree == nil {
		return nil
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Dump(tree, tree.Root)); err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	return enc.Close()
}
