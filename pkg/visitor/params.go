package visitor

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/leapstack-labs/sqlscope/pkg/ast"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// Param is one bind parameter occurrence.
type Param struct {
	// Name is the parameter name without the colon for named parameters,
	// or the marker text ("?", "?1", "$1") for positional ones.
	Name       string `json:"name" yaml:"name"`
	Positional bool   `json:"positional" yaml:"positional"`
	Offset     int    `json:"offset" yaml:"offset"`
	Length     int    `json:"length" yaml:"length"`
	Scope      string `json:"scope" yaml:"scope"`
}

// CollectParams returns every bind parameter in tree in ascending source
// offset order.
func CollectParams(tree *ast.Tree) []Param {
	if tree == nil {
		return nil
	}
	params := Fold(tree, tree.Root, []Param(nil), func(t *ast.Tree, id ast.NodeID, acc []Param) []Param {
		n := t.Node(id)
		if n.Kind != ast.BindParameter {
			return acc
		}
		return append(acc, Param{
			Name:       n.Norm,
			Positional: n.Subkind == token.PositionalBind,
			Offset:     n.Offset,
			Length:     n.Length,
			Scope:      n.Scope.String(),
		})
	})
	slices.SortStableFunc(params, func(a, b Param) int { return a.Offset - b.Offset })
	return params
}

// ParamNames returns the names of the collected parameters in order.
func ParamNames(params []Param) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

// PlaceholderStyle selects the marker written by Positional.
type PlaceholderStyle uint8

// Placeholder styles.
const (
	QuestionMark PlaceholderStyle = iota // ?
	Dollar                               // $1, $2, ...
)

// Positional regenerates tree with every bind parameter replaced by a
// positional marker and returns the SQL with the parameter names in
// binding order. Markers are numbered in source order, including explicit
// ones: "x = $2 AND y = $1" becomes "x = $1 AND y = $2" with names
// ["$2", "$1"], so callers must bind values by the returned names rather
// than by the original indices.
func Positional(tree *ast.Tree, style PlaceholderStyle) (string, []string) {
	opts := Options{
		bind: func(_ *ast.Node, index int) string {
			if style == Dollar {
				return "$" + strconv.Itoa(index+1)
			}
			return "?"
		},
	}
	return Regenerate(tree, opts), ParamNames(CollectParams(tree))
}

// ArgError reports a mismatch between bind parameters and supplied values.
type ArgError struct {
	Want    int
	Got     int
	Missing []string // named parameters with no value
	Unused  []string // supplied names no parameter refers to
}

func (e *ArgError) Error() string {
	var parts []string
	if e.Want != e.Got {
		parts = append(parts, fmt.Sprintf("expected %d arguments, got %d", e.Want, e.Got))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unused) > 0 {
		parts = append(parts, "unused "+strings.Join(e.Unused, ", "))
	}
	return "bind arguments: " + strings.Join(parts, "; ")
}

// ValidateArgs checks args against params. A map binds named parameters
// by name and requires the statement to have no positional markers; a
// slice binds every parameter by position. Any other type is an error.
func ValidateArgs(params []Param, args any) error {
	switch a := args.(type) {
	case []any:
		if len(a) != len(params) {
			return &ArgError{Want: len(params), Got: len(a)}
		}
		return nil

	case map[string]any:
		want := map[string]bool{}
		var order []string
		for _, p := range params {
			if p.Positional {
				return fmt.Errorf("positional parameter %s at offset %d cannot be bound by name", p.Name, p.Offset)
			}
			if !want[p.Name] {
				want[p.Name] = true
				order = append(order, p.Name)
			}
		}
		e := &ArgError{Want: len(order), Got: len(a)}
		for _, name := range order {
			if _, ok := a[name]; !ok {
				e.Missing = append(e.Missing, name)
			}
		}
		for name := range a {
			if !want[name] {
				e.Unused = append(e.Unused, name)
			}
		}
		slices.Sort(e.Unused)
		if len(e.Missing) > 0 || len(e.Unused) > 0 {
			return e
		}
		return nil

	case nil:
		if len(params) > 0 {
			return &ArgError{Want: len(params)}
		}
		return nil
	}
	return fmt.Errorf("bind arguments: unsupported type %T", args)
}
