package commands

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/cache"
	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/pkg/visitor"
)

// ParseOptions holds options for the parse command.
type ParseOptions struct {
	SQL string
	At  int
}

// NewParseCommand creates the parse command.
func NewParseCommand() *cobra.Command {
	opts := &ParseOptions{}

	cmd := &cobra.Command{
		Use:   "parse [file...]",
		Short: "Parse SQL and print its syntax tree",
		Long: `Parse SQL and print the structural dump of its syntax tree.

Each node is printed with its kind, source text, grammar scope and offset.
Files are read in order; with no file, or "-", SQL is read from stdin.

Output adapts to environment:
  - Terminal: indented tree
  - Piped/Scripted: Markdown with a code block
  - JSON/YAML: nested node records`,
		Example: `  # Parse a file
  sqlscope parse query.sql

  # Parse inline SQL as YAML
  sqlscope parse -e "SELECT a FROM t" --output yaml

  # Show what sits at byte offset 7
  sqlscope parse -e "SELECT a FROM t" --at 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.SQL, "execute", "e", "", "SQL text to parse instead of files")
	cmd.Flags().IntVar(&opts.At, "at", -1, "Describe the node at this byte offset")

	return cmd
}

func runParse(cmd *cobra.Command, args []string, opts *ParseOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	inputs, err := readInputs(cmd, args, opts.SQL)
	if err != nil {
		return err
	}
	c, cleanup, err := cmdCtx.OpenCache("parse")
	if err != nil {
		return err
	}
	defer cleanup()

	var results []output.ParseOutput
	failed := 0
	for _, in := range inputs {
		e, err := c.Get(cmd.Context(), in.SQL)
		if err != nil {
			return err
		}
		res := output.ParseOutput{Source: in.Name, Fault: output.NewFault(e.Err)}
		if e.Err != nil {
			failed++
			renderFault(r, in.Name, e.Err)
		} else {
			res.Statements = len(e.Tree.Statements())
			res.Nodes = e.Tree.Len()
			if opts.At >= 0 {
				if loc, ok := visitor.Locate(e.Tree, opts.At); ok {
					res.At = loc
				}
			}
			if r.Structured() {
				res.Tree = visitor.Dump(e.Tree, e.Tree.Root)
			} else {
				renderTree(r, in.Name, len(inputs) > 1, e, res.At)
			}
		}
		results = append(results, res)
	}

	if r.Structured() {
		if err := structureOne(r, results); err != nil {
			return err
		}
	}
	return faultError(failed, len(inputs))
}

func renderTree(r *output.Renderer, name string, titled bool, e *cache.Entry, at *visitor.Location) {
	var buf bytes.Buffer
	_ = visitor.Print(&buf, e.Tree)

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Header(2, "Syntax tree: "+name)
		r.Println(output.FormatKeyValue("Statements", fmt.Sprint(len(e.Tree.Statements()))))
		r.Println(output.FormatKeyValue("Nodes", fmt.Sprint(e.Tree.Len())))
		if at != nil {
			r.Println(output.FormatKeyValue("At", describeLocation(at)))
		}
		r.Println("")
		r.Println(output.FormatCodeBlock("text", buf.String()))
		return
	}

	if titled {
		r.Println(r.Styles().Path.Render(name))
	}
	r.Printf("%s", buf.String())
	if at != nil {
		r.Println(r.Styles().Muted.Render("at: ") + describeLocation(at))
	}
}

// describeLocation renders a location on one line.
func describeLocation(l *visitor.Location) string {
	s := fmt.Sprintf("%s %q [%s] @%d", l.Kind, l.Text, l.Scope, l.Offset)
	if l.Statement != "" {
		s += " in " + l.Statement
	}
	if l.Clause != "" {
		s += "/" + l.Clause
	}
	if l.Alias != "" {
		s += " alias=" + l.Alias
	}
	return s
}
