package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/cache"
	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/pkg/visitor"
)

// RegenOptions holds options for the regen command.
type RegenOptions struct {
	SQL       string
	InsertAS  bool
	AliasCase string
}

// NewRegenCommand creates the regen command.
func NewRegenCommand() *cobra.Command {
	opts := &RegenOptions{}

	cmd := &cobra.Command{
		Use:   "regen [file...]",
		Short: "Regenerate SQL text from its syntax tree",
		Long: `Parse SQL and rebuild its text from the syntax tree.

Whitespace is normalized to single spaces and the text of every token is
kept as written. The result parses back to the same tree shape.`,
		Example: `  # Normalize whitespace
  sqlscope regen -e "select  a ,b from   t"

  # Add AS before bare aliases
  sqlscope regen --insert-as --alias-case upper query.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegen(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.SQL, "execute", "e", "", "SQL text to regenerate instead of files")
	cmd.Flags().BoolVar(&opts.InsertAS, "insert-as", false, "Write AS before aliases that omit it")
	cmd.Flags().StringVar(&opts.AliasCase, "alias-case", "preserve", "Case of the AS keyword: preserve, upper, lower")

	_ = cmd.RegisterFlagCompletionFunc("alias-case", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"preserve", "upper", "lower"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func parseAliasCase(s string) (visitor.AliasCase, error) {
	switch s {
	case "", "preserve":
		return visitor.AliasPreserve, nil
	case "upper":
		return visitor.AliasUpper, nil
	case "lower":
		return visitor.AliasLower, nil
	}
	return 0, fmt.Errorf("invalid alias case %q (want preserve, upper or lower)", s)
}

func runRegen(cmd *cobra.Command, args []string, opts *RegenOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	aliasCase, err := parseAliasCase(opts.AliasCase)
	if err != nil {
		return err
	}
	regen := visitor.Options{InsertAS: opts.InsertAS, AliasCase: aliasCase}

	inputs, err := readInputs(cmd, args, opts.SQL)
	if err != nil {
		return err
	}
	c, cleanup, err := cmdCtx.OpenCache("regen")
	if err != nil {
		return err
	}
	defer cleanup()

	var results []output.RegenOutput
	failed := 0
	for _, in := range inputs {
		e, err := c.Get(cmd.Context(), in.SQL)
		if err != nil {
			return err
		}
		res := output.RegenOutput{Source: in.Name, Fault: output.NewFault(e.Err)}
		if e.Err != nil {
			failed++
			renderFault(r, in.Name, e.Err)
		} else {
			res.SQL = regenerated(e, regen)
			if !r.Structured() {
				renderSQL(r, in.Name, len(inputs) > 1, res.SQL)
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

// regenerated returns the cached text when it was produced with the
// default options.
func regenerated(e *cache.Entry, opts visitor.Options) string {
	if !opts.InsertAS && opts.AliasCase == visitor.AliasPreserve {
		return e.Regenerated
	}
	return visitor.Regenerate(e.Tree, opts)
}

// renderSQL writes SQL as plain text on a terminal and as a code block
// in Markdown.
func renderSQL(r *output.Renderer, name string, titled bool, sql string) {
	if r.EffectiveMode() == output.ModeMarkdown {
		if titled {
			r.Header(2, name)
		}
		r.Println(output.FormatCodeBlock("sql", sql))
		return
	}
	if titled {
		r.Println(r.Styles().Muted.Render("-- " + name))
	}
	r.Println(sql)
}

// structureOne writes a single record bare and several as a list.
func structureOne[T any](r *output.Renderer, results []T) error {
	if len(results) == 1 {
		return r.Structure(results[0])
	}
	return r.Structure(results)
}
