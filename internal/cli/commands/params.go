package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/pkg/visitor"
)

// ParamsOptions holds options for the params command.
type ParamsOptions struct {
	SQL   string
	Style string
	Args  string
}

// NewParamsCommand creates the params command.
func NewParamsCommand() *cobra.Command {
	opts := &ParamsOptions{}

	cmd := &cobra.Command{
		Use:   "params [file...]",
		Short: "List bind parameters in source order",
		Long: `Parse SQL and list every bind parameter (:name, ?, ?1, $1) in the
order it appears in the source, with the grammar scope it occurs in.

With --style the statement is also rewritten with positional markers and
the parameter names are listed in binding order. With --args a JSON object
(named) or array (positional) of values is checked against the parameters.`,
		Example: `  # List parameters
  sqlscope params -e "UPDATE t SET x = :x WHERE id = :id"

  # Rewrite for a driver that takes $1, $2, ...
  sqlscope params --style dollar query.sql

  # Check a set of named values
  sqlscope params -e "SELECT * FROM t WHERE id = :id" --args '{"id": 1}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParams(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.SQL, "execute", "e", "", "SQL text to inspect instead of files")
	cmd.Flags().StringVar(&opts.Style, "style", "", "Rewrite with positional markers: question, dollar")
	cmd.Flags().StringVar(&opts.Args, "args", "", "JSON object or array of values to validate")

	_ = cmd.RegisterFlagCompletionFunc("style", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"question", "dollar"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func parseStyle(s string) (visitor.PlaceholderStyle, bool, error) {
	switch s {
	case "":
		return 0, false, nil
	case "question", "?":
		return visitor.QuestionMark, true, nil
	case "dollar", "$":
		return visitor.Dollar, true, nil
	}
	return 0, false, fmt.Errorf("invalid placeholder style %q (want question or dollar)", s)
}

// decodeArgs decodes a JSON object into a map and a JSON array into a
// slice, the two shapes ValidateArgs accepts.
func decodeArgs(s string) (any, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "{"):
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("invalid --args: %w", err)
		}
		return m, nil
	case strings.HasPrefix(s, "["):
		var a []any
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return nil, fmt.Errorf("invalid --args: %w", err)
		}
		return a, nil
	}
	return nil, fmt.Errorf("invalid --args: want a JSON object or array")
}

func runParams(cmd *cobra.Command, args []string, opts *ParamsOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	style, rewrite, err := parseStyle(opts.Style)
	if err != nil {
		return err
	}
	var values any
	if opts.Args != "" {
		if values, err = decodeArgs(opts.Args); err != nil {
			return err
		}
	}

	inputs, err := readInputs(cmd, args, opts.SQL)
	if err != nil {
		return err
	}
	c, cleanup, err := cmdCtx.OpenCache("params")
	if err != nil {
		return err
	}
	defer cleanup()

	var results []output.ParamsOutput
	failed := 0
	for _, in := range inputs {
		e, err := c.Get(cmd.Context(), in.SQL)
		if err != nil {
			return err
		}
		res := output.ParamsOutput{Source: in.Name, Params: e.Params, Fault: output.NewFault(e.Err)}
		if e.Err != nil {
			failed++
			renderFault(r, in.Name, e.Err)
			results = append(results, res)
			continue
		}
		if res.Params == nil {
			res.Params = []visitor.Param{}
		}
		if rewrite {
			res.Positional, res.Bind = visitor.Positional(e.Tree, style)
		}
		if values != nil {
			if err := visitor.ValidateArgs(e.Params, values); err != nil {
				failed++
				res.Fault = output.NewFault(err)
				r.Error(fmt.Sprintf("%s: %v", in.Name, err))
			}
		}
		if !r.Structured() {
			renderParams(r, in.Name, len(inputs) > 1, res)
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

func renderParams(r *output.Renderer, name string, titled bool, res output.ParamsOutput) {
	if titled {
		r.Header(2, name)
	}
	if len(res.Params) == 0 {
		r.Muted("(no bind parameters)")
	} else {
		rows := make([][]any, len(res.Params))
		for i, p := range res.Params {
			kind := "named"
			if p.Positional {
				kind = "positional"
			}
			rows[i] = []any{i + 1, p.Name, kind, p.Scope, p.Offset}
		}
		r.Table([]string{"#", "Name", "Kind", "Scope", "Offset"}, rows)
	}
	if res.Positional != "" {
		r.Println("")
		renderSQL(r, name, false, res.Positional)
		r.Println(output.FormatKeyValue("Bind order", strings.Join(res.Bind, ", ")))
	}
}
