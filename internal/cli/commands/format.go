package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/pkg/format"
)

// FormatOptions holds options for the format and unformat commands.
type FormatOptions struct {
	SQL   string
	Write bool
	Check bool
}

// errNeedsFormatting is returned by --check when an input would change.
var errNeedsFormatting = errors.New("some inputs are not formatted")

// addFormatFlags registers the formatter rule flags. Their values reach
// the command through the loaded configuration.
func addFormatFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("keyword-case", "", "Keyword case: upper, lower, capitalize, none")
	f.String("name-case", "", "Identifier case: upper, lower, capitalize, none")
	f.String("indent", "", "Indent unit, e.g. four spaces or a tab")
	f.Int("width", 0, "Line width used with --word-break")
	f.Bool("word-break", false, "Break long lines at operators")
	f.String("newline", "", "Line ending: lf, cr, crlf")
	f.String("separator", "", "Statement separator: none, semicolon, slash")
	f.Bool("comma-first", false, "Put commas at the start of continuation lines")
	f.Bool("strip", false, "Remove comments")

	caseValues := func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"upper", "lower", "capitalize", "none"}, cobra.ShellCompDirectiveNoFileComp
	}
	_ = cmd.RegisterFlagCompletionFunc("keyword-case", caseValues)
	_ = cmd.RegisterFlagCompletionFunc("name-case", caseValues)
	_ = cmd.RegisterFlagCompletionFunc("newline", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"lf", "cr", "crlf"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("separator", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"none", "semicolon", "slash"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// NewFormatCommand creates the format command.
func NewFormatCommand() *cobra.Command {
	opts := &FormatOptions{}

	cmd := &cobra.Command{
		Use:     "format [file...]",
		Aliases: []string{"fmt"},
		Short:   "Pretty-print SQL",
		Long: `Reformat SQL with clause-aware line breaks and indentation.

Formatting works on the token stream, so incomplete statements are
formatted too. The rule comes from the format section of sqlscope.yaml,
SQLSCOPE_FORMAT__* variables and the flags below, in increasing priority.

Files are formatted concurrently. With --write the result replaces each
file; with --check nothing is written and the command fails when any file
would change.`,
		Example: `  # Format to stdout
  sqlscope format query.sql

  # Rewrite files in place with lower-case keywords
  sqlscope format -w --keyword-case lower models/*.sql

  # CI check
  sqlscope format --check models/*.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, args, opts, false)
		},
	}

	cmd.Flags().StringVarP(&opts.SQL, "execute", "e", "", "SQL text to format instead of files")
	cmd.Flags().BoolVarP(&opts.Write, "write", "w", false, "Write the result back to each file")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "Fail when any input is not formatted")
	addFormatFlags(cmd)

	return cmd
}

// NewUnformatCommand creates the unformat command.
func NewUnformatCommand() *cobra.Command {
	opts := &FormatOptions{}

	cmd := &cobra.Command{
		Use:   "unformat [file...]",
		Short: "Collapse SQL onto a single line",
		Long: `Collapse SQL onto one line with single spaces between tokens.

Keyword and identifier case conversion still applies. Line comments end
the line they are on, so a statement containing them keeps those breaks.`,
		Example: `  sqlscope unformat query.sql
  sqlscope unformat -e "SELECT a,
    b FROM t"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, args, opts, true)
		},
	}

	cmd.Flags().StringVarP(&opts.SQL, "execute", "e", "", "SQL text to unformat instead of files")
	cmd.Flags().BoolVarP(&opts.Write, "write", "w", false, "Write the result back to each file")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "Fail when any input would change")
	addFormatFlags(cmd)

	return cmd
}

// formatAll runs the formatter over inputs concurrently. Results keep the
// input order.
func formatAll(ctx context.Context, rule format.Rule, cmdCtx *CommandContext, inputs []input, unformat bool) ([]output.FormatResult, error) {
	results := make([]output.FormatResult, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f := format.New(rule, cmdCtx.Rule)
			var out string
			var err error
			if unformat {
				out, err = f.Unformat(in.SQL)
			} else {
				out, err = f.Format(in.SQL)
			}
			res := output.FormatResult{Source: in.Name, Fault: output.NewFault(err)}
			if err == nil {
				res.Output = out
				res.Changed = out != in.SQL
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runFormat(cmd *cobra.Command, args []string, opts *FormatOptions, unformat bool) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	logger := cmdCtx.Logger

	if opts.Write && opts.SQL != "" {
		return fmt.Errorf("--write needs files, not --execute")
	}

	inputs, err := readInputs(cmd, args, opts.SQL)
	if err != nil {
		return err
	}
	results, err := formatAll(cmd.Context(), cmdCtx.Cfg.Format, cmdCtx, inputs, unformat)
	if err != nil {
		return err
	}

	failed, changed := 0, 0
	for i, res := range results {
		in := inputs[i]
		if res.Fault != nil {
			failed++
			r.Error(fmt.Sprintf("%s: %s", in.Name, res.Fault.Message))
			continue
		}
		if res.Changed {
			changed++
		}

		switch {
		case opts.Check:
			if res.Changed && !r.Structured() {
				r.StatusLine(in.Name, "warning", "would change")
			}
		case opts.Write:
			if in.Name == "<stdin>" {
				return fmt.Errorf("--write needs files, not stdin")
			}
			if res.Changed {
				if err := writeFile(in.Name, res.Output); err != nil {
					return err
				}
				logger.Info("formatted file", "path", in.Name)
			}
			if !r.Structured() {
				status := "ok"
				if res.Changed {
					status = "success"
				}
				r.StatusLine(in.Name, status, "")
			}
		default:
			if !r.Structured() {
				renderFormatted(r, in.Name, len(inputs) > 1, res.Output)
			}
		}
	}

	if r.Structured() {
		if err := structureOne(r, results); err != nil {
			return err
		}
	}
	if err := faultError(failed, len(inputs)); err != nil {
		return err
	}
	if opts.Check && changed > 0 {
		return fmt.Errorf("%w: %d of %d", errNeedsFormatting, changed, len(inputs))
	}
	return nil
}

// renderFormatted writes formatter output verbatim on a terminal, since
// its line breaks are the result.
func renderFormatted(r *output.Renderer, name string, titled bool, sql string) {
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
	r.Printf("%s", sql)
}

// writeFile replaces path's content, keeping its permissions.
func writeFile(path, content string) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
