package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/pkg/lexer"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// TokensOptions holds options for the tokens command.
type TokensOptions struct {
	SQL          string
	SkipComments bool
}

// NewTokensCommand creates the tokens command.
func NewTokensCommand() *cobra.Command {
	opts := &TokensOptions{}

	cmd := &cobra.Command{
		Use:   "tokens [file...]",
		Short: "Print the token stream of SQL",
		Long: `Tokenize SQL and print every token with its kind, subkind, text and
line:column position. Compound keywords such as GROUP BY are single tokens.`,
		Example: `  sqlscope tokens -e "SELECT a FROM t GROUP BY a"
  sqlscope tokens --skip-comments --output json query.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokens(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.SQL, "execute", "e", "", "SQL text to tokenize instead of files")
	cmd.Flags().BoolVar(&opts.SkipComments, "skip-comments", false, "Leave comments out of the listing")

	return cmd
}

func tokenInfos(toks []token.Token, skipComments bool) []output.TokenInfo {
	infos := make([]output.TokenInfo, 0, len(toks))
	for _, tok := range toks {
		if tok.Kind == token.EOF || (skipComments && tok.Kind == token.Comment) {
			continue
		}
		info := output.TokenInfo{
			Kind:   tok.Kind.String(),
			Text:   tok.Raw,
			Line:   tok.Pos.Line,
			Column: tok.Pos.Column,
			Offset: tok.Pos.Offset,
		}
		if tok.Subkind != token.None {
			info.Subkind = tok.Subkind.String()
		}
		if tok.Norm != tok.Raw {
			info.Norm = tok.Norm
		}
		infos = append(infos, info)
	}
	return infos
}

func runTokens(cmd *cobra.Command, args []string, opts *TokensOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	inputs, err := readInputs(cmd, args, opts.SQL)
	if err != nil {
		return err
	}

	var results []output.TokensOutput
	failed := 0
	for _, in := range inputs {
		toks, err := lexer.Tokenize(in.SQL, cmdCtx.Rule)
		res := output.TokensOutput{Source: in.Name, Tokens: tokenInfos(toks, opts.SkipComments), Fault: output.NewFault(err)}
		if err != nil {
			failed++
			renderFault(r, in.Name, err)
		}
		if !r.Structured() {
			if len(inputs) > 1 {
				r.Header(2, in.Name)
			}
			rows := make([][]any, len(res.Tokens))
			for i, t := range res.Tokens {
				rows[i] = []any{t.Kind, t.Subkind, fmt.Sprintf("%q", t.Text), fmt.Sprintf("%d:%d", t.Line, t.Column)}
			}
			r.Table([]string{"Kind", "Subkind", "Text", "Pos"}, rows)
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
