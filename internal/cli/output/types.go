package output

import (
	"errors"

	"github.com/leapstack-labs/sqlscope/pkg/format"
	"github.com/leapstack-labs/sqlscope/pkg/lexer"
	"github.com/leapstack-labs/sqlscope/pkg/parser"
	"github.com/leapstack-labs/sqlscope/pkg/visitor"
)

// Fault describes a parse or format failure for output.
type Fault struct {
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
	Line    int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column  int    `json:"column,omitempty" yaml:"column,omitempty"`
	Offset  int    `json:"offset" yaml:"offset"`
	Length  int    `json:"length" yaml:"length"`
}

// NewFault describes err, or returns nil when err is nil.
func NewFault(err error) *Fault {
	if err == nil {
		return nil
	}
	f := &Fault{Kind: faultKind(err), Message: err.Error()}
	var located parser.Fault
	if errors.As(err, &located) {
		pos, length := located.Span()
		f.Line = pos.Line
		f.Column = pos.Column
		f.Offset = pos.Offset
		f.Length = length
	}
	return f
}

func faultKind(err error) string {
	var (
		lexErr     *lexer.LexError
		unexpected *parser.UnexpectedTokenError
		unmatched  *parser.UnmatchedParenError
		guard      *parser.LoopGuardError
		fmtErr     *format.FormatError
	)
	switch {
	case errors.As(err, &lexErr):
		return "lexical"
	case errors.As(err, &unexpected):
		return "unexpected_token"
	case errors.As(err, &unmatched):
		return "unmatched_paren"
	case errors.As(err, &guard):
		return "loop_guard"
	case errors.As(err, &fmtErr):
		return "format"
	case errors.Is(err, parser.ErrCanceled):
		return "canceled"
	}
	return "error"
}

// ParseOutput is the output record of the parse command.
type ParseOutput struct {
	Source     string            `json:"source" yaml:"source"`
	Statements int               `json:"statements" yaml:"statements"`
	Nodes      int               `json:"nodes" yaml:"nodes"`
	Tree       *visitor.DumpNode `json:"tree,omitempty" yaml:"tree,omitempty"`
	At         *visitor.Location `json:"at,omitempty" yaml:"at,omitempty"`
	Fault      *Fault            `json:"fault,omitempty" yaml:"fault,omitempty"`
}

// RegenOutput is the output record of the regen command.
type RegenOutput struct {
	Source string `json:"source" yaml:"source"`
	SQL    string `json:"sql,omitempty" yaml:"sql,omitempty"`
	Fault  *Fault `json:"fault,omitempty" yaml:"fault,omitempty"`
}

// ParamsOutput is the output record of the params command.
type ParamsOutput struct {
	Source     string          `json:"source" yaml:"source"`
	Params     []visitor.Param `json:"params" yaml:"params"`
	Positional string          `json:"positional,omitempty" yaml:"positional,omitempty"`
	Bind       []string        `json:"bind,omitempty" yaml:"bind,omitempty"`
	Fault      *Fault          `json:"fault,omitempty" yaml:"fault,omitempty"`
}

// TokenInfo is one row of the tokens command.
type TokenInfo struct {
	Kind    string `json:"kind" yaml:"kind"`
	Subkind string `json:"subkind,omitempty" yaml:"subkind,omitempty"`
	Text    string `json:"text" yaml:"text"`
	Norm    string `json:"norm,omitempty" yaml:"norm,omitempty"`
	Line    int    `json:"line" yaml:"line"`
	Column  int    `json:"column" yaml:"column"`
	Offset  int    `json:"offset" yaml:"offset"`
}

// TokensOutput is the output record of the tokens command.
type TokensOutput struct {
	Source string      `json:"source" yaml:"source"`
	Tokens []TokenInfo `json:"tokens" yaml:"tokens"`
	Fault  *Fault      `json:"fault,omitempty" yaml:"fault,omitempty"`
}

// FormatResult is the per-input record of the format and unformat
// commands.
type FormatResult struct {
	Source  string `json:"source" yaml:"source"`
	Output  string `json:"output,omitempty" yaml:"output,omitempty"`
	Changed bool   `json:"changed" yaml:"changed"`
	Fault   *Fault `json:"fault,omitempty" yaml:"fault,omitempty"`
}

// VersionOutput is the output record of the version command.
type VersionOutput struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}
