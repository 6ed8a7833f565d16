// Package format provides SQL statement formatting.
//
// Formatting works on the token stream, not the syntax tree, so it accepts
// any input the tokenizer accepts, including statements the parser would
// reject. Layout depends only on the tokens and two facts taken from the
// input: blank lines between tokens and whether a name touches the "(" that
// follows it. Formatting already formatted text is therefore a no-op.
package format

import (
	"fmt"

	"github.com/leapstack-labs/sqlscope/pkg/lexer"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// FormatError wraps an unexpected internal failure of the formatter.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return "format: " + e.Err.Error()
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Formatter formats SQL text with a fixed rule.
type Formatter struct {
	rule   Rule
	tokens *token.Rule
}

// New creates a Formatter. A nil tokens rule means token.DefaultRule().
func New(rule Rule, tokens *token.Rule) *Formatter {
	if tokens == nil {
		tokens = token.DefaultRule()
	}
	if rule.IndentString == "" {
		rule.IndentString = DefaultRule().IndentString
	}
	return &Formatter{rule: rule, tokens: tokens}
}

// Rule returns the formatter's rule.
func (f *Formatter) Rule() Rule {
	return f.rule
}

// Format lays sql out over multiple indented lines.
func Format(sql string, rule Rule) (string, error) {
	return New(rule, nil).Format(sql)
}

// Unformat compacts sql onto as few lines as possible.
func Unformat(sql string, rule Rule) (string, error) {
	return New(rule, nil).Unformat(sql)
}

// Format lays sql out over multiple indented lines. Lexical faults are
// returned as *lexer.LexError.
func (f *Formatter) Format(sql string) (string, error) {
	return f.run(sql, false)
}

// Unformat compacts sql: one space at most between tokens and no line
// breaks except after line comments and around "/" separators.
func (f *Formatter) Unformat(sql string) (string, error) {
	return f.run(sql, true)
}

func (f *Formatter) run(sql string, compact bool) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FormatError{Err: fmt.Errorf("%v", r)}
		}
	}()

	toks, err := lexer.Tokenize(sql, f.tokens)
	if err != nil {
		return "", err
	}
	p := newPrinter(f.rule, f.tokens, compact)
	p.run(sql, toks)
	return p.String(), nil
}
