package parser

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/sqlscope/pkg/lexer"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

// Fault is implemented by every parse failure that points into the source.
// Lexical faults from the tokenizer implement it as well.
type Fault interface {
	error
	Span() (pos token.Position, length int)
}

// ErrCanceled is returned, wrapping the context error, when a parse is
// aborted through its context. The partial tree is discarded.
var ErrCanceled = errors.New("parse canceled")

// UnexpectedTokenError reports a token that does not fit the grammar state.
type UnexpectedTokenError struct {
	Pos      token.Position
	Length   int
	Text     string
	Expected string
}

func (e *UnexpectedTokenError) Error() string {
	found := fmt.Sprintf("%q", e.Text)
	if e.Text == "" {
		found = "end of input"
	}
	return fmt.Sprintf("parse error at line %d, column %d: unexpected %s, expected %s",
		e.Pos.Line, e.Pos.Column, found, e.Expected)
}

// Span implements Fault.
func (e *UnexpectedTokenError) Span() (token.Position, int) {
	return e.Pos, e.Length
}

// UnmatchedParenError reports a ")" with no open scope, or a "(" still open
// at end of input (Open is true).
type UnmatchedParenError struct {
	Pos  token.Position
	Open bool
}

func (e *UnmatchedParenError) Error() string {
	if e.Open {
		return fmt.Sprintf("parse error at line %d, column %d: unclosed parenthesis", e.Pos.Line, e.Pos.Column)
	}
	return fmt.Sprintf("parse error at line %d, column %d: unmatched closing parenthesis", e.Pos.Line, e.Pos.Column)
}

// Span implements Fault.
func (e *UnmatchedParenError) Span() (token.Position, int) {
	return e.Pos, 1
}

// LoopGuardError reports that the same token text was fetched more than
// MaxRepeat times in a row.
type LoopGuardError struct {
	Pos   token.Position
	Text  string
	Count int
}

func (e *LoopGuardError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: token %q repeated %d times, giving up",
		e.Pos.Line, e.Pos.Column, e.Text, e.Count)
}

// Span implements Fault.
func (e *LoopGuardError) Span() (token.Position, int) {
	return e.Pos, len(e.Text)
}

var (
	_ Fault = (*UnexpectedTokenError)(nil)
	_ Fault = (*UnmatchedParenError)(nil)
	_ Fault = (*LoopGuardError)(nil)
	_ Fault = (*lexer.LexError)(nil)
)
