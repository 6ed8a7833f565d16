package lsp

import (
	"context"
	"errors"
	"strings"

	"github.com/leapstack-labs/sqlscope/pkg/parser"
)

// handleCodeAction handles the textDocument/codeAction request.
func (s *Server) handleCodeAction(ctx context.Context, msg *JSONRPCMessage) error {
	var params CodeActionParams
	if err := s.decodeParams(msg, &params); err != nil {
		return err
	}

	s.sendResponse(msg.ID, s.getCodeActions(ctx, params), nil)
	return nil
}

// getCodeActions offers fixes for the document's current parse fault.
// Fixes are derived from a fresh analysis, not from the diagnostics the
// client sends back, so they always match the current text.
func (s *Server) getCodeActions(ctx context.Context, params CodeActionParams) []CodeAction {
	actions := []CodeAction{}

	if len(params.Context.Only) > 0 && !containsKind(params.Context.Only, CodeActionKindQuickFix) {
		return actions
	}
	doc := s.documents.Get(params.TextDocument.URI)
	if doc == nil {
		return actions
	}
	e, ok := s.analyze(ctx, doc)
	if !ok || e.Err == nil {
		return actions
	}

	var paren *parser.UnmatchedParenError
	if !errors.As(e.Err, &paren) {
		return actions
	}
	diag := faultDiagnostic(doc, e.Err)

	var edit TextEdit
	var title string
	if paren.Open {
		title = "Insert missing )"
		at := closingOffset(doc.Content)
		edit = TextEdit{Range: doc.SpanRange(at, 0), NewText: ")"}
	} else {
		title = "Remove unmatched )"
		edit = TextEdit{Range: doc.SpanRange(paren.Pos.Offset, 1)}
	}

	return append(actions, CodeAction{
		Title:       title,
		Kind:        CodeActionKindQuickFix,
		Diagnostics: []Diagnostic{diag},
		IsPreferred: true,
		Edit: &WorkspaceEdit{
			Changes: map[string][]TextEdit{doc.URI: {edit}},
		},
	})
}

// closingOffset is where a missing close paren goes: after the last
// non-blank text, before a trailing statement separator.
func closingOffset(content string) int {
	trimmed := strings.TrimRight(content, " \t\r\n")
	trimmed = strings.TrimSuffix(trimmed, ";")
	return len(strings.TrimRight(trimmed, " \t\r\n"))
}

func containsKind(kinds []CodeActionKind, want CodeActionKind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
