package lsp

import (
	"strings"

	"github.com/leapstack-labs/sqlscope/pkg/format"
)

func (s *Server) handleFormatting(msg *JSONRPCMessage) error {
	var params DocumentFormattingParams
	if err := s.decodeParams(msg, &params); err != nil {
		return err
	}

	edits, err := s.getFormatting(params)
	if err != nil {
		// Unformattable text is reported through diagnostics; the
		// client just gets no edits.
		s.logger.Debug("format failed", "uri", params.TextDocument.URI, "error", err)
	}
	s.sendResponse(msg.ID, edits, nil)
	return nil
}

// getFormatting returns a single edit replacing the whole document with
// its formatted text, or no edits when nothing changes.
func (s *Server) getFormatting(params DocumentFormattingParams) ([]TextEdit, error) {
	edits := []TextEdit{}
	doc := s.documents.Get(params.TextDocument.URI)
	if doc == nil {
		return edits, nil
	}

	out, err := format.New(s.formatRule(params.Options), s.rule).Format(doc.Content)
	if err != nil {
		return edits, err
	}
	if out == doc.Content {
		return edits, nil
	}
	return append(edits, TextEdit{Range: doc.FullRange(), NewText: out}), nil
}

// formatRule applies the client's indentation preference to the
// configured rule.
func (s *Server) formatRule(opts FormattingOptions) format.Rule {
	rule := s.format
	switch {
	case opts.TabSize == 0:
	case opts.InsertSpaces:
		rule.IndentString = strings.Repeat(" ", int(opts.TabSize))
	default:
		rule.IndentString = "\t"
	}
	return rule
}
