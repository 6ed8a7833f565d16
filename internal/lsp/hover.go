package lsp

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/sqlscope/pkg/visitor"
)

func (s *Server) handleHover(ctx context.Context, msg *JSONRPCMessage) error {
	var params HoverParams
	if err := s.decodeParams(msg, &params); err != nil {
		return err
	}

	hover := s.getHover(ctx, params)
	s.sendResponse(msg.ID, hover, nil)
	return nil
}

// getHover describes the syntax node under the cursor: its kind, grammar
// scope and the statement and clause around it. It returns nil when the
// document does not parse or nothing is under the cursor.
func (s *Server) getHover(ctx context.Context, params HoverParams) *Hover {
	doc := s.documents.Get(params.TextDocument.URI)
	if doc == nil {
		return nil
	}
	e, ok := s.analyze(ctx, doc)
	if !ok || e.Err != nil {
		return nil
	}

	offset := doc.PositionToOffset(params.Position)
	loc, found := visitor.Locate(e.Tree, offset)
	if !found {
		return nil
	}

	rng := doc.SpanRange(loc.Offset, loc.Length)
	return &Hover{
		Contents: MarkupContent{
			Kind:  MarkupKindMarkdown,
			Value: hoverMarkdown(loc, e.Params),
		},
		Range: &rng,
	}
}

func hoverMarkdown(loc *visitor.Location, params []visitor.Param) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** `%s`\n\n", loc.Kind, loc.Text)
	fmt.Fprintf(&b, "- scope: `%s`\n", loc.Scope)
	if loc.Statement != "" {
		path := loc.Statement
		if loc.Clause != "" {
			path += " › " + loc.Clause
		}
		fmt.Fprintf(&b, "- in: %s\n", path)
	}
	if loc.Alias != "" {
		fmt.Fprintf(&b, "- alias: `%s`\n", loc.Alias)
	}
	for i, p := range params {
		if p.Offset != loc.Offset {
			continue
		}
		kind := "named"
		if p.Positional {
			kind = "positional"
		}
		fmt.Fprintf(&b, "- bind parameter %d of %d (%s)\n", i+1, len(params), kind)
		break
	}
	return b.String()
}
