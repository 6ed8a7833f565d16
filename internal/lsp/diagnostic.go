package lsp

import (
	"context"
	"errors"
	"strings"

	"github.com/leapstack-labs/sqlscope/internal/cache"
	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/pkg/parser"
	"github.com/leapstack-labs/sqlscope/pkg/visitor"
)

const diagnosticSource = "sqlscope"

// Diagnostic codes that are not parse fault kinds.
const codeMixedParams = "mixed_params"

// analyze parses the document through the shared cache.
func (s *Server) analyze(ctx context.Context, doc *Document) (*cache.Entry, bool) {
	e, err := s.cache.Get(ctx, doc.Content)
	if err != nil {
		s.logger.Debug("parse canceled", "uri", doc.URI, "error", err)
		return nil, false
	}
	return e, true
}

// publishDiagnostics parses the document and publishes its diagnostics.
func (s *Server) publishDiagnostics(ctx context.Context, uri string) {
	doc := s.documents.Get(uri)
	if doc == nil {
		return
	}

	s.sendNotification("textDocument/publishDiagnostics", &PublishDiagnosticsParams{
		URI:         uri,
		Version:     doc.Version,
		Diagnostics: s.diagnose(ctx, doc),
	})
}

// diagnose returns the diagnostics for doc, never nil.
func (s *Server) diagnose(ctx context.Context, doc *Document) []Diagnostic {
	diagnostics := []Diagnostic{}

	e, ok := s.analyze(ctx, doc)
	if !ok {
		return diagnostics
	}
	if e.Err != nil {
		return append(diagnostics, faultDiagnostic(doc, e.Err))
	}
	return append(diagnostics, paramDiagnostics(doc, e.Params)...)
}

// faultDiagnostic converts a parse fault to an error diagnostic covering
// the offending text.
func faultDiagnostic(doc *Document, err error) Diagnostic {
	d := Diagnostic{
		Severity: DiagnosticSeverityError,
		Code:     output.NewFault(err).Kind,
		Source:   diagnosticSource,
		Message:  faultMessage(err),
	}
	var located parser.Fault
	if errors.As(err, &located) {
		pos, length := located.Span()
		d.Range = doc.SpanRange(pos.Offset, length)
	}
	return d
}

// faultMessage drops the "... at line L, column C: " prefix, which the
// diagnostic range already conveys.
func faultMessage(err error) string {
	msg := err.Error()
	if strings.Contains(msg, " at line ") {
		if _, rest, ok := strings.Cut(msg, ": "); ok {
			return rest
		}
	}
	return msg
}

// paramDiagnostics warns about parameters whose style differs from the
// first parameter's, since a statement binds either by name or by position.
func paramDiagnostics(doc *Document, params []visitor.Param) []Diagnostic {
	if len(params) < 2 {
		return nil
	}
	first := params[0].Positional
	var diagnostics []Diagnostic
	for _, p := range params[1:] {
		if p.Positional == first {
			continue
		}
		msg := "named parameter in a statement that binds by position"
		if p.Positional {
			msg = "positional parameter in a statement that binds by name"
		}
		diagnostics = append(diagnostics, Diagnostic{
			Range:    doc.SpanRange(p.Offset, p.Length),
			Severity: DiagnosticSeverityWarning,
			Code:     codeMixedParams,
			Source:   diagnosticSource,
			Message:  msg,
		})
	}
	return diagnostics
}
