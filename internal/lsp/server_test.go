package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlscope/internal/testutil"
	"github.com/leapstack-labs/sqlscope/pkg/format"
)

// session scripts client messages and collects the server's replies.
type session struct {
	t      *testing.T
	in     bytes.Buffer
	nextID int
}

func newSession(t *testing.T) *session {
	t.Helper()
	s := &session{t: t}
	s.request("initialize", InitializeParams{RootURI: "file:///work"})
	s.notify("initialized", struct{}{})
	return s
}

func (s *session) write(msg map[string]any) {
	body, err := json.Marshal(msg)
	require.NoError(s.t, err)
	_, _ = fmt.Fprintf(&s.in, "Content-Length: %d\r\n\r\n%s", len(body), body)
}

func (s *session) request(method string, params any) int {
	s.nextID++
	s.write(map[string]any{"jsonrpc": "2.0", "id": s.nextID, "method": method, "params": params})
	return s.nextID
}

func (s *session) notify(method string, params any) {
	s.write(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

func (s *session) open(uri, text string) {
	s.notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: "sql", Version: 1, Text: text},
	})
}

// run ends the session with shutdown and exit, runs the server and
// returns its replies.
func (s *session) run() []JSONRPCMessage {
	s.request("shutdown", nil)
	s.notify("exit", nil)

	var out bytes.Buffer
	srv := NewServer(&s.in, &out, Options{
		Format: format.DefaultRule(),
		Logger: testutil.NewTestLogger(s.t),
	})
	require.NoError(s.t, srv.Run(context.Background()))
	return readMessages(s.t, &out)
}

func readMessages(t *testing.T, r io.Reader) []JSONRPCMessage {
	t.Helper()
	br := bufio.NewReader(r)
	var msgs []JSONRPCMessage
	for {
		line, err := br.ReadString('\n')
		if err == io.EOF {
			return msgs
		}
		require.NoError(t, err)
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:")))
		require.NoError(t, err)
		_, err = br.ReadString('\n')
		require.NoError(t, err)
		body := make([]byte, n)
		_, err = io.ReadFull(br, body)
		require.NoError(t, err)
		var msg JSONRPCMessage
		require.NoError(t, json.Unmarshal(body, &msg))
		msgs = append(msgs, msg)
	}
}

func response(t *testing.T, msgs []JSONRPCMessage, id int, v any) *JSONRPCError {
	t.Helper()
	for _, m := range msgs {
		if m.ID == nil || m.Method != "" {
			continue
		}
		var got int
		require.NoError(t, json.Unmarshal(*m.ID, &got))
		if got != id {
			continue
		}
		if m.Error != nil {
			return m.Error
		}
		if v != nil {
			require.NoError(t, json.Unmarshal(m.Result, v))
		}
		return nil
	}
	t.Fatalf("no response for request %d", id)
	return nil
}

func diagnosticsFor(t *testing.T, msgs []JSONRPCMessage, uri string) [][]Diagnostic {
	t.Helper()
	var all [][]Diagnostic
	for _, m := range msgs {
		if m.Method != "textDocument/publishDiagnostics" {
			continue
		}
		var p PublishDiagnosticsParams
		require.NoError(t, json.Unmarshal(m.Params, &p))
		if p.URI == uri {
			all = append(all, p.Diagnostics)
		}
	}
	return all
}

func TestInitialize(t *testing.T) {
	s := newSession(t)
	msgs := s.run()

	var result InitializeResult
	require.Nil(t, response(t, msgs, 1, &result))
	caps := result.Capabilities
	assert.True(t, caps.HoverProvider)
	assert.True(t, caps.DocumentFormattingProvider)
	require.NotNil(t, caps.TextDocumentSync)
	assert.Equal(t, TextDocumentSyncKindFull, caps.TextDocumentSync.Change)
	require.NotNil(t, result.ServerInfo)
	assert.Equal(t, "sqlscope", result.ServerInfo.Name)
}

func TestRequestBeforeInitialize(t *testing.T) {
	var in, out bytes.Buffer
	body := `{"jsonrpc":"2.0","id":7,"method":"textDocument/hover","params":{}}`
	_, _ = fmt.Fprintf(&in, "Content-Length: %d\r\n\r\n%s", len(body), body)

	srv := NewServer(&in, &out, Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, srv.Run(context.Background()))

	rpcErr := response(t, readMessages(t, &out), 7, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeNotInitialized, rpcErr.Code)
}

func TestExitWithoutShutdown(t *testing.T) {
	var in, out bytes.Buffer
	body := `{"jsonrpc":"2.0","method":"exit"}`
	_, _ = fmt.Fprintf(&in, "Content-Length: %d\r\n\r\n%s", len(body), body)

	srv := NewServer(&in, &out, Options{})
	assert.ErrorIs(t, srv.Run(context.Background()), ErrExitWithoutShutdown)
}

func TestUnknownMethod(t *testing.T) {
	s := newSession(t)
	id := s.request("workspace/symbol", map[string]any{"query": "x"})
	msgs := s.run()

	rpcErr := response(t, msgs, id, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, codeMethodNotFound, rpcErr.Code)
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantCode  string
		wantSev   DiagnosticSeverity
		wantRange Range
	}{
		{
			name:      "unclosed paren",
			text:      "SELECT a FROM t WHERE (a = 1",
			wantCode:  "unmatched_paren",
			wantSev:   DiagnosticSeverityError,
			wantRange: Range{Start: Position{0, 22}, End: Position{0, 23}},
		},
		{
			name:      "stray close paren on second line",
			text:      "SELECT a\nFROM t)",
			wantCode:  "unmatched_paren",
			wantSev:   DiagnosticSeverityError,
			wantRange: Range{Start: Position{1, 6}, End: Position{1, 7}},
		},
		{
			name:     "unterminated string",
			text:     "SELECT 'abc FROM t",
			wantCode: "lexical",
			wantSev:  DiagnosticSeverityError,
		},
		{
			name:      "mixed parameters",
			text:      "SELECT a FROM t WHERE a = :a AND b = ?",
			wantCode:  codeMixedParams,
			wantSev:   DiagnosticSeverityWarning,
			wantRange: Range{Start: Position{0, 37}, End: Position{0, 38}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t)
			s.open("file:///q.sql", tt.text)
			msgs := s.run()

			published := diagnosticsFor(t, msgs, "file:///q.sql")
			require.Len(t, published, 1)
			require.Len(t, published[0], 1)
			d := published[0][0]
			assert.Equal(t, tt.wantCode, d.Code)
			assert.Equal(t, tt.wantSev, d.Severity)
			assert.Equal(t, diagnosticSource, d.Source)
			assert.NotContains(t, d.Message, "at line")
			if tt.wantRange != (Range{}) {
				assert.Equal(t, tt.wantRange, d.Range)
			}
		})
	}
}

func TestDiagnostics_ChangeAndClose(t *testing.T) {
	s := newSession(t)
	s.open("file:///q.sql", "SELECT a FROM t WHERE")
	s.notify("textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{TextDocumentIdentifier{URI: "file:///q.sql"}, 2},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: "SELECT a FROM t WHERE a = 1"}},
	})
	s.notify("textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///q.sql"},
	})
	msgs := s.run()

	published := diagnosticsFor(t, msgs, "file:///q.sql")
	require.Len(t, published, 3)
	require.Len(t, published[0], 1)
	assert.Equal(t, "unexpected_token", published[0][0].Code)
	assert.Empty(t, published[1])
	assert.Empty(t, published[2])
}

func TestHover(t *testing.T) {
	s := newSession(t)
	s.open("file:///q.sql", "SELECT a + b AS total\nFROM t WHERE id = :id")
	onColumn := s.request("textDocument/hover", HoverParams{TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///q.sql"},
		Position:     Position{0, 7},
	}})
	onParam := s.request("textDocument/hover", HoverParams{TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///q.sql"},
		Position:     Position{1, 19},
	}})
	closed := s.request("textDocument/hover", HoverParams{TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///other.sql"},
	}})
	msgs := s.run()

	var h *Hover
	require.Nil(t, response(t, msgs, onColumn, &h))
	require.NotNil(t, h)
	assert.Equal(t, MarkupKindMarkdown, h.Contents.Kind)
	assert.Contains(t, h.Contents.Value, "**Column** `a`")
	assert.Contains(t, h.Contents.Value, "scope: `SELECT`")
	assert.Contains(t, h.Contents.Value, "Select")
	require.NotNil(t, h.Range)
	assert.Equal(t, Range{Start: Position{0, 7}, End: Position{0, 8}}, *h.Range)

	h = nil
	require.Nil(t, response(t, msgs, onParam, &h))
	require.NotNil(t, h)
	assert.Contains(t, h.Contents.Value, "BindParameter")
	assert.Contains(t, h.Contents.Value, "bind parameter 1 of 1 (named)")

	h = nil
	require.Nil(t, response(t, msgs, closed, &h))
	assert.Nil(t, h)
}

func TestFormatting(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		opts      FormattingOptions
		wantEdits int
		wantText  string
	}{
		{
			name:      "reformats with client indent",
			text:      "select a, b from t",
			opts:      FormattingOptions{TabSize: 2, InsertSpaces: true},
			wantEdits: 1,
			wantText:  "SELECT\n  a,\n  b\nFROM\n  t",
		},
		{
			name: "fault gives no edits",
			text: "SELECT 'abc FROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t)
			s.open("file:///q.sql", tt.text)
			id := s.request("textDocument/formatting", DocumentFormattingParams{
				TextDocument: TextDocumentIdentifier{URI: "file:///q.sql"},
				Options:      tt.opts,
			})
			msgs := s.run()

			var edits []TextEdit
			require.Nil(t, response(t, msgs, id, &edits))
			require.Len(t, edits, tt.wantEdits)
			if tt.wantEdits == 0 {
				return
			}
			assert.Equal(t, Range{End: Position{0, uint32(len(tt.text))}}, edits[0].Range)
			assert.Contains(t, edits[0].NewText, tt.wantText)
		})
	}
}

func TestFormatRule_ClientOptions(t *testing.T) {
	srv := NewServer(nil, io.Discard, Options{Format: format.DefaultRule()})

	assert.Equal(t, "    ", srv.formatRule(FormattingOptions{}).IndentString)
	assert.Equal(t, "  ", srv.formatRule(FormattingOptions{TabSize: 2, InsertSpaces: true}).IndentString)
	assert.Equal(t, "\t", srv.formatRule(FormattingOptions{TabSize: 4}).IndentString)
}

func TestCompletion(t *testing.T) {
	s := newSession(t)
	s.open("file:///q.sql", "SELECT customer_id, cu FROM customers WHERE co")
	names := s.request("textDocument/completion", CompletionParams{TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///q.sql"},
		Position:     Position{0, 22},
	}})
	funcs := s.request("textDocument/completion", CompletionParams{TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///q.sql"},
		Position:     Position{0, 46},
	}})
	msgs := s.run()

	labels := func(id int) []string {
		var list CompletionList
		require.Nil(t, response(t, msgs, id, &list))
		out := make([]string, 0, len(list.Items))
		for _, it := range list.Items {
			out = append(out, it.Label)
		}
		return out
	}

	got := labels(names)
	assert.Contains(t, got, "customer_id")
	assert.Contains(t, got, "customers")
	assert.NotContains(t, got, "cu", "the prefix itself is not offered")

	got = labels(funcs)
	assert.Contains(t, got, "COUNT")
	assert.Contains(t, got, "COALESCE")
	assert.NotContains(t, got, "customer_id")
	assert.NotContains(t, got, "SELECT")
}

func TestCodeActions(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantTitle string
		wantEdit  TextEdit
	}{
		{
			name:      "insert missing close paren",
			text:      "SELECT a FROM t WHERE (a = 1  \n",
			wantTitle: "Insert missing )",
			wantEdit:  TextEdit{Range: Range{Start: Position{0, 28}, End: Position{0, 28}}, NewText: ")"},
		},
		{
			name:      "remove stray close paren",
			text:      "SELECT a FROM t)",
			wantTitle: "Remove unmatched )",
			wantEdit:  TextEdit{Range: Range{Start: Position{0, 15}, End: Position{0, 16}}},
		},
		{
			name: "no fix for valid sql",
			text: "SELECT a FROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t)
			s.open("file:///q.sql", tt.text)
			id := s.request("textDocument/codeAction", CodeActionParams{
				TextDocument: TextDocumentIdentifier{URI: "file:///q.sql"},
			})
			msgs := s.run()

			var actions []CodeAction
			require.Nil(t, response(t, msgs, id, &actions))
			if tt.wantTitle == "" {
				assert.Empty(t, actions)
				return
			}
			require.Len(t, actions, 1)
			assert.Equal(t, tt.wantTitle, actions[0].Title)
			assert.Equal(t, CodeActionKindQuickFix, actions[0].Kind)
			require.NotNil(t, actions[0].Edit)
			assert.Equal(t, []TextEdit{tt.wantEdit}, actions[0].Edit.Changes["file:///q.sql"])
		})
	}
}

func TestClosingOffset(t *testing.T) {
	assert.Equal(t, 5, closingOffset("(a  b"))
	assert.Equal(t, 4, closingOffset("(a b ;  \n"))
	assert.Equal(t, 0, closingOffset(""))
}
