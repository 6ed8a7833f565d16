package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/leapstack-labs/sqlscope/internal/cache"
	"github.com/leapstack-labs/sqlscope/internal/cli/output"
	"github.com/leapstack-labs/sqlscope/pkg/format"
	"github.com/leapstack-labs/sqlscope/pkg/visitor"
)

// ParseRequest is the body of POST /v1/parse.
type ParseRequest struct {
	SQL string `json:"sql"`
	// At, when set, asks for the node at this byte offset.
	At *int `json:"at,omitempty"`
}

// ParseResponse is the body returned by POST /v1/parse.
type ParseResponse struct {
	Statements  int               `json:"statements"`
	Nodes       int               `json:"nodes"`
	Regenerated string            `json:"regenerated,omitempty"`
	Tree        *visitor.DumpNode `json:"tree,omitempty"`
	At          *visitor.Location `json:"at,omitempty"`
	Fault       *output.Fault     `json:"fault,omitempty"`
}

// FormatRequest is the body of POST /v1/format and /v1/unformat.
type FormatRequest struct {
	SQL string `json:"sql"`
	// Rule holds rule fields that override the server's format rule,
	// e.g. {"convert_keyword": "lower"}.
	Rule json.RawMessage `json:"rule,omitempty"`
}

// FormatResponse is the body returned by the format endpoints.
type FormatResponse struct {
	SQL     string        `json:"sql,omitempty"`
	Changed bool          `json:"changed"`
	Fault   *output.Fault `json:"fault,omitempty"`
}

// ParamsRequest is the body of POST /v1/params.
type ParamsRequest struct {
	SQL string `json:"sql"`
	// Style is "question" or "dollar" to rewrite with positional markers.
	Style string `json:"style,omitempty"`
	// Args is a JSON object or array checked against the parameters.
	Args json.RawMessage `json:"args,omitempty"`
}

// ParamsResponse is the body returned by POST /v1/params.
type ParamsResponse struct {
	Params     []visitor.Param `json:"params"`
	Positional string          `json:"positional,omitempty"`
	Bind       []string        `json:"bind,omitempty"`
	Fault      *output.Fault   `json:"fault,omitempty"`
}

// errorResponse is the body of every non-2xx response that is not a
// SQL fault.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a JSON body into v, writing the error response itself
// when it fails.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// faultStatus is the status for a response carrying a SQL fault.
func faultStatus(f *output.Fault) int {
	if f == nil {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

// entry parses sql through the cache, writing the error response itself
// when the request was canceled.
func (s *Server) entry(w http.ResponseWriter, r *http.Request, sql string) (*cache.Entry, bool) {
	e, err := s.cache.Get(r.Context(), sql)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	return e, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !decode(w, r, &req) {
		return
	}
	e, ok := s.entry(w, r, req.SQL)
	if !ok {
		return
	}

	resp := ParseResponse{Fault: output.NewFault(e.Err)}
	if e.Err == nil {
		resp.Statements = len(e.Tree.Statements())
		resp.Nodes = e.Tree.Len()
		resp.Regenerated = e.Regenerated
		resp.Tree = visitor.Dump(e.Tree, e.Tree.Root)
		if req.At != nil {
			if loc, found := visitor.Locate(e.Tree, *req.At); found {
				resp.At = loc
			}
		}
	}
	writeJSON(w, faultStatus(resp.Fault), resp)
}

func (s *Server) handleFormat(unformat bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FormatRequest
		if !decode(w, r, &req) {
			return
		}
		rule := s.format
		if len(req.Rule) > 0 {
			if err := json.Unmarshal(req.Rule, &rule); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid rule: %v", err))
				return
			}
		}
		f := format.New(rule, s.rule)

		var out string
		var err error
		if unformat {
			out, err = f.Unformat(req.SQL)
		} else {
			out, err = f.Format(req.SQL)
		}
		resp := FormatResponse{Fault: output.NewFault(err)}
		if err == nil {
			resp.SQL = out
			resp.Changed = out != req.SQL
		}
		writeJSON(w, faultStatus(resp.Fault), resp)
	}
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var req ParamsRequest
	if !decode(w, r, &req) {
		return
	}
	var style visitor.PlaceholderStyle
	switch req.Style {
	case "":
	case "question":
		style = visitor.QuestionMark
	case "dollar":
		style = visitor.Dollar
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid style %q", req.Style))
		return
	}
	var args any
	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args, &args); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid args: %v", err))
			return
		}
		switch args.(type) {
		case map[string]any, []any:
		default:
			writeError(w, http.StatusBadRequest, "invalid args: want a JSON object or array")
			return
		}
	}

	e, ok := s.entry(w, r, req.SQL)
	if !ok {
		return
	}
	resp := ParamsResponse{Params: []visitor.Param{}, Fault: output.NewFault(e.Err)}
	if e.Err == nil {
		if len(e.Params) > 0 {
			resp.Params = e.Params
		}
		if req.Style != "" {
			resp.Positional, resp.Bind = visitor.Positional(e.Tree, style)
		}
		if args != nil {
			if err := visitor.ValidateArgs(e.Params, args); err != nil {
				resp.Fault = output.NewFault(err)
			}
		}
	}
	writeJSON(w, faultStatus(resp.Fault), resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

// handleEvents streams watcher events as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.watchDir == "" {
		writeError(w, http.StatusNotFound, "no watch directory configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: format\ndata: %s\n\n", b)
			flusher.Flush()
		}
	}
}
