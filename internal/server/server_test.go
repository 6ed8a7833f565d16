package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlscope/internal/testutil"
	"github.com/leapstack-labs/sqlscope/pkg/format"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(Config{
		Format: format.DefaultRule(),
		Logger: testutil.NewTestLogger(t),
	})
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		check      func(t *testing.T, resp ParseResponse)
	}{
		{
			name:       "select",
			body:       `{"sql": "SELECT a ,  b FROM t"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp ParseResponse) {
				assert.Equal(t, 1, resp.Statements)
				assert.Equal(t, "SELECT a, b FROM t", resp.Regenerated)
				require.NotNil(t, resp.Tree)
				assert.Nil(t, resp.Fault)
			},
		},
		{
			name:       "locate",
			body:       `{"sql": "SELECT a FROM t", "at": 7}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp ParseResponse) {
				require.NotNil(t, resp.At)
				assert.Equal(t, "a", resp.At.Text)
				assert.Equal(t, "Column", resp.At.Kind)
			},
		},
		{
			name:       "unmatched paren",
			body:       `{"sql": "SELECT a FROM t WHERE (a = 1"}`,
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, resp ParseResponse) {
				require.NotNil(t, resp.Fault)
				assert.Equal(t, "unmatched_paren", resp.Fault.Kind)
				assert.Equal(t, 22, resp.Fault.Offset)
				assert.Nil(t, resp.Tree)
			},
		},
		{
			name:       "unexpected token",
			body:       `{"sql": "FROB x"}`,
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, resp ParseResponse) {
				require.NotNil(t, resp.Fault)
				assert.Equal(t, "unexpected_token", resp.Fault.Kind)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t)
			rec := post(t, s.Handler(), "/v1/parse", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp ParseResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			tt.check(t, resp)
		})
	}
}

func TestParse_UsesCache(t *testing.T) {
	s := setupTestServer(t)
	h := s.Handler()

	for i := 0; i < 3; i++ {
		rec := post(t, h, "/v1/parse", `{"sql": "SELECT 1"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	st := s.cache.Stats()
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(2), st.Hits)
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		body        string
		contentType string
		wantStatus  int
	}{
		{"malformed json", "/v1/parse", `{"sql":`, "application/json", http.StatusBadRequest},
		{"unknown field", "/v1/parse", `{"query": "SELECT 1"}`, "application/json", http.StatusBadRequest},
		{"wrong content type", "/v1/parse", `{"sql": "SELECT 1"}`, "text/plain", http.StatusUnsupportedMediaType},
		{"bad style", "/v1/params", `{"sql": "SELECT 1", "style": "colon"}`, "application/json", http.StatusBadRequest},
		{"scalar args", "/v1/params", `{"sql": "SELECT 1", "args": 3}`, "application/json", http.StatusBadRequest},
		{"bad rule", "/v1/format", `{"sql": "SELECT 1", "rule": {"convert_keyword": "shout"}}`, "application/json", http.StatusBadRequest},
		{"too large", "/v1/format", `{"sql": "` + strings.Repeat("x", MaxBodyBytes) + `"}`, "application/json", http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t)
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		body        string
		wantStatus  int
		wantSQL     string
		wantChanged bool
	}{
		{
			name:        "format upper-cases keywords",
			path:        "/v1/format",
			body:        `{"sql": "select a from t"}`,
			wantStatus:  http.StatusOK,
			wantSQL:     "SELECT",
			wantChanged: true,
		},
		{
			name:        "rule override",
			path:        "/v1/format",
			body:        `{"sql": "SELECT a FROM t", "rule": {"convert_keyword": "lower"}}`,
			wantStatus:  http.StatusOK,
			wantSQL:     "select",
			wantChanged: true,
		},
		{
			name:        "unformat collapses lines",
			path:        "/v1/unformat",
			body:        `{"sql": "SELECT a,\n  b\nFROM t"}`,
			wantStatus:  http.StatusOK,
			wantSQL:     "SELECT a, b FROM t",
			wantChanged: true,
		},
		{
			name:       "lexical fault",
			path:       "/v1/format",
			body:       `{"sql": "SELECT 'abc FROM t"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t)
			rec := post(t, s.Handler(), tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp FormatResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			if tt.wantStatus != http.StatusOK {
				require.NotNil(t, resp.Fault)
				return
			}
			assert.Contains(t, resp.SQL, tt.wantSQL)
			assert.Equal(t, tt.wantChanged, resp.Changed)
		})
	}
}

func TestParams(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantNames  []string
		wantSQL    string
		wantBind   []string
	}{
		{
			name:       "named",
			body:       `{"sql": "UPDATE t SET x = :x WHERE id = :id"}`,
			wantStatus: http.StatusOK,
			wantNames:  []string{"x", "id"},
		},
		{
			name:       "dollar rewrite",
			body:       `{"sql": "SELECT * FROM t WHERE a = :a AND b = :b", "style": "dollar"}`,
			wantStatus: http.StatusOK,
			wantNames:  []string{"a", "b"},
			wantSQL:    "SELECT * FROM t WHERE a = $1 AND b = $2",
			wantBind:   []string{"a", "b"},
		},
		{
			name:       "args match",
			body:       `{"sql": "SELECT * FROM t WHERE id = :id", "args": {"id": 1}}`,
			wantStatus: http.StatusOK,
			wantNames:  []string{"id"},
		},
		{
			name:       "args missing",
			body:       `{"sql": "SELECT * FROM t WHERE id = :id", "args": {}}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantNames:  []string{"id"},
		},
		{
			name:       "no params",
			body:       `{"sql": "SELECT 1"}`,
			wantStatus: http.StatusOK,
			wantNames:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t)
			rec := post(t, s.Handler(), "/v1/params", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp ParamsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			names := make([]string, 0, len(resp.Params))
			for _, p := range resp.Params {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, tt.wantSQL, resp.Positional)
			assert.Equal(t, tt.wantBind, resp.Bind)
		})
	}
}

func TestEvents_NoWatchDir(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeListener_WatchAndShutdown(t *testing.T) {
	dir := t.TempDir()
	s := NewServer(Config{
		Format:   format.DefaultRule(),
		WatchDir: dir,
		Logger:   testutil.NewTestLogger(t),
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return s.Notifier().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Give the watcher time to register the directory before writing.
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(dir, "q.sql")
	require.NoError(t, os.WriteFile(path, []byte("select a from t"), 0o644))

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "data: ") {
				lines <- strings.TrimPrefix(sc.Text(), "data: ")
				return
			}
		}
	}()

	select {
	case line := <-lines:
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		assert.Equal(t, path, ev.Path)
		assert.True(t, ev.Changed)
		assert.Nil(t, ev.Fault)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "SELECT")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
