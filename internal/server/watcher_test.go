package server

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlscope/internal/testutil"
	"github.com/leapstack-labs/sqlscope/pkg/format"
	"github.com/leapstack-labs/sqlscope/pkg/token"
)

func TestFormatFile(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantChanged bool
		wantFault   string
	}{
		{"reformats", "select a from t", true, ""},
		{"already formatted settles", "", false, ""},
		{"fault leaves file alone", "SELECT 'abc FROM t", false, "lexical"},
	}

	f := format.New(format.DefaultRule(), token.DefaultRule())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "q.sql")
			content := tt.content
			if content == "" {
				out, err := f.Format("select a from t")
				require.NoError(t, err)
				content = out
			}
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			ev := FormatFile(f, path)
			assert.Equal(t, path, ev.Path)
			assert.Equal(t, tt.wantChanged, ev.Changed)

			b, err := os.ReadFile(path)
			require.NoError(t, err)
			if tt.wantFault != "" {
				require.NotNil(t, ev.Fault)
				assert.Equal(t, tt.wantFault, ev.Fault.Kind)
				assert.Equal(t, content, string(b))
				return
			}
			assert.Nil(t, ev.Fault)

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

			again := FormatFile(f, path)
			assert.False(t, again.Changed)
		})
	}
}

func TestCheckFile(t *testing.T) {
	f := format.New(format.DefaultRule(), token.DefaultRule())
	path := filepath.Join(t.TempDir(), "q.sql")
	require.NoError(t, os.WriteFile(path, []byte("select a from t"), 0o600))

	ev := CheckFile(f, path)
	assert.True(t, ev.Changed)
	assert.Nil(t, ev.Fault)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "select a from t", string(b), "check does not write")
}

func TestFormatFile_Missing(t *testing.T) {
	f := format.New(format.DefaultRule(), token.DefaultRule())
	ev := FormatFile(f, filepath.Join(t.TempDir(), "nope.sql"))
	require.NotNil(t, ev.Fault)
	assert.False(t, ev.Changed)
}

func TestWatcher_DebouncesAndFilters(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "models")
	require.NoError(t, os.Mkdir(sub, 0o755))

	var mu sync.Mutex
	calls := map[string]int{}
	w := NewWatcher(dir, func(path string) {
		mu.Lock()
		calls[path]++
		mu.Unlock()
	}, testutil.NewTestLogger(t))
	w.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	sqlPath := filepath.Join(sub, "a.sql")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(sqlPath, []byte("select 1"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls[sqlPath] == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, map[string]int{sqlPath: 1}, calls)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing"), func(string) {}, nil)
	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}

func TestNotifier(t *testing.T) {
	n := NewNotifier()

	ch1 := n.Subscribe()
	ch2 := n.Subscribe()
	assert.Equal(t, 2, n.Len())

	n.Broadcast(Event{Path: "a.sql", Changed: true})
	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "a.sql", ev.Path)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("listener did not receive event")
		}
	}

	// A full buffer drops events instead of blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			n.Broadcast(Event{Path: "b.sql"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on full channel")
	}

	n.Unsubscribe(ch1)
	n.Unsubscribe(ch2)
	assert.Equal(t, 0, n.Len())
}
