package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlscope/internal/state"
	"github.com/leapstack-labs/sqlscope/internal/testutil"
	"github.com/leapstack-labs/sqlscope/pkg/parser"
	"github.com/leapstack-labs/sqlscope/pkg/token"
	"github.com/leapstack-labs/sqlscope/pkg/visitor"
)

// memStore is a Store that keeps statements in a map.
type memStore struct {
	mu      sync.Mutex
	byHash  map[string]*state.Statement
	order   []string
	putErr  error
	listErr error
}

func newMemStore() *memStore {
	return &memStore{byHash: map[string]*state.Statement{}}
}

func (m *memStore) GetStatement(_ context.Context, hash string) (*state.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byHash[hash]
	if !ok {
		return nil, state.ErrNotFound
	}
	return st, nil
}

func (m *memStore) PutStatement(_ context.Context, st *state.Statement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	if old, ok := m.byHash[st.Hash]; ok {
		old.Hits++
		return nil
	}
	st.Hits = 1
	m.byHash[st.Hash] = st
	m.order = append([]string{st.Hash}, m.order...)
	return nil
}

func (m *memStore) ListStatements(_ context.Context, limit int) ([]*state.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*state.Statement
	for _, h := range m.order {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.byHash[h])
	}
	return out, nil
}

func (m *memStore) DeleteStatement(context.Context, string) error { return nil }
func (m *memStore) Prune(context.Context, int) (int64, error)     { return 0, nil }
func (m *memStore) Close() error                                  { return nil }

func TestCache_HitAndMiss(t *testing.T) {
	c := New(Options{Logger: testutil.NewTestLogger(t)})
	ctx := context.Background()

	e1, err := c.Get(ctx, "select a from t where b = :b")
	require.NoError(t, err)
	require.NoError(t, e1.Err)
	assert.Equal(t, "select a from t where b = :b", e1.Regenerated)
	assert.Equal(t, []string{"b"}, visitor.ParamNames(e1.Params))

	e2, err := c.Get(ctx, "select a from t where b = :b")
	require.NoError(t, err)
	assert.Same(t, e1, e2)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 1, s.Entries)

	got, ok := c.Lookup("select a from t where b = :b")
	assert.True(t, ok)
	assert.Same(t, e1, got)
	_, ok = c.Lookup("select 1")
	assert.False(t, ok)
}

func TestCache_KeyIsLiteralText(t *testing.T) {
	c := New(Options{})
	ctx := context.Background()

	a, err := c.Get(ctx, "SELECT 1")
	require.NoError(t, err)
	b, err := c.Get(ctx, "select 1")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.NotEqual(t, Key("SELECT 1"), Key("select 1"))
	assert.Len(t, Key("x"), 64)
}

func TestCache_FaultsAreCached(t *testing.T) {
	c := New(Options{})
	ctx := context.Background()

	e, err := c.Get(ctx, "SELECT a FROM t WHERE (a = 1")
	require.NoError(t, err)
	require.Error(t, e.Err)
	var fault parser.Fault
	assert.True(t, errors.As(e.Err, &fault))
	assert.Nil(t, e.Tree)

	again, err := c.Get(ctx, "SELECT a FROM t WHERE (a = 1")
	require.NoError(t, err)
	assert.Same(t, e, again)
}

func TestCache_CanceledNotCached(t *testing.T) {
	c := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "SELECT a FROM t")
	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrCanceled)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Eviction(t *testing.T) {
	tests := []struct {
		name      string
		max       int
		touch     bool
		wantKept  []string
		wantGone  []string
		evictions int64
	}{
		{"oldest evicted", 2, false, []string{"SELECT 2", "SELECT 3"}, []string{"SELECT 1"}, 1},
		{"touched survives", 2, true, []string{"SELECT 1", "SELECT 3"}, []string{"SELECT 2"}, 1},
		{"memory disabled", -1, false, nil, []string{"SELECT 1", "SELECT 2", "SELECT 3"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{MaxEntries: tt.max})
			ctx := context.Background()

			_, err := c.Get(ctx, "SELECT 1")
			require.NoError(t, err)
			_, err = c.Get(ctx, "SELECT 2")
			require.NoError(t, err)
			if tt.touch {
				_, err = c.Get(ctx, "SELECT 1")
				require.NoError(t, err)
			}
			_, err = c.Get(ctx, "SELECT 3")
			require.NoError(t, err)

			for _, sql := range tt.wantKept {
				_, ok := c.Lookup(sql)
				assert.True(t, ok, sql)
			}
			for _, sql := range tt.wantGone {
				_, ok := c.Lookup(sql)
				assert.False(t, ok, sql)
			}
			assert.Equal(t, tt.evictions, c.Stats().Evictions)
		})
	}
}

func TestCache_ConcurrentGet(t *testing.T) {
	c := New(Options{})
	ctx := context.Background()
	const workers = 16

	entries := make([]*Entry, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := c.Get(ctx, "SELECT a, b FROM t WHERE c = :c")
			assert.NoError(t, err)
			entries[i] = e
		}()
	}
	wg.Wait()

	for _, e := range entries[1:] {
		assert.Same(t, entries[0], e)
	}
	assert.Equal(t, 1, c.Len())
}

func TestCache_CanceledCallerDoesNotFailOthers(t *testing.T) {
	sql := "SELECT " + strings.Repeat("a + ", 2000) + "a FROM t"

	for range 20 {
		c := New(Options{})
		canceled, cancel := context.WithCancel(context.Background())
		cancel()

		var wg sync.WaitGroup
		var liveEntry *Entry
		var liveErr, canceledErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, canceledErr = c.Get(canceled, sql)
		}()
		go func() {
			defer wg.Done()
			liveEntry, liveErr = c.Get(context.Background(), sql)
		}()
		wg.Wait()

		assert.ErrorIs(t, canceledErr, parser.ErrCanceled)
		require.NoError(t, liveErr)
		require.NotNil(t, liveEntry)
		assert.NoError(t, liveEntry.Err)
		assert.Equal(t, 1, c.Len())
	}
}

func TestCache_Purge(t *testing.T) {
	c := New(Options{})
	_, err := c.Get(context.Background(), "SELECT 1")
	require.NoError(t, err)
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCache_CustomRule(t *testing.T) {
	rule := token.DefaultRule().Clone()
	rule.AddFunctions("MY_FN")
	c := New(Options{Rule: rule, Regen: visitor.Options{InsertAS: true, AliasCase: visitor.AliasUpper}})

	e, err := c.Get(context.Background(), "SELECT my_fn(a) x FROM t")
	require.NoError(t, err)
	require.NoError(t, e.Err)
	assert.Equal(t, "SELECT my_fn(a) AS x FROM t", e.Regenerated)
}

func TestCache_Persist(t *testing.T) {
	store := newMemStore()
	c := New(Options{Store: store, Source: "q.sql"})
	ctx := context.Background()

	_, err := c.Get(ctx, "SELECT a FROM t WHERE id = :id")
	require.NoError(t, err)
	_, err = c.Get(ctx, "SELECT a FROM t WHERE")
	require.NoError(t, err)

	st, err := store.GetStatement(ctx, Key("SELECT a FROM t WHERE id = :id"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, st.Params)
	assert.Equal(t, "q.sql", st.Source)
	assert.Positive(t, st.NodeCount)
	assert.Empty(t, st.Fault)

	bad, err := store.GetStatement(ctx, Key("SELECT a FROM t WHERE"))
	require.NoError(t, err)
	assert.NotEmpty(t, bad.Fault)
	assert.Zero(t, bad.NodeCount)
}

func TestCache_PersistFailureIsLogged(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("disk full")
	logger, buf := testutil.NewCaptureLogger()
	c := New(Options{Store: store, Logger: logger})

	e, err := c.Get(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.NoError(t, e.Err)
	assert.Contains(t, buf.String(), "failed to record statement")
	assert.Contains(t, buf.String(), "disk full")
}

func TestCache_Warm(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	for i := range 3 {
		sql := fmt.Sprintf("SELECT %d", i)
		require.NoError(t, store.PutStatement(ctx, &state.Statement{Hash: Key(sql), SQL: sql}))
	}

	c := New(Options{Store: store, MaxEntries: 2})
	n, err := c.Warm(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := c.Lookup("SELECT 2")
	assert.True(t, ok)
	_, ok = c.Lookup("SELECT 1")
	assert.True(t, ok)
	_, ok = c.Lookup("SELECT 0")
	assert.False(t, ok)

	store.listErr = errors.New("locked")
	_, err = c.Warm(ctx, 0)
	assert.ErrorContains(t, err, "locked")

	n, err = New(Options{}).Warm(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCache_SQLiteCatalog(t *testing.T) {
	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	first := New(Options{Store: store})
	_, err := first.Get(ctx, "SELECT a FROM t WHERE b = ?")
	require.NoError(t, err)

	// A fresh process sees the recorded statement.
	second := New(Options{Store: store})
	n, err := second.Warm(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, ok := second.Lookup("SELECT a FROM t WHERE b = ?")
	require.True(t, ok)
	assert.Equal(t, []string{"?"}, visitor.ParamNames(e.Params))
}
