// Package cache memoizes parse results keyed by the literal statement text.
//
// Parsing is pure, so a result computed once is valid for every later
// request with the same text and rule set. The cache keeps a bounded LRU
// of results in memory, collapses concurrent misses for the same text into
// a single parse and, when given a state.Store, records every statement in
// the persistent catalog.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/sqlscope/internal/state"
	"github.com/leapstack-labs/sqlscope/pkg/ast"
	"github.com/leapstack-labs/sqlscope/pkg/parser"
	"github.com/leapstack-labs/sqlscope/pkg/token"
	"github.com/leapstack-labs/sqlscope/pkg/visitor"
)

// DefaultMaxEntries bounds the cache when Options.MaxEntries is zero.
const DefaultMaxEntries = 1024

// Options configures a Cache.
type Options struct {
	// MaxEntries is the number of results kept in memory. Zero means
	// DefaultMaxEntries; a negative value disables the memory tier.
	MaxEntries int
	// Rule is the token rule set every statement is parsed with.
	Rule *token.Rule
	// Regen configures the regenerated text stored with each entry.
	Regen visitor.Options
	// Store, when set, receives every newly parsed statement.
	Store state.Store
	// Source labels catalog records, usually a file name or "stdin".
	Source string
	Logger *slog.Logger
}

// Entry is an immutable parse result.
type Entry struct {
	Key         string
	SQL         string
	Tree        *ast.Tree
	Regenerated string
	Params      []visitor.Param
	// Err is the parse fault, if any. Faulty statements are cached too.
	Err error
}

// Stats counts cache activity.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Shared    int64 `json:"shared"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type element struct {
	entry *Entry
	elem  *list.Element
}

// Cache is safe for concurrent use.
type Cache struct {
	opts   Options
	logger *slog.Logger
	group  singleflight.Group

	mu    sync.Mutex
	items map[string]*element
	lru   *list.List
	stats Stats
}

// New creates a cache.
func New(opts Options) *Cache {
	if opts.MaxEntries == 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Rule == nil {
		opts.Rule = token.DefaultRule()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		opts:   opts,
		logger: logger,
		items:  make(map[string]*element),
		lru:    list.New(),
	}
}

// Key returns the cache key of sql.
func Key(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

// Get returns the parse result for sql, parsing it on a miss. Concurrent
// misses for the same text share one parse. The returned error is non-nil
// only when the parse was canceled through ctx; such results are never
// cached. Parse faults are reported in Entry.Err.
//
// A shared parse runs under the context of the caller that started it. When
// that caller cancels, the others parse again under their own contexts.
func (c *Cache) Get(ctx context.Context, sql string) (*Entry, error) {
	key := Key(sql)
	if e, ok := c.lookup(key); ok {
		c.logger.Debug("statement cache hit", "key", key[:12])
		return e, nil
	}

	for {
		ch := c.group.DoChan(key, func() (any, error) {
			// A concurrent caller may have finished between lookup and DoChan.
			if e, ok := c.peek(key); ok {
				return e, nil
			}
			e, err := c.parse(ctx, key, sql)
			if err != nil {
				return nil, err
			}
			c.insert(e)
			c.persist(ctx, e)
			return e, nil
		})

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", parser.ErrCanceled, ctx.Err())
		case res := <-ch:
			if res.Shared {
				c.mu.Lock()
				c.stats.Shared++
				c.mu.Unlock()
			}
			if res.Err != nil {
				if errors.Is(res.Err, parser.ErrCanceled) && ctx.Err() == nil {
					c.logger.Debug("shared parse canceled, retrying", "key", key[:12])
					continue
				}
				return nil, res.Err
			}
			return res.Val.(*Entry), nil
		}
	}
}

// Lookup returns the cached entry for sql without parsing.
func (c *Cache) Lookup(sql string) (*Entry, bool) {
	return c.peek(Key(sql))
}

// Warm parses up to limit of the most recently seen catalog statements
// into memory and returns how many were loaded.
func (c *Cache) Warm(ctx context.Context, limit int) (int, error) {
	if c.opts.Store == nil {
		return 0, nil
	}
	recent, err := c.opts.Store.ListStatements(ctx, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	// Oldest first so the most recent end up at the front of the LRU.
	for i := len(recent) - 1; i >= 0; i-- {
		st := recent[i]
		if _, ok := c.peek(st.Hash); ok {
			continue
		}
		e, err := c.parse(ctx, st.Hash, st.SQL)
		if err != nil {
			return n, err
		}
		c.insert(e)
		n++
	}
	c.logger.Info("warmed statement cache", "loaded", n)
	return n, nil
}

// Len returns the number of entries in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.lru.Len()
	return s
}

// Purge drops every entry from memory. The catalog is left untouched.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*element)
	c.lru.Init()
}

func (c *Cache) parse(ctx context.Context, key, sql string) (*Entry, error) {
	tree, err := parser.ParseContext(ctx, sql, c.opts.Rule)
	if err != nil && errors.Is(err, parser.ErrCanceled) {
		return nil, err
	}
	e := &Entry{Key: key, SQL: sql, Tree: tree, Err: err}
	if tree != nil {
		e.Regenerated = visitor.Regenerate(tree, c.opts.Regen)
		e.Params = visitor.CollectParams(tree)
	}
	return e, nil
}

// lookup is peek plus hit/miss accounting.
func (c *Cache) lookup(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(el.elem)
	c.stats.Hits++
	return el.entry, true
}

func (c *Cache) peek(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	return el.entry, true
}

func (c *Cache) insert(e *Entry) {
	if c.opts.MaxEntries < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[e.Key]; ok {
		return
	}
	for c.lru.Len() >= c.opts.MaxEntries {
		oldest := c.lru.Back()
		key := oldest.Value.(string)
		c.lru.Remove(oldest)
		delete(c.items, key)
		c.stats.Evictions++
	}
	c.items[e.Key] = &element{entry: e, elem: c.lru.PushFront(e.Key)}
}

func (c *Cache) persist(ctx context.Context, e *Entry) {
	if c.opts.Store == nil {
		return
	}
	st := &state.Statement{
		Hash:        e.Key,
		SQL:         e.SQL,
		Regenerated: e.Regenerated,
		Params:      visitor.ParamNames(e.Params),
		Source:      c.opts.Source,
	}
	if e.Tree != nil {
		st.NodeCount = e.Tree.Len()
	}
	if e.Err != nil {
		st.Fault = e.Err.Error()
	}
	if err := c.opts.Store.PutStatement(ctx, st); err != nil {
		c.logger.Error("failed to record statement", "key", e.Key[:12], "error", err)
	}
}
