package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

var errNotOpened = errors.New("database not opened")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store instance. A nil logger
// discards log output.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger, now: time.Now}
}

// Open opens the database at path, creating its directory when needed,
// and applies pending migrations. Use ":memory:" for an in-memory
// database.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	s.logger.Debug("opened statement catalog", "path", path)
	return nil
}

// OpenDB uses an already opened database. Migrations are not run.
func (s *SQLiteStore) OpenDB(db *sql.DB) {
	s.db = db
	s.path = ""
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path given to Open.
func (s *SQLiteStore) Path() string {
	return s.path
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

const statementColumns = `id, hash, sql_text, regenerated, params, node_count, fault, source, hits, created_at, last_seen_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatement(row rowScanner) (*Statement, error) {
	st := &Statement{}
	var params string
	var created, seen int64
	if err := row.Scan(&st.ID, &st.Hash, &st.SQL, &st.Regenerated, &params, &st.NodeCount,
		&st.Fault, &st.Source, &st.Hits, &created, &seen); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &st.Params); err != nil {
		return nil, fmt.Errorf("corrupt params for statement %s: %w", st.ID, err)
	}
	st.CreatedAt = fromMillis(created)
	st.LastSeenAt = fromMillis(seen)
	return st, nil
}

// GetStatement retrieves a statement by hash.
func (s *SQLiteStore) GetStatement(ctx context.Context, hash string) (*Statement, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE hash = ?`, hash)
	st, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}
	return st, nil
}

// PutStatement inserts st or bumps the hit count of an existing record.
func (s *SQLiteStore) PutStatement(ctx context.Context, st *Statement) error {
	if s.db == nil {
		return errNotOpened
	}

	params := st.Params
	if params == nil {
		params = []string{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}

	now := s.now().UTC()
	if st.ID == "" {
		st.ID = generateID()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.LastSeenAt = now
	if st.Hits == 0 {
		st.Hits = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO statements (`+statementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			hits = hits + 1,
			last_seen_at = excluded.last_seen_at`,
		st.ID, st.Hash, st.SQL, st.Regenerated, string(encoded), st.NodeCount,
		st.Fault, st.Source, st.Hits, millis(st.CreatedAt), millis(st.LastSeenAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put statement: %w", err)
	}
	return nil
}

// ListStatements returns statements, most recently seen first.
func (s *SQLiteStore) ListStatements(ctx context.Context, limit int) ([]*Statement, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statementColumns+` FROM statements ORDER BY last_seen_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	return out, nil
}

// DeleteStatement removes a statement by hash.
func (s *SQLiteStore) DeleteStatement(ctx context.Context, hash string) error {
	if s.db == nil {
		return errNotOpened
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM statements WHERE hash = ?`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete statement: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Prune deletes all but the keep most recently seen statements.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	if s.db == nil {
		return 0, errNotOpened
	}
	if keep < 0 {
		keep = 0
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM statements WHERE id NOT IN (
			SELECT id FROM statements ORDER BY last_seen_at DESC, id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune statements: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune statements: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned statement catalog", "removed", n, "kept", keep)
	}
	return n, nil
}
