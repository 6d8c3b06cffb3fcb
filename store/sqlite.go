package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/cohort/types"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a NodeStore backed by a single SQLite database.
//
// Each node is one row carrying a revision column. Commits are conditional
// UPDATE/INSERT statements that affect zero rows when another writer got there
// first, which Transact treats as a conflict.
type SQLite struct {
	db   *sql.DB
	opts options
}

var _ types.NodeStore = (*SQLite)(nil)

// OpenSQLite creates or opens the database at path (":memory:" for a private
// in-memory database).
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - 5-second busy timeout for lock contention
//
// Parameters:
//   - path: Database file path
//   - opts: Store options
//
// Returns:
//   - *SQLite: NodeStore over the database
//   - error: Open, pragma or schema failure
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections. This also
	// keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(db, path); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &SQLite{db: db, opts: newOptions(opts)}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Get returns the value at path or types.ErrNodeNotFound.
func (s *SQLite) Get(ctx context.Context, path string) ([]byte, error) {
	defer observe(&s.opts, "get", time.Now())

	p, err := canonical(path)
	if err != nil {
		return nil, err
	}

	value, rev, err := s.read(ctx, p)
	if err != nil {
		return nil, err
	}
	if rev == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, p)
	}

	return value, nil
}

// Set overwrites the value at path.
func (s *SQLite) Set(ctx context.Context, path string, value []byte) error {
	defer observe(&s.opts, "set", time.Now())

	p, err := canonical(path)
	if err != nil {
		return err
	}

	return s.upsert(ctx, s.db, p, value)
}

// Push stores value under a new time-ordered child of path and returns the child key.
func (s *SQLite) Push(ctx context.Context, path string, value []byte) (string, error) {
	defer observe(&s.opts, "push", time.Now())

	p, err := canonical(path)
	if err != nil {
		return "", err
	}

	key := pushKey()
	if err := s.upsert(ctx, s.db, p+"/"+key, value); err != nil {
		return "", err
	}

	return key, nil
}

// Transact applies fn atomically to the node at path.
func (s *SQLite) Transact(ctx context.Context, path string, fn types.UpdateFunc) (types.TxResult, error) {
	p, err := canonical(path)
	if err != nil {
		return types.TxResult{}, err
	}

	return transact(ctx, s, &s.opts, p, fn)
}

// UpdateMulti writes every path in one SQL transaction.
func (s *SQLite) UpdateMulti(ctx context.Context, values map[string][]byte) error {
	defer observe(&s.opts, "update_multi", time.Now())

	paths := slices.Sorted(maps.Keys(values))
	canon := make([]string, len(paths))
	for i, path := range paths {
		p, err := canonical(path)
		if err != nil {
			return err
		}
		canon[i] = p
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for i, path := range paths {
		if err := s.upsert(ctx, tx, canon[i], values[path]); err != nil {
			return fmt.Errorf("update %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.classify(err)
	}

	return nil
}

// Keys lists every node path under prefix ("/" lists everything).
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	head := "/"
	if prefix != "" && prefix != "/" {
		head = strings.TrimSuffix(prefix, "/") + "/"
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM nodes WHERE substr(path, 1, length(?1)) = ?1 ORDER BY path`, head)
	if err != nil {
		return nil, s.classify(err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}

	return paths, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) upsert(ctx context.Context, db execer, path string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO nodes (path, value, revision, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(path) DO UPDATE SET
			value = excluded.value,
			revision = nodes.revision + 1,
			updated_at = excluded.updated_at`,
		path, nonNil(value), time.Now().UnixMilli())

	return s.classify(err)
}

func (s *SQLite) read(ctx context.Context, path string) ([]byte, uint64, error) {
	var (
		value []byte
		rev   uint64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, revision FROM nodes WHERE path = ?`, path).Scan(&value, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, s.classify(err)
	}

	return value, rev, nil
}

func (s *SQLite) commit(ctx context.Context, path string, value []byte, rev uint64) (uint64, error) {
	now := time.Now().UnixMilli()

	var (
		res sql.Result
		err error
	)
	if rev == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO nodes (path, value, revision, updated_at) VALUES (?, ?, 1, ?)
			ON CONFLICT(path) DO NOTHING`,
			path, nonNil(value), now)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE nodes SET value = ?, revision = revision + 1, updated_at = ?
			WHERE path = ? AND revision = ?`,
			nonNil(value), now, path, rev)
	}
	if err != nil {
		return 0, s.classify(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errRevisionMismatch
	}

	return rev + 1, nil
}

func (s *SQLite) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %w", types.ErrStoreClosed, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}

	return err
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, path string) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}

	return b
}
