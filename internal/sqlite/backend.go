// Package sqlite implements types.FileSystem on a single SQLite database
// file. Every stored text file is a row in the files table; directories are
// rows in the directories table and are created implicitly by writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// FS stores files in SQLite. It is safe for concurrent use.
type FS struct {
	mu     sync.RWMutex
	closed bool
	path   string
	db     *sql.DB
}

// Open opens (creating if needed) the database at dbPath and applies the
// schema. The parent directory is created when missing.
func Open(ctx context.Context, dbPath string) (*FS, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("sqlite file system: %w", types.ErrSQLitePathEmpty)
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite file system: creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite file system: %w", err)
	}

	stmts := make([]string, 0, len(pragmas)+len(schemaDDL)+len(indexDDL))
	stmts = append(stmts, pragmas...)
	stmts = append(stmts, schemaDDL...)
	stmts = append(stmts, indexDDL...)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite file system: applying schema: %w", err)
		}
	}
	return &FS{path: dbPath, db: db}, nil
}

// Name reports the driver name.
func (*FS) Name() string { return types.DriverSQLite }

// Path returns the database file path.
func (f *FS) Path() string { return f.path }

// Close releases the database. Close is idempotent.
func (f *FS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.db.Close()
}

func (f *FS) ReadAllText(ctx context.Context, p string) (string, error) {
	const op = "read"
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.check(ctx, op, p); err != nil {
		return "", err
	}

	var content string
	err := f.db.QueryRowContext(ctx, `SELECT content FROM files WHERE path = ?`, cleanKey(p)).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.Errorf(types.KindIO, op, scope(p), "%w: %s", types.ErrFileNotFound, p)
	}
	if err != nil {
		return "", wrap(op, p, err)
	}
	return content, nil
}

func (f *FS) ReadAllLines(ctx context.Context, p string) ([]string, error) {
	text, err := f.ReadAllText(ctx, p)
	if err != nil {
		return nil, err
	}
	return types.SplitLines(text), nil
}

// WriteAllText upserts the file and records its parent directories in one
// transaction. Each write gets a fresh revision id.
func (f *FS) WriteAllText(ctx context.Context, p, text string) error {
	const op = "write"
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.check(ctx, op, p); err != nil {
		return err
	}

	key := cleanKey(p)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(op, p, err)
	}
	defer tx.Rollback()

	if err := insertDirs(ctx, tx, path.Dir(key), now); err != nil {
		return wrap(op, p, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO files (path, revision, content, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET revision = excluded.revision, content = excluded.content, updated_at = excluded.updated_at`,
		key, generateUUID(), text, now)
	if err != nil {
		return wrap(op, p, err)
	}
	return wrap(op, p, tx.Commit())
}

func (f *FS) FileExists(ctx context.Context, p string) (bool, error) {
	return f.exists(ctx, `SELECT 1 FROM files WHERE path = ?`, cleanKey(p), p)
}

func (f *FS) DirectoryExists(ctx context.Context, p string) (bool, error) {
	key := dirKey(p)
	if key == "" {
		f.mu.RLock()
		defer f.mu.RUnlock()
		return true, f.check(ctx, "stat", p)
	}
	return f.exists(ctx, `SELECT 1 FROM directories WHERE path = ?`, key, p)
}

func (f *FS) CreateDirectory(ctx context.Context, p string) error {
	const op = "mkdir"
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.check(ctx, op, p); err != nil {
		return err
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(op, p, err)
	}
	defer tx.Rollback()
	if err := insertDirs(ctx, tx, dirKey(p), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return wrap(op, p, err)
	}
	return wrap(op, p, tx.Commit())
}

// Revision returns the id assigned by the last write of p.
func (f *FS) Revision(ctx context.Context, p string) (string, error) {
	const op = "revision"
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.check(ctx, op, p); err != nil {
		return "", err
	}

	var rev string
	err := f.db.QueryRowContext(ctx, `SELECT revision FROM files WHERE path = ?`, cleanKey(p)).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.Errorf(types.KindIO, op, scope(p), "%w: %s", types.ErrFileNotFound, p)
	}
	if err != nil {
		return "", wrap(op, p, err)
	}
	return rev, nil
}

// Files lists stored file paths in order.
func (f *FS) Files(ctx context.Context) ([]string, error) {
	const op = "list"
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.check(ctx, op, ""); err != nil {
		return nil, err
	}

	rows, err := f.db.QueryContext(ctx, `SELECT path FROM files ORDER BY path`)
	if err != nil {
		return nil, wrap(op, "", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, wrap(op, "", err)
		}
		out = append(out, p)
	}
	return out, wrap(op, "", rows.Err())
}

func (f *FS) exists(ctx context.Context, query, key, p string) (bool, error) {
	const op = "stat"
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.check(ctx, op, p); err != nil {
		return false, err
	}

	var one int
	err := f.db.QueryRowContext(ctx, query, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap(op, p, err)
	}
	return true, nil
}

// check must be called with mu held.
func (f *FS) check(ctx context.Context, op, p string) error {
	if err := ctx.Err(); err != nil {
		return types.Cancelled(op, scope(p), err)
	}
	if f.closed {
		return types.Errorf(types.KindIO, op, scope(p), "%w", types.ErrClosed)
	}
	return nil
}

// insertDirs records dir and each of its ancestors.
func insertDirs(ctx context.Context, tx *sql.Tx, dir, now string) error {
	for dir != "" && dir != "." && dir != "/" {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO directories (path, created_at) VALUES (?, ?)`, dir, now); err != nil {
			return err
		}
		dir = path.Dir(dir)
	}
	return nil
}

func wrap(op, p string, err error) error {
	if err == nil {
		return nil
	}
	if types.IsCancelled(err) {
		return types.Cancelled(op, scope(p), err)
	}
	return types.NewError(types.KindIO, op, scope(p), err)
}

func scope(p string) types.Scope {
	return types.Scope{Driver: types.DriverSQLite, Path: p}
}

func cleanKey(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func dirKey(p string) string {
	k := cleanKey(p)
	if k == "." {
		return ""
	}
	return k
}

// generateUUID returns a v7 id, falling back to v4.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
