package fileio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// DriverLocal names the local disk file system.
const DriverLocal = types.DriverLocal

// Local reads and writes files under Root. Absolute paths are used as given.
// Writes are atomic: temp file, fsync, rename.
type Local struct {
	Root string
}

// NewLocal returns a local file system rooted at root ("" is the working
// directory).
func NewLocal(root string) *Local { return &Local{Root: root} }

func (*Local) Name() string { return DriverLocal }

func (l *Local) resolve(p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) || l.Root == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(l.Root, p)
}

func (l *Local) ReadAllText(ctx context.Context, p string) (string, error) {
	const op = "read"
	if err := checkContext(ctx, DriverLocal, op, p); err != nil {
		return "", err
	}
	b, err := os.ReadFile(l.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return "", notFound(DriverLocal, op, p)
	}
	if err != nil {
		return "", ioError(DriverLocal, op, p, err)
	}
	return string(b), nil
}

func (l *Local) ReadAllLines(ctx context.Context, p string) ([]string, error) {
	text, err := l.ReadAllText(ctx, p)
	if err != nil {
		return nil, err
	}
	return types.SplitLines(text), nil
}

func (l *Local) WriteAllText(ctx context.Context, p, text string) error {
	const op = "write"
	if err := checkContext(ctx, DriverLocal, op, p); err != nil {
		return err
	}
	return ioError(DriverLocal, op, p, writeAtomic(l.resolve(p), text))
}

func (l *Local) FileExists(ctx context.Context, p string) (bool, error) {
	if err := checkContext(ctx, DriverLocal, "stat", p); err != nil {
		return false, err
	}
	info, err := os.Stat(l.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, ioError(DriverLocal, "stat", p, err)
	}
	return info.Mode().IsRegular(), nil
}

func (l *Local) DirectoryExists(ctx context.Context, p string) (bool, error) {
	if err := checkContext(ctx, DriverLocal, "stat", p); err != nil {
		return false, err
	}
	info, err := os.Stat(l.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, ioError(DriverLocal, "stat", p, err)
	}
	return info.IsDir(), nil
}

func (l *Local) CreateDirectory(ctx context.Context, p string) error {
	const op = "mkdir"
	if err := checkContext(ctx, DriverLocal, op, p); err != nil {
		return err
	}
	return ioError(DriverLocal, op, p, os.MkdirAll(l.resolve(p), 0o755))
}

// writeAtomic writes text to path using the temp-file, fsync, rename pattern
// so readers never observe a partial file.
func writeAtomic(path, text string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".schematic-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
