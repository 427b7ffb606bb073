package types

import (
	"context"
	"strings"
)

// FileSystem is the file access abstraction storage formats and the registry
// read and write through. Paths are slash-separated. Implementations return
// ErrFileNotFound (wrapped) for missing files, ErrReadOnly for writes they
// cannot perform, and a cancelled error when ctx is done.
type FileSystem interface {
	ReadAllText(ctx context.Context, path string) (string, error)
	ReadAllLines(ctx context.Context, path string) ([]string, error)
	WriteAllText(ctx context.Context, path, text string) error
	FileExists(ctx context.Context, path string) (bool, error)
	DirectoryExists(ctx context.Context, path string) (bool, error)
	CreateDirectory(ctx context.Context, path string) error
}

// Namer is implemented by file systems that report a driver name for
// diagnostics and metrics.
type Namer interface {
	Name() string
}

// DriverName returns fs's driver name, or "unknown".
func DriverName(fs FileSystem) string {
	if n, ok := fs.(Namer); ok {
		return n.Name()
	}
	return "unknown"
}

// SplitLines splits text on "\n", dropping a trailing "\r" from each line and
// the empty element after a final line break.
func SplitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
