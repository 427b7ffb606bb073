// Package sqlite exposes the SQLite-backed file system while keeping its
// implementation internal.
//
// Example:
//
//	fs, err := sqlite.Open(ctx, "content.db")
//	if err != nil {
//	    return err
//	}
//	defer fs.Close()
package sqlite

import (
	"context"

	"github.com/mesh-intelligence/schematic/internal/sqlite"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

// FileSystem is a types.FileSystem that must be closed.
type FileSystem interface {
	types.FileSystem
	Close() error
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (FileSystem, error) {
	fs, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return fs, nil
}
