// Package fileio provides types.FileSystem implementations: local disk,
// in-memory, read-only HTTP and S3. Open picks one from a types.Config.
package fileio

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/mesh-intelligence/schematic/internal/sqlite"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

// Open builds the file system named by cfg.Driver. Relative paths passed to
// the result resolve against cfg.ContentDir (or the key prefix for s3 and the
// base URL for http).
func Open(ctx context.Context, cfg types.Config) (types.FileSystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("open file system: %w", err)
	}
	switch cfg.Driver {
	case types.DriverLocal:
		return NewLocal(cfg.ContentDir), nil
	case types.DriverMemory:
		return NewMemory(), nil
	case types.DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLite.Path)
	case types.DriverHTTP:
		return NewHTTP(cfg.HTTP.BaseURL, nil)
	case types.DriverS3:
		return NewS3(ctx, S3Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
			Prefix:    cfg.ContentDir,
		})
	default:
		return nil, fmt.Errorf("open file system: %w: %s", types.ErrDriverUnknown, cfg.Driver)
	}
}

// cleanKey normalizes a slash path to a relative key without a leading slash.
func cleanKey(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

func notFound(driver, op, p string) error {
	return types.Errorf(types.KindIO, op, types.Scope{Driver: driver, Path: p}, "%w: %s", types.ErrFileNotFound, p)
}

func ioError(driver, op, p string, err error) error {
	if err == nil {
		return nil
	}
	if types.IsCancelled(err) {
		return types.Cancelled(op, types.Scope{Driver: driver, Path: p}, err)
	}
	return types.NewError(types.KindIO, op, types.Scope{Driver: driver, Path: p}, err)
}

func readOnly(driver, op, p string) error {
	return types.Errorf(types.KindIO, op, types.Scope{Driver: driver, Path: p}, "%w", types.ErrReadOnly)
}

func checkContext(ctx context.Context, driver, op, p string) error {
	if err := ctx.Err(); err != nil {
		return types.Cancelled(op, types.Scope{Driver: driver, Path: p}, err)
	}
	return nil
}
