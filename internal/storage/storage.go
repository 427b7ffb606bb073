// Package storage converts schemes to and from text. A Format handles one
// representation (JSON, CSV, generated Go source); Load and Save run a format
// against a types.FileSystem.
package storage

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// Format serializes schemes in one representation. Deserialize receives the
// scope of the read; formats that carry no scheme name (CSV) take it from
// scope.Scheme. Export-only formats return types.ErrUnsupported from
// Deserialize.
type Format interface {
	Name() string
	Extension() string
	Serialize(scope types.Scope, scheme *types.DataScheme) (string, error)
	Deserialize(scope types.Scope, text string) (*types.DataScheme, error)
}

// Load reads path from fs and decodes it with f.
func Load(ctx context.Context, fs types.FileSystem, f Format, scope types.Scope, p string) (*types.DataScheme, error) {
	scope = scope.WithPath(p).WithDriver(f.Name())
	if err := ctx.Err(); err != nil {
		return nil, types.Cancelled("load", scope, err)
	}
	text, err := fs.ReadAllText(ctx, p)
	if err != nil {
		return nil, err
	}
	return f.Deserialize(scope, text)
}

// Save encodes scheme with f and writes it to path, creating the parent
// directory when missing. The scheme's dirty flag is left to the caller.
func Save(ctx context.Context, fs types.FileSystem, f Format, scope types.Scope, scheme *types.DataScheme, p string) error {
	scope = scope.WithPath(p).WithDriver(f.Name()).WithScheme(scheme.SchemeName)
	text, err := f.Serialize(scope, scheme)
	if err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "." && dir != "/" {
		ok, err := fs.DirectoryExists(ctx, dir)
		if err != nil {
			return err
		}
		if !ok {
			if err := fs.CreateDirectory(ctx, dir); err != nil {
				return err
			}
		}
	}
	return fs.WriteAllText(ctx, p, text)
}

// Registry maps format names and file extensions to formats.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Format
	byExt   map[string]Format
	ordered []string
}

// NewRegistry returns a registry holding formats.
func NewRegistry(formats ...Format) *Registry {
	r := &Registry{byName: make(map[string]Format), byExt: make(map[string]Format)}
	for _, f := range formats {
		r.Register(f)
	}
	return r
}

// DefaultRegistry holds the JSON, CSV and Go formats.
func DefaultRegistry() *Registry {
	return NewRegistry(NewJSON(), NewCSV(nil), NewGoCodegen(GoOptions{}))
}

// Register adds f, replacing any format with the same name.
func (r *Registry) Register(f Format) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(f.Name())
	if _, ok := r.byName[name]; !ok {
		r.ordered = append(r.ordered, name)
	}
	r.byName[name] = f
	r.byExt[strings.ToLower(f.Extension())] = f
}

// Lookup returns the format registered under name.
func (r *Registry) Lookup(name string) (Format, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.byName[strings.ToLower(name)]; ok {
		return f, nil
	}
	return nil, types.Errorf(types.KindResolution, "lookup format", types.Scope{Driver: name}, "%w: %q", types.ErrUnknownFormat, name)
}

// ForPath returns the format whose extension matches p.
func (r *Registry) ForPath(p string) (Format, error) {
	ext := strings.ToLower(path.Ext(p))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.byExt[ext]; ok {
		return f, nil
	}
	return nil, types.Errorf(types.KindResolution, "lookup format", types.Scope{Path: p}, "%w: extension %q", types.ErrUnknownFormat, ext)
}

// Names lists registered format names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Extensions lists registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
