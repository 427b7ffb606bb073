// Package registry holds the schemes of one session: a name to scheme map,
// the manifest that lists their files, and the load and save orchestration
// that keeps the two in step with a types.FileSystem.
//
// A Registry is an ordinary value. Tests and CLI invocations each construct
// their own; nothing is shared between registries.
package registry

import (
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/schematic/internal/logging"
	"github.com/mesh-intelligence/schematic/internal/metrics"
	"github.com/mesh-intelligence/schematic/internal/storage"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

// DefaultCacheSize bounds the identifier-value cache.
const DefaultCacheSize = 256

// DefaultLoadConcurrency bounds parallel scheme reads during manifest load.
const DefaultLoadConcurrency = 8

// Options configures New. FS is required.
type Options struct {
	FS              types.FileSystem
	Formats         *storage.Registry
	DefaultFormat   string
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	CacheSize       int
	LoadConcurrency int
}

type cacheKey struct {
	scheme    string
	attribute string
}

type cachedValues struct {
	scheme  *types.DataScheme
	version uint64
	values  map[string]any
}

// Registry maps scheme names to schemes. Load and save operations hold one
// lock for their whole duration, so they never interleave; lookups only take
// the map lock and may run at any time.
type Registry struct {
	io sync.Mutex

	mu           sync.RWMutex
	schemes      map[string]*types.DataScheme
	manifestPath string

	fs          types.FileSystem
	formats     *storage.Registry
	format      storage.Format
	logger      *zap.Logger
	metrics     *metrics.Metrics
	ids         *lru.Cache[cacheKey, cachedValues]
	concurrency int
}

var (
	_ types.SchemeLookup    = (*Registry)(nil)
	_ types.IdentifierIndex = (*Registry)(nil)
)

// New returns an empty registry.
func New(opts Options) (*Registry, error) {
	if opts.FS == nil {
		return nil, fmt.Errorf("registry: file system: %w", types.ErrNilArgument)
	}
	if opts.Formats == nil {
		opts.Formats = storage.DefaultRegistry()
	}
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = types.DefaultFormatName
	}
	format, err := opts.Formats.Lookup(opts.DefaultFormat)
	if err != nil {
		return nil, err
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.LoadConcurrency <= 0 {
		opts.LoadConcurrency = DefaultLoadConcurrency
	}
	ids, err := lru.New[cacheKey, cachedValues](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("registry: identifier cache: %w", err)
	}
	return &Registry{
		schemes:     make(map[string]*types.DataScheme),
		fs:          opts.FS,
		formats:     opts.Formats,
		format:      format,
		logger:      logging.OrNop(opts.Logger),
		metrics:     opts.Metrics,
		ids:         ids,
		concurrency: opts.LoadConcurrency,
	}, nil
}

// FileSystem returns the file system schemes are read from and written to.
func (r *Registry) FileSystem() types.FileSystem { return r.fs }

// Formats returns the format registry.
func (r *Registry) Formats() *storage.Registry { return r.formats }

// Scope returns a diagnostic scope that resolves references through r.
func (r *Registry) Scope() types.Scope {
	return types.Scope{Lookup: r, Driver: types.DriverName(r.fs)}
}

// LookupScheme returns the scheme registered under name.
func (r *Registry) LookupScheme(name string) (*types.DataScheme, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemes[name]
	return s, ok
}

// Scheme is LookupScheme with a resolution error for unknown names.
func (r *Registry) Scheme(name string) (*types.DataScheme, error) {
	if s, ok := r.LookupScheme(name); ok {
		return s, nil
	}
	return nil, types.Errorf(types.KindResolution, "lookup scheme", types.Scope{Scheme: name}, "%w: %s", types.ErrSchemeNotFound, name)
}

// SchemeNames lists registered names, sorted.
func (r *Registry) SchemeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemes))
	for name := range r.schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered schemes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemes)
}

// AddScheme registers s under its name. An existing scheme of that name is
// replaced only when overwrite is set.
func (r *Registry) AddScheme(s *types.DataScheme, overwrite bool) error {
	if s == nil {
		return types.NewError(types.KindInvariant, "add scheme", types.Scope{}, types.ErrNilArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(s, overwrite)
}

func (r *Registry) addLocked(s *types.DataScheme, overwrite bool) error {
	if _, exists := r.schemes[s.SchemeName]; exists && !overwrite {
		return types.Errorf(types.KindInvariant, "add scheme", types.Scope{Scheme: s.SchemeName}, "%w: %s", types.ErrSchemeExists, s.SchemeName)
	}
	r.schemes[s.SchemeName] = s
	r.metrics.SetSchemes(len(r.schemes))
	return nil
}

// Unload removes the scheme registered under name and returns it. The
// manifest record, if any, is left alone.
func (r *Registry) Unload(name string) (*types.DataScheme, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schemes[name]
	if !ok {
		return nil, false
	}
	delete(r.schemes, name)
	if name == types.ManifestSchemeName {
		r.manifestPath = ""
	}
	r.metrics.SetSchemes(len(r.schemes))
	return s, true
}

// Reset empties the registry for a new session.
func (r *Registry) Reset() {
	r.io.Lock()
	defer r.io.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemes = make(map[string]*types.DataScheme)
	r.manifestPath = ""
	r.ids.Purge()
	r.metrics.SetSchemes(0)
}

// Manifest returns the registered manifest scheme.
func (r *Registry) Manifest() (*types.DataScheme, bool) {
	return r.LookupScheme(types.ManifestSchemeName)
}

// ManifestPath returns the path the manifest was loaded from or created at.
func (r *Registry) ManifestPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifestPath
}

// DirtySchemes lists the names of registered schemes with unsaved changes.
func (r *Registry) DirtySchemes() []string {
	var out []string
	for _, name := range r.SchemeNames() {
		if s, ok := r.LookupScheme(name); ok && s.IsDirty() {
			out = append(out, name)
		}
	}
	return out
}

// IdentifierValues returns the identifier values of a registered scheme,
// indexed by types.ValueKey. Results are cached until the scheme changes.
func (r *Registry) IdentifierValues(schemeName, attributeName string) (map[string]any, error) {
	target, ok := r.LookupScheme(schemeName)
	if !ok {
		return nil, types.Errorf(types.KindResolution, "resolve reference", types.Scope{Scheme: schemeName, Attribute: attributeName},
			"%w: %s", types.ErrSchemeNotFound, schemeName)
	}
	key := cacheKey{scheme: schemeName, attribute: attributeName}
	if c, ok := r.ids.Get(key); ok && c.scheme == target && c.version == target.Version() {
		return c.values, nil
	}
	values, err := target.IdentifierValueSet(attributeName)
	if err != nil {
		return nil, err
	}
	r.ids.Add(key, cachedValues{scheme: target, version: target.Version(), values: values})
	return values, nil
}
