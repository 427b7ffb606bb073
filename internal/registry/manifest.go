package registry

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/schematic/internal/logging"
	"github.com/mesh-intelligence/schematic/internal/storage"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

// SchemeFailure is a scheme the manifest listed but that could not be loaded.
type SchemeFailure struct {
	Scheme string
	Path   string
	Err    error
}

// LoadReport describes a manifest load. Failed schemes are not registered;
// the rest of the load still succeeds.
type LoadReport struct {
	ManifestPath      string
	Loaded            []string
	Skipped           []string
	Failed            []SchemeFailure
	MissingSelfRecord bool
}

// Err joins the per-scheme failures, or returns nil.
func (rep *LoadReport) Err() error {
	if rep == nil || len(rep.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(rep.Failed))
	for i, f := range rep.Failed {
		errs[i] = f.Err
	}
	return errors.Join(errs...)
}

// ResolvePath maps a manifest FilePath to a file system path. Relative paths
// are relative to the manifest's directory.
func ResolvePath(manifestPath, filePath string) string {
	filePath = filepath.ToSlash(filePath)
	if path.IsAbs(filePath) || filepath.IsAbs(filepath.FromSlash(filePath)) {
		return filePath
	}
	dir := path.Dir(filepath.ToSlash(manifestPath))
	if dir == "." {
		return path.Clean(filePath)
	}
	return path.Join(dir, filePath)
}

// SchemeNameFromPath derives a scheme name from a file name: "a/People.json"
// names "People".
func SchemeNameFromPath(filePath string) string {
	base := path.Base(filepath.ToSlash(filePath))
	return strings.TrimSuffix(base, path.Ext(base))
}

// CreateManifest registers a new manifest holding only its own record and
// marks it dirty. An existing manifest is replaced.
func (r *Registry) CreateManifest(manifestPath string) (*types.DataScheme, error) {
	r.io.Lock()
	defer r.io.Unlock()

	manifest := types.NewManifestScheme()
	if _, err := types.SetManifestRecord(manifest, types.ManifestSchemeName, path.Base(filepath.ToSlash(manifestPath))); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.addLocked(manifest, true); err != nil {
		return nil, err
	}
	r.manifestPath = manifestPath
	return manifest, nil
}

type loadResult struct {
	record types.ManifestRecord
	path   string
	format string
	scheme *types.DataScheme
	err    error
}

// LoadManifest reads the manifest at manifestPath, then every scheme it lists,
// and registers them all, replacing schemes of the same name. Records without
// a FilePath are skipped. A scheme that fails to load is reported and left
// unregistered. A missing or malformed manifest, or cancellation, fails the
// whole load and leaves the registry unchanged.
func (r *Registry) LoadManifest(ctx context.Context, manifestPath string) (*LoadReport, error) {
	r.io.Lock()
	defer r.io.Unlock()

	scope := r.Scope().WithPath(manifestPath).WithScheme(types.ManifestSchemeName)
	manifest, err := storage.Load(ctx, r.fs, storage.NewJSON(), scope, manifestPath)
	r.metrics.ObserveStorage("load", storage.FormatJSON, err)
	if err != nil {
		r.logger.Error("manifest load failed", append([]zap.Field{zap.String("path", manifestPath)}, logging.ErrorFields(err)...)...)
		return nil, err
	}
	if !manifest.IsManifest() {
		manifest.SchemeName = types.ManifestSchemeName
	}

	report := &LoadReport{ManifestPath: manifestPath, MissingSelfRecord: !types.HasSelfRecord(manifest)}
	if report.MissingSelfRecord {
		r.logger.Warn("manifest has no self record", zap.String("path", manifestPath))
	}

	var results []*loadResult
	for _, rec := range types.ManifestRecords(manifest) {
		if rec.SchemeName == types.ManifestSchemeName {
			continue
		}
		if rec.FilePath == "" {
			report.Skipped = append(report.Skipped, rec.SchemeName)
			r.logger.Info("scheme skipped", zap.String("scheme", rec.SchemeName), zap.String("reason", "no file path"))
			continue
		}
		results = append(results, &loadResult{record: rec, path: ResolvePath(manifestPath, rec.FilePath)})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, res := range results {
		g.Go(func() error {
			res.scheme, res.format, res.err = r.readScheme(gctx, res.record.SchemeName, res.path)
			if res.err != nil && types.IsCancelled(res.err) && ctx.Err() != nil {
				return res.err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, types.Cancelled("load manifest", scope, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, types.Cancelled("load manifest", scope, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range results {
		r.metrics.ObserveStorage("load", res.format, res.err)
		if res.err != nil {
			report.Failed = append(report.Failed, SchemeFailure{Scheme: res.record.SchemeName, Path: res.path, Err: res.err})
			r.logger.Error("scheme load failed", append([]zap.Field{
				zap.String("scheme", res.record.SchemeName), zap.String("path", res.path),
			}, logging.ErrorFields(res.err)...)...)
			continue
		}
		if err := r.addLocked(res.scheme, true); err != nil {
			report.Failed = append(report.Failed, SchemeFailure{Scheme: res.record.SchemeName, Path: res.path, Err: err})
			continue
		}
		report.Loaded = append(report.Loaded, res.record.SchemeName)
		r.logger.Debug("scheme loaded", zap.String("scheme", res.record.SchemeName), zap.String("path", res.path),
			zap.Int("entries", res.scheme.EntryCount()))
	}
	if err := r.addLocked(manifest, true); err != nil {
		return nil, err
	}
	r.manifestPath = manifestPath
	r.logger.Info("manifest loaded", zap.String("path", manifestPath), zap.Int("loaded", len(report.Loaded)),
		zap.Int("skipped", len(report.Skipped)), zap.Int("failed", len(report.Failed)))
	return report, nil
}

// readScheme loads p with the format matching its extension, or the default
// format. The scheme is renamed to name when the file says otherwise.
func (r *Registry) readScheme(ctx context.Context, name, p string) (*types.DataScheme, string, error) {
	format, err := r.formats.ForPath(p)
	if err != nil {
		format = r.format
	}
	s, err := storage.Load(ctx, r.fs, format, r.Scope().WithScheme(name), p)
	if err != nil {
		return nil, format.Name(), err
	}
	if s.SchemeName != name {
		r.logger.Warn("scheme name differs from manifest", zap.String("scheme", name), zap.String("file_scheme", s.SchemeName), zap.String("path", p))
		s.SchemeName = name
	}
	return s, format.Name(), nil
}

// LoadScheme reads one scheme file, registers it and records it in the
// manifest when one is registered. The scheme replaces any registered scheme
// of the same name only when overwrite is set.
func (r *Registry) LoadScheme(ctx context.Context, name, filePath string, overwrite bool) (*types.DataScheme, error) {
	r.io.Lock()
	defer r.io.Unlock()

	p := ResolvePath(r.ManifestPath(), filePath)
	if name == "" {
		name = SchemeNameFromPath(filePath)
	}
	s, format, err := r.readScheme(ctx, name, p)
	r.metrics.ObserveStorage("load", format, err)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.addLocked(s, overwrite); err != nil {
		return nil, err
	}
	if manifest, ok := r.schemes[types.ManifestSchemeName]; ok {
		if rec, _, found := types.FindManifestRecord(manifest, name); !found || rec.FilePath != filePath {
			if _, err := types.SetManifestRecord(manifest, name, filePath); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// SaveScheme writes the named scheme to the file its manifest record names,
// assigning "<name><ext>" next to the manifest when it has none, and clears
// its dirty flag. Unless skipManifest is set the manifest is saved after it.
// Saving the manifest itself is SaveManifest.
func (r *Registry) SaveScheme(ctx context.Context, name string, skipManifest bool) error {
	r.io.Lock()
	defer r.io.Unlock()

	if name == types.ManifestSchemeName {
		return r.saveManifestLocked(ctx)
	}
	if err := r.saveSchemeLocked(ctx, name); err != nil {
		return err
	}
	if skipManifest {
		return nil
	}
	return r.saveManifestLocked(ctx)
}

func (r *Registry) saveSchemeLocked(ctx context.Context, name string) error {
	s, err := r.Scheme(name)
	if err != nil {
		return err
	}
	manifest, ok := r.Manifest()
	if !ok {
		return types.Errorf(types.KindInvariant, "save scheme", types.Scope{Scheme: name}, "%w", types.ErrManifestNotLoaded)
	}

	rec, _, found := types.FindManifestRecord(manifest, name)
	filePath := rec.FilePath
	if !found || filePath == "" {
		filePath = name + r.format.Extension()
		if _, err := types.SetManifestRecord(manifest, name, filePath); err != nil {
			return err
		}
	}
	p := ResolvePath(r.ManifestPath(), filePath)
	format, ferr := r.formats.ForPath(p)
	if ferr != nil {
		format = r.format
	}

	err = storage.Save(ctx, r.fs, format, r.Scope(), s, p)
	r.metrics.ObserveStorage("save", format.Name(), err)
	if err != nil {
		r.logger.Error("scheme save failed", append([]zap.Field{zap.String("scheme", name), zap.String("path", p)}, logging.ErrorFields(err)...)...)
		return err
	}
	s.ClearDirty()
	r.logger.Debug("scheme saved", zap.String("scheme", name), zap.String("path", p))
	return nil
}

// SaveManifest writes the manifest. It fails when no manifest is registered
// or when the manifest does not list itself.
func (r *Registry) SaveManifest(ctx context.Context) error {
	r.io.Lock()
	defer r.io.Unlock()
	return r.saveManifestLocked(ctx)
}

func (r *Registry) saveManifestLocked(ctx context.Context) error {
	const op = "save manifest"
	manifest, ok := r.Manifest()
	p := r.ManifestPath()
	scope := types.Scope{Scheme: types.ManifestSchemeName, Path: p}
	if !ok || p == "" {
		return types.Errorf(types.KindInvariant, op, scope, "%w", types.ErrManifestNotLoaded)
	}
	if !types.HasSelfRecord(manifest) {
		return types.Errorf(types.KindInvariant, op, scope, "%w", types.ErrManifestSelfRecord)
	}
	err := storage.Save(ctx, r.fs, storage.NewJSON(), r.Scope(), manifest, p)
	r.metrics.ObserveStorage("save", storage.FormatJSON, err)
	if err != nil {
		r.logger.Error("manifest save failed", append([]zap.Field{zap.String("path", p)}, logging.ErrorFields(err)...)...)
		return err
	}
	manifest.ClearDirty()
	return nil
}

// SaveDirty saves every dirty scheme, then the manifest if it is dirty. A
// failed scheme keeps its dirty flag; the others are still saved. It returns
// the names saved and the joined failures.
func (r *Registry) SaveDirty(ctx context.Context) ([]string, error) {
	r.io.Lock()
	defer r.io.Unlock()

	var saved []string
	var errs []error
	for _, name := range r.SchemeNames() {
		if name == types.ManifestSchemeName {
			continue
		}
		s, ok := r.LookupScheme(name)
		if !ok || !s.IsDirty() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return saved, types.Cancelled("save dirty", types.Scope{Scheme: name}, err)
		}
		if err := r.saveSchemeLocked(ctx, name); err != nil {
			if types.IsCancelled(err) {
				return saved, err
			}
			errs = append(errs, err)
			continue
		}
		saved = append(saved, name)
	}
	if manifest, ok := r.Manifest(); ok && manifest.IsDirty() {
		if err := r.saveManifestLocked(ctx); err != nil {
			errs = append(errs, err)
		} else {
			saved = append(saved, types.ManifestSchemeName)
		}
	}
	return saved, errors.Join(errs...)
}

// SetManifestRecord records filePath for name in the registered manifest.
func (r *Registry) SetManifestRecord(name, filePath string) error {
	manifest, ok := r.Manifest()
	if !ok {
		return types.Errorf(types.KindInvariant, "set manifest record", types.Scope{Scheme: name}, "%w", types.ErrManifestNotLoaded)
	}
	_, err := types.SetManifestRecord(manifest, name, filePath)
	return err
}

// RemoveManifestRecord deletes the record for name and reports whether one
// existed.
func (r *Registry) RemoveManifestRecord(name string) bool {
	manifest, ok := r.Manifest()
	if !ok {
		return false
	}
	return types.RemoveManifestRecord(manifest, name)
}
