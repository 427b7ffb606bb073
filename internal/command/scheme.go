package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/schematic/internal/registry"
	"github.com/mesh-intelligence/schematic/pkg/types"
)

func requireRegistry(op string, env *Env) error {
	if env == nil || env.Registry == nil {
		return types.Errorf(types.KindInvariant, op, types.Scope{}, "%w: registry", types.ErrNilArgument)
	}
	return nil
}

// manifestRecord remembers a manifest entry and where it sat.
type manifestRecord struct {
	entry *types.DataEntry
	index int
}

// takeRecord removes the manifest record for name, if any.
func takeRecord(env *Env, name string) (*manifestRecord, error) {
	manifest, ok := env.Registry.Manifest()
	if !ok {
		return nil, nil
	}
	_, e, found := types.FindManifestRecord(manifest, name)
	if !found {
		return nil, nil
	}
	i, err := manifest.DeleteEntry(e)
	if err != nil {
		return nil, err
	}
	return &manifestRecord{entry: e, index: i}, nil
}

// putRecord restores a record taken by takeRecord.
func putRecord(env *Env, rec *manifestRecord) error {
	if rec == nil {
		return nil
	}
	manifest, ok := env.Registry.Manifest()
	if !ok {
		return nil
	}
	index := rec.index
	if index > manifest.EntryCount() {
		index = manifest.EntryCount()
	}
	return manifest.InsertEntry(index, rec.entry)
}

type createScheme struct {
	scheme   *types.DataScheme
	filePath string
}

// NewCreateDataScheme registers scheme and lists it in the manifest with
// filePath (empty means not yet persisted). Undo unregisters it and removes
// the record.
func NewCreateDataScheme(env *Env, scheme *types.DataScheme, filePath string) Command {
	return wrap(env, &createScheme{scheme: scheme, filePath: filePath})
}

func (*createScheme) name() string { return "CreateDataScheme" }

func (a *createScheme) describe() string {
	if a.scheme == nil {
		return "create scheme"
	}
	return "create scheme " + a.scheme.SchemeName
}

func (a *createScheme) execute(_ context.Context, env *Env) error {
	const op = "create scheme"
	if err := requireScheme(op, a.scheme); err != nil {
		return err
	}
	if err := requireRegistry(op, env); err != nil {
		return err
	}
	scope := types.Scope{Scheme: a.scheme.SchemeName}
	if strings.TrimSpace(a.scheme.SchemeName) == "" {
		return types.Errorf(types.KindInvariant, op, scope, "%w: empty scheme name", types.ErrInvalidName)
	}
	if a.scheme.IsManifest() {
		return types.Errorf(types.KindInvariant, op, scope, "%w", types.ErrManifestSchemeTarget)
	}
	if err := env.Registry.AddScheme(a.scheme, false); err != nil {
		return err
	}
	if manifest, ok := env.Registry.Manifest(); ok {
		if _, err := types.SetManifestRecord(manifest, a.scheme.SchemeName, a.filePath); err != nil {
			env.Registry.Unload(a.scheme.SchemeName)
			return err
		}
	}
	a.scheme.MarkDirty()
	return nil
}

func (a *createScheme) undo(_ context.Context, env *Env) error {
	env.Registry.Unload(a.scheme.SchemeName)
	env.Registry.RemoveManifestRecord(a.scheme.SchemeName)
	return nil
}

type loadScheme struct {
	schemeName string
	filePath   string
	overwrite  bool

	loadedName string
	previous   *types.DataScheme
	record     *types.ManifestRecord
}

// NewLoadDataScheme reads filePath (relative to the manifest), registers the
// scheme and records it in the manifest. An empty name takes the file's base
// name. Undo restores the previously registered scheme and manifest record.
func NewLoadDataScheme(env *Env, name, filePath string, overwrite bool) Command {
	return wrap(env, &loadScheme{schemeName: name, filePath: filePath, overwrite: overwrite})
}

func (*loadScheme) name() string { return "LoadDataScheme" }

func (a *loadScheme) describe() string {
	return fmt.Sprintf("load scheme %s from %s", a.schemeName, a.filePath)
}

func (a *loadScheme) execute(ctx context.Context, env *Env) error {
	if err := requireRegistry("load scheme", env); err != nil {
		return err
	}
	name := a.schemeName
	if name == "" {
		name = registry.SchemeNameFromPath(a.filePath)
	}
	previous, _ := env.Registry.LookupScheme(name)
	record := currentRecord(env, name)
	s, err := env.Registry.LoadScheme(ctx, name, a.filePath, a.overwrite)
	if err != nil {
		return err
	}
	a.loadedName, a.previous, a.record = s.SchemeName, previous, record
	return nil
}

func currentRecord(env *Env, name string) *types.ManifestRecord {
	manifest, ok := env.Registry.Manifest()
	if !ok {
		return nil
	}
	rec, _, found := types.FindManifestRecord(manifest, name)
	if !found {
		return nil
	}
	return &rec
}

func (a *loadScheme) undo(_ context.Context, env *Env) error {
	env.Registry.Unload(a.loadedName)
	if a.previous != nil {
		if err := env.Registry.AddScheme(a.previous, true); err != nil {
			return err
		}
	}
	if _, ok := env.Registry.Manifest(); !ok {
		return nil
	}
	if a.record == nil {
		env.Registry.RemoveManifestRecord(a.loadedName)
		return nil
	}
	return env.Registry.SetManifestRecord(a.loadedName, a.record.FilePath)
}

type unloadScheme struct {
	schemeName   string
	removeRecord bool

	scheme *types.DataScheme
	record *manifestRecord
}

// NewUnloadDataScheme unregisters a scheme, and with removeRecord also drops
// its manifest record. Undo registers the same scheme value again.
func NewUnloadDataScheme(env *Env, name string, removeRecord bool) Command {
	return wrap(env, &unloadScheme{schemeName: name, removeRecord: removeRecord})
}

func (*unloadScheme) name() string { return "UnloadDataScheme" }

func (a *unloadScheme) describe() string { return "unload scheme " + a.schemeName }

func (a *unloadScheme) execute(_ context.Context, env *Env) error {
	const op = "unload scheme"
	if err := requireRegistry(op, env); err != nil {
		return err
	}
	scope := types.Scope{Scheme: a.schemeName}
	if a.schemeName == types.ManifestSchemeName {
		return types.Errorf(types.KindInvariant, op, scope, "%w", types.ErrManifestSchemeTarget)
	}
	s, err := env.Registry.Scheme(a.schemeName)
	if err != nil {
		return err
	}
	var record *manifestRecord
	if a.removeRecord {
		if record, err = takeRecord(env, a.schemeName); err != nil {
			return err
		}
	}
	env.Registry.Unload(a.schemeName)
	a.scheme, a.record = s, record
	return nil
}

func (a *unloadScheme) undo(_ context.Context, env *Env) error {
	if err := env.Registry.AddScheme(a.scheme, false); err != nil {
		return err
	}
	return putRecord(env, a.record)
}
