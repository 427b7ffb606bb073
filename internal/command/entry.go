package command

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// setData sets one attribute of one entry.
type setData struct {
	scheme    *types.DataScheme
	entry     *types.DataEntry
	attribute string
	value     any

	captured bool
	previous any
}

// NewSetDataOnEntry converts value with the attribute's type and stores it on
// entry. Undo restores the exact prior raw value, nil included.
func NewSetDataOnEntry(env *Env, scheme *types.DataScheme, entry *types.DataEntry, attribute string, value any) Command {
	return wrap(env, &setData{scheme: scheme, entry: entry, attribute: attribute, value: value})
}

func (*setData) name() string { return "SetDataOnEntry" }

func (a *setData) describe() string {
	if a.scheme == nil {
		return "set data"
	}
	return fmt.Sprintf("set %s.%s = %v", entryLabel(a.scheme, a.entry), a.attribute, a.value)
}

func (a *setData) execute(_ context.Context, env *Env) error {
	if err := requireScheme("set data", a.scheme); err != nil {
		return err
	}
	if a.entry == nil {
		return types.Errorf(types.KindInvariant, "set data", types.Scope{Scheme: a.scheme.SchemeName}, "%w: entry", types.ErrNilArgument)
	}
	prev, _ := a.entry.Get(a.attribute)
	if err := a.scheme.SetDataOnEntry(env.scope(), a.entry, a.attribute, a.value); err != nil {
		return err
	}
	if !a.captured {
		a.previous = types.CloneValue(prev)
		a.captured = true
	}
	return nil
}

func (a *setData) undo(_ context.Context, _ *Env) error {
	return a.scheme.SetRawDataOnEntry(a.entry, a.attribute, types.CloneValue(a.previous))
}

// addEntry inserts an entry.
type addEntry struct {
	scheme *types.DataScheme
	entry  *types.DataEntry
	index  int
}

// NewAddEntry inserts entry at index; a negative index appends. A nil entry
// creates one holding every attribute's default.
func NewAddEntry(env *Env, scheme *types.DataScheme, entry *types.DataEntry, index int) Command {
	return wrap(env, &addEntry{scheme: scheme, entry: entry, index: index})
}

func (*addEntry) name() string { return "AddEntry" }

func (a *addEntry) describe() string {
	if a.scheme == nil {
		return "add entry"
	}
	return fmt.Sprintf("add entry to %s at %d", a.scheme.SchemeName, a.index)
}

func (a *addEntry) execute(_ context.Context, _ *Env) error {
	if err := requireScheme("add entry", a.scheme); err != nil {
		return err
	}
	if a.entry == nil {
		a.entry = types.NewDataEntry()
	}
	if a.index < 0 || a.index > a.scheme.EntryCount() {
		a.index = a.scheme.EntryCount()
	}
	return a.scheme.InsertEntry(a.index, a.entry)
}

func (a *addEntry) undo(_ context.Context, _ *Env) error {
	_, err := a.scheme.DeleteEntry(a.entry)
	return err
}

// Entry returns the inserted entry once the command has executed.
func Entry(c Command) (*types.DataEntry, bool) {
	cmd, ok := c.(*command)
	if !ok {
		return nil, false
	}
	if a, ok := cmd.act.(*addEntry); ok && a.entry != nil {
		return a.entry, true
	}
	return nil, false
}

// deleteEntry removes an entry. On the manifest it also unloads the scheme
// the removed record named, and undo registers it again.
type deleteEntry struct {
	scheme *types.DataScheme
	entry  *types.DataEntry

	index    int
	unloaded *types.DataScheme
}

// NewDeleteEntry removes entry from scheme. Undo re-inserts it at its
// original index.
func NewDeleteEntry(env *Env, scheme *types.DataScheme, entry *types.DataEntry) Command {
	return wrap(env, &deleteEntry{scheme: scheme, entry: entry, index: -1})
}

func (*deleteEntry) name() string { return "DeleteEntry" }

func (a *deleteEntry) describe() string {
	if a.scheme == nil {
		return "delete entry"
	}
	return fmt.Sprintf("delete entry %d of %s", a.index, a.scheme.SchemeName)
}

func (a *deleteEntry) execute(_ context.Context, env *Env) error {
	const op = "delete entry"
	if err := requireScheme(op, a.scheme); err != nil {
		return err
	}
	var record string
	if a.scheme.IsManifest() && a.entry != nil {
		record, _ = a.entry.Value(types.ManifestAttrSchemeName).(string)
		if record == types.ManifestSchemeName {
			return types.Errorf(types.KindInvariant, op, types.Scope{Scheme: a.scheme.SchemeName}, "%w: the manifest's own record", types.ErrManifestSchemeTarget)
		}
	}
	i, err := a.scheme.DeleteEntry(a.entry)
	if err != nil {
		return err
	}
	a.index = i
	a.unloaded = nil
	if record != "" && env != nil && env.Registry != nil {
		a.unloaded, _ = env.Registry.Unload(record)
	}
	return nil
}

func (a *deleteEntry) undo(_ context.Context, env *Env) error {
	if err := a.scheme.InsertEntry(a.index, a.entry); err != nil {
		return err
	}
	if a.unloaded != nil && env != nil && env.Registry != nil {
		if err := env.Registry.AddScheme(a.unloaded, true); err != nil {
			return err
		}
		a.unloaded = nil
	}
	return nil
}

// moveEntry reorders an entry.
type moveEntry struct {
	scheme *types.DataScheme
	entry  *types.DataEntry
	to     int
	from   int
}

// NewMoveEntry moves entry to index to.
func NewMoveEntry(env *Env, scheme *types.DataScheme, entry *types.DataEntry, to int) Command {
	return wrap(env, &moveEntry{scheme: scheme, entry: entry, to: to, from: -1})
}

func (*moveEntry) name() string { return "MoveEntry" }

func (a *moveEntry) describe() string {
	if a.scheme == nil {
		return "move entry"
	}
	return fmt.Sprintf("move entry of %s from %d to %d", a.scheme.SchemeName, a.from, a.to)
}

func (a *moveEntry) execute(_ context.Context, _ *Env) error {
	if err := requireScheme("move entry", a.scheme); err != nil {
		return err
	}
	from := a.scheme.IndexOfEntry(a.entry)
	if err := a.scheme.MoveEntry(a.entry, a.to); err != nil {
		return err
	}
	a.from = from
	return nil
}

func (a *moveEntry) undo(_ context.Context, _ *Env) error {
	return a.scheme.MoveEntry(a.entry, a.from)
}
