package command

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// entryValues snapshots one attribute across every entry.
type entryValues struct {
	entry *types.DataEntry
	value any
}

func snapshot(s *types.DataScheme, attribute string) []entryValues {
	entries := s.Entries()
	out := make([]entryValues, len(entries))
	for i, e := range entries {
		out[i] = entryValues{entry: e, value: types.CloneValue(e.Value(attribute))}
	}
	return out
}

func restore(s *types.DataScheme, attribute string, values []entryValues) error {
	for _, v := range values {
		if s.IndexOfEntry(v.entry) < 0 {
			continue
		}
		if err := s.SetRawDataOnEntry(v.entry, attribute, types.CloneValue(v.value)); err != nil {
			return err
		}
	}
	return nil
}

type addAttribute struct {
	scheme *types.DataScheme
	attr   *types.AttributeDefinition
	index  int
}

// NewAddAttribute inserts attr at index; a negative index appends. Every
// entry gains the attribute's default value.
func NewAddAttribute(env *Env, scheme *types.DataScheme, attr *types.AttributeDefinition, index int) Command {
	return wrap(env, &addAttribute{scheme: scheme, attr: attr, index: index})
}

func (*addAttribute) name() string { return "AddAttribute" }

func (a *addAttribute) describe() string {
	if a.scheme == nil || a.attr == nil {
		return "add attribute"
	}
	return fmt.Sprintf("add attribute %s to %s", a.attr, a.scheme.SchemeName)
}

func (a *addAttribute) execute(_ context.Context, _ *Env) error {
	if err := requireScheme("add attribute", a.scheme); err != nil {
		return err
	}
	if a.index < 0 || a.index > a.scheme.AttributeCount() {
		a.index = a.scheme.AttributeCount()
	}
	return a.scheme.InsertAttribute(a.index, a.attr)
}

func (a *addAttribute) undo(_ context.Context, _ *Env) error {
	_, _, err := a.scheme.DeleteAttribute(a.attr.AttributeName)
	return err
}

type deleteAttribute struct {
	scheme    *types.DataScheme
	attribute string

	attr   *types.AttributeDefinition
	index  int
	values []entryValues
}

// NewDeleteAttribute removes an attribute and its values. Undo puts the
// definition back at its index with every entry's old value.
func NewDeleteAttribute(env *Env, scheme *types.DataScheme, attribute string) Command {
	return wrap(env, &deleteAttribute{scheme: scheme, attribute: attribute})
}

func (*deleteAttribute) name() string { return "DeleteAttribute" }

func (a *deleteAttribute) describe() string {
	if a.scheme == nil {
		return "delete attribute"
	}
	return fmt.Sprintf("delete attribute %s.%s", a.scheme.SchemeName, a.attribute)
}

func (a *deleteAttribute) execute(_ context.Context, _ *Env) error {
	if err := requireScheme("delete attribute", a.scheme); err != nil {
		return err
	}
	if a.scheme.IndexOfAttribute(a.attribute) < 0 {
		_, _, err := a.scheme.DeleteAttribute(a.attribute)
		return err
	}
	values := snapshot(a.scheme, a.attribute)
	attr, index, err := a.scheme.DeleteAttribute(a.attribute)
	if err != nil {
		return err
	}
	a.attr, a.index, a.values = attr, index, values
	return nil
}

func (a *deleteAttribute) undo(_ context.Context, _ *Env) error {
	if err := a.scheme.InsertAttribute(a.index, a.attr); err != nil {
		return err
	}
	return restore(a.scheme, a.attribute, a.values)
}

type renameAttribute struct {
	scheme *types.DataScheme
	from   string
	to     string
}

// NewRenameAttribute renames an attribute and the matching entry keys.
func NewRenameAttribute(env *Env, scheme *types.DataScheme, from, to string) Command {
	return wrap(env, &renameAttribute{scheme: scheme, from: from, to: to})
}

func (*renameAttribute) name() string { return "RenameAttribute" }

func (a *renameAttribute) describe() string {
	return fmt.Sprintf("rename attribute %s to %s", a.from, a.to)
}

func (a *renameAttribute) execute(_ context.Context, _ *Env) error {
	if err := requireScheme("rename attribute", a.scheme); err != nil {
		return err
	}
	return a.scheme.RenameAttribute(a.from, a.to)
}

func (a *renameAttribute) undo(_ context.Context, _ *Env) error {
	return a.scheme.RenameAttribute(a.to, a.from)
}

type moveAttribute struct {
	scheme    *types.DataScheme
	attribute string
	to        int
	from      int
}

// NewMoveAttribute moves an attribute to index to.
func NewMoveAttribute(env *Env, scheme *types.DataScheme, attribute string, to int) Command {
	return wrap(env, &moveAttribute{scheme: scheme, attribute: attribute, to: to, from: -1})
}

func (*moveAttribute) name() string { return "MoveAttribute" }

func (a *moveAttribute) describe() string {
	return fmt.Sprintf("move attribute %s to %d", a.attribute, a.to)
}

func (a *moveAttribute) execute(_ context.Context, _ *Env) error {
	if err := requireScheme("move attribute", a.scheme); err != nil {
		return err
	}
	from := a.scheme.IndexOfAttribute(a.attribute)
	if err := a.scheme.MoveAttribute(a.attribute, a.to); err != nil {
		return err
	}
	a.from = from
	return nil
}

func (a *moveAttribute) undo(_ context.Context, _ *Env) error {
	return a.scheme.MoveAttribute(a.attribute, a.from)
}

type updateAttributeType struct {
	scheme    *types.DataScheme
	attribute string
	dataType  types.DataType

	previous types.DataType
	values   []entryValues
}

// NewUpdateAttributeType changes an attribute's type, converting every value.
// When any value fails to convert nothing changes.
func NewUpdateAttributeType(env *Env, scheme *types.DataScheme, attribute string, dt types.DataType) Command {
	return wrap(env, &updateAttributeType{scheme: scheme, attribute: attribute, dataType: dt})
}

func (*updateAttributeType) name() string { return "UpdateAttributeType" }

func (a *updateAttributeType) describe() string {
	typeName := "<nil>"
	if a.dataType != nil {
		typeName = a.dataType.TypeName()
	}
	return fmt.Sprintf("change type of %s to %s", a.attribute, typeName)
}

func (a *updateAttributeType) execute(_ context.Context, env *Env) error {
	if err := requireScheme("update attribute type", a.scheme); err != nil {
		return err
	}
	attr, err := a.scheme.GetAttribute(a.attribute)
	if err != nil {
		return err
	}
	previous := attr.DataType
	values := snapshot(a.scheme, a.attribute)
	if err := a.scheme.UpdateAttributeType(env.scope(), a.attribute, a.dataType); err != nil {
		return err
	}
	a.previous, a.values = previous, values
	return nil
}

func (a *updateAttributeType) undo(_ context.Context, _ *Env) error {
	attr, err := a.scheme.GetAttribute(a.attribute)
	if err != nil {
		return err
	}
	attr.DataType = a.previous
	a.scheme.MarkDirty()
	return restore(a.scheme, a.attribute, a.values)
}
