package types

import (
	"fmt"
	"strings"
)

// DataScheme is a named table: ordered attributes and ordered entries. It owns
// both exclusively. Attribute order is display order and decides which
// identifier wins when looking one up. Every mutation marks the scheme dirty
// and advances its version.
type DataScheme struct {
	SchemeName string

	attributes []*AttributeDefinition
	entries    []*DataEntry
	dirty      bool
	version    uint64
}

// NewDataScheme returns an empty scheme.
func NewDataScheme(name string) *DataScheme {
	return &DataScheme{SchemeName: name}
}

// IsManifest reports whether s is the manifest scheme.
func (s *DataScheme) IsManifest() bool { return s.SchemeName == ManifestSchemeName }

// IsDirty reports unsaved mutations since the last successful save.
func (s *DataScheme) IsDirty() bool { return s.dirty }

// MarkDirty flags the scheme as modified.
func (s *DataScheme) MarkDirty() {
	s.dirty = true
	s.version++
}

// ClearDirty is called after a successful save.
func (s *DataScheme) ClearDirty() { s.dirty = false }

// Version increases on every mutation. Caches key on it.
func (s *DataScheme) Version() uint64 { return s.version }

func (s *DataScheme) scope() Scope {
	return Scope{Scheme: s.SchemeName}
}

func (s *DataScheme) invariant(op, attr string, err error, format string, args ...any) error {
	scope := Scope{Scheme: s.SchemeName, Attribute: attr}
	if format == "" {
		return NewError(KindInvariant, op, scope, err)
	}
	return Errorf(KindInvariant, op, scope, "%w: "+format, append([]any{err}, args...)...)
}

func (s *DataScheme) notFound(op, attr string, err error, what any) error {
	return Errorf(KindResolution, op, Scope{Scheme: s.SchemeName, Attribute: attr}, "%w: %v", err, what)
}

// Attributes

// Attributes returns the attributes in order. The slice is a copy; the
// definitions are shared.
func (s *DataScheme) Attributes() []*AttributeDefinition {
	out := make([]*AttributeDefinition, len(s.attributes))
	copy(out, s.attributes)
	return out
}

// AttributeCount returns the number of attributes.
func (s *DataScheme) AttributeCount() int { return len(s.attributes) }

// AttributeNames returns attribute names in order.
func (s *DataScheme) AttributeNames() []string {
	names := make([]string, len(s.attributes))
	for i, a := range s.attributes {
		names[i] = a.AttributeName
	}
	return names
}

// IndexOfAttribute returns the position of the named attribute or -1.
func (s *DataScheme) IndexOfAttribute(name string) int {
	for i, a := range s.attributes {
		if a.AttributeName == name {
			return i
		}
	}
	return -1
}

// GetAttribute returns the named attribute.
func (s *DataScheme) GetAttribute(name string) (*AttributeDefinition, error) {
	if i := s.IndexOfAttribute(name); i >= 0 {
		return s.attributes[i], nil
	}
	return nil, s.notFound("get attribute", name, ErrAttributeNotFound, name)
}

// AttributeAt returns the attribute at index.
func (s *DataScheme) AttributeAt(index int) (*AttributeDefinition, error) {
	if index < 0 || index >= len(s.attributes) {
		return nil, s.invariant("attribute at", "", ErrIndexOutOfRange, "%d", index)
	}
	return s.attributes[index], nil
}

// IdentifierAttribute returns the first attribute flagged as identifier.
func (s *DataScheme) IdentifierAttribute() (*AttributeDefinition, bool) {
	for _, a := range s.attributes {
		if a.IsIdentifier {
			return a, true
		}
	}
	return nil, false
}

func (s *DataScheme) checkNewAttribute(op string, attr *AttributeDefinition) error {
	if attr == nil {
		return s.invariant(op, "", ErrNilArgument, "")
	}
	name := strings.TrimSpace(attr.AttributeName)
	if name == "" || name != attr.AttributeName {
		return s.invariant(op, attr.AttributeName, ErrInvalidName, "%q", attr.AttributeName)
	}
	if attr.DataType == nil {
		return s.invariant(op, name, ErrNilArgument, "attribute %q has no data type", name)
	}
	if attr.scheme != nil && attr.scheme != s {
		return s.invariant(op, name, ErrInvalidName, "attribute %q belongs to scheme %q", name, attr.scheme.SchemeName)
	}
	if s.IndexOfAttribute(name) >= 0 {
		return s.invariant(op, name, ErrDuplicateAttribute, "%q", name)
	}
	if attr.IsIdentifier {
		if id, ok := s.IdentifierAttribute(); ok {
			return s.invariant(op, name, ErrMultipleIdentifiers, "%q", id.AttributeName)
		}
	}
	return nil
}

// AddAttribute appends attr and gives every entry a cloned default value for it.
func (s *DataScheme) AddAttribute(attr *AttributeDefinition) error {
	return s.InsertAttribute(len(s.attributes), attr)
}

// CreateAttribute is a shorthand for AddAttribute(NewAttribute(name, dt)).
func (s *DataScheme) CreateAttribute(name string, dt DataType) (*AttributeDefinition, error) {
	attr := NewAttribute(name, dt)
	if err := s.AddAttribute(attr); err != nil {
		return nil, err
	}
	return attr, nil
}

// InsertAttribute places attr at index and gives every entry a cloned default.
func (s *DataScheme) InsertAttribute(index int, attr *AttributeDefinition) error {
	const op = "insert attribute"
	if err := s.checkNewAttribute(op, attr); err != nil {
		return err
	}
	if index < 0 || index > len(s.attributes) {
		return s.invariant(op, attr.AttributeName, ErrIndexOutOfRange, "%d", index)
	}
	attr.scheme = s
	s.attributes = append(s.attributes, nil)
	copy(s.attributes[index+1:], s.attributes[index:])
	s.attributes[index] = attr
	order := s.AttributeNames()
	for _, e := range s.entries {
		e.Set(attr.AttributeName, attr.CloneDefaultValue())
		e.reorder(order)
	}
	s.MarkDirty()
	return nil
}

// DeleteAttribute removes the named attribute and its key from every entry.
// It returns the removed definition and its former index.
func (s *DataScheme) DeleteAttribute(name string) (*AttributeDefinition, int, error) {
	i := s.IndexOfAttribute(name)
	if i < 0 {
		return nil, -1, s.notFound("delete attribute", name, ErrAttributeNotFound, name)
	}
	attr := s.attributes[i]
	s.attributes = append(s.attributes[:i], s.attributes[i+1:]...)
	for _, e := range s.entries {
		e.Delete(name)
	}
	attr.scheme = nil
	s.MarkDirty()
	return attr, i, nil
}

// RenameAttribute renames an attribute and the matching key of every entry.
func (s *DataScheme) RenameAttribute(oldName, newName string) error {
	const op = "rename attribute"
	attr, err := s.GetAttribute(oldName)
	if err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}
	if strings.TrimSpace(newName) == "" || strings.TrimSpace(newName) != newName {
		return s.invariant(op, oldName, ErrInvalidName, "%q", newName)
	}
	if s.IndexOfAttribute(newName) >= 0 {
		return s.invariant(op, oldName, ErrDuplicateAttribute, "%q", newName)
	}
	attr.AttributeName = newName
	for _, e := range s.entries {
		e.Rename(oldName, newName)
	}
	s.MarkDirty()
	return nil
}

// MoveAttribute moves the named attribute to newIndex, reordering entry keys.
func (s *DataScheme) MoveAttribute(name string, newIndex int) error {
	i := s.IndexOfAttribute(name)
	if i < 0 {
		return s.notFound("move attribute", name, ErrAttributeNotFound, name)
	}
	if newIndex < 0 || newIndex >= len(s.attributes) {
		return s.invariant("move attribute", name, ErrIndexOutOfRange, "%d", newIndex)
	}
	if i == newIndex {
		return nil
	}
	attr := s.attributes[i]
	s.attributes = append(s.attributes[:i], s.attributes[i+1:]...)
	s.attributes = append(s.attributes[:newIndex], append([]*AttributeDefinition{attr}, s.attributes[newIndex:]...)...)
	order := s.AttributeNames()
	for _, e := range s.entries {
		e.reorder(order)
	}
	s.MarkDirty()
	return nil
}

// UpdateAttributeType changes the named attribute's type, converting every
// entry's value. When any value fails to convert nothing is changed.
func (s *DataScheme) UpdateAttributeType(scope Scope, name string, dt DataType) error {
	const op = "update attribute type"
	attr, err := s.GetAttribute(name)
	if err != nil {
		return err
	}
	if dt == nil {
		return s.invariant(op, name, ErrNilArgument, "")
	}
	if EqualTypes(attr.DataType, dt) {
		return nil
	}
	scope = scope.Merge(Scope{Scheme: s.SchemeName, Attribute: name})
	converted := make([]any, len(s.entries))
	for i, e := range s.entries {
		v, err := dt.ConvertValue(scope, e.Value(name))
		if err != nil {
			return Errorf(KindConversion, op, scope, "entry %d: %w", i, err)
		}
		converted[i] = v
	}
	attr.DataType = dt
	for i, e := range s.entries {
		e.Set(name, converted[i])
	}
	s.MarkDirty()
	return nil
}

// SetIdentifier makes the named attribute the identifier, clearing the flag
// on any other attribute. An empty name clears the identifier.
func (s *DataScheme) SetIdentifier(name string) error {
	if name != "" && s.IndexOfAttribute(name) < 0 {
		return s.notFound("set identifier", name, ErrAttributeNotFound, name)
	}
	for _, a := range s.attributes {
		a.IsIdentifier = a.AttributeName == name
	}
	s.MarkDirty()
	return nil
}

// Entries

// Entries returns the entries in order. The slice is a copy.
func (s *DataScheme) Entries() []*DataEntry {
	out := make([]*DataEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// EntryCount returns the number of entries.
func (s *DataScheme) EntryCount() int { return len(s.entries) }

// EntryAt returns the entry at index.
func (s *DataScheme) EntryAt(index int) (*DataEntry, error) {
	if index < 0 || index >= len(s.entries) {
		return nil, s.invariant("entry at", "", ErrIndexOutOfRange, "%d", index)
	}
	return s.entries[index], nil
}

// IndexOfEntry returns the position of e (by identity) or -1.
func (s *DataScheme) IndexOfEntry(e *DataEntry) int {
	for i, x := range s.entries {
		if x == e {
			return i
		}
	}
	return -1
}

// CreateEntry appends a new entry holding every attribute's default.
func (s *DataScheme) CreateEntry() *DataEntry {
	e := NewDataEntry()
	for _, a := range s.attributes {
		e.Set(a.AttributeName, a.CloneDefaultValue())
	}
	e.owner = s
	s.entries = append(s.entries, e)
	s.MarkDirty()
	return e
}

// AddEntry appends e. Missing attributes are filled with defaults; keys that
// name no attribute are rejected.
func (s *DataScheme) AddEntry(e *DataEntry) error {
	return s.InsertEntry(len(s.entries), e)
}

// InsertEntry places e at index, syncing its keys with the attribute list.
func (s *DataScheme) InsertEntry(index int, e *DataEntry) error {
	const op = "insert entry"
	if e == nil {
		return s.invariant(op, "", ErrNilArgument, "")
	}
	if index < 0 || index > len(s.entries) {
		return s.invariant(op, "", ErrIndexOutOfRange, "%d", index)
	}
	if s.IndexOfEntry(e) >= 0 {
		return s.invariant(op, "", ErrInvalidValue, "entry already in scheme")
	}
	for _, k := range e.keys {
		if s.IndexOfAttribute(k) < 0 {
			return s.notFound(op, k, ErrAttributeNotFound, k)
		}
	}
	for _, a := range s.attributes {
		if !e.Has(a.AttributeName) {
			e.Set(a.AttributeName, a.CloneDefaultValue())
		}
	}
	e.reorder(s.AttributeNames())
	s.entries = append(s.entries, nil)
	copy(s.entries[index+1:], s.entries[index:])
	s.entries[index] = e
	e.owner = s
	s.MarkDirty()
	return nil
}

// DeleteEntry removes e and returns the index it occupied.
func (s *DataScheme) DeleteEntry(e *DataEntry) (int, error) {
	i := s.IndexOfEntry(e)
	if i < 0 {
		return -1, s.notFound("delete entry", "", ErrEntryNotFound, "entry not in scheme")
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	if e.owner == s {
		e.owner = nil
	}
	s.MarkDirty()
	return i, nil
}

// DeleteEntryAt removes and returns the entry at index.
func (s *DataScheme) DeleteEntryAt(index int) (*DataEntry, error) {
	e, err := s.EntryAt(index)
	if err != nil {
		return nil, err
	}
	_, err = s.DeleteEntry(e)
	return e, err
}

// MoveEntry moves e to newIndex.
func (s *DataScheme) MoveEntry(e *DataEntry, newIndex int) error {
	i := s.IndexOfEntry(e)
	if i < 0 {
		return s.notFound("move entry", "", ErrEntryNotFound, "entry not in scheme")
	}
	if newIndex < 0 || newIndex >= len(s.entries) {
		return s.invariant("move entry", "", ErrIndexOutOfRange, "%d", newIndex)
	}
	if i == newIndex {
		return nil
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.entries = append(s.entries[:newIndex], append([]*DataEntry{e}, s.entries[newIndex:]...)...)
	s.MarkDirty()
	return nil
}

// SetDataOnEntry converts value with the attribute's type and stores it on e.
func (s *DataScheme) SetDataOnEntry(scope Scope, e *DataEntry, name string, value any) error {
	attr, err := s.GetAttribute(name)
	if err != nil {
		return err
	}
	v, err := attr.DataType.ConvertValue(scope.Merge(Scope{Scheme: s.SchemeName, Attribute: name}), value)
	if err != nil {
		return err
	}
	return s.SetRawDataOnEntry(e, name, v)
}

// SetRawDataOnEntry stores value on e without conversion. Undo uses it to
// restore exact prior values, nil included.
func (s *DataScheme) SetRawDataOnEntry(e *DataEntry, name string, value any) error {
	if s.IndexOfAttribute(name) < 0 {
		return s.notFound("set data", name, ErrAttributeNotFound, name)
	}
	if s.IndexOfEntry(e) < 0 {
		return s.notFound("set data", name, ErrEntryNotFound, "entry not in scheme")
	}
	e.Set(name, value)
	s.MarkDirty()
	return nil
}

// FindEntry returns the first entry whose value for name matches value.
func (s *DataScheme) FindEntry(name string, value any) (*DataEntry, int, bool) {
	key := ValueKey(value)
	for i, e := range s.entries {
		if v, ok := e.Get(name); ok && ValueKey(v) == key {
			return e, i, true
		}
	}
	return nil, -1, false
}

// IdentifierValues returns the identifier attribute's value for every entry.
func (s *DataScheme) IdentifierValues() ([]any, error) {
	attr, ok := s.IdentifierAttribute()
	if !ok {
		return nil, s.invariant("identifier values", "", ErrNoIdentifier, "")
	}
	out := make([]any, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Value(attr.AttributeName))
	}
	return out, nil
}

// IdentifierValueSet indexes the values of the named identifier attribute by
// ValueKey. An empty name selects the scheme's identifier attribute.
func (s *DataScheme) IdentifierValueSet(name string) (map[string]any, error) {
	const op = "identifier values"
	var attr *AttributeDefinition
	if name == "" {
		a, ok := s.IdentifierAttribute()
		if !ok {
			return nil, Errorf(KindResolution, op, s.scope(), "%w", ErrNoIdentifier)
		}
		attr = a
	} else {
		a, err := s.GetAttribute(name)
		if err != nil {
			return nil, err
		}
		if !a.IsIdentifier {
			return nil, Errorf(KindResolution, op, Scope{Scheme: s.SchemeName, Attribute: name},
				"%w: %q is not the identifier", ErrNoIdentifier, name)
		}
		attr = a
	}
	set := make(map[string]any, len(s.entries))
	for _, e := range s.entries {
		v := e.Value(attr.AttributeName)
		if isEmptyValue(v) {
			continue
		}
		set[ValueKey(v)] = v
	}
	return set, nil
}

// Clone returns a deep copy that is not dirty.
func (s *DataScheme) Clone() *DataScheme {
	c := NewDataScheme(s.SchemeName)
	for _, a := range s.attributes {
		ac := a.Clone()
		ac.scheme = c
		c.attributes = append(c.attributes, ac)
	}
	for _, e := range s.entries {
		ec := e.Clone()
		ec.owner = c
		c.entries = append(c.entries, ec)
	}
	return c
}

// Equal compares name, attribute order and types, and entry values.
func (s *DataScheme) Equal(o *DataScheme) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.SchemeName != o.SchemeName || len(s.attributes) != len(o.attributes) || len(s.entries) != len(o.entries) {
		return false
	}
	for i := range s.attributes {
		if !s.attributes[i].Equal(o.attributes[i]) {
			return false
		}
	}
	for i := range s.entries {
		if !s.entries[i].Equal(o.entries[i]) {
			return false
		}
	}
	return true
}

func (s *DataScheme) String() string {
	return fmt.Sprintf("%s(%d attributes, %d entries)", s.SchemeName, len(s.attributes), len(s.entries))
}
