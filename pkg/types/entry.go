package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// DataEntry is one row: an ordered mapping from attribute name to a loosely
// typed value (string, int64, time.Time, nil, or a host payload). Lookups are
// by name. While an entry sits in a scheme, editing it directly marks that
// scheme dirty and advances its version.
type DataEntry struct {
	keys   []string
	values map[string]any
	owner  *DataScheme
}

// NewDataEntry returns an empty entry.
func NewDataEntry() *DataEntry {
	return &DataEntry{values: make(map[string]any)}
}

// NewDataEntryWith returns an entry holding the given pairs in order. Pairs
// alternate key and value; a trailing key without a value is set to nil.
func NewDataEntryWith(pairs ...any) *DataEntry {
	e := NewDataEntry()
	for i := 0; i < len(pairs); i += 2 {
		key := fmt.Sprint(pairs[i])
		var v any
		if i+1 < len(pairs) {
			v = pairs[i+1]
		}
		e.Set(key, v)
	}
	return e
}

// Get returns the value stored under key.
func (e *DataEntry) Get(key string) (any, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Value returns the value under key or nil.
func (e *DataEntry) Value(key string) any { return e.values[key] }

// Has reports whether key is present.
func (e *DataEntry) Has(key string) bool {
	_, ok := e.values[key]
	return ok
}

// Set stores value under key, appending key when new.
func (e *DataEntry) Set(key string, value any) {
	if e.values == nil {
		e.values = make(map[string]any)
	}
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
	e.touch()
}

func (e *DataEntry) touch() {
	if e.owner != nil {
		e.owner.MarkDirty()
	}
}

// Delete removes key and reports whether it was present.
func (e *DataEntry) Delete(key string) bool {
	if _, ok := e.values[key]; !ok {
		return false
	}
	delete(e.values, key)
	for i, k := range e.keys {
		if k == key {
			e.keys = append(e.keys[:i], e.keys[i+1:]...)
			break
		}
	}
	e.touch()
	return true
}

// Rename moves the value under oldKey to newKey keeping its position.
func (e *DataEntry) Rename(oldKey, newKey string) bool {
	v, ok := e.values[oldKey]
	if !ok || oldKey == newKey {
		return ok
	}
	if _, taken := e.values[newKey]; taken {
		e.Delete(newKey)
	}
	delete(e.values, oldKey)
	e.values[newKey] = v
	for i, k := range e.keys {
		if k == oldKey {
			e.keys[i] = newKey
			break
		}
	}
	e.touch()
	return true
}

// Keys returns the keys in order.
func (e *DataEntry) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Len returns the number of keys.
func (e *DataEntry) Len() int { return len(e.keys) }

// Clone returns a deep copy.
func (e *DataEntry) Clone() *DataEntry {
	c := &DataEntry{keys: make([]string, len(e.keys)), values: make(map[string]any, len(e.values))}
	copy(c.keys, e.keys)
	for k, v := range e.values {
		c.values[k] = CloneValue(v)
	}
	return c
}

// Equal compares keys, order and values.
func (e *DataEntry) Equal(o *DataEntry) bool {
	if e == nil || o == nil {
		return e == o
	}
	if !reflect.DeepEqual(e.keys, o.keys) && !(len(e.keys) == 0 && len(o.keys) == 0) {
		return false
	}
	for _, k := range e.keys {
		if !reflect.DeepEqual(e.values[k], o.values[k]) {
			return false
		}
	}
	return true
}

// reorder puts keys listed in order first, in that order, keeping any others
// after them.
func (e *DataEntry) reorder(order []string) {
	keys := make([]string, 0, len(e.keys))
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := e.values[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	for _, k := range e.keys {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	e.keys = keys
}

// MarshalJSON writes the entry as a plain object in key order.
func (e *DataEntry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, fmt.Errorf("entry value %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a plain object preserving key order. Integral numbers
// decode as int64.
func (e *DataEntry) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: entry must be a JSON object", ErrMalformedInput)
	}
	e.keys = nil
	e.values = make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: entry key %v", ErrMalformedInput, tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		e.Set(key, normalizeJSONValue(v))
	}
	_, err = dec.Token()
	return err
}
