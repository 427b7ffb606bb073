package types

import (
	"encoding/json"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Built-in data type names. These are the serialization discriminators
// written as "TypeName".
const (
	TypeNameText     = "Text"
	TypeNameInteger  = "Integer"
	TypeNameDateTime = "DateTime"
	TypeNameFilePath = "FilePath"

	// ReferenceTypePrefix starts every Reference type name, which has the
	// form "Reference/<scheme>/<attribute>".
	ReferenceTypePrefix = "Reference"
)

// DataType describes the semantic kind of an attribute's values. DataType
// values are immutable; equality, not identity, decides whether two
// attributes share a type.
type DataType interface {
	// TypeName is the stable discriminator used when serializing.
	TypeName() string

	// DefaultValue returns a fresh copy of the value new entries receive.
	DefaultValue() any

	// IsValidValue reports whether value is already acceptable as stored.
	IsValidValue(scope Scope, value any) error

	// ConvertValue coerces value into the canonical stored form. Converting
	// an already converted value returns it unchanged.
	ConvertValue(scope Scope, value any) (any, error)

	// Equal reports whether other has the same name and parameters.
	Equal(other DataType) bool
}

// EqualTypes reports whether a and b describe the same type. Two nil types
// are equal.
func EqualTypes(a, b DataType) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

func conversionError(dt DataType, scope Scope, value any, err error) error {
	return Errorf(KindConversion, "convert "+dt.TypeName(), scope, "%w: %v (%T)", err, value, value)
}

func validationError(dt DataType, scope Scope, value any, err error) error {
	return Errorf(KindValidation, "validate "+dt.TypeName(), scope, "%w: %v (%T)", err, value, value)
}

// TextType stores free-form strings.
type TextType struct{}

func (TextType) TypeName() string  { return TypeNameText }
func (TextType) DefaultValue() any { return "" }

func (t TextType) IsValidValue(scope Scope, value any) error {
	if _, ok := value.(string); !ok {
		return validationError(t, scope, value, ErrTypeMismatch)
	}
	return nil
}

func (t TextType) ConvertValue(scope Scope, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return nil, conversionError(t, scope, value, ErrTypeMismatch)
	}
}

func (TextType) Equal(other DataType) bool {
	_, ok := other.(TextType)
	return ok
}

// IntegerType stores 64-bit signed integers.
type IntegerType struct{}

func (IntegerType) TypeName() string  { return TypeNameInteger }
func (IntegerType) DefaultValue() any { return int64(0) }

func (t IntegerType) IsValidValue(scope Scope, value any) error {
	switch value.(type) {
	case int64, int, int8, int16, int32, uint8, uint16, uint32:
		return nil
	default:
		return validationError(t, scope, value, ErrTypeMismatch)
	}
}

func (t IntegerType) ConvertValue(scope Scope, value any) (any, error) {
	n, err := toInt64(value)
	if err != nil {
		return nil, conversionError(t, scope, value, err)
	}
	return n, nil
}

func (IntegerType) Equal(other DataType) bool {
	_, ok := other.(IntegerType)
	return ok
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, ErrInvalidValue
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, ErrInvalidValue
		}
		return int64(v), nil
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	case json.Number:
		return v.Int64()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, ErrInvalidValue
		}
		return n, nil
	default:
		return 0, ErrTypeMismatch
	}
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, ErrInvalidValue
	}
	return int64(f), nil
}

// DateTimeType stores instants normalized to UTC.
type DateTimeType struct{}

func (DateTimeType) TypeName() string  { return TypeNameDateTime }
func (DateTimeType) DefaultValue() any { return time.Time{} }

func (t DateTimeType) IsValidValue(scope Scope, value any) error {
	if _, ok := value.(time.Time); !ok {
		return validationError(t, scope, value, ErrTypeMismatch)
	}
	return nil
}

func (t DateTimeType) ConvertValue(scope Scope, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v.UTC(), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, nil
		}
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC(), nil
		}
		// Bare numbers and partial dates such as "1.5" or "3/4" are not instants.
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return nil, conversionError(t, scope, value, ErrInvalidValue)
		}
		ts, err := dateparse.ParseIn(s, time.UTC)
		if err != nil || ts.Year() == 0 {
			return nil, conversionError(t, scope, value, ErrInvalidValue)
		}
		return ts.UTC(), nil
	default:
		n, err := toInt64(value)
		if err != nil {
			return nil, conversionError(t, scope, value, err)
		}
		return time.Unix(n, 0).UTC(), nil
	}
}

func (DateTimeType) Equal(other DataType) bool {
	_, ok := other.(DateTimeType)
	return ok
}

// FilePathType stores slash-separated, cleaned file paths. When
// UseRelativePath is set and BasePath is given, absolute paths are rewritten
// relative to BasePath.
type FilePathType struct {
	AllowEmptyPath  bool
	UseRelativePath bool
	BasePath        string
}

func (FilePathType) TypeName() string  { return TypeNameFilePath }
func (FilePathType) DefaultValue() any { return "" }

func (t FilePathType) IsValidValue(scope Scope, value any) error {
	s, ok := value.(string)
	if !ok {
		return validationError(t, scope, value, ErrTypeMismatch)
	}
	if s == "" && !t.AllowEmptyPath {
		return validationError(t, scope, value, ErrEmptyValue)
	}
	return nil
}

func (t FilePathType) ConvertValue(scope Scope, value any) (any, error) {
	var s string
	switch v := value.(type) {
	case nil:
	case string:
		s = strings.TrimSpace(v)
	default:
		return nil, conversionError(t, scope, value, ErrTypeMismatch)
	}
	if s == "" {
		if !t.AllowEmptyPath {
			return nil, conversionError(t, scope, value, ErrEmptyValue)
		}
		return "", nil
	}
	p := path.Clean(filepath.ToSlash(s))
	if t.UseRelativePath && t.BasePath != "" && filepath.IsAbs(filepath.FromSlash(p)) {
		rel, err := filepath.Rel(filepath.FromSlash(t.BasePath), filepath.FromSlash(p))
		if err != nil {
			return nil, conversionError(t, scope, value, ErrInvalidValue)
		}
		p = filepath.ToSlash(rel)
	}
	return p, nil
}

func (t FilePathType) Equal(other DataType) bool {
	o, ok := other.(FilePathType)
	return ok && o == t
}

// ReferenceType accepts values that exist among the identifier values of
// another scheme. The target is resolved through the scope's lookup each time
// a value is converted.
type ReferenceType struct {
	ReferenceSchemeName     string
	ReferenceAttributeName  string
	SupportsEmptyReferences bool
}

// NewReferenceType returns a reference to attribute in scheme.
func NewReferenceType(scheme, attribute string, allowEmpty bool) ReferenceType {
	return ReferenceType{
		ReferenceSchemeName:     scheme,
		ReferenceAttributeName:  attribute,
		SupportsEmptyReferences: allowEmpty,
	}
}

func (t ReferenceType) TypeName() string {
	return ReferenceTypePrefix + "/" + t.ReferenceSchemeName + "/" + t.ReferenceAttributeName
}

func (ReferenceType) DefaultValue() any { return "" }

func (t ReferenceType) IsValidValue(scope Scope, value any) error {
	_, err := t.ConvertValue(scope, value)
	if err != nil {
		return validationError(t, scope, value, err)
	}
	return nil
}

func (t ReferenceType) ConvertValue(scope Scope, value any) (any, error) {
	if isEmptyValue(value) {
		if !t.SupportsEmptyReferences {
			return nil, conversionError(t, scope, value, ErrEmptyValue)
		}
		return "", nil
	}
	values, err := t.identifierValues(scope)
	if err != nil {
		return nil, err
	}
	canonical, ok := values[ValueKey(value)]
	if !ok {
		return nil, Errorf(KindConversion, "convert "+t.TypeName(), scope,
			"%w: %v in %s.%s", ErrReferenceValueNotFound, value, t.ReferenceSchemeName, t.ReferenceAttributeName)
	}
	return canonical, nil
}

func (t ReferenceType) identifierValues(scope Scope) (map[string]any, error) {
	op := "resolve " + t.TypeName()
	if scope.Lookup == nil {
		return nil, Errorf(KindResolution, op, scope, "%w: %s (no scheme lookup)", ErrSchemeNotFound, t.ReferenceSchemeName)
	}
	if idx, ok := scope.Lookup.(IdentifierIndex); ok {
		return idx.IdentifierValues(t.ReferenceSchemeName, t.ReferenceAttributeName)
	}
	target, ok := scope.Lookup.LookupScheme(t.ReferenceSchemeName)
	if !ok {
		return nil, Errorf(KindResolution, op, scope, "%w: %s", ErrSchemeNotFound, t.ReferenceSchemeName)
	}
	return target.IdentifierValueSet(t.ReferenceAttributeName)
}

func (t ReferenceType) Equal(other DataType) bool {
	o, ok := other.(ReferenceType)
	return ok && o == t
}

// PluginType is the opaque variant for types the core does not know. It
// round-trips its name, default and payload without validating values;
// validation belongs to the host that registered the type.
type PluginType struct {
	Name    string
	Default any
	Payload map[string]any
}

func (t PluginType) TypeName() string  { return t.Name }
func (t PluginType) DefaultValue() any { return CloneValue(t.Default) }

func (PluginType) IsValidValue(Scope, any) error { return nil }

func (t PluginType) ConvertValue(_ Scope, value any) (any, error) {
	if value == nil {
		return t.DefaultValue(), nil
	}
	return value, nil
}

func (t PluginType) Equal(other DataType) bool {
	o, ok := other.(PluginType)
	if !ok || o.Name != t.Name || !reflect.DeepEqual(o.Default, t.Default) {
		return false
	}
	if len(o.Payload) == 0 && len(t.Payload) == 0 {
		return true
	}
	return reflect.DeepEqual(o.Payload, t.Payload)
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}
