package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupMap map[string]*DataScheme

func (m lookupMap) LookupScheme(name string) (*DataScheme, bool) {
	s, ok := m[name]
	return s, ok
}

func TestConvertValueIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		dt    DataType
		input any
	}{
		{"text from string", TextType{}, "hello"},
		{"text from int", TextType{}, 42},
		{"text from time", TextType{}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"integer from string", IntegerType{}, " 123 "},
		{"integer from float", IntegerType{}, float64(7)},
		{"integer from nil", IntegerType{}, nil},
		{"datetime from rfc3339", DateTimeType{}, "2024-05-06T07:08:09+02:00"},
		{"datetime from free form", DateTimeType{}, "May 6, 2024"},
		{"datetime from unix", DateTimeType{}, int64(1700000000)},
		{"filepath clean", FilePathType{}, "a/./b/../c.json"},
		{"filepath relative", FilePathType{UseRelativePath: true, BasePath: "/data"}, "/data/x/y.json"},
		{"plugin passthrough", PluginType{Name: "Color", Default: "#000"}, "#fff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := tt.dt.ConvertValue(Scope{}, tt.input)
			require.NoError(t, err)
			second, err := tt.dt.ConvertValue(Scope{}, first)
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.NoError(t, tt.dt.IsValidValue(Scope{}, first))
		})
	}
}

func TestConvertValueNormalizes(t *testing.T) {
	v, err := DateTimeType{}.ConvertValue(Scope{}, "2024-05-06T07:08:09+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 5, 8, 9, 0, time.UTC), v)

	v, err = FilePathType{UseRelativePath: true, BasePath: "/data"}.ConvertValue(Scope{}, "/data/x/y.json")
	require.NoError(t, err)
	assert.Equal(t, "x/y.json", v)

	v, err = IntegerType{}.ConvertValue(Scope{}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestConvertValueFailures(t *testing.T) {
	tests := []struct {
		name  string
		dt    DataType
		input any
		want  error
	}{
		{"integer from word", IntegerType{}, "twelve", ErrInvalidValue},
		{"integer from fraction", IntegerType{}, 1.5, ErrInvalidValue},
		{"integer from bool", IntegerType{}, true, ErrTypeMismatch},
		{"datetime from word", DateTimeType{}, "hello world", ErrInvalidValue},
		{"datetime from decimal", DateTimeType{}, "1.5", ErrInvalidValue},
		{"datetime from fraction", DateTimeType{}, "3/4", ErrInvalidValue},
		{"filepath from int", FilePathType{}, 3, ErrTypeMismatch},
		{"text from map", TextType{}, map[string]any{"a": 1}, ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.dt.ConvertValue(Scope{Attribute: "A"}, tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, KindConversion, KindOf(err))
			assert.Contains(t, err.Error(), "attribute=A")
		})
	}
}

func TestFilePathEmptyHandling(t *testing.T) {
	v, err := FilePathType{AllowEmptyPath: true}.ConvertValue(Scope{}, nil)
	require.NoError(t, err)
	assert.Equal(t, FilePathType{}.DefaultValue(), v)

	_, err = FilePathType{AllowEmptyPath: false}.ConvertValue(Scope{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyValue)

	_, err = FilePathType{}.ConvertValue(Scope{}, "   ")
	assert.ErrorIs(t, err, ErrEmptyValue)
}

func TestReferenceConversion(t *testing.T) {
	target := NewDataScheme("Items")
	id := NewAttribute("Id", IntegerType{})
	id.IsIdentifier = true
	require.NoError(t, target.AddAttribute(id))
	require.NoError(t, target.AddAttribute(NewAttribute("Label", TextType{})))
	for _, n := range []int64{1, 2, 3} {
		e := NewDataEntryWith("Id", n, "Label", "x")
		require.NoError(t, target.AddEntry(e))
	}
	scope := Scope{}.WithLookup(lookupMap{"Items": target})

	ref := NewReferenceType("Items", "Id", false)
	assert.Equal(t, "Reference/Items/Id", ref.TypeName())

	v, err := ref.ConvertValue(scope, "2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v, "canonical identifier value is returned")

	again, err := ref.ConvertValue(scope, v)
	require.NoError(t, err)
	assert.Equal(t, v, again)

	_, err = ref.ConvertValue(scope, "9")
	assert.ErrorIs(t, err, ErrReferenceValueNotFound)
	assert.Equal(t, KindConversion, KindOf(err))

	_, err = ref.ConvertValue(scope, "")
	assert.ErrorIs(t, err, ErrEmptyValue)

	v, err = NewReferenceType("Items", "Id", true).ConvertValue(scope, nil)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	_, err = NewReferenceType("Missing", "Id", false).ConvertValue(scope, "1")
	assert.ErrorIs(t, err, ErrSchemeNotFound)
	assert.Equal(t, KindResolution, KindOf(err))

	_, err = NewReferenceType("Items", "Nope", false).ConvertValue(scope, "1")
	assert.ErrorIs(t, err, ErrAttributeNotFound)

	_, err = NewReferenceType("Items", "Label", false).ConvertValue(scope, "x")
	assert.ErrorIs(t, err, ErrNoIdentifier)

	_, err = ref.ConvertValue(Scope{}, "1")
	assert.ErrorIs(t, err, ErrSchemeNotFound)
}

type countingIndex struct {
	lookupMap
	calls int
}

func (c *countingIndex) IdentifierValues(scheme, attr string) (map[string]any, error) {
	c.calls++
	if scheme != "Tags" {
		return nil, ErrSchemeNotFound
	}
	return map[string]any{"red": "red"}, nil
}

func TestReferenceUsesIdentifierIndex(t *testing.T) {
	idx := &countingIndex{}
	ref := NewReferenceType("Tags", "Name", false)
	v, err := ref.ConvertValue(Scope{Lookup: idx}, "red")
	require.NoError(t, err)
	assert.Equal(t, "red", v)
	assert.Equal(t, 1, idx.calls)
}

func TestDataTypeEquality(t *testing.T) {
	assert.True(t, EqualTypes(TextType{}, TextType{}))
	assert.False(t, EqualTypes(TextType{}, IntegerType{}))
	assert.True(t, EqualTypes(nil, nil))
	assert.False(t, EqualTypes(nil, TextType{}))
	assert.True(t, EqualTypes(FilePathType{AllowEmptyPath: true}, FilePathType{AllowEmptyPath: true}))
	assert.False(t, EqualTypes(FilePathType{AllowEmptyPath: true}, FilePathType{}))
	assert.True(t, EqualTypes(NewReferenceType("A", "B", false), NewReferenceType("A", "B", false)))
	assert.False(t, EqualTypes(NewReferenceType("A", "B", false), NewReferenceType("A", "C", false)))
	assert.True(t, EqualTypes(PluginType{Name: "P", Payload: map[string]any{}}, PluginType{Name: "P"}))
}

func TestPluginDefaultIsCloned(t *testing.T) {
	pt := PluginType{Name: "Vec", Default: []any{int64(1), int64(2)}}
	d := pt.DefaultValue().([]any)
	d[0] = int64(9)
	assert.Equal(t, []any{int64(1), int64(2)}, pt.Default)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindResolution, KindOf(ErrSchemeNotFound))
	assert.Equal(t, KindCancelled, KindOf(Cancelled("load", Scope{}, nil)))
	assert.True(t, IsCancelled(Cancelled("load", Scope{}, errors.New("ctx"))))
	assert.Nil(t, NewError(KindIO, "read", Scope{}, nil))

	err := Errorf(KindIO, "read", Scope{Path: "a.json"}, "%w: a.json", ErrFileNotFound)
	assert.Equal(t, "read: [path=a.json] file not found: a.json", err.Error())
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "a.json", te.Scope.Path)
}
