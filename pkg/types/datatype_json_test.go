package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalDataTypeResolution(t *testing.T) {
	tests := []struct {
		name string
		json string
		want DataType
	}{
		{"type name text", `{"TypeName":"Text","DefaultValue":""}`, TextType{}},
		{"type name string alias", `{"TypeName":"String"}`, TextType{}},
		{"type name integer", `{"TypeName":"Integer","DefaultValue":0}`, IntegerType{}},
		{"type name datetime", `{"TypeName":"DateTime"}`, DateTimeType{}},
		{"type name filepath", `{"TypeName":"FilePath","AllowEmptyPath":true,"BasePath":"Content"}`,
			FilePathType{AllowEmptyPath: true, BasePath: "Content"}},
		{"reference by prefix", `{"TypeName":"Reference/Items/Id","SupportsEmptyReferences":true}`,
			NewReferenceType("Items", "Id", true)},
		{"reference explicit fields", `{"TypeName":"Reference","ReferenceSchemeName":"A","ReferenceAttributeName":"B"}`,
			NewReferenceType("A", "B", false)},
		{"legacy hint", `{"$type":"Schema.Core.Data.IntegerDataType, Schema.Core","DefaultValue":0}`, IntegerType{}},
		{"legacy hint wins over TypeName", `{"$type":"DateTimeDataType","TypeName":"Text"}`, DateTimeType{}},
		{"legacy hint unknown becomes plugin", `{"$type":"Game.ColorDataType, Game","DefaultValue":"#000"}`,
			PluginType{Name: "ColorDataType", Default: "#000"}},
		{"unknown type name becomes plugin", `{"TypeName":"Vector3","DefaultValue":[0,0,0],"Precision":2}`,
			PluginType{Name: "Vector3", Default: []any{int64(0), int64(0), int64(0)}, Payload: map[string]any{"Precision": int64(2)}}},
		{"structural reference", `{"ReferenceSchemeName":"A","ReferenceAttributeName":"B"}`, NewReferenceType("A", "B", false)},
		{"structural filepath", `{"DefaultValue":"","UseRelativePath":true}`, FilePathType{UseRelativePath: true}},
		{"structural integer default", `{"DefaultValue":5}`, IntegerType{}},
		{"structural text default", `{"DefaultValue":"abc"}`, TextType{}},
		{"structural float default is text", `{"DefaultValue":1.5}`, TextType{}},
		{"empty TypeName falls through", `{"TypeName":"","DefaultValue":3}`, IntegerType{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalDataType([]byte(tt.json))
			require.NoError(t, err)
			assert.True(t, EqualTypes(tt.want, got), "want %#v, got %#v", tt.want, got)
		})
	}
}

func TestUnmarshalDataTypeFailures(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not an object", `[1,2]`},
		{"no discriminator", `{"ColumnWidth":10}`},
		{"object default", `{"DefaultValue":{"x":1}}`},
		{"reference without target", `{"TypeName":"Reference"}`},
		{"bad hint", `{"$type":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalDataType([]byte(tt.json))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnknownDataType)
			assert.Equal(t, KindResolution, KindOf(err))
			assert.Contains(t, err.Error(), tt.json, "offending JSON is included")
		})
	}
}

func TestUnmarshalDataTypeTruncatesLongFragments(t *testing.T) {
	long := `{"Padding":"` + strings.Repeat("x", 1000) + `"}`
	_, err := UnmarshalDataType([]byte(long))
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 400)
}

func TestMarshalDataTypeRoundTrip(t *testing.T) {
	types := []DataType{
		TextType{},
		IntegerType{},
		DateTimeType{},
		FilePathType{AllowEmptyPath: true, UseRelativePath: true, BasePath: "Content"},
		NewReferenceType("Items", "Id", true),
		PluginType{Name: "Color", Default: "#fff", Payload: map[string]any{"Alpha": true, "Space": "sRGB"}},
	}
	for _, dt := range types {
		t.Run(dt.TypeName(), func(t *testing.T) {
			b, err := MarshalDataType(dt)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(b), `{"TypeName":`), string(b))
			got, err := UnmarshalDataType(b)
			require.NoError(t, err)
			assert.True(t, EqualTypes(dt, got), "round trip of %s gave %#v", b, got)
		})
	}
}

func TestMarshalPluginPayloadOrder(t *testing.T) {
	b, err := MarshalDataType(PluginType{Name: "P", Default: int64(1), Payload: map[string]any{"b": 2, "a": 1}})
	require.NoError(t, err)
	assert.Equal(t, `{"TypeName":"P","DefaultValue":1,"a":1,"b":2}`, string(b))
}

type percentType struct{ IntegerType }

func (percentType) TypeName() string { return "Percent" }

func (percentType) MarshalJSON() ([]byte, error) {
	return []byte(`{"TypeName":"Percent","DefaultValue":0}`), nil
}

func (percentType) Equal(o DataType) bool {
	_, ok := o.(percentType)
	return ok
}

func TestRegisteredDataType(t *testing.T) {
	require.NoError(t, RegisterDataType("Percent", func(map[string]json.RawMessage) (DataType, error) {
		return percentType{}, nil
	}))
	t.Cleanup(func() { UnregisterDataType("Percent") })
	assert.Contains(t, RegisteredDataTypes(), "Percent")

	b, err := MarshalDataType(percentType{})
	require.NoError(t, err)
	got, err := UnmarshalDataType(b)
	require.NoError(t, err)
	assert.IsType(t, percentType{}, got)

	assert.ErrorIs(t, RegisterDataType("", nil), ErrInvalidName)
	assert.ErrorIs(t, RegisterDataType("X", nil), ErrNilArgument)
}

func TestAttributeJSON(t *testing.T) {
	attr := NewAttribute("Owner", NewReferenceType("People", "Name", true))
	attr.AttributeToolTip = "who owns it"
	b, err := json.Marshal(attr)
	require.NoError(t, err)

	var got AttributeDefinition
	require.NoError(t, json.Unmarshal(b, &got))
	assert.True(t, attr.Equal(&got))

	err = json.Unmarshal([]byte(`{"AttributeName":"X"}`), &got)
	assert.ErrorIs(t, err, ErrUnknownDataType)
}
