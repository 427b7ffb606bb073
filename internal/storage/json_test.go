package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

func sampleScheme(t *testing.T) *types.DataScheme {
	t.Helper()
	s := types.NewDataScheme("Items")
	id := types.NewAttribute("Id", types.TextType{})
	id.IsIdentifier = true
	id.AttributeToolTip = "unique key"
	require.NoError(t, s.AddAttribute(id))
	require.NoError(t, s.AddAttribute(types.NewAttribute("Count", types.IntegerType{})))
	require.NoError(t, s.AddAttribute(types.NewAttribute("Added", types.DateTimeType{})))
	require.NoError(t, s.AddAttribute(types.NewAttribute("Icon", types.FilePathType{AllowEmptyPath: true})))
	require.NoError(t, s.AddAttribute(types.NewAttribute("Owner", types.NewReferenceType("People", "Name", true))))

	for i, name := range []string{"sword", "shield"} {
		e := s.CreateEntry()
		require.NoError(t, s.SetDataOnEntry(types.Scope{}, e, "Id", name))
		require.NoError(t, s.SetDataOnEntry(types.Scope{}, e, "Count", i+1))
		require.NoError(t, s.SetDataOnEntry(types.Scope{}, e, "Added", time.Date(2024, 3, i+1, 8, 0, 0, 0, time.UTC)))
		require.NoError(t, s.SetDataOnEntry(types.Scope{}, e, "Icon", "icons/"+name+".png"))
		require.NoError(t, s.SetRawDataOnEntry(e, "Owner", "alice"))
	}
	return s
}

func TestJSONRoundTrip(t *testing.T) {
	s := sampleScheme(t)
	f := NewJSON()

	text, err := f.Serialize(types.Scope{}, s)
	require.NoError(t, err)
	assert.Contains(t, text, "\n  \"SchemeName\": \"Items\"")
	assert.Contains(t, text, `"Id": "sword"`)

	back, err := f.Deserialize(types.Scope{}, text)
	require.NoError(t, err)
	assert.True(t, s.Equal(back), "round trip changed the scheme:\n%s\n%s", s, back)
	assert.False(t, back.IsDirty())

	again, err := f.Serialize(types.Scope{}, back)
	require.NoError(t, err)
	assert.Equal(t, text, again)
}

func TestJSONRoundTripStrictFilePathDefaults(t *testing.T) {
	s := types.NewDataScheme("Assets")
	require.NoError(t, s.AddAttribute(types.NewAttribute("Name", types.TextType{})))
	e := s.CreateEntry()
	require.NoError(t, s.SetDataOnEntry(types.Scope{}, e, "Name", "hero"))
	require.NoError(t, s.AddAttribute(types.NewAttribute("Path", types.FilePathType{})))
	s.CreateEntry()

	f := NewJSON()
	text, err := f.Serialize(types.Scope{}, s)
	require.NoError(t, err)
	back, err := f.Deserialize(types.Scope{}, text)
	require.NoError(t, err)
	assert.True(t, s.Equal(back), "round trip changed the scheme:\n%s\n%s", s, back)

	entry, _ := back.EntryAt(1)
	assert.ErrorIs(t, back.SetDataOnEntry(types.Scope{}, entry, "Path", ""), types.ErrEmptyValue)
}

func TestJSONKeepsReferencesRaw(t *testing.T) {
	text := `{"SchemeName":"Items","Attributes":[
	  {"AttributeName":"Owner","DataType":{"TypeName":"Reference/People/Name"},"ColumnWidth":150,"IsIdentifier":false}],
	  "Entries":[{"Owner":"nobody"}]}`
	s, err := NewJSON().Deserialize(types.Scope{}, text)
	require.NoError(t, err)
	e, _ := s.EntryAt(0)
	assert.Equal(t, "nobody", e.Value("Owner"))
}

func TestJSONDropsUnknownKeys(t *testing.T) {
	text := "\ufeff" + `{"SchemeName":"Items","Attributes":[
	  {"AttributeName":"Count","DataType":{"DefaultValue":0},"ColumnWidth":80}],
	  "Entries":[{"Count":"7","Stale":true},{}]}`
	s, err := NewJSON().Deserialize(types.Scope{}, text)
	require.NoError(t, err)
	require.Equal(t, 2, s.EntryCount())

	attr, err := s.GetAttribute("Count")
	require.NoError(t, err)
	assert.Equal(t, types.IntegerType{}, attr.DataType)

	first, _ := s.EntryAt(0)
	assert.Equal(t, []string{"Count"}, first.Keys())
	assert.Equal(t, int64(7), first.Value("Count"))
	second, _ := s.EntryAt(1)
	assert.Equal(t, int64(0), second.Value("Count"), "missing values get the default")
}

func TestJSONSchemeNameFromScope(t *testing.T) {
	s, err := NewJSON().Deserialize(types.Scope{Scheme: "Fallback"}, `{"Attributes":[],"Entries":[]}`)
	require.NoError(t, err)
	assert.Equal(t, "Fallback", s.SchemeName)
}

func TestJSONMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
		kind types.Kind
	}{
		{"syntax", `{"SchemeName": `, types.ErrMalformedInput, types.KindConversion},
		{"null attribute", `{"SchemeName":"X","Attributes":[null]}`, types.ErrMalformedInput, types.KindConversion},
		{"unresolved type", `{"SchemeName":"X","Attributes":[{"AttributeName":"A","DataType":{"DefaultValue":[1]}}]}`, nil, types.KindResolution},
		{"duplicate attribute", `{"SchemeName":"X","Attributes":[
			{"AttributeName":"A","DataType":{"TypeName":"Text"}},
			{"AttributeName":"A","DataType":{"TypeName":"Text"}}]}`, types.ErrDuplicateAttribute, types.KindInvariant},
		{"bad value", `{"SchemeName":"X","Attributes":[{"AttributeName":"N","DataType":{"TypeName":"Integer"}}],"Entries":[{"N":"many"}]}`, nil, types.KindConversion},
		{"manifest without name", `[{"FilePath":"a.json"}]`, types.ErrMalformedInput, types.KindConversion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJSON().Deserialize(types.Scope{}, tt.text)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, tt.kind, types.KindOf(err), "error: %v", err)
		})
	}
}

func TestJSONManifestArray(t *testing.T) {
	text := `[
	  {"SchemeName":"Manifest","FilePath":"Manifest.json"},
	  {"SchemeName":"People","FilePath":"Content/People.json"},
	  {"SchemeName":"Invalid"}
	]`
	m, err := NewJSON().Deserialize(types.Scope{}, text)
	require.NoError(t, err)
	assert.True(t, m.IsManifest())
	assert.True(t, types.HasSelfRecord(m))
	assert.Equal(t, []types.ManifestRecord{
		{SchemeName: "Manifest", FilePath: "Manifest.json"},
		{SchemeName: "People", FilePath: "Content/People.json"},
		{SchemeName: "Invalid"},
	}, types.ManifestRecords(m))

	// The object form written back is readable too.
	out, err := NewJSON().Serialize(types.Scope{}, m)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{"))
	back, err := NewJSON().Deserialize(types.Scope{}, out)
	require.NoError(t, err)
	assert.Equal(t, types.ManifestRecords(m), types.ManifestRecords(back))
}

func TestJSONSerializeNil(t *testing.T) {
	_, err := NewJSON().Serialize(types.Scope{}, nil)
	assert.ErrorIs(t, err, types.ErrNilArgument)
}
