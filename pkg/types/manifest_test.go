package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRecords(t *testing.T) {
	m := NewManifestScheme()
	assert.True(t, m.IsManifest())
	assert.False(t, m.IsDirty())
	assert.False(t, HasSelfRecord(m))

	_, err := SetManifestRecord(m, ManifestSchemeName, "Manifest.json")
	require.NoError(t, err)
	_, err = SetManifestRecord(m, "People", "Schemes/People.json")
	require.NoError(t, err)
	_, err = SetManifestRecord(m, "Draft", "")
	require.NoError(t, err)
	assert.True(t, HasSelfRecord(m))

	_, err = SetManifestRecord(m, "People", "Schemes/./People.json")
	require.NoError(t, err)
	assert.Equal(t, 3, m.EntryCount(), "updating a record does not add one")

	rec, _, ok := FindManifestRecord(m, "People")
	require.True(t, ok)
	assert.Equal(t, "Schemes/People.json", rec.FilePath)

	assert.Equal(t, []ManifestRecord{
		{SchemeName: ManifestSchemeName, FilePath: "Manifest.json"},
		{SchemeName: "People", FilePath: "Schemes/People.json"},
		{SchemeName: "Draft"},
	}, ManifestRecords(m))

	assert.True(t, RemoveManifestRecord(m, "Draft"))
	assert.False(t, RemoveManifestRecord(m, "Draft"))

	_, err = SetManifestRecord(m, " ", "x.json")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestConvertStoredValueKeepsReferences(t *testing.T) {
	ref := NewReferenceType("Later", "Id", false)
	v, err := ConvertStoredValue(Scope{}, ref, "k-1")
	require.NoError(t, err)
	assert.Equal(t, "k-1", v)

	v, err = ConvertStoredValue(Scope{}, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	v, err = ConvertStoredValue(Scope{}, IntegerType{}, int64(4))
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}

func TestConvertStoredValueKeepsEmptyFilePath(t *testing.T) {
	strict := FilePathType{}
	v, err := ConvertStoredValue(Scope{}, strict, "")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	v, err = ConvertStoredValue(Scope{}, strict, nil)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	v, err = ConvertStoredValue(Scope{}, strict, `assets\icon.png`)
	require.NoError(t, err)
	assert.Equal(t, "assets/icon.png", v)

	_, err = strict.ConvertValue(Scope{}, "")
	assert.ErrorIs(t, err, ErrEmptyValue)
}
