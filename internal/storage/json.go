package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// FormatJSON is the name of the JSON format.
const FormatJSON = "json"

// schemeJSON is the on-disk shape of a scheme file.
type schemeJSON struct {
	SchemeName string                       `json:"SchemeName"`
	Attributes []*types.AttributeDefinition `json:"Attributes"`
	Entries    []*types.DataEntry           `json:"Entries"`
}

// JSON is the round-trip format. Output is indented with two spaces.
type JSON struct {
	Indent string
}

// NewJSON returns the JSON format.
func NewJSON() *JSON { return &JSON{Indent: "  "} }

func (*JSON) Name() string      { return FormatJSON }
func (*JSON) Extension() string { return ".json" }

// Serialize writes scheme as an indented object. Entry values are plain
// key/value pairs in attribute order.
func (j *JSON) Serialize(scope types.Scope, scheme *types.DataScheme) (string, error) {
	if scheme == nil {
		return "", types.NewError(types.KindInvariant, "serialize json", scope, types.ErrNilArgument)
	}
	doc := schemeJSON{
		SchemeName: scheme.SchemeName,
		Attributes: scheme.Attributes(),
		Entries:    scheme.Entries(),
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", j.Indent)
	if err := enc.Encode(doc); err != nil {
		return "", types.Errorf(types.KindConversion, "serialize json", scope, "%w", err)
	}
	return buf.String(), nil
}

// Deserialize parses a scheme file. A bare JSON array is read as a manifest
// listing {SchemeName, FilePath} records. Stored values are converted with
// their attribute's type; keys naming no attribute are dropped.
func (j *JSON) Deserialize(scope types.Scope, text string) (*types.DataScheme, error) {
	const op = "deserialize json"
	trimmed := strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if strings.HasPrefix(trimmed, "[") {
		return j.deserializeManifestArray(scope, trimmed)
	}
	var doc schemeJSON
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, decodeError(op, scope, err)
	}
	if strings.TrimSpace(doc.SchemeName) == "" {
		doc.SchemeName = scope.Scheme
	}
	scope = scope.WithScheme(doc.SchemeName)
	scheme := types.NewDataScheme(doc.SchemeName)
	for _, attr := range doc.Attributes {
		if attr == nil {
			return nil, types.Errorf(types.KindConversion, op, scope, "%w: null attribute", types.ErrMalformedInput)
		}
		if err := scheme.AddAttribute(attr); err != nil {
			return nil, err
		}
	}
	for i, raw := range doc.Entries {
		if raw == nil {
			continue
		}
		e, err := storedEntry(scope, scheme, raw)
		if err != nil {
			return nil, types.Errorf(types.KindConversion, op, scope, "entry %d: %w", i, err)
		}
		if err := scheme.AddEntry(e); err != nil {
			return nil, err
		}
	}
	scheme.ClearDirty()
	return scheme, nil
}

func storedEntry(scope types.Scope, scheme *types.DataScheme, raw *types.DataEntry) (*types.DataEntry, error) {
	e := types.NewDataEntry()
	for _, attr := range scheme.Attributes() {
		v, ok := raw.Get(attr.AttributeName)
		if !ok {
			continue
		}
		cv, err := types.ConvertStoredValue(scope.WithAttribute(attr.AttributeName), attr.DataType, v)
		if err != nil {
			return nil, err
		}
		e.Set(attr.AttributeName, cv)
	}
	return e, nil
}

func (j *JSON) deserializeManifestArray(scope types.Scope, text string) (*types.DataScheme, error) {
	const op = "deserialize manifest"
	var records []types.ManifestRecord
	if err := json.Unmarshal([]byte(text), &records); err != nil {
		return nil, decodeError(op, scope, err)
	}
	manifest := types.NewManifestScheme()
	scope = scope.WithScheme(manifest.SchemeName)
	for i, rec := range records {
		if strings.TrimSpace(rec.SchemeName) == "" {
			return nil, types.Errorf(types.KindConversion, op, scope, "%w: record %d has no SchemeName", types.ErrMalformedInput, i)
		}
		if _, err := types.SetManifestRecord(manifest, rec.SchemeName, rec.FilePath); err != nil {
			return nil, err
		}
	}
	manifest.ClearDirty()
	return manifest, nil
}

// decodeError keeps the parser's message and any typed error it wraps.
func decodeError(op string, scope types.Scope, err error) error {
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	var syntax *json.SyntaxError
	if errors.As(err, &syntax) {
		return types.Errorf(types.KindConversion, op, scope, "%w at offset %d: %v", types.ErrMalformedInput, syntax.Offset, err)
	}
	return types.Errorf(types.KindConversion, op, scope, "%w: %v", types.ErrMalformedInput, err)
}
