package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field names used by the serialized DataType object.
const (
	fieldLegacyType       = "$type"
	fieldTypeName         = "TypeName"
	fieldDefaultValue     = "DefaultValue"
	fieldRefScheme        = "ReferenceSchemeName"
	fieldRefAttribute     = "ReferenceAttributeName"
	fieldRefAllowEmpty    = "SupportsEmptyReferences"
	fieldAllowEmptyPath   = "AllowEmptyPath"
	fieldUseRelativePath  = "UseRelativePath"
	fieldBasePath         = "BasePath"
	maxFragmentLength     = 256
	legacyTypeNameSuffix  = "DataType"
	legacyAssemblyDivider = ","
)

type builtinDecoder func(name string, fields map[string]json.RawMessage) (DataType, error)

// builtinTypes resolves every name a built-in type is known by, including the
// legacy class names written in "$type" hints.
var builtinTypes = map[string]builtinDecoder{
	TypeNameText:        decodeScalar(TextType{}),
	"String":            decodeScalar(TextType{}),
	TypeNameInteger:     decodeScalar(IntegerType{}),
	TypeNameDateTime:    decodeScalar(DateTimeType{}),
	TypeNameFilePath:    decodeFilePath,
	ReferenceTypePrefix: decodeReference,
}

func decodeScalar(dt DataType) builtinDecoder {
	return func(string, map[string]json.RawMessage) (DataType, error) { return dt, nil }
}

type textJSON struct {
	TypeName     string `json:"TypeName"`
	DefaultValue any    `json:"DefaultValue"`
}

type filePathJSON struct {
	TypeName        string `json:"TypeName"`
	DefaultValue    any    `json:"DefaultValue"`
	AllowEmptyPath  bool   `json:"AllowEmptyPath"`
	UseRelativePath bool   `json:"UseRelativePath"`
	BasePath        string `json:"BasePath"`
}

type referenceJSON struct {
	TypeName                string `json:"TypeName"`
	DefaultValue            any    `json:"DefaultValue"`
	ReferenceSchemeName     string `json:"ReferenceSchemeName"`
	ReferenceAttributeName  string `json:"ReferenceAttributeName"`
	SupportsEmptyReferences bool   `json:"SupportsEmptyReferences"`
}

// MarshalDataType encodes dt with its TypeName first. Host types that
// implement json.Marshaler encode themselves.
func MarshalDataType(dt DataType) ([]byte, error) {
	switch t := dt.(type) {
	case nil:
		return nil, ErrNilArgument
	case TextType, IntegerType, DateTimeType:
		return json.Marshal(textJSON{TypeName: t.TypeName(), DefaultValue: t.DefaultValue()})
	case FilePathType:
		return json.Marshal(filePathJSON{
			TypeName:        t.TypeName(),
			DefaultValue:    t.DefaultValue(),
			AllowEmptyPath:  t.AllowEmptyPath,
			UseRelativePath: t.UseRelativePath,
			BasePath:        t.BasePath,
		})
	case ReferenceType:
		return json.Marshal(referenceJSON{
			TypeName:                t.TypeName(),
			DefaultValue:            t.DefaultValue(),
			ReferenceSchemeName:     t.ReferenceSchemeName,
			ReferenceAttributeName:  t.ReferenceAttributeName,
			SupportsEmptyReferences: t.SupportsEmptyReferences,
		})
	case PluginType:
		return marshalPlugin(t)
	case json.Marshaler:
		return t.MarshalJSON()
	default:
		return json.Marshal(textJSON{TypeName: dt.TypeName(), DefaultValue: dt.DefaultValue()})
	}
}

func marshalPlugin(t PluginType) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField := func(key string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	if err := writeField(fieldTypeName, t.Name); err != nil {
		return nil, err
	}
	if err := writeField(fieldDefaultValue, t.Default); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(t.Payload))
	for k := range t.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeField(k, t.Payload[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalDataType resolves the concrete DataType from its JSON shape.
// Precedence: a legacy "$type" hint (unknown names become PluginType), then
// "TypeName" matched against built-ins, the Reference prefix and registered
// host types (unknown names become PluginType), then structural heuristics:
// Reference-only fields, FilePath-only fields, and finally the JSON kind of
// "DefaultValue". Anything else fails with the offending JSON in the message.
func UnmarshalDataType(data []byte) (DataType, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, unresolvedType(data, "not a JSON object")
	}

	if raw, ok := fields[fieldLegacyType]; ok {
		var hint string
		if err := json.Unmarshal(raw, &hint); err != nil || strings.TrimSpace(hint) == "" {
			return nil, unresolvedType(data, "invalid $type hint")
		}
		return resolveByName(legacyTypeName(hint), fields, data)
	}

	if raw, ok := fields[fieldTypeName]; ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, unresolvedType(data, "TypeName is not a string")
		}
		if name != "" {
			return resolveByName(name, fields, data)
		}
	}

	switch {
	case hasAny(fields, fieldRefScheme, fieldRefAttribute, fieldRefAllowEmpty):
		return decodeReference("", fields)
	case hasAny(fields, fieldAllowEmptyPath, fieldUseRelativePath, fieldBasePath):
		return decodeFilePath("", fields)
	}

	raw, ok := fields[fieldDefaultValue]
	if !ok {
		return nil, unresolvedType(data, "no TypeName, hint or DefaultValue")
	}
	switch jsonKind(raw) {
	case jsonInteger:
		return IntegerType{}, nil
	case jsonObject:
		return nil, unresolvedType(data, "DefaultValue is not a scalar")
	default:
		return TextType{}, nil
	}
}

func resolveByName(name string, fields map[string]json.RawMessage, data []byte) (DataType, error) {
	if decode, ok := builtinTypes[name]; ok {
		dt, err := decode(name, fields)
		if err != nil {
			return nil, unresolvedType(data, err.Error())
		}
		return dt, nil
	}
	if strings.HasPrefix(name, ReferenceTypePrefix+"/") {
		dt, err := decodeReference(name, fields)
		if err != nil {
			return nil, unresolvedType(data, err.Error())
		}
		return dt, nil
	}
	if decode, ok := lookupDataTypeDecoder(name); ok {
		dt, err := decode(fields)
		if err != nil {
			return nil, unresolvedType(data, err.Error())
		}
		return dt, nil
	}
	return decodePlugin(name, fields, data)
}

// legacyTypeName reduces a qualified class hint such as
// "Schema.Core.Data.IntegerDataType, Schema.Core" to "Integer".
func legacyTypeName(hint string) string {
	name := strings.TrimSpace(strings.SplitN(hint, legacyAssemblyDivider, 2)[0])
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if trimmed := strings.TrimSuffix(name, legacyTypeNameSuffix); trimmed != "" {
		if _, ok := builtinTypes[trimmed]; ok {
			return trimmed
		}
	}
	return name
}

func decodeFilePath(_ string, fields map[string]json.RawMessage) (DataType, error) {
	var t filePathJSON
	if err := unmarshalFields(fields, &t); err != nil {
		return nil, err
	}
	return FilePathType{
		AllowEmptyPath:  t.AllowEmptyPath,
		UseRelativePath: t.UseRelativePath,
		BasePath:        t.BasePath,
	}, nil
}

func decodeReference(name string, fields map[string]json.RawMessage) (DataType, error) {
	var t referenceJSON
	if err := unmarshalFields(fields, &t); err != nil {
		return nil, err
	}
	if t.ReferenceSchemeName == "" && strings.HasPrefix(name, ReferenceTypePrefix+"/") {
		parts := strings.SplitN(strings.TrimPrefix(name, ReferenceTypePrefix+"/"), "/", 2)
		t.ReferenceSchemeName = parts[0]
		if len(parts) == 2 && t.ReferenceAttributeName == "" {
			t.ReferenceAttributeName = parts[1]
		}
	}
	if t.ReferenceSchemeName == "" {
		return nil, fmt.Errorf("reference type without %s", fieldRefScheme)
	}
	return ReferenceType{
		ReferenceSchemeName:     t.ReferenceSchemeName,
		ReferenceAttributeName:  t.ReferenceAttributeName,
		SupportsEmptyReferences: t.SupportsEmptyReferences,
	}, nil
}

func decodePlugin(name string, fields map[string]json.RawMessage, data []byte) (DataType, error) {
	pt := PluginType{Name: name}
	for k, raw := range fields {
		switch k {
		case fieldTypeName, fieldLegacyType:
			continue
		}
		v, err := decodeJSONValue(raw)
		if err != nil {
			return nil, unresolvedType(data, err.Error())
		}
		if k == fieldDefaultValue {
			pt.Default = v
			continue
		}
		if pt.Payload == nil {
			pt.Payload = make(map[string]any)
		}
		pt.Payload[k] = v
	}
	return pt, nil
}

func unmarshalFields(fields map[string]json.RawMessage, v any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func hasAny(fields map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

type jsonValueKind int

const (
	jsonOther jsonValueKind = iota
	jsonInteger
	jsonObject
)

func jsonKind(raw json.RawMessage) jsonValueKind {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return jsonOther
	}
	switch s[0] {
	case '{', '[':
		return jsonObject
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		if strings.ContainsAny(s, ".eE") {
			return jsonOther
		}
		return jsonInteger
	}
	return jsonOther
}

func unresolvedType(data []byte, reason string) error {
	frag := string(data)
	if len(frag) > maxFragmentLength {
		frag = frag[:maxFragmentLength] + "..."
	}
	return Errorf(KindResolution, "decode data type", Scope{}, "%w (%s): %s", ErrUnknownDataType, reason, frag)
}
