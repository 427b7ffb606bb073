package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// FormatCSV is the name of the CSV format.
const FormatCSV = "csv"

// DefaultCSVSchemeName names schemes imported without a scope scheme.
const DefaultCSVSchemeName = "Imported"

// CSV imports and exports schemes as RFC 4180 text: a header row of attribute
// names, then one row per entry. Fields holding the delimiter, a quote or a
// line break are quoted. Rows end with "\n" unless UseCRLF is set; both
// endings are accepted on import.
type CSV struct {
	Comma     rune
	UseCRLF   bool
	Inference TypeInference
}

// NewCSV returns the CSV format. A nil inference uses DefaultInference.
func NewCSV(inference TypeInference) *CSV {
	if inference == nil {
		inference = DefaultInference()
	}
	return &CSV{Comma: ',', Inference: inference}
}

func (*CSV) Name() string      { return FormatCSV }
func (*CSV) Extension() string { return ".csv" }

// Serialize writes the header and entry rows. A scheme without attributes or
// an entry without values is rejected.
func (c *CSV) Serialize(scope types.Scope, scheme *types.DataScheme) (string, error) {
	const op = "serialize csv"
	if scheme == nil {
		return "", types.NewError(types.KindInvariant, op, scope, types.ErrNilArgument)
	}
	scope = scope.WithScheme(scheme.SchemeName)
	if scheme.AttributeCount() == 0 {
		return "", types.NewError(types.KindValidation, op, scope, types.ErrEmptyScheme)
	}
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Comma = c.comma()
	w.UseCRLF = c.UseCRLF
	header := scheme.AttributeNames()
	if err := w.Write(header); err != nil {
		return "", types.Errorf(types.KindIO, op, scope, "%w", err)
	}
	for i, e := range scheme.Entries() {
		row := make([]string, len(header))
		populated := 0
		for j, name := range header {
			s, err := csvField(e.Value(name))
			if err != nil {
				return "", types.Errorf(types.KindConversion, op, scope.WithAttribute(name), "entry %d: %w", i, err)
			}
			if strings.TrimSpace(s) != "" {
				populated++
			}
			row[j] = s
		}
		if populated == 0 {
			return "", types.Errorf(types.KindValidation, op, scope, "%w: entry %d", types.ErrEmptyEntry, i)
		}
		if err := w.Write(row); err != nil {
			return "", types.Errorf(types.KindIO, op, scope, "%w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", types.Errorf(types.KindIO, op, scope, "%w", err)
	}
	return sb.String(), nil
}

func csvField(v any) (string, error) {
	s, err := types.TextType{}.ConvertValue(types.Scope{}, v)
	if err == nil {
		return s.(string), nil
	}
	b, jerr := json.Marshal(v)
	if jerr != nil {
		return "", err
	}
	return string(b), nil
}

// Deserialize reads a header and rows. Each column's type is inferred from
// all of its values before any attribute is created; rows are then converted
// with the inferred types. A row whose field count differs from the header is
// rejected with its index and content.
func (c *CSV) Deserialize(scope types.Scope, text string) (*types.DataScheme, error) {
	const op = "deserialize csv"
	name := scope.Scheme
	if strings.TrimSpace(name) == "" {
		name = DefaultCSVSchemeName
	}
	scope = scope.WithScheme(name)

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, "\ufeff")))
	r.Comma = c.comma()
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, types.Errorf(types.KindValidation, op, scope, "%w: no header row", types.ErrEmptyScheme)
	}
	if err != nil {
		return nil, types.Errorf(types.KindConversion, op, scope, "%w: %v", types.ErrMalformedInput, err)
	}

	var rows [][]string
	for index := 1; ; index++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, types.Errorf(types.KindConversion, op, scope, "%w: row %d: %v", types.ErrMalformedInput, index, err)
		}
		if len(row) != len(header) {
			return nil, types.Errorf(types.KindConversion, op, scope, "%w: row %d has %d fields, header has %d: %q",
				types.ErrMalformedInput, index, len(row), len(header), strings.Join(row, string(r.Comma)))
		}
		rows = append(rows, row)
	}

	inference := c.Inference
	if inference == nil {
		inference = DefaultInference()
	}
	scheme := types.NewDataScheme(name)
	column := make([]string, len(rows))
	for j, attrName := range header {
		for i, row := range rows {
			column[i] = row[j]
		}
		dt := inference.Infer(column)
		if err := scheme.AddAttribute(types.NewAttribute(strings.TrimSpace(attrName), dt)); err != nil {
			return nil, err
		}
	}
	attrs := scheme.Attributes()
	for i, row := range rows {
		e := types.NewDataEntry()
		for j, attr := range attrs {
			v, err := attr.DataType.ConvertValue(scope.WithAttribute(attr.AttributeName), row[j])
			if err != nil {
				return nil, types.Errorf(types.KindConversion, op, scope, "row %d: %w", i+1, err)
			}
			e.Set(attr.AttributeName, v)
		}
		if err := scheme.AddEntry(e); err != nil {
			return nil, err
		}
	}
	scheme.ClearDirty()
	return scheme, nil
}

func (c *CSV) comma() rune {
	if c.Comma == 0 {
		return ','
	}
	return c.Comma
}
