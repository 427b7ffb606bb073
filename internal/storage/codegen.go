package storage

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"text/template"
	"unicode"

	"golang.org/x/tools/imports"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// FormatGo is the name of the generated Go source format.
const FormatGo = "go"

// Default Go type mapping. Reference columns hold the target's identifier and
// unknown types fall back to string.
var defaultGoTypes = map[string]string{
	types.TypeNameText:        "string",
	types.TypeNameInteger:     "int64",
	types.TypeNameDateTime:    "time.Time",
	types.TypeNameFilePath:    "string",
	types.ReferenceTypePrefix: "string",
}

// GoOptions tunes generated source.
type GoOptions struct {
	// Package is the package clause; "schemes" when empty.
	Package string
	// TypeMap overrides the Go type per built-in TypeName. The key
	// "Reference" covers every reference type.
	TypeMap map[string]string
	// Fallback is used for types with no mapping; "string" when empty.
	Fallback string
}

// GoCodegen exports a scheme as a Go struct with one field per attribute.
// It is one-way: Deserialize always fails.
type GoCodegen struct {
	opts GoOptions
}

// NewGoCodegen returns the Go export format.
func NewGoCodegen(opts GoOptions) *GoCodegen {
	if opts.Package == "" {
		opts.Package = "schemes"
	}
	if opts.Fallback == "" {
		opts.Fallback = "string"
	}
	merged := make(map[string]string, len(defaultGoTypes))
	for k, v := range defaultGoTypes {
		merged[k] = v
	}
	for k, v := range opts.TypeMap {
		merged[k] = v
	}
	opts.TypeMap = merged
	return &GoCodegen{opts: opts}
}

func (*GoCodegen) Name() string      { return FormatGo }
func (*GoCodegen) Extension() string { return ".go" }

var goSource = template.Must(template.New("scheme").Parse(`// Code generated by schematic. DO NOT EDIT.

package {{.Package}}
{{if .Imports}}
import (
{{- range .Imports}}
	{{printf "%q" .}}
{{- end}}
)
{{end}}
// {{.Type}} is one entry of the {{printf "%q" .Scheme}} scheme.
type {{.Type}} struct {
{{- range .Fields}}
	{{- if .Doc}}
	// {{.Doc}}
	{{- end}}
	{{.Name}} {{.GoType}} ` + "`json:{{printf \"%q\" .Tag}}`" + `
{{- end}}
}
`))

type goField struct {
	Name   string
	GoType string
	Tag    string
	Doc    string
}

// GoType returns the Go type generated for dt.
func (g *GoCodegen) GoType(dt types.DataType) string {
	if dt == nil {
		return g.opts.Fallback
	}
	if _, ok := dt.(types.ReferenceType); ok {
		return g.opts.TypeMap[types.ReferenceTypePrefix]
	}
	if t, ok := g.opts.TypeMap[dt.TypeName()]; ok {
		return t
	}
	return g.opts.Fallback
}

var goFormatOptions = &imports.Options{FormatOnly: true, Comments: true, TabIndent: true, TabWidth: 8}

// Serialize renders the struct and formats it with gofmt rules.
func (g *GoCodegen) Serialize(scope types.Scope, scheme *types.DataScheme) (string, error) {
	const op = "generate go"
	if scheme == nil {
		return "", types.NewError(types.KindInvariant, op, scope, types.ErrNilArgument)
	}
	scope = scope.WithScheme(scheme.SchemeName)
	if scheme.AttributeCount() == 0 {
		return "", types.NewError(types.KindValidation, op, scope, types.ErrEmptyScheme)
	}
	seen := make(map[string]int)
	var fields []goField
	var pkgs []string
	for _, attr := range scheme.Attributes() {
		name := uniqueIdent(GoIdentifier(attr.AttributeName), seen)
		doc := strings.TrimSpace(strings.ReplaceAll(attr.AttributeToolTip, "\n", " "))
		if attr.IsIdentifier {
			if doc != "" {
				doc += " "
			}
			doc += "(identifier)"
		}
		goType := g.GoType(attr.DataType)
		if strings.HasPrefix(goType, "time.") && !slices.Contains(pkgs, "time") {
			pkgs = append(pkgs, "time")
		}
		fields = append(fields, goField{Name: name, GoType: goType, Tag: attr.AttributeName, Doc: doc})
	}
	var buf bytes.Buffer
	err := goSource.Execute(&buf, struct {
		Package string
		Imports []string
		Scheme  string
		Type    string
		Fields  []goField
	}{g.opts.Package, pkgs, scheme.SchemeName, GoIdentifier(scheme.SchemeName), fields})
	if err != nil {
		return "", types.Errorf(types.KindConversion, op, scope, "%w", err)
	}
	out, err := imports.Process(strings.ToLower(GoIdentifier(scheme.SchemeName))+".go", buf.Bytes(), goFormatOptions)
	if err != nil {
		return "", types.Errorf(types.KindConversion, op, scope, "format generated source: %w", err)
	}
	return string(out), nil
}

// Deserialize is not supported for generated source.
func (g *GoCodegen) Deserialize(scope types.Scope, _ string) (*types.DataScheme, error) {
	return nil, types.Errorf(types.KindIO, "deserialize go", scope, "%w: generated source is export only", types.ErrUnsupported)
}

// GoIdentifier turns an attribute or scheme name into an exported Go
// identifier: separators split words, each word is capitalized, and a leading
// digit gets an "X" prefix.
func GoIdentifier(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	id := b.String()
	if id == "" {
		return "Field"
	}
	if unicode.IsDigit([]rune(id)[0]) {
		return "X" + id
	}
	return id
}

// uniqueIdent returns id, or id with the lowest free numeric suffix, and
// marks the result as taken.
func uniqueIdent(id string, seen map[string]int) string {
	name := id
	for n := seen[id] + 1; seen[name] > 0; n++ {
		name = fmt.Sprintf("%s%d", id, n)
	}
	seen[id]++
	if name != id {
		seen[name]++
	}
	return name
}
