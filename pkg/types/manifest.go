package types

import "strings"

// Manifest scheme layout. The manifest is an ordinary scheme whose entries map
// scheme names to file paths; its own record has SchemeName == ManifestSchemeName.
const (
	ManifestSchemeName       = "Manifest"
	ManifestAttrSchemeName   = "SchemeName"
	ManifestAttrFilePath     = "FilePath"
	DefaultManifestFileName  = "Manifest.json"
	DefaultContentDirName    = "Content"
	manifestPathAttributeTip = "Path of the scheme file, relative to the manifest"
)

// ManifestRecord is one manifest entry. An empty FilePath means the scheme
// has not been persisted yet.
type ManifestRecord struct {
	SchemeName string `json:"SchemeName"`
	FilePath   string `json:"FilePath,omitempty"`
}

// NewManifestScheme returns an empty manifest scheme with its two attributes.
// The self-record is not added; callers that create a new manifest add it
// with SetManifestRecord.
func NewManifestScheme() *DataScheme {
	s := NewDataScheme(ManifestSchemeName)
	name := NewAttribute(ManifestAttrSchemeName, TextType{})
	name.IsIdentifier = true
	fp := NewAttribute(ManifestAttrFilePath, FilePathType{AllowEmptyPath: true, UseRelativePath: true})
	fp.AttributeToolTip = manifestPathAttributeTip
	// neither attribute can collide on an empty scheme
	_ = s.AddAttribute(name)
	_ = s.AddAttribute(fp)
	s.ClearDirty()
	return s
}

// ManifestRecords lists the records of a manifest scheme in entry order.
func ManifestRecords(manifest *DataScheme) []ManifestRecord {
	records := make([]ManifestRecord, 0, manifest.EntryCount())
	for _, e := range manifest.entries {
		records = append(records, recordOf(e))
	}
	return records
}

func recordOf(e *DataEntry) ManifestRecord {
	name, _ := e.Value(ManifestAttrSchemeName).(string)
	fp, _ := e.Value(ManifestAttrFilePath).(string)
	return ManifestRecord{SchemeName: strings.TrimSpace(name), FilePath: strings.TrimSpace(fp)}
}

// FindManifestRecord returns the record for schemeName.
func FindManifestRecord(manifest *DataScheme, schemeName string) (ManifestRecord, *DataEntry, bool) {
	e, _, ok := manifest.FindEntry(ManifestAttrSchemeName, schemeName)
	if !ok {
		return ManifestRecord{}, nil, false
	}
	return recordOf(e), e, true
}

// HasSelfRecord reports whether the manifest lists itself.
func HasSelfRecord(manifest *DataScheme) bool {
	_, _, ok := FindManifestRecord(manifest, ManifestSchemeName)
	return ok
}

// SetManifestRecord adds or updates the record for schemeName and returns its
// entry.
func SetManifestRecord(manifest *DataScheme, schemeName, filePath string) (*DataEntry, error) {
	scope := Scope{Scheme: manifest.SchemeName}
	if strings.TrimSpace(schemeName) == "" {
		return nil, Errorf(KindInvariant, "set manifest record", scope, "%w: empty scheme name", ErrInvalidName)
	}
	if _, e, ok := FindManifestRecord(manifest, schemeName); ok {
		if err := manifest.SetDataOnEntry(scope, e, ManifestAttrFilePath, filePath); err != nil {
			return nil, err
		}
		return e, nil
	}
	e := NewDataEntry()
	if err := manifest.AddEntry(e); err != nil {
		return nil, err
	}
	if err := manifest.SetDataOnEntry(scope, e, ManifestAttrSchemeName, schemeName); err != nil {
		_, _ = manifest.DeleteEntry(e)
		return nil, err
	}
	if err := manifest.SetDataOnEntry(scope, e, ManifestAttrFilePath, filePath); err != nil {
		_, _ = manifest.DeleteEntry(e)
		return nil, err
	}
	return e, nil
}

// RemoveManifestRecord deletes the record for schemeName and reports whether
// one existed.
func RemoveManifestRecord(manifest *DataScheme, schemeName string) bool {
	_, e, ok := FindManifestRecord(manifest, schemeName)
	if !ok {
		return false
	}
	_, err := manifest.DeleteEntry(e)
	return err == nil
}

// ConvertStoredValue converts a value read from storage with dt. Reference
// values are kept as stored because their target scheme may load later; they
// are checked again when written through SetDataOnEntry. An empty FilePath is
// the type's default and loads as stored even when the type forbids setting it.
func ConvertStoredValue(scope Scope, dt DataType, value any) (any, error) {
	switch dt.(type) {
	case ReferenceType:
		if value == nil {
			return dt.DefaultValue(), nil
		}
		return value, nil
	case FilePathType:
		if s, ok := value.(string); value == nil || ok && strings.TrimSpace(s) == "" {
			return dt.DefaultValue(), nil
		}
	}
	return dt.ConvertValue(scope, value)
}
