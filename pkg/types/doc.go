// Package types defines the schema data model (DataScheme, AttributeDefinition,
// DataEntry, DataType), the diagnostic Scope threaded through conversions,
// the FileSystem abstraction consumed by storage formats, and the error kinds
// and sentinel errors shared by every layer.
package types
