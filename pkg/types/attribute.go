package types

import (
	"encoding/json"
	"fmt"
)

// DefaultColumnWidth is the display width hint given to new attributes.
const DefaultColumnWidth = 150

// AttributeDefinition is a named, typed column of a DataScheme. Its name is
// unique within the owning scheme; at most one attribute per scheme is the
// identifier.
type AttributeDefinition struct {
	AttributeName    string
	DataType         DataType
	ColumnWidth      int
	AttributeToolTip string
	IsIdentifier     bool

	scheme *DataScheme
}

// NewAttribute returns an unowned attribute with the default column width.
func NewAttribute(name string, dt DataType) *AttributeDefinition {
	return &AttributeDefinition{AttributeName: name, DataType: dt, ColumnWidth: DefaultColumnWidth}
}

// Scheme returns the owning scheme, or nil when the attribute is unowned.
func (a *AttributeDefinition) Scheme() *DataScheme { return a.scheme }

// CloneDefaultValue returns a fresh copy of the attribute type's default.
func (a *AttributeDefinition) CloneDefaultValue() any {
	if a.DataType == nil {
		return nil
	}
	return CloneValue(a.DataType.DefaultValue())
}

// Clone returns an unowned copy of a.
func (a *AttributeDefinition) Clone() *AttributeDefinition {
	c := *a
	c.scheme = nil
	return &c
}

// Equal compares names, types and presentation hints.
func (a *AttributeDefinition) Equal(o *AttributeDefinition) bool {
	if a == nil || o == nil {
		return a == o
	}
	return a.AttributeName == o.AttributeName &&
		EqualTypes(a.DataType, o.DataType) &&
		a.ColumnWidth == o.ColumnWidth &&
		a.AttributeToolTip == o.AttributeToolTip &&
		a.IsIdentifier == o.IsIdentifier
}

func (a *AttributeDefinition) String() string {
	typeName := "<nil>"
	if a.DataType != nil {
		typeName = a.DataType.TypeName()
	}
	return fmt.Sprintf("%s:%s", a.AttributeName, typeName)
}

type attributeJSON struct {
	AttributeName    string          `json:"AttributeName"`
	DataType         json.RawMessage `json:"DataType"`
	ColumnWidth      int             `json:"ColumnWidth"`
	AttributeToolTip string          `json:"AttributeToolTip,omitempty"`
	IsIdentifier     bool            `json:"IsIdentifier"`
}

// MarshalJSON writes the attribute with its polymorphic DataType.
func (a *AttributeDefinition) MarshalJSON() ([]byte, error) {
	dt, err := MarshalDataType(a.DataType)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", a.AttributeName, err)
	}
	return json.Marshal(attributeJSON{
		AttributeName:    a.AttributeName,
		DataType:         dt,
		ColumnWidth:      a.ColumnWidth,
		AttributeToolTip: a.AttributeToolTip,
		IsIdentifier:     a.IsIdentifier,
	})
}

// UnmarshalJSON resolves the DataType with UnmarshalDataType.
func (a *AttributeDefinition) UnmarshalJSON(data []byte) error {
	var raw attributeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.DataType) == 0 || string(raw.DataType) == "null" {
		return Errorf(KindResolution, "decode attribute", Scope{Attribute: raw.AttributeName},
			"%w: missing DataType", ErrUnknownDataType)
	}
	dt, err := UnmarshalDataType(raw.DataType)
	if err != nil {
		return err
	}
	a.AttributeName = raw.AttributeName
	a.DataType = dt
	a.ColumnWidth = raw.ColumnWidth
	a.AttributeToolTip = raw.AttributeToolTip
	a.IsIdentifier = raw.IsIdentifier
	return nil
}
