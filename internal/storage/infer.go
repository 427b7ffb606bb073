package storage

import (
	"strings"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

// TypeInference picks a DataType for a column of raw string values.
type TypeInference interface {
	Infer(values []string) types.DataType
}

// InferenceFunc adapts a function to TypeInference.
type InferenceFunc func(values []string) types.DataType

func (f InferenceFunc) Infer(values []string) types.DataType { return f(values) }

// CandidateInference tries each candidate in order and picks the first one
// that converts every non-empty value. Columns with no non-empty values, and
// columns no candidate accepts, get Fallback.
type CandidateInference struct {
	Candidates []types.DataType
	Fallback   types.DataType
}

// DefaultInference prefers Integer, then DateTime, then Text.
func DefaultInference() CandidateInference {
	return CandidateInference{
		Candidates: []types.DataType{types.IntegerType{}, types.DateTimeType{}},
		Fallback:   types.TextType{},
	}
}

func (c CandidateInference) Infer(values []string) types.DataType {
	fallback := c.Fallback
	if fallback == nil {
		fallback = types.TextType{}
	}
	var populated []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			populated = append(populated, v)
		}
	}
	if len(populated) == 0 {
		return fallback
	}
	for _, dt := range c.Candidates {
		if acceptsAll(dt, populated) {
			return dt
		}
	}
	return fallback
}

func acceptsAll(dt types.DataType, values []string) bool {
	for _, v := range values {
		if _, err := dt.ConvertValue(types.Scope{}, v); err != nil {
			return false
		}
	}
	return true
}
