package types

import "strings"

// SchemeLookup resolves a scheme by name. The registry implements it; Reference
// conversion uses it to find target schemes at call time.
type SchemeLookup interface {
	LookupScheme(name string) (*DataScheme, bool)
}

// IdentifierIndex is an optional fast path a SchemeLookup may provide to test
// identifier membership without scanning entries.
type IdentifierIndex interface {
	IdentifierValues(schemeName, attributeName string) (map[string]any, error)
}

// Scope is the diagnostic context passed by value through conversions,
// storage and commands. Narrower scopes are derived with the With methods;
// the receiver is never modified.
type Scope struct {
	Lookup    SchemeLookup
	Driver    string
	Scheme    string
	Attribute string
	Path      string
}

// WithLookup returns a copy of s resolving schemes through l.
func (s Scope) WithLookup(l SchemeLookup) Scope {
	s.Lookup = l
	return s
}

// WithDriver returns a copy of s naming the active driver (format or backend).
func (s Scope) WithDriver(driver string) Scope {
	s.Driver = driver
	return s
}

// WithScheme returns a copy of s narrowed to a scheme. The attribute is cleared.
func (s Scope) WithScheme(name string) Scope {
	s.Scheme = name
	s.Attribute = ""
	return s
}

// WithAttribute returns a copy of s narrowed to an attribute.
func (s Scope) WithAttribute(name string) Scope {
	s.Attribute = name
	return s
}

// WithPath returns a copy of s naming the file being processed.
func (s Scope) WithPath(path string) Scope {
	s.Path = path
	return s
}

// Merge returns s overlaid with every non-empty field of other.
func (s Scope) Merge(other Scope) Scope {
	if other.Lookup != nil {
		s.Lookup = other.Lookup
	}
	if other.Driver != "" {
		s.Driver = other.Driver
	}
	if other.Scheme != "" {
		s.Scheme = other.Scheme
	}
	if other.Attribute != "" {
		s.Attribute = other.Attribute
	}
	if other.Path != "" {
		s.Path = other.Path
	}
	return s
}

func (s Scope) String() string {
	var parts []string
	if s.Driver != "" {
		parts = append(parts, "driver="+s.Driver)
	}
	if s.Scheme != "" {
		parts = append(parts, "scheme="+s.Scheme)
	}
	if s.Attribute != "" {
		parts = append(parts, "attribute="+s.Attribute)
	}
	if s.Path != "" {
		parts = append(parts, "path="+s.Path)
	}
	return strings.Join(parts, " ")
}
