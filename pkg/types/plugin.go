package types

import (
	"encoding/json"
	"sort"
	"sync"
)

// DataTypeDecoder builds a host-specific DataType from the decoded JSON
// fields of its serialized form.
type DataTypeDecoder func(fields map[string]json.RawMessage) (DataType, error)

// dataTypeDecoders holds the host type decoders registered for this process.
var dataTypeDecoders = struct {
	sync.RWMutex
	m map[string]DataTypeDecoder
}{m: make(map[string]DataTypeDecoder)}

// RegisterDataType makes a host-specific type resolvable by name during
// deserialization. Hosts call it at startup. A later registration for the same
// name replaces the earlier one. Types registered this way should implement
// json.Marshaler and write their own "TypeName" so they round-trip.
func RegisterDataType(name string, decode DataTypeDecoder) error {
	if name == "" {
		return ErrInvalidName
	}
	if decode == nil {
		return ErrNilArgument
	}
	dataTypeDecoders.Lock()
	defer dataTypeDecoders.Unlock()
	dataTypeDecoders.m[name] = decode
	return nil
}

// UnregisterDataType removes a registered decoder. Unknown names are ignored.
func UnregisterDataType(name string) {
	dataTypeDecoders.Lock()
	defer dataTypeDecoders.Unlock()
	delete(dataTypeDecoders.m, name)
}

// RegisteredDataTypes lists the names of registered host types, sorted.
func RegisteredDataTypes() []string {
	dataTypeDecoders.RLock()
	defer dataTypeDecoders.RUnlock()
	names := make([]string, 0, len(dataTypeDecoders.m))
	for name := range dataTypeDecoders.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDataTypeDecoder(name string) (DataTypeDecoder, bool) {
	dataTypeDecoders.RLock()
	defer dataTypeDecoders.RUnlock()
	d, ok := dataTypeDecoders.m[name]
	return d, ok
}
