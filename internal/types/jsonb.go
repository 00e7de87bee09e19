package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure all JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*Metadata)(nil)
	_ driver.Valuer = Metadata(nil)
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
// A SQL NULL leaves the map nil; normalization to {} happens in the assembly
// pipeline, not at the persistence boundary, so the raw state stays observable.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSONB(m, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Clone returns a deep copy of the metadata document. Values are copied via a
// JSON round-trip, which is safe because metadata only ever holds
// JSON-representable values.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		// Non-JSON values cannot come from the database; a shallow copy is
		// the best effort for hand-built maps in tests.
		out := make(Metadata, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out Metadata
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// OrEmpty returns the metadata itself, or an empty (non-nil) document when the
// receiver is nil. This is the single place the null→{} collapse is expressed.
func (m Metadata) OrEmpty() Metadata {
	if m == nil {
		return Metadata{}
	}
	return m
}
