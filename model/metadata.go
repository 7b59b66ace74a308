package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is free-form per-record annotation, stored as JSONB
type Metadata map[string]interface{}

// Value implements driver.Valuer. A nil map is stored as an empty object so
// JSONB columns never receive SQL NULL.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case Metadata:
		*m = v
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Metadata", value)
	}
}

// String returns the value under key if it is a string, or ""
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
