package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonValue serializes v into a JSON text column value.
func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// scanJSON decodes a JSON text or blob column into dest.
// A NULL column leaves dest untouched.
func scanJSON(value interface{}, dest interface{}, name string) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan %s: unexpected type %T", name, value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// StringSet is an ordered list of distinct strings stored as a JSON array.
type StringSet []string

// Add appends s unless it is already present.
func (s StringSet) Add(v string) StringSet {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

// Value implements the driver.Valuer interface.
func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return jsonValue([]string(s))
}

// Scan implements the sql.Scanner interface.
func (s *StringSet) Scan(value interface{}) error {
	*s = StringSet{}
	return scanJSON(value, (*[]string)(s), "StringSet")
}
