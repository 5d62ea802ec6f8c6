package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}

// StringSlice is a custom type for storing string arrays as JSON
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	return scanJSON(value, s)
}

// IntSlice is a custom type for storing integer sets as JSON
type IntSlice []int

func (s IntSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *IntSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	return scanJSON(value, s)
}

// Contains reports whether v is present in the slice.
func (s IntSlice) Contains(v int) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
