package storage

import (
	"encoding/json"
	"fmt"
)

// EncodeJSON marshals a JSON column value. Nil maps and slices are stored as
// their empty form so readers never see null where a collection is expected.
func EncodeJSON(v any) ([]byte, error) {
	switch x := v.(type) {
	case map[string]float64:
		if x == nil {
			return []byte("{}"), nil
		}
	case map[string]any:
		if x == nil {
			return []byte("{}"), nil
		}
	case []string:
		if x == nil {
			return []byte("[]"), nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("storage: encode json: %w", err)
	}
	return b, nil
}

// DecodeJSON unmarshals a JSON column value. Empty and null columns leave v
// untouched.
func DecodeJSON(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode json: %w", err)
	}
	return nil
}
