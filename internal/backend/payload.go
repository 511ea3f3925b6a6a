package backend

import (
	"encoding/json"
	"fmt"
)

// PayloadString renders an opaque task payload for transport.
// Strings and byte slices pass through; other values are JSON encoded.
func PayloadString(payload any) (string, error) {
	switch p := payload.(type) {
	case nil:
		return "", nil
	case string:
		return p, nil
	case []byte:
		return string(p), nil
	case fmt.Stringer:
		return p.String(), nil
	}

	data, err := json.Marshal(stringKeys(payload))
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return string(data), nil
}

// stringKeys rewrites maps with non-string keys, as YAML produces for keys
// like 1 or true, into string-keyed maps that JSON can encode.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = stringKeys(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = stringKeys(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = stringKeys(val)
		}
		return s
	default:
		return v
	}
}
