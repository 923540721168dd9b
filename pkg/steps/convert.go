// Package steps provides shared conversion helpers for step units reading
// opaque config and context values.
package steps

import (
	"encoding/json"
	"fmt"

	"github.com/dukex/sniper/pkg/connector"
)

// StringSlice coerces a config/context value into a string slice. Values
// arriving from JSON decode as []any; values written in-process keep their
// native type. Both shapes must be accepted because a resumed task reloads
// its context from storage.
func StringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", item)
			}

			out = append(out, s)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", value)
	}
}

// Notes coerces a context value into connector notes, accepting both the
// native slice and the JSON-decoded generic shape.
func Notes(value any) ([]connector.Note, error) {
	if notes, ok := value.([]connector.Note); ok {
		return notes, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cannot re-encode notes: %w", err)
	}

	var notes []connector.Note
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("cannot decode notes: %w", err)
	}

	return notes, nil
}

// IntOr reads an integer config value with a default, accepting JSON's
// float64 representation.
func IntOr(value any, fallback int) int {
	switch v := value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
