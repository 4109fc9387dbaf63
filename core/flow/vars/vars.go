// Package vars stores per-user variables collected by conversation flows.
//
// A stored value may be a plain scalar, a JSON scalar, or a JSON object
// wrapping the payload as {"value": ...}. Unwrapping lives here and nowhere
// else; callers always see the flat string form.
package vars

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// Store is the contract every variable backend satisfies.
type Store interface {
	// Get returns the unwrapped string form of a variable, reporting absence.
	Get(ctx context.Context, userID int64, name string) (string, bool, error)
	// Set persists a variable value.
	Set(ctx context.Context, userID int64, name, value string) error
	// HasValue reports whether the variable exists with a non-blank value.
	// This predicate backs every "does the user already have X" branch.
	HasValue(ctx context.Context, userID int64, name string) (bool, error)
	// Clear removes all variables of a user.
	Clear(ctx context.Context, userID int64) error
}

// Unwrap extracts the usable string form from a raw stored value.
func Unwrap(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return stringify(decoded)
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case map[string]any:
		if inner, ok := val["value"]; ok {
			return stringify(inner)
		}
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func nonBlank(v string) bool {
	return strings.TrimSpace(v) != ""
}
