package language

import (
	"encoding/json"
	"sort"
	"strings"
)

// Variables holds the concrete values bound to an operation's variable
// definitions. The zero value (nil) is a valid empty set.
type Variables map[string]any

// Canonical returns a stable, order-independent serialization of the
// variables: object keys are sorted recursively so that two equivalent
// variable sets always serialize to the same string. It is the basis for
// request and selector identity.
func (v Variables) Canonical() string {
	if len(v) == 0 {
		return "{}"
	}
	var sb strings.Builder
	writeCanonical(&sb, map[string]any(v))
	return sb.String()
}

// Equal reports whether two variable sets are equivalent under canonical
// serialization.
func (v Variables) Equal(other Variables) bool {
	return v.Canonical() == other.Canonical()
}

// Copy returns a shallow copy. Nested values are shared; callers that
// override entries (pagination cursors, refetch) only ever replace
// top-level keys.
func (v Variables) Copy() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			sb.Write(keyJSON)
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case Variables:
		writeCanonical(sb, map[string]any(val))
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			// Non-JSON values cannot appear in GraphQL variables; fall back
			// to null rather than producing an unstable key.
			sb.WriteString("null")
			return
		}
		sb.Write(b)
	}
}
