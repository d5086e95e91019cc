// Package normalize coerces loosely structured model JSON into the
// canonical shapes the pipeline stores. Every function here is pure.
package normalize

import (
	"strconv"
	"strings"
	"unicode"
)

// envelopeKeys are the single-key wrappers models like to put around their
// actual payload.
var envelopeKeys = map[string]bool{
	"characters":    true,
	"worldbuilding": true,
	"world":         true,
	"outline":       true,
	"narrative":     true,
	"genesis":       true,
	"critique":      true,
	"feedback":      true,
	"data":          true,
	"result":        true,
}

// UnwrapEnvelope removes a single-key wrapper object when the key is one of
// the known envelope names. Anything else passes through unchanged.
func UnwrapEnvelope(raw any) any {
	m, ok := raw.(map[string]any)
	if !ok || len(m) != 1 {
		return raw
	}
	for k, v := range m {
		if envelopeKeys[strings.ToLower(k)] {
			return v
		}
	}
	return raw
}

// alias maps a list of drifted field names onto one canonical name.
type alias struct {
	canonical string
	names     []string
}

// applyAliases copies the first non-empty aliased value into the canonical
// field. An existing non-empty canonical value is never overwritten.
func applyAliases(m map[string]any, aliases []alias) {
	for _, a := range aliases {
		if v, ok := m[a.canonical]; ok && !isEmpty(v) {
			continue
		}
		for _, name := range a.names {
			if v, ok := m[name]; ok && !isEmpty(v) {
				m[a.canonical] = v
				break
			}
		}
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// asString coerces a value to a trimmed string, or "".
func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// asStringSlice coerces a value to []string, accepting either a JSON array
// or a single string.
func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{strings.TrimSpace(t)}
	}
	return nil
}

// asInt coerces a JSON number (or numeric string) to an int. ok is false
// when no number can be extracted.
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case string:
		digits := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, t)
		if digits == "" {
			return 0, false
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// asBool coerces truthy forms ("true"/"yes"/bool) to a *bool, or nil when
// the field is absent or unrecognizable.
func asBool(v any) *bool {
	switch t := v.(type) {
	case bool:
		b := t
		return &b
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes":
			b := true
			return &b
		case "false", "no":
			b := false
			return &b
		}
	}
	return nil
}

// ParseWordCount extracts a positive word count from values like 1900,
// "1,900" or "about 1900 words", falling back to def.
func ParseWordCount(v any, def int) int {
	n, ok := asInt(v)
	if !ok || n <= 0 {
		return def
	}
	return n
}

// DefaultWordCount is used when an outline scene carries no usable count.
const DefaultWordCount = 1500
