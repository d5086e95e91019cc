package artifacts

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Persisted documents carry snake_case field names; in-process values use
// camelCase. marshalSnake and unmarshalCamel apply the recursive key
// transform at the store boundary, so every Store implementation persists
// the same shape.

func marshalSnake(kind string, value any) ([]byte, error) {
	doc, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s artifact: %w", kind, err)
	}
	var generic any
	if err := json.Unmarshal(doc, &generic); err != nil {
		return nil, fmt.Errorf("failed to decode %s artifact for key transform: %w", kind, err)
	}
	out, err := json.Marshal(transformKeys(generic, snakeKey))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s artifact: %w", kind, err)
	}
	return out, nil
}

func unmarshalCamel(kind string, doc []byte, out any) error {
	var generic any
	if err := json.Unmarshal(doc, &generic); err != nil {
		return fmt.Errorf("failed to unmarshal %s artifact: %w", kind, err)
	}
	camel, err := json.Marshal(transformKeys(generic, camelKey))
	if err != nil {
		return fmt.Errorf("failed to re-encode %s artifact: %w", kind, err)
	}
	if err := json.Unmarshal(camel, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s artifact: %w", kind, err)
	}
	return nil
}

func transformKeys(v any, f func(string) string) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[f(k)] = transformKeys(val, f)
		}
		return out
	case []any:
		for i := range x {
			x[i] = transformKeys(x[i], f)
		}
		return x
	default:
		return v
	}
}

// snakeKey converts camelCase field names to snake_case: "wordCount"
// becomes "word_count". Underscores are only inserted at a lower-to-upper
// boundary, so data-bearing keys like character names ("Mara") and keys
// that are already snake_case pass through with their case intact.
func snakeKey(k string) string {
	var b strings.Builder
	b.Grow(len(k) + 4)
	runes := []rune(k)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// camelKey inverts snakeKey: "word_count" becomes "wordCount".
func camelKey(k string) string {
	parts := strings.Split(k, "_")
	if len(parts) == 1 {
		return k
	}
	var b strings.Builder
	b.Grow(len(k))
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
