package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/IShalkin/manoe-sub005/pkg/llm"
)

// Kind buckets agent failures for logging, metrics, and recovery policy.
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindRateLimit  Kind = "RateLimit"
	KindProvider   Kind = "Provider5xx"
	KindNetwork    Kind = "Network"
	KindUnknown    Kind = "Unknown"
)

// ErrValidation marks model output that failed parsing or normalization.
var ErrValidation = errors.New("agent output failed validation")

// Classify maps an error to its failure kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrValidation) {
		return KindValidation
	}

	var rateLimit *llm.RateLimitError
	if errors.As(err, &rateLimit) {
		return KindRateLimit
	}
	var server *llm.ServerError
	if errors.As(err, &server) {
		return KindProvider
	}
	var network *llm.NetworkError
	if errors.As(err, &network) {
		return KindNetwork
	}
	var timeout *llm.RequestTimeoutError
	if errors.As(err, &timeout) {
		return KindNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// ParseJSON extracts a JSON document from model output, tolerating
// markdown fences and prose around the payload. Failures wrap
// ErrValidation.
func ParseJSON(content string) (any, error) {
	trimmed := strings.TrimSpace(content)

	// strip ```json fences
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, nil
	}

	// fall back to the outermost object or array embedded in prose
	for _, pair := range [][2]rune{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexRune(trimmed, pair[0])
		end := strings.LastIndexFunc(trimmed, func(r rune) bool { return r == pair[1] })
		if start >= 0 && end > start {
			var v any
			if err := json.Unmarshal([]byte(trimmed[start:end+1]), &v); err == nil {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no JSON document found in output", ErrValidation)
}
