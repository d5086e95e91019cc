package drafting

import (
	"log/slog"
	"strings"
)

const (
	// continuations shorter than this are passed through untouched
	minContinuationTokens = 100
	// a stripped continuation must keep at least this many characters
	minRemainderChars = 100
	anchorTokens      = 50
	fallbackAnchor    = 30
	prefixAgreement   = 0.8
)

// StripOverlap removes the echoed prefix from a continuation the model
// returned. Models in beats and expansion mode sometimes replay the whole
// scene before continuing; anchoring on the tail of the existing content
// finds where the new material starts. Stripping repeats until no anchor
// survives, so a continuation that echoes the scene more than once loses
// every echo and the operation is idempotent.
func StripOverlap(existing, continuation string) string {
	out := continuation
	for {
		if CountWords(out) < minContinuationTokens {
			return out
		}

		if next, ok := stripAtAnchor(existing, out, anchorTokens); ok {
			out = next
			continue
		}

		// Echo detection on the opening tokens: when the continuation
		// starts the way the existing content does, retry with a shorter
		// anchor.
		if prefixEchoed(existing, out) {
			if next, ok := stripAtAnchor(existing, out, fallbackAnchor); ok {
				out = next
				continue
			}
		}
		return out
	}
}

func stripAtAnchor(existing, continuation string, n int) (string, bool) {
	anchor := lastTokens(existing, n)
	if anchor == "" {
		return "", false
	}
	idx := strings.Index(strings.ToLower(continuation), strings.ToLower(anchor))
	if idx < 0 {
		return "", false
	}
	remainder := strings.TrimSpace(continuation[idx+len(anchor):])
	if len(remainder) < minRemainderChars {
		slog.Debug("Overlap strip would leave too little content, keeping continuation as-is",
			"remainder_chars", len(remainder))
		return "", false
	}
	return remainder, true
}

// prefixEchoed reports whether the continuation's opening tokens agree
// with the existing content's opening tokens at 80% or better.
func prefixEchoed(existing, continuation string) bool {
	existingToks := Tokens(existing)
	contToks := Tokens(continuation)

	n := min(100, len(existingToks)/2)
	if n == 0 || len(contToks) < n {
		return false
	}

	matches := 0
	for i := 0; i < n; i++ {
		if strings.EqualFold(existingToks[i], contToks[i]) {
			matches++
		}
	}
	return float64(matches)/float64(n) >= prefixAgreement
}
