// Package drafting produces one accepted draft per scene: single-shot or
// beats-mode generation, expansion, overlap stripping, the critic loop,
// and polish validation.
package drafting

import "strings"

// CountWords counts whitespace-separated tokens.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// Tokens splits into whitespace-separated tokens.
func Tokens(s string) []string {
	return strings.Fields(s)
}

// lastTokens returns the final n tokens of s joined by single spaces.
func lastTokens(s string, n int) string {
	toks := Tokens(s)
	if len(toks) > n {
		toks = toks[len(toks)-n:]
	}
	return strings.Join(toks, " ")
}
