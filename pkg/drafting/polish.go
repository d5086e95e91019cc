package drafting

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	lazyWindowChars  = 500
	minLengthRatio   = 0.85
	endingTokens     = 50
	minEndingOverlap = 0.30
)

// Meta-commentary a lazy polish leaves near the end instead of the actual
// scene text.
var lazyPolishPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)the rest (of the (scene|draft|story) )?(is|remains|stays) (the same|unchanged|as written)`),
	regexp.MustCompile(`(?i)i (won'?t|will not|don'?t need to) (repeat|rewrite|reproduce)`),
	regexp.MustCompile(`(?i)maintaining the [\d,]+[- ]?word count`),
	regexp.MustCompile(`(?i)\[\s*(rest|continues?|unchanged|scene continues|remainder)[^\]]*\]`),
	regexp.MustCompile(`(?i)no (further |other )?changes (are )?(needed|necessary|required)`),
	regexp.MustCompile(`(?i)(same|identical|unchanged) as (the )?(original|previous) (draft|version|scene)`),
	regexp.MustCompile(`(?i)continues? (exactly )?as (written|before|in the original)`),
	regexp.MustCompile(`(?i)remainder of the (scene|draft|text) (is|remains)`),
}

// ValidatePolish decides whether polished output may replace the
// pre-polish draft. It returns false with a reason when the polish is
// lazy meta-commentary, suspiciously short, or ends on a different scene
// than the draft it claims to refine.
func ValidatePolish(prePolish, polished string) (bool, string) {
	tail := polished
	if len(tail) > lazyWindowChars {
		tail = tail[len(tail)-lazyWindowChars:]
	}
	for _, re := range lazyPolishPatterns {
		if re.MatchString(tail) {
			return false, "lazy polish detected: " + re.String()
		}
	}

	preWords := CountWords(prePolish)
	polishedWords := CountWords(polished)
	if float64(polishedWords) < minLengthRatio*float64(preWords) {
		return false, fmt.Sprintf("polished draft too short: %d words vs %d pre-polish", polishedWords, preWords)
	}

	if overlap := endingOverlap(prePolish, polished); overlap < minEndingOverlap {
		return false, fmt.Sprintf("polished ending diverged from draft: overlap %.2f", overlap)
	}
	return true, ""
}

// endingOverlap measures word-set agreement between the final tokens of
// both versions.
func endingOverlap(prePolish, polished string) float64 {
	pre := endingSet(prePolish)
	post := endingSet(polished)
	if len(pre) == 0 {
		return 1
	}
	shared := 0
	for w := range pre {
		if post[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(pre))
}

func endingSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokens(lastTokens(s, endingTokens)) {
		tok = strings.Trim(strings.ToLower(tok), `.,!?;:"'()[]*_`)
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}
