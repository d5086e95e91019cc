package drafting

import "regexp"

// Patterns models leave behind in prose despite instructions.
var (
	wordCountNote = regexp.MustCompile(`(?i)\[?\(?\s*word count:?\s*~?\d[\d,]*\s*words?\s*\)?\]?`)
	tripleBlank   = regexp.MustCompile(`\n{3,}`)
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
)

// Sanitize strips word-count annotations and collapses runs of blank
// lines left behind by removals.
func Sanitize(content string) string {
	out := wordCountNote.ReplaceAllString(content, "")
	out = trailingSpace.ReplaceAllString(out, "\n")
	out = tripleBlank.ReplaceAllString(out, "\n\n")
	return trimBlank(out)
}

func trimBlank(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == '\n' || s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == '\n' || s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
