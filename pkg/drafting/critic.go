package drafting

import (
	"strings"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

const (
	approvalScore    = 8
	revisionScore    = 7
	wordCountRatio   = 0.7
	scopeWindowChars = 500
	hookWordCount    = 3
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"he": true, "her": true, "his": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true,
	"she": true, "that": true, "the": true, "their": true, "they": true,
	"to": true, "was": true, "were": true, "with": true,
}

// ApplyVerdictRules overlays server-side checks on a normalized critique.
// Models routinely claim compliance they did not deliver, so word-count
// and scope flags are recomputed here, and revision_needed is forced when
// the critique demands revision under the house rules.
func ApplyVerdictRules(c *models.Critique, content string, scene models.OutlineScene) {
	compliant := scene.WordCount <= 0 ||
		float64(CountWords(content))/float64(scene.WordCount) >= wordCountRatio
	c.WordCountCompliance = &compliant

	inScope := sceneInScope(content, scene)
	c.ScopeAdherence = &inScope

	if demandsRevision(c) {
		needed := true
		c.RevisionNeeded = &needed
	}
}

func demandsRevision(c *models.Critique) bool {
	if c.WordCountCompliance != nil && !*c.WordCountCompliance {
		return true
	}
	if c.ScopeAdherence != nil && !*c.ScopeAdherence {
		return true
	}
	if c.Score < revisionScore {
		return true
	}
	if c.Score < approvalScore && len(c.Issues) > 0 {
		return true
	}
	return len(c.Issues) > 0 || len(c.RevisionRequests) > 0
}

// sceneInScope checks two things: the scene's closing text engages with
// the declared hook, and the content does not spoil any declared future
// events.
func sceneInScope(content string, scene models.OutlineScene) bool {
	lower := strings.ToLower(content)
	for _, future := range scene.FutureEvents {
		future = strings.ToLower(strings.TrimSpace(future))
		if future != "" && strings.Contains(lower, future) {
			return false
		}
	}

	keys := hookKeywords(scene.Hook)
	if len(keys) == 0 {
		return true
	}
	tail := lower
	if len(tail) > scopeWindowChars {
		tail = tail[len(tail)-scopeWindowChars:]
	}
	for _, k := range keys {
		if strings.Contains(tail, k) {
			return true
		}
	}
	return false
}

// hookKeywords returns the first meaningful words of the hook, lowercased.
func hookKeywords(hook string) []string {
	var keys []string
	for _, tok := range Tokens(strings.ToLower(hook)) {
		tok = strings.Trim(tok, `.,!?;:"'()[]`)
		if tok == "" || stopwords[tok] {
			continue
		}
		keys = append(keys, tok)
		if len(keys) == hookWordCount {
			break
		}
	}
	return keys
}
