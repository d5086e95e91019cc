package normalize

import "github.com/IShalkin/manoe-sub005/pkg/models"

var critiqueAliases = []alias{
	{canonical: "score", names: []string{"Score", "rating", "overall_score", "overallScore"}},
	{canonical: "revision_needed", names: []string{"revisionNeeded", "needs_revision", "needsRevision"}},
	{canonical: "approved", names: []string{"Approved", "accept", "accepted"}},
	{canonical: "issues", names: []string{"Issues", "problems", "concerns"}},
	{canonical: "revisionRequests", names: []string{"revision_requests", "requests", "suggestions"}},
	{canonical: "strengths", names: []string{"Strengths", "positives"}},
	{canonical: "wordCountCompliance", names: []string{"word_count_compliance", "wordCountOk"}},
	{canonical: "scopeAdherence", names: []string{"scope_adherence", "scopeOk"}},
}

// Critique coerces a critic response into the canonical shape. The score
// is clamped to [1,10]; a missing score becomes 5 so downstream thresholds
// neither auto-approve nor auto-reject.
func Critique(raw any) models.Critique {
	var rec map[string]any
	if m, ok := UnwrapEnvelope(raw).(map[string]any); ok {
		rec = m
	} else {
		rec = map[string]any{}
	}
	applyAliases(rec, critiqueAliases)

	c := models.Critique{Score: 5}
	if n, ok := asInt(rec["score"]); ok {
		c.Score = clampScore(n)
	}
	c.RevisionNeeded = asBool(rec["revision_needed"])
	c.Approved = asBool(rec["approved"])
	c.Issues = asStringSlice(rec["issues"])
	c.RevisionRequests = asStringSlice(rec["revisionRequests"])
	c.Strengths = asStringSlice(rec["strengths"])
	c.WordCountCompliance = asBool(rec["wordCountCompliance"])
	c.ScopeAdherence = asBool(rec["scopeAdherence"])
	return c
}

func clampScore(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}
