package drafting

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

func boolPtr(b bool) *bool { return &b }

func TestApplyVerdictRulesWordCount(t *testing.T) {
	scene := models.OutlineScene{SceneNumber: 1, WordCount: 1000}

	c := models.Critique{Score: 9}
	ApplyVerdictRules(&c, prose("w", 400), scene)
	require.NotNil(t, c.WordCountCompliance)
	assert.False(t, *c.WordCountCompliance)
	require.NotNil(t, c.RevisionNeeded)
	assert.True(t, *c.RevisionNeeded)

	c = models.Critique{Score: 9}
	ApplyVerdictRules(&c, prose("w", 700), scene)
	assert.True(t, *c.WordCountCompliance)
	assert.Nil(t, c.RevisionNeeded)
}

func TestApplyVerdictRulesOverridesModelClaims(t *testing.T) {
	scene := models.OutlineScene{SceneNumber: 1, WordCount: 1000}
	c := models.Critique{Score: 9, WordCountCompliance: boolPtr(true)}
	ApplyVerdictRules(&c, prose("w", 100), scene)
	assert.False(t, *c.WordCountCompliance)
}

func TestApplyVerdictRulesLowScore(t *testing.T) {
	scene := models.OutlineScene{SceneNumber: 1, WordCount: 100}
	content := prose("w", 100)

	for _, tt := range []struct {
		score  int
		issues []string
		forced bool
	}{
		{6, nil, true},
		{7, []string{"pacing drags"}, true},
		{7, nil, false},
		{8, []string{"pacing drags"}, true}, // any non-empty issues demand revision
		{9, nil, false},
	} {
		c := models.Critique{Score: tt.score, Issues: tt.issues}
		ApplyVerdictRules(&c, content, scene)
		if tt.forced {
			require.NotNil(t, c.RevisionNeeded, "score %d issues %v", tt.score, tt.issues)
			assert.True(t, *c.RevisionNeeded)
		} else {
			assert.Nil(t, c.RevisionNeeded, "score %d issues %v", tt.score, tt.issues)
		}
	}
}

func TestApplyVerdictRulesHookScope(t *testing.T) {
	scene := models.OutlineScene{
		SceneNumber: 1,
		WordCount:   50,
		Hook:        "the lighthouse keeper waits",
	}

	inScope := prose("w", 60) + " and still the lighthouse stood dark."
	c := models.Critique{Score: 9}
	ApplyVerdictRules(&c, inScope, scene)
	assert.True(t, *c.ScopeAdherence)

	offScope := prose("w", 60) + " a spaceship landed in the desert."
	c = models.Critique{Score: 9}
	ApplyVerdictRules(&c, offScope, scene)
	assert.False(t, *c.ScopeAdherence)
	assert.True(t, *c.RevisionNeeded)
}

func TestApplyVerdictRulesFutureEventSpoiler(t *testing.T) {
	scene := models.OutlineScene{
		SceneNumber:  1,
		WordCount:    10,
		FutureEvents: []string{"the ship sinks"},
	}
	c := models.Critique{Score: 9}
	ApplyVerdictRules(&c, "They argued all night. Tomorrow the ship sinks beneath them.", scene)
	assert.False(t, *c.ScopeAdherence)
}

func TestHookKeywordsSkipStopwords(t *testing.T) {
	assert.Equal(t, []string{"lighthouse", "keeper", "waits"},
		hookKeywords("The lighthouse keeper waits for dawn"))
	assert.Empty(t, hookKeywords("the and of"))
	assert.Empty(t, hookKeywords(""))
}

func TestValidatePolishAccepts(t *testing.T) {
	pre := prose("w", 600)
	polished := prose("x", 540) + " " + lastTokens(pre, 50)
	ok, reason := ValidatePolish(pre, polished)
	assert.True(t, ok, reason)
}

func TestValidatePolishRejectsLazyNote(t *testing.T) {
	pre := prose("w", 600)
	for _, note := range []string{
		"(Note: the rest is the same as the original draft.)",
		"I won't repeat the remaining paragraphs.",
		"[rest of scene unchanged]",
		"No further changes needed.",
		"maintaining the 1,500-word count",
	} {
		polished := prose("x", 580) + " " + lastTokens(pre, 50) + "\n\n" + note
		ok, reason := ValidatePolish(pre, polished)
		assert.False(t, ok, note)
		assert.Contains(t, reason, "lazy polish", note)
	}
}

func TestValidatePolishRejectsShortOutput(t *testing.T) {
	pre := prose("w", 600)
	polished := prose("w", 400) + " " + lastTokens(pre, 50)
	ok, reason := ValidatePolish(pre, polished)
	assert.False(t, ok)
	assert.Contains(t, reason, "too short")
}

func TestValidatePolishRejectsDivergedEnding(t *testing.T) {
	pre := prose("w", 600)
	polished := prose("x", 600)
	ok, reason := ValidatePolish(pre, polished)
	assert.False(t, ok)
	assert.Contains(t, reason, "ending diverged")
}

func TestEndingOverlapIgnoresPunctuationAndCase(t *testing.T) {
	pre := "The storm broke at last, and the keeper wept."
	polished := strings.ToUpper(pre)
	assert.InDelta(t, 1.0, endingOverlap(pre, polished), 0.01)
}
