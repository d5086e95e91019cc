package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestSnapshotRoundTrip(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := RunSnapshot{
		Run: GenerationRun{
			RunID:        "run-1",
			ProjectID:    "proj-1",
			SeedIdea:     "a lighthouse keeper meets a stranger",
			LLMConfig:    LLMConfig{Provider: "openai", Model: "gpt-4o", Temperature: 0.7},
			Mode:         ModeFull,
			Phase:        PhaseDrafting,
			CurrentScene: 2,
			TotalScenes:  5,
			IsPaused:     true,
			StartedAt:    started,
			UpdatedAt:    started.Add(10 * time.Minute),
		},
		Narrative: &Narrative{Premise: "premise", Genre: "mystery", Tone: "brooding", NarrativeArc: "three-act"},
		Characters: []Character{
			{Name: "Elena", Role: RoleProtagonist},
			{Name: "The Stranger", Role: RoleAntagonist},
		},
		Drafts: DraftsToList(map[int]Draft{
			1: {Title: "Arrival", Content: "fog rolled in", WordCount: 600, Status: DraftStatusPolished, CreatedAt: started},
		}),
		Critiques: CritiquesToList(map[int][]Critique{
			1: {{Score: 8, RevisionNeeded: boolPtr(false)}},
		}),
		RevisionCount: CountsToList(map[int]int{1: 1}),
		Constraints: []KeyConstraint{
			{Key: ConstraintSeedIdea, Value: "a lighthouse keeper meets a stranger", Timestamp: started, Immutable: true},
		},
		World:              NewWorldState(),
		LastArchivistScene: 0,
		State:              SnapshotInterrupted,
		SavedAt:            started.Add(11 * time.Minute),
	}

	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	var restored RunSnapshot
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Equal(t, snap, restored)

	drafts := DraftsFromList(restored.Drafts)
	require.Contains(t, drafts, 1)
	assert.Equal(t, "Arrival", drafts[1].Title)
	assert.Equal(t, map[int]int{1: 1}, CountsFromList(restored.RevisionCount))
}

func TestDraftsListOrdering(t *testing.T) {
	list := DraftsToList(map[int]Draft{
		3: {Title: "c"},
		1: {Title: "a"},
		2: {Title: "b"},
	})
	require.Len(t, list, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{list[0].SceneNumber, list[1].SceneNumber, list[2].SceneNumber})
}

func TestCritiqueJSONWritesBothSpellings(t *testing.T) {
	c := Critique{Score: 6, RevisionNeeded: boolPtr(true)}
	raw, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"revision_needed":true`)
	assert.Contains(t, string(raw), `"revisionNeeded":true`)

	var fromCamel Critique
	require.NoError(t, json.Unmarshal([]byte(`{"score":7,"revisionNeeded":false}`), &fromCamel))
	require.NotNil(t, fromCamel.RevisionNeeded)
	assert.False(t, *fromCamel.RevisionNeeded)

	// snake_case wins when both are present
	var both Critique
	require.NoError(t, json.Unmarshal([]byte(`{"score":7,"revision_needed":true,"revisionNeeded":false}`), &both))
	require.NotNil(t, both.RevisionNeeded)
	assert.True(t, *both.RevisionNeeded)
}

func TestCritiqueApproval(t *testing.T) {
	tests := []struct {
		name     string
		critique Critique
		approved bool
	}{
		{"revision not needed", Critique{Score: 5, RevisionNeeded: boolPtr(false)}, true},
		{"explicit approval", Critique{Score: 5, Approved: boolPtr(true)}, true},
		{"high score", Critique{Score: 8}, true},
		{"low score no signals", Critique{Score: 6}, false},
		{"revision needed overrides nothing", Critique{Score: 9, RevisionNeeded: boolPtr(true)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.approved, tt.critique.IsApproved())
		})
	}
}
