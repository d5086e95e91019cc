package artifacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

func TestKeyTransformIsInvertible(t *testing.T) {
	tests := []struct {
		camel, snake string
	}{
		{"wordCount", "word_count"},
		{"sceneNumber", "scene_number"},
		{"runId", "run_id"},
		{"lastArchivistScene", "last_archivist_scene"},
		{"premise", "premise"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.snake, snakeKey(tt.camel), tt.camel)
		assert.Equal(t, tt.camel, camelKey(tt.snake), tt.snake)
	}

	// an already-snake key is left alone on the way down and camelizes on
	// the way up, landing on the camelCase field it maps to
	assert.Equal(t, "revision_needed", snakeKey("revision_needed"))
	assert.Equal(t, "revisionNeeded", camelKey("revision_needed"))
}

func TestKeyTransformLeavesDataKeysAlone(t *testing.T) {
	// character names and other data-bearing map keys survive both ways
	for _, k := range []string{"Mara", "Teo", "the door", "McCoy"} {
		assert.Equal(t, k, camelKey(snakeKey(k)), k)
	}
}

func TestStorePersistsSnakeCase(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	outline := models.Outline{Scenes: []models.OutlineScene{
		{SceneNumber: 1, Title: "Arrival", WordCount: 900},
	}}
	require.NoError(t, s.Save(ctx, "run-1", KindOutline, outline))

	s.mu.RLock()
	raw := string(s.data["run-1"][KindOutline])
	s.mu.RUnlock()
	assert.Contains(t, raw, `"scene_number"`)
	assert.Contains(t, raw, `"word_count"`)
	assert.NotContains(t, raw, `"sceneNumber"`)

	var got models.Outline
	require.NoError(t, s.Load(ctx, "run-1", KindOutline, &got))
	assert.Equal(t, outline, got)
}

func TestStoreRoundTripsNestedDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	snap := models.RunSnapshot{
		Run: models.GenerationRun{RunID: "run-1", SeedIdea: "a door under the sea"},
		World: models.WorldState{
			Characters: map[string]models.CharacterState{
				"Mara": {Location: "the door"},
			},
			Locations: map[string]map[string]any{},
			Flags:     map[string]any{},
		},
		LastArchivistScene: 3,
		State:              models.SnapshotInterrupted,
	}
	require.NoError(t, s.Save(ctx, "run-1", KindSnapshot, snap))

	var got models.RunSnapshot
	require.NoError(t, s.Load(ctx, "run-1", KindSnapshot, &got))
	assert.Equal(t, "run-1", got.Run.RunID)
	assert.Equal(t, 3, got.LastArchivistScene)
	assert.Equal(t, "the door", got.World.Characters["Mara"].Location)
}
