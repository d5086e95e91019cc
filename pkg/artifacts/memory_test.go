package artifacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	outline := models.Outline{Scenes: []models.OutlineScene{
		{SceneNumber: 1, Title: "Arrival", WordCount: 900},
		{SceneNumber: 2, Title: "The Storm", WordCount: 1400},
	}}
	require.NoError(t, s.Save(ctx, "run-1", KindOutline, outline))

	var got models.Outline
	require.NoError(t, s.Load(ctx, "run-1", KindOutline, &got))
	assert.Equal(t, outline, got)
}

func TestMemoryStoreUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Save(ctx, "run-1", KindNarrative, map[string]string{"premise": "v1"}))
	require.NoError(t, s.Save(ctx, "run-1", KindNarrative, map[string]string{"premise": "v2"}))

	var got map[string]string
	require.NoError(t, s.Load(ctx, "run-1", KindNarrative, &got))
	assert.Equal(t, "v2", got["premise"])
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	var out map[string]any
	err := s.Load(context.Background(), "run-x", KindSnapshot, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListRuns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Save(ctx, "run-b", KindSnapshot, map[string]int{"n": 1}))
	require.NoError(t, s.Save(ctx, "run-a", KindSnapshot, map[string]int{"n": 2}))
	require.NoError(t, s.Save(ctx, "run-c", KindOutline, map[string]int{"n": 3}))

	runs, err := s.ListRuns(ctx, KindSnapshot)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, runs)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Save(ctx, "run-1", KindSnapshot, map[string]int{"n": 1}))
	require.NoError(t, s.Delete(ctx, "run-1", KindSnapshot))

	var out map[string]int
	assert.ErrorIs(t, s.Load(ctx, "run-1", KindSnapshot, &out), ErrNotFound)

	// deleting again is fine
	require.NoError(t, s.Delete(ctx, "run-1", KindSnapshot))
}
