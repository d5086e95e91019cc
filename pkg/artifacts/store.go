// Package artifacts persists per-run generation artifacts as JSON
// documents keyed by (run id, kind): the narrative concept, characters,
// outline, drafts, critiques, evaluations, and the run snapshot used for
// restart recovery.
package artifacts

import (
	"context"
	"errors"
	"fmt"
)

// Artifact kinds. Per-scene kinds are derived with SceneKind.
const (
	KindNarrative     = "narrative"
	KindCharacters    = "characters"
	KindNarrator      = "narrator"
	KindWorldbuilding = "worldbuilding"
	KindOutline       = "outline"
	KindAdvancedPlan  = "advanced_plan"
	KindDrafts        = "drafts"
	KindCritiques     = "critiques"
	KindEvaluations   = "evaluations"
	KindManuscript    = "final_manuscript"
	KindSnapshot      = "run_state_snapshot"
)

// SceneKind derives a per-scene artifact kind, e.g. "draft_scene_3".
func SceneKind(prefix string, sceneNumber int) string {
	return fmt.Sprintf("%s_scene_%d", prefix, sceneNumber)
}

// ErrNotFound is returned by Load when no artifact exists for the key.
var ErrNotFound = errors.New("artifact not found")

// Store saves and loads JSON-serializable artifacts.
type Store interface {
	// Save upserts the artifact for (runID, kind).
	Save(ctx context.Context, runID, kind string, value any) error

	// Load unmarshals the artifact into out; ErrNotFound when absent.
	Load(ctx context.Context, runID, kind string, out any) error

	// ListRuns returns the ids of runs that have an artifact of the
	// given kind.
	ListRuns(ctx context.Context, kind string) ([]string, error)

	// Delete removes the artifact; deleting a missing artifact is not an
	// error.
	Delete(ctx context.Context, runID, kind string) error
}
