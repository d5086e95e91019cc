package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/IShalkin/manoe-sub005/pkg/agent"
	"github.com/IShalkin/manoe-sub005/pkg/artifacts"
	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// saveSnapshot persists the run's full state. Called either from the
// run's own goroutine (phase boundaries, completion, failure) or from
// Shutdown after the runner has exited, so reading state without a state
// lock is safe.
func (o *Orchestrator) saveSnapshot(ctx context.Context, t *Task, state string) error {
	t.mu.RLock()
	run := *t.run
	t.mu.RUnlock()
	st := t.state

	snap := models.RunSnapshot{
		Run:                run,
		Narrative:          st.narrative,
		Characters:         st.characters,
		Worldbuilding:      models.WorldbuildingToList(st.worldbuilding),
		Outline:            st.outline,
		Drafts:             models.DraftsToList(st.drafts),
		Critiques:          models.CritiquesToList(st.critiques),
		RevisionCount:      models.CountsToList(st.revisions),
		Constraints:        st.constraints.Snapshot(),
		Facts:              st.facts.All(),
		World:              st.world,
		LastArchivistScene: st.lastArchivistScene,
		State:              state,
		SavedAt:            time.Now().UTC(),
	}

	if err := o.store.Save(ctx, run.RunID, artifacts.KindSnapshot, snap); err != nil {
		return fmt.Errorf("failed to save snapshot for run %s: %w", run.RunID, err)
	}
	o.logger.Info("Saved run snapshot", "run_id", run.RunID, "state", state, "phase", run.Phase)
	return nil
}

// restoreTask rebuilds a task from a snapshot. The caller is responsible
// for pausing and registering it.
func restoreTask(snap *models.RunSnapshot, caller agent.Caller) *Task {
	run := snap.Run
	run.IsPaused = true

	t := newTask(&run, caller)
	st := t.state
	st.narrative = snap.Narrative
	st.characters = snap.Characters
	st.worldbuilding = models.WorldbuildingFromList(snap.Worldbuilding)
	st.outline = snap.Outline
	st.drafts = models.DraftsFromList(snap.Drafts)
	st.critiques = models.CritiquesFromList(snap.Critiques)
	st.revisions = models.CountsFromList(snap.RevisionCount)
	st.constraints.Restore(snap.Constraints)
	st.facts.Restore(snap.Facts)
	st.world = snap.World
	st.lastArchivistScene = snap.LastArchivistScene
	return t
}
