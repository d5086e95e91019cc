package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IShalkin/manoe-sub005/pkg/agent"
	"github.com/IShalkin/manoe-sub005/pkg/models"
	"github.com/IShalkin/manoe-sub005/pkg/prompt"
	"github.com/IShalkin/manoe-sub005/pkg/worldstate"
)

// archivistPass consolidates the raw facts collected since the previous
// pass into keyed constraints and a world-state diff. The archivist has a
// safe fallback: a failed pass leaves the fact log intact and the run
// continues, so only a validation_error event is emitted.
func (o *Orchestrator) archivistPass(ctx context.Context, t *Task, upToScene int) {
	st := t.state
	fresh := st.facts.Since(st.lastArchivistScene)
	if len(fresh) == 0 {
		st.lastArchivistScene = upToScene
		return
	}

	runID := t.runID()
	o.publish(ctx, runID, models.EventArchivistStart, map[string]any{
		"upToScene": upToScene,
	})

	parsed, err := o.agentJSON(ctx, t, agent.Spec{
		Agent:    "archivist",
		Fallback: prompt.FallbackArchivist,
		Vars: map[string]any{
			"Facts":       renderFacts(fresh),
			"Constraints": t.constraintBlock(),
		},
	})
	if err != nil {
		o.logger.Warn("Archivist pass failed, keeping raw facts", "run_id", runID, "up_to_scene", upToScene, "error", err)
		o.publish(ctx, runID, models.EventValidationError, map[string]any{
			"agent": "archivist",
			"phase": string(t.phase()),
			"error": err.Error(),
		})
		return
	}

	doc, _ := parsed.(map[string]any)
	st.constraints.Merge(parseConstraints(doc["constraints"], upToScene))
	if raw, ok := doc["world_diff"].(map[string]any); ok {
		diff, warnings := worldstate.ParseDiff(raw)
		for _, w := range warnings {
			o.logger.Warn("Archivist world diff", "run_id", runID, "warning", w)
		}
		if !diff.Empty() {
			st.world = worldstate.Apply(st.world, diff, upToScene, o.logger)
		}
	}
	st.lastArchivistScene = upToScene

	o.publish(ctx, runID, models.EventArchivistComplete, map[string]any{
		"upToScene":       upToScene,
		"constraintCount": st.constraints.Len(),
	})
	o.metrics.ArchivistPasses.Inc()
}

// parseConstraints extracts {key, value} proposals from the archivist
// payload, skipping malformed entries.
func parseConstraints(raw any, sceneNumber int) []models.KeyConstraint {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	var out []models.KeyConstraint
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, _ := m["key"].(string)
		value, _ := m["value"].(string)
		if key == "" || value == "" {
			continue
		}
		out = append(out, models.KeyConstraint{
			Key:         key,
			Value:       value,
			SceneNumber: sceneNumber,
			Timestamp:   now,
		})
	}
	return out
}

func renderFacts(facts []models.RawFact) string {
	var b strings.Builder
	for _, f := range facts {
		fmt.Fprintf(&b, "- [scene %d] %s\n", f.SceneNumber, f.Fact)
	}
	return b.String()
}
