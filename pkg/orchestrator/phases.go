package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IShalkin/manoe-sub005/pkg/agent"
	"github.com/IShalkin/manoe-sub005/pkg/artifacts"
	"github.com/IShalkin/manoe-sub005/pkg/constraint"
	"github.com/IShalkin/manoe-sub005/pkg/drafting"
	"github.com/IShalkin/manoe-sub005/pkg/models"
	"github.com/IShalkin/manoe-sub005/pkg/normalize"
	"github.com/IShalkin/manoe-sub005/pkg/prompt"
	"github.com/IShalkin/manoe-sub005/pkg/vector"
	"github.com/IShalkin/manoe-sub005/pkg/worldstate"
)

// phaseOrder is the outer state machine. Per-scene critique, revision,
// and polish sub-states are nested inside the drafting phase; the final
// polish phase assembles the manuscript.
var phaseOrder = []models.Phase{
	models.PhaseGenesis,
	models.PhaseCharacters,
	models.PhaseNarratorDesign,
	models.PhaseWorldbuilding,
	models.PhaseOutlining,
	models.PhaseAdvancedPlanning,
	models.PhaseDrafting,
	models.PhaseOriginality,
	models.PhaseImpact,
	models.PhasePolish,
}

func nextPhase(p models.Phase) (models.Phase, bool) {
	for i, ph := range phaseOrder {
		if ph == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return "", false
}

// runPhases is the run task's main loop. It only moves forward; pauses
// and cancels exit between phases, and Resume re-enters at the current
// phase.
func (o *Orchestrator) runPhases(ctx context.Context, t *Task) {
	defer o.wg.Done()
	defer o.finishRunner(t)

	for {
		if ctx.Err() != nil || t.ShouldStop() {
			return
		}
		phase := t.phase()
		start := time.Now()

		o.publish(ctx, t.runID(), models.EventPhaseStart, map[string]any{
			"phase": string(phase),
		})

		artifact, err := o.runPhase(ctx, t, phase)
		if errors.Is(err, drafting.ErrStopped) || errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			o.handleError(ctx, t, phase, err)
			return
		}

		o.metrics.PhaseDuration.WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())
		o.publish(ctx, t.runID(), models.EventPhaseComplete, map[string]any{
			"phase":    string(phase),
			"artifact": artifact,
		})

		next, ok := nextPhase(phase)
		if !ok {
			o.complete(ctx, t)
			return
		}
		t.update(func(r *models.GenerationRun) { r.Phase = next })

		// checkpoint at the phase boundary: a crash here restores at the
		// phase just entered instead of replaying the whole run
		if err := o.saveSnapshot(ctx, t, models.SnapshotInterrupted); err != nil {
			o.logger.Error("Failed to save checkpoint snapshot", "run_id", t.runID(), "error", err)
		}
	}
}

// finishRunner releases the runner slot on exit. A Resume that raced the
// exit may have cleared the pause flag after the loop's last safepoint
// check and lost its CompareAndSwap; relaunch so the run is not stranded.
func (o *Orchestrator) finishRunner(t *Task) {
	t.running.Store(false)
	if t.cancelFlag.Load() {
		o.dropSnapshot(t.runID())
		return
	}
	if o.baseCtx.Err() == nil && !t.terminal() && !t.ShouldStop() {
		o.launch(t)
	}
}

// dropSnapshot removes a cancelled run's checkpoint so a restart does not
// resurrect it. Event history is kept for stream replays.
func (o *Orchestrator) dropSnapshot(runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.Delete(ctx, runID, artifacts.KindSnapshot); err != nil {
		o.logger.Warn("Failed to delete cancelled run snapshot", "run_id", runID, "error", err)
	}
}

func (o *Orchestrator) runPhase(ctx context.Context, t *Task, phase models.Phase) (string, error) {
	switch phase {
	case models.PhaseGenesis:
		return o.phaseGenesis(ctx, t)
	case models.PhaseCharacters:
		return o.phaseCharacters(ctx, t)
	case models.PhaseNarratorDesign:
		return o.phaseNarratorDesign(ctx, t)
	case models.PhaseWorldbuilding:
		return o.phaseWorldbuilding(ctx, t)
	case models.PhaseOutlining:
		return o.phaseOutlining(ctx, t)
	case models.PhaseAdvancedPlanning:
		return o.phaseAdvancedPlanning(ctx, t)
	case models.PhaseDrafting:
		return o.phaseDrafting(ctx, t)
	case models.PhaseOriginality:
		return o.phaseEvaluation(ctx, t, "originality", prompt.FallbackOriginality)
	case models.PhaseImpact:
		return o.phaseEvaluation(ctx, t, "impact", prompt.FallbackImpact)
	case models.PhasePolish:
		return o.phasePolish(ctx, t)
	default:
		return "", fmt.Errorf("unknown phase %q", phase)
	}
}

func (o *Orchestrator) complete(ctx context.Context, t *Task) {
	t.update(func(r *models.GenerationRun) { r.IsCompleted = true })
	st := t.Status()

	if err := o.saveSnapshot(ctx, t, models.SnapshotCompleted); err != nil {
		o.logger.Error("Failed to save final snapshot", "run_id", st.RunID, "error", err)
	}
	o.publish(ctx, st.RunID, models.EventGenerationCompleted, map[string]any{
		"totalScenes": st.TotalScenes,
	})
	o.metrics.RunsActive.Dec()
	o.scheduleEventCleanup(st.RunID)
	o.scheduleEviction(st.RunID)
	o.logger.Info("Run completed", "run_id", st.RunID, "total_scenes", st.TotalScenes)
}

// agentJSON runs an agent and parses its JSON payload.
func (o *Orchestrator) agentJSON(ctx context.Context, t *Task, spec agent.Spec) (any, error) {
	spec.MaxTokens = o.cfg.MaxTokens
	out, err := t.caller.Run(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Agent, err)
	}
	parsed, err := agent.ParseJSON(out.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Agent, err)
	}
	return parsed, nil
}

func (o *Orchestrator) phaseGenesis(ctx context.Context, t *Task) (string, error) {
	parsed, err := o.agentJSON(ctx, t, agent.Spec{
		Agent:    "architect",
		Fallback: prompt.FallbackArchitect,
		Vars:     map[string]any{"SeedIdea": t.run.SeedIdea},
	})
	if err != nil {
		return "", err
	}

	narrative := normalize.Narrative(parsed)
	t.state.narrative = &narrative
	if err := o.store.Save(ctx, t.runID(), artifacts.KindNarrative, narrative); err != nil {
		return "", err
	}

	// Seed constraints are installed immediately, before any other phase.
	t.state.constraints.AddSeed(seedConstraints(t.run.SeedIdea, narrative))
	return artifacts.KindNarrative, nil
}

func seedConstraints(seedIdea string, n models.Narrative) []models.KeyConstraint {
	now := time.Now().UTC()
	seeds := []models.KeyConstraint{
		{Key: models.ConstraintSeedIdea, Value: seedIdea, Timestamp: now, Immutable: true},
	}
	for key, value := range map[string]string{
		models.ConstraintPremise:      n.Premise,
		models.ConstraintGenre:        n.Genre,
		models.ConstraintTone:         n.Tone,
		models.ConstraintNarrativeArc: n.NarrativeArc,
	} {
		if value != "" {
			seeds = append(seeds, models.KeyConstraint{Key: key, Value: value, Timestamp: now, Immutable: true})
		}
	}
	return seeds
}

func (o *Orchestrator) phaseCharacters(ctx context.Context, t *Task) (string, error) {
	n := t.state.narrative
	parsed, err := o.agentJSON(ctx, t, agent.Spec{
		Agent:    "profiler",
		Fallback: prompt.FallbackProfiler,
		Vars: map[string]any{
			"Premise": n.Premise,
			"Genre":   n.Genre,
			"Tone":    n.Tone,
		},
	})
	if err != nil {
		return "", err
	}

	characters := normalize.Characters(parsed)
	if len(characters) == 0 {
		return "", fmt.Errorf("profiler: %w: no usable characters in output", agent.ErrValidation)
	}
	t.state.characters = characters
	t.state.world = worldstate.Initial(characters)

	if err := o.store.Save(ctx, t.runID(), artifacts.KindCharacters, characters); err != nil {
		return "", err
	}
	o.indexCharacters(ctx, t, characters)
	return artifacts.KindCharacters, nil
}

func (o *Orchestrator) phaseNarratorDesign(ctx context.Context, t *Task) (string, error) {
	n := t.state.narrative
	parsed, err := o.agentJSON(ctx, t, agent.Spec{
		Agent:    "narrator",
		Fallback: prompt.FallbackNarrator,
		Vars: map[string]any{
			"Premise":        n.Premise,
			"Tone":           n.Tone,
			"CharacterNames": characterNames(t.state.characters),
		},
	})
	if err != nil {
		return "", err
	}
	if err := o.store.Save(ctx, t.runID(), artifacts.KindNarrator, parsed); err != nil {
		return "", err
	}
	return artifacts.KindNarrator, nil
}

func (o *Orchestrator) phaseWorldbuilding(ctx context.Context, t *Task) (string, error) {
	n := t.state.narrative
	parsed, err := o.agentJSON(ctx, t, agent.Spec{
		Agent:    "worldbuilder",
		Fallback: prompt.FallbackWorldbuilder,
		Vars: map[string]any{
			"Premise": n.Premise,
			"Genre":   n.Genre,
		},
	})
	if err != nil {
		return "", err
	}

	world := normalize.Worldbuilding(parsed)
	t.state.worldbuilding = world
	if err := o.store.Save(ctx, t.runID(), artifacts.KindWorldbuilding, models.WorldbuildingToList(world)); err != nil {
		return "", err
	}
	o.indexWorldbuilding(ctx, t, world)
	return artifacts.KindWorldbuilding, nil
}

func (o *Orchestrator) phaseOutlining(ctx context.Context, t *Task) (string, error) {
	n := t.state.narrative
	parsed, err := o.agentJSON(ctx, t, agent.Spec{
		Agent:    "strategist",
		Fallback: prompt.FallbackStrategist,
		Vars: map[string]any{
			"Premise":        n.Premise,
			"NarrativeArc":   n.NarrativeArc,
			"CharacterNames": characterNames(t.state.characters),
			"Constraints":    t.constraintBlock(),
		},
	})
	if err != nil {
		return "", err
	}

	outline := normalize.Outline(parsed)
	if len(outline.Scenes) == 0 {
		return "", fmt.Errorf("strategist: %w: outline has no scenes", agent.ErrValidation)
	}
	t.state.outline = &outline
	t.update(func(r *models.GenerationRun) { r.TotalScenes = len(outline.Scenes) })

	if err := o.store.Save(ctx, t.runID(), artifacts.KindOutline, outline); err != nil {
		return "", err
	}
	return artifacts.KindOutline, nil
}

func (o *Orchestrator) phaseAdvancedPlanning(ctx context.Context, t *Task) (string, error) {
	parsed, err := o.agentJSON(ctx, t, agent.Spec{
		Agent:    "advanced_planner",
		Fallback: prompt.FallbackAdvancedPlanner,
		Vars: map[string]any{
			"OutlineSummary": outlineSummary(t.state.outline),
			"Constraints":    t.constraintBlock(),
		},
	})
	if err != nil {
		return "", err
	}
	if err := o.store.Save(ctx, t.runID(), artifacts.KindAdvancedPlan, parsed); err != nil {
		return "", err
	}
	return artifacts.KindAdvancedPlan, nil
}

// phaseDrafting runs the per-scene loop: draft, critique, revise, polish
// per scene, collect developments, and run the archivist on cadence plus
// one final pass.
func (o *Orchestrator) phaseDrafting(ctx context.Context, t *Task) (string, error) {
	st := t.state
	engine := drafting.NewEngine(t.caller, o.log, o.vectors, o.embed, o.cfg.Drafting, o.metrics, o.logger)
	runID := t.runID()

	for i := 1; i <= len(st.outline.Scenes); i++ {
		if t.ShouldStop() || ctx.Err() != nil {
			return "", drafting.ErrStopped
		}
		if _, done := st.drafts[i]; done {
			continue
		}

		scene := st.outline.Scenes[i-1]
		st.currentSceneOutline = &scene
		t.update(func(r *models.GenerationRun) { r.CurrentScene = i })

		res, err := engine.DraftScene(ctx, drafting.SceneInput{
			RunID:       runID,
			ProjectID:   t.run.ProjectID,
			Scene:       scene,
			Constraints: t.constraintBlock(),
			ShouldStop:  t.ShouldStop,
		})
		st.currentSceneOutline = nil
		if err != nil {
			return "", err
		}

		st.drafts[i] = res.Draft
		st.critiques[i] = res.Critiques
		st.revisions[i] = res.RevisionCount

		if err := o.store.Save(ctx, runID, artifacts.SceneKind("draft", i), res.Draft); err != nil {
			return "", err
		}
		if err := o.store.Save(ctx, runID, artifacts.SceneKind("critique", i), res.Critiques); err != nil {
			return "", err
		}

		o.collectDevelopments(ctx, t, scene, res.Draft)

		if i%o.cfg.ArchivistCadence == 0 {
			o.archivistPass(ctx, t, i)
		}
	}

	// one final pass closes the fact log even off-cadence
	if st.facts.Len() > 0 && st.lastArchivistScene < len(st.outline.Scenes) {
		o.archivistPass(ctx, t, len(st.outline.Scenes))
	}

	if err := o.store.Save(ctx, runID, artifacts.KindDrafts, models.DraftsToList(st.drafts)); err != nil {
		return "", err
	}
	if err := o.store.Save(ctx, runID, artifacts.KindCritiques, models.CritiquesToList(st.critiques)); err != nil {
		return "", err
	}
	return artifacts.KindDrafts, nil
}

// phaseEvaluation runs one post-drafting assessment. Evaluations have a
// safe fallback: any failure is recorded as a validation_error event and
// the run continues.
func (o *Orchestrator) phaseEvaluation(ctx context.Context, t *Task, name, fallback string) (string, error) {
	if err := o.evalSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer o.evalSem.Release(1)

	parsed, err := o.agentJSON(ctx, t, agent.Spec{
		Agent:    name,
		Fallback: fallback,
		Vars: map[string]any{
			"Premise":  t.state.narrative.Premise,
			"Excerpts": draftExcerpts(t.state.drafts),
		},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		o.logger.Warn("Evaluation failed, continuing without it", "run_id", t.runID(), "evaluation", name, "error", err)
		o.publish(ctx, t.runID(), models.EventValidationError, map[string]any{
			"agent": name,
			"phase": string(t.phase()),
			"error": err.Error(),
		})
		return "", nil
	}

	var evals map[string]any
	if err := o.store.Load(ctx, t.runID(), artifacts.KindEvaluations, &evals); err != nil {
		evals = map[string]any{}
	}
	evals[name] = parsed
	if err := o.store.Save(ctx, t.runID(), artifacts.KindEvaluations, evals); err != nil {
		return "", err
	}
	return artifacts.KindEvaluations, nil
}

// phasePolish assembles the final manuscript from the accepted scene
// drafts. Per-scene polish already ran inside drafting.
func (o *Orchestrator) phasePolish(ctx context.Context, t *Task) (string, error) {
	st := t.state
	drafts := models.DraftsToList(st.drafts)

	var parts []string
	for _, d := range drafts {
		if err := o.store.Save(ctx, t.runID(), artifacts.SceneKind("final", d.SceneNumber), d); err != nil {
			return "", err
		}
		parts = append(parts, d.Content)
	}

	manuscript := map[string]any{
		"content":     strings.Join(parts, "\n\n"),
		"totalScenes": len(drafts),
		"wordCount":   drafting.CountWords(strings.Join(parts, " ")),
	}
	if err := o.store.Save(ctx, t.runID(), artifacts.KindManuscript, manuscript); err != nil {
		return "", err
	}
	return artifacts.KindManuscript, nil
}

// collectDevelopments derives raw facts and structured developments from
// a finished scene and appends them to the fact log for the archivist.
func (o *Orchestrator) collectDevelopments(ctx context.Context, t *Task, scene models.OutlineScene, draft models.Draft) {
	now := time.Now().UTC()
	var developments []models.Development
	var facts []models.RawFact

	for _, name := range scene.Characters {
		developments = append(developments, models.Development{
			Subject:  name,
			Change:   fmt.Sprintf("appears in scene %d (%s)", scene.SceneNumber, scene.Title),
			Category: "presence",
		})
		facts = append(facts, models.RawFact{
			Fact:        fmt.Sprintf("%s was present in scene %d (%s)", name, scene.SceneNumber, scene.Title),
			Source:      "writer",
			SceneNumber: scene.SceneNumber,
			Timestamp:   now,
		})
	}
	if scene.Setting != "" {
		facts = append(facts, models.RawFact{
			Fact:        fmt.Sprintf("scene %d took place at %s", scene.SceneNumber, scene.Setting),
			Source:      "writer",
			SceneNumber: scene.SceneNumber,
			Timestamp:   now,
		})
	}
	facts = append(facts, models.RawFact{
		Fact:        fmt.Sprintf("scene %d (%s) finished at %d words with status %s", scene.SceneNumber, scene.Title, draft.WordCount, draft.Status),
		Source:      "writer",
		SceneNumber: scene.SceneNumber,
		Timestamp:   now,
	})

	t.state.facts.Append(facts...)
	o.publish(ctx, t.runID(), models.EventNewDevelopments, map[string]any{
		"sceneNum":     scene.SceneNumber,
		"developments": developments,
		"totalFacts":   t.state.facts.Len(),
	})
}

func (t *Task) constraintBlock() string {
	return constraint.RenderBlock(t.state.constraints.Snapshot())
}

func (o *Orchestrator) indexCharacters(ctx context.Context, t *Task, characters []models.Character) {
	if o.vectors == nil || o.embed == nil {
		return
	}
	for _, c := range characters {
		text := fmt.Sprintf("%s (%s): %s %s", c.Name, c.Role, c.Description, c.Motivation)
		embedding, err := o.embed.Embed(ctx, text)
		if err != nil {
			o.logger.Warn("Character embedding failed", "name", c.Name, "error", err)
			continue
		}
		err = o.vectors.Store(ctx, vector.Document{
			ID:        "char-" + c.Name,
			ProjectID: t.run.ProjectID,
			Kind:      vector.KindCharacter,
			Text:      text,
			Embedding: embedding,
		})
		if err != nil {
			o.logger.Warn("Character indexing failed", "name", c.Name, "error", err)
		}
	}
}

func (o *Orchestrator) indexWorldbuilding(ctx context.Context, t *Task, world map[string]map[string]any) {
	if o.vectors == nil || o.embed == nil {
		return
	}
	for elementType, element := range world {
		text := elementType + ": " + flattenElement(element)
		embedding, err := o.embed.Embed(ctx, text)
		if err != nil {
			o.logger.Warn("Worldbuilding embedding failed", "type", elementType, "error", err)
			continue
		}
		err = o.vectors.Store(ctx, vector.Document{
			ID:        "world-" + elementType,
			ProjectID: t.run.ProjectID,
			Kind:      vector.KindWorldbuilding,
			Text:      text,
			Embedding: embedding,
		})
		if err != nil {
			o.logger.Warn("Worldbuilding indexing failed", "type", elementType, "error", err)
		}
	}
}

func flattenElement(element map[string]any) string {
	var parts []string
	for k, v := range element {
		if s, ok := v.(string); ok && s != "" {
			parts = append(parts, k+": "+s)
		}
	}
	return strings.Join(parts, "; ")
}

func characterNames(characters []models.Character) string {
	names := make([]string, 0, len(characters))
	for _, c := range characters {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}

func outlineSummary(outline *models.Outline) string {
	if outline == nil {
		return ""
	}
	var b strings.Builder
	for _, s := range outline.Scenes {
		fmt.Fprintf(&b, "%d. %s (%s, ~%d words)\n", s.SceneNumber, s.Title, s.Setting, s.WordCount)
	}
	return b.String()
}

// draftExcerpts renders the opening of each scene for the evaluators.
func draftExcerpts(drafts map[int]models.Draft) string {
	const excerptChars = 500
	var b strings.Builder
	for _, d := range models.DraftsToList(drafts) {
		excerpt := d.Content
		if len(excerpt) > excerptChars {
			excerpt = excerpt[:excerptChars] + "..."
		}
		fmt.Fprintf(&b, "Scene %d (%s):\n%s\n\n", d.SceneNumber, d.Title, excerpt)
	}
	return b.String()
}
