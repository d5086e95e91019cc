package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IShalkin/manoe-sub005/pkg/agent"
	"github.com/IShalkin/manoe-sub005/pkg/artifacts"
	"github.com/IShalkin/manoe-sub005/pkg/events"
	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// fakeCaller scripts agent responses by role name. nth is the 1-based
// call count for that role, so handlers can change behavior per call.
type fakeCaller struct {
	mu      sync.Mutex
	handler func(spec agent.Spec, nth int) (string, error)
	calls   map[string]int
}

func newFakeCaller(handler func(spec agent.Spec, nth int) (string, error)) *fakeCaller {
	return &fakeCaller{handler: handler, calls: map[string]int{}}
}

func (c *fakeCaller) Run(_ context.Context, spec agent.Spec) (agent.Output, error) {
	c.mu.Lock()
	c.calls[spec.Agent]++
	nth := c.calls[spec.Agent]
	c.mu.Unlock()

	content, err := c.handler(spec, nth)
	if err != nil {
		return agent.Output{}, err
	}
	return agent.Output{Content: content}, nil
}

func (c *fakeCaller) callsFor(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func prose(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(words, " ")
}

// defaultResponses answers every agent with a minimal well-formed payload
// for a two-scene story.
func defaultResponses(spec agent.Spec, _ int) (string, error) {
	switch spec.Agent {
	case "architect":
		return `{"premise": "A lighthouse keeper finds a door under the sea",
			"genre": "fantasy", "tone": "melancholy", "narrative_arc": "three act"}`, nil
	case "profiler":
		return `[{"name": "Mara", "role": "protagonist", "description": "the keeper"},
			{"name": "Teo", "role": "supporting", "description": "her brother"}]`, nil
	case "narrator":
		return `{"voice": "third person limited", "tense": "past"}`, nil
	case "worldbuilder":
		return `{"geography": {"description": "a rocky northern coast"},
			"magic": {"description": "doors between tides"}}`, nil
	case "strategist":
		return `{"scenes": [
			{"scene_number": 1, "title": "The Door", "setting": "lighthouse", "characters": ["Mara"], "word_count": 600},
			{"scene_number": 2, "title": "The Crossing", "setting": "open sea", "characters": ["Mara", "Teo"], "word_count": 600}]}`, nil
	case "advanced_planner":
		return `{"acts": [{"act": 1, "scenes": [1, 2]}]}`, nil
	case "writer":
		return prose(600), nil
	case "critic":
		return `{"score": 9, "revision_needed": false}`, nil
	case "archivist":
		return `{"constraints": [
				{"key": "premise", "value": "hijacked premise"},
				{"key": "door_origin", "value": "older than the lighthouse"}],
			"world_diff": {"characters": {"set": {"Mara": {"location": "the door"}}}}}`, nil
	case "originality":
		return `{"score": 8, "verdict": "original"}`, nil
	case "impact":
		return `{"score": 7, "verdict": "lands"}`, nil
	case "polish":
		return prose(600), nil
	default:
		return "", fmt.Errorf("unexpected agent %q", spec.Agent)
	}
}

func newTestOrchestrator(t *testing.T, caller agent.Caller, log events.Log, store artifacts.Store) *Orchestrator {
	t.Helper()
	factory := func(models.LLMConfig) (agent.Caller, error) { return caller, nil }
	o := New(log, store, nil, nil, factory, DefaultConfig(), nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.Shutdown(ctx)
	})
	return o
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func allEvents(t *testing.T, log events.Log, runID string) []models.Event {
	t.Helper()
	evs, err := log.Range(context.Background(), runID, 0, 10_000)
	require.NoError(t, err)
	return evs
}

func typesOf(evs []models.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func countType(evs []models.Event, eventType string) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func start(t *testing.T, o *Orchestrator) models.RunStatus {
	t.Helper()
	st, err := o.StartGeneration(context.Background(), StartRequest{
		SeedIdea:  "a lighthouse keeper finds a door under the sea",
		LLMConfig: models.LLMConfig{Provider: "openai", Model: "gpt-4o"},
	})
	require.NoError(t, err)
	return st
}

func waitCompleted(t *testing.T, o *Orchestrator, log events.Log, runID string) {
	t.Helper()
	waitFor(t, "run completion", func() bool {
		st, err := o.Status(runID)
		if err != nil || !st.IsCompleted {
			return false
		}
		return countType(allEvents(t, log, runID), models.EventGenerationCompleted) == 1
	})
}

func TestFullRunWalksEveryPhase(t *testing.T) {
	caller := newFakeCaller(defaultResponses)
	log := events.NewMemoryLog()
	store := artifacts.NewMemoryStore()
	o := newTestOrchestrator(t, caller, log, store)

	st := start(t, o)
	waitCompleted(t, o, log, st.RunID)

	final, err := o.Status(st.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.PhasePolish, final.Phase)
	assert.Equal(t, 2, final.TotalScenes)
	assert.Empty(t, final.Error)

	evs := allEvents(t, log, st.RunID)
	types := typesOf(evs)
	assert.Equal(t, models.EventGenerationStarted, types[0])
	assert.Equal(t, models.EventGenerationCompleted, types[len(types)-1])

	// every phase opens and closes exactly once, in declared order
	var phases []string
	for _, ev := range evs {
		if ev.Type == models.EventPhaseComplete {
			phases = append(phases, ev.Data["phase"].(string))
		}
	}
	want := make([]string, len(phaseOrder))
	for i, p := range phaseOrder {
		want[i] = string(p)
	}
	assert.Equal(t, want, phases)
	assert.Equal(t, len(phaseOrder), countType(evs, models.EventPhaseStart))

	assert.Equal(t, 2, countType(evs, models.EventScenePolishComplete))
	assert.Equal(t, 2, countType(evs, models.EventNewDevelopments))

	// two scenes never hit the cadence, so only the closing pass runs
	assert.Equal(t, 1, countType(evs, models.EventArchivistStart))
	assert.Equal(t, 1, countType(evs, models.EventArchivistComplete))
	assert.Equal(t, 1, caller.callsFor("archivist"))

	var manuscript map[string]any
	require.NoError(t, store.Load(context.Background(), st.RunID, artifacts.KindManuscript, &manuscript))
	assert.EqualValues(t, 2, manuscript["totalScenes"])
	assert.NotEmpty(t, manuscript["content"])

	var snap models.RunSnapshot
	require.NoError(t, store.Load(context.Background(), st.RunID, artifacts.KindSnapshot, &snap))
	assert.Equal(t, models.SnapshotCompleted, snap.State)
	assert.Len(t, snap.Drafts, 2)
}

func TestSeedConstraintsSurviveArchivistProposals(t *testing.T) {
	caller := newFakeCaller(defaultResponses)
	log := events.NewMemoryLog()
	store := artifacts.NewMemoryStore()
	o := newTestOrchestrator(t, caller, log, store)

	st := start(t, o)
	waitCompleted(t, o, log, st.RunID)

	var snap models.RunSnapshot
	require.NoError(t, store.Load(context.Background(), st.RunID, artifacts.KindSnapshot, &snap))

	byKey := map[string]models.KeyConstraint{}
	for _, c := range snap.Constraints {
		byKey[c.Key] = c
	}

	// the archivist proposed a new premise; the immutable seed wins
	premise := byKey[models.ConstraintPremise]
	assert.True(t, premise.Immutable)
	assert.Equal(t, "A lighthouse keeper finds a door under the sea", premise.Value)

	seed := byKey[models.ConstraintSeedIdea]
	assert.True(t, seed.Immutable)

	origin, ok := byKey["door_origin"]
	require.True(t, ok)
	assert.False(t, origin.Immutable)

	// the world diff was applied
	assert.Equal(t, "the door", snap.World.Characters["Mara"].Location)
}

func TestStartGenerationRejectsEmptySeed(t *testing.T) {
	o := newTestOrchestrator(t, newFakeCaller(defaultResponses), events.NewMemoryLog(), artifacts.NewMemoryStore())

	_, err := o.StartGeneration(context.Background(), StartRequest{SeedIdea: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStatusUnknownRun(t *testing.T) {
	o := newTestOrchestrator(t, newFakeCaller(defaultResponses), events.NewMemoryLog(), artifacts.NewMemoryStore())

	_, err := o.Status("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, o.Pause("nope"), ErrRunNotFound)
	assert.ErrorIs(t, o.Resume("nope"), ErrRunNotFound)
	assert.ErrorIs(t, o.Cancel("nope"), ErrRunNotFound)
}

// gatedCaller blocks the first critic call until released, giving tests a
// deterministic point mid-drafting to pause, cancel, or shut down.
func gatedCaller(reached chan<- struct{}, release <-chan struct{}) *fakeCaller {
	var once sync.Once
	return newFakeCaller(func(spec agent.Spec, nth int) (string, error) {
		if spec.Agent == "critic" && nth == 1 {
			once.Do(func() { close(reached) })
			<-release
		}
		return defaultResponses(spec, nth)
	})
}

func TestPauseStopsAtSafepointAndResumeSkipsFinishedScenes(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	caller := gatedCaller(reached, release)
	log := events.NewMemoryLog()
	store := artifacts.NewMemoryStore()
	o := newTestOrchestrator(t, caller, log, store)

	st := start(t, o)
	<-reached
	require.NoError(t, o.Pause(st.RunID))
	close(release)

	// the runner finishes scene 1 and exits before scene 2
	task, ok := o.registry.Get(st.RunID)
	require.True(t, ok)
	waitFor(t, "runner to park", func() bool { return !task.running.Load() })

	paused, err := o.Status(st.RunID)
	require.NoError(t, err)
	assert.True(t, paused.IsPaused)
	assert.Equal(t, models.PhaseDrafting, paused.Phase)
	assert.Equal(t, 1, paused.CurrentScene)

	evs := allEvents(t, log, st.RunID)
	assert.Equal(t, 1, countType(evs, models.EventScenePolishComplete))

	require.NoError(t, o.Resume(st.RunID))
	waitCompleted(t, o, log, st.RunID)

	evs = allEvents(t, log, st.RunID)
	assert.Equal(t, 2, countType(evs, models.EventScenePolishComplete))

	// scene 1 was not re-drafted after resume
	starts := 0
	for _, ev := range evs {
		if ev.Type == models.EventSceneDraftStart && ev.Data["sceneNum"] == 1 {
			starts++
		}
	}
	assert.Equal(t, 1, starts)
}

func TestCancelEvictsRunWithoutTerminalEvents(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	caller := gatedCaller(reached, release)
	log := events.NewMemoryLog()
	o := newTestOrchestrator(t, caller, log, artifacts.NewMemoryStore())

	st := start(t, o)
	<-reached
	require.NoError(t, o.Cancel(st.RunID))
	close(release)

	_, err := o.Status(st.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	// give the runner time to unwind, then check nothing terminal landed
	time.Sleep(50 * time.Millisecond)
	evs := allEvents(t, log, st.RunID)
	assert.Zero(t, countType(evs, models.EventError))
	assert.Zero(t, countType(evs, models.EventGenerationCompleted))
}

func TestShutdownSnapshotsInterruptedRunsAndRestoreResumes(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	caller := gatedCaller(reached, release)
	log := events.NewMemoryLog()
	store := artifacts.NewMemoryStore()
	o := newTestOrchestrator(t, caller, log, store)

	st := start(t, o)
	<-reached

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		o.Shutdown(ctx)
		close(done)
	}()
	waitFor(t, "shutdown to pause the run", func() bool {
		return countType(allEvents(t, log, st.RunID), models.EventShutdownInitiated) == 1
	})
	close(release)
	<-done

	var snap models.RunSnapshot
	require.NoError(t, store.Load(context.Background(), st.RunID, artifacts.KindSnapshot, &snap))
	assert.Equal(t, models.SnapshotInterrupted, snap.State)
	assert.Equal(t, models.PhaseDrafting, snap.Run.Phase)
	assert.Len(t, snap.Drafts, 1)
	assert.NotEmpty(t, snap.Constraints)

	// a fresh process restores the run paused, then resumes it
	o2 := newTestOrchestrator(t, newFakeCaller(defaultResponses), log, store)
	restored, err := o2.RestoreInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	status, err := o2.Status(st.RunID)
	require.NoError(t, err)
	assert.True(t, status.IsPaused)
	assert.Equal(t, models.PhaseDrafting, status.Phase)

	require.NoError(t, o2.Resume(st.RunID))
	waitCompleted(t, o2, log, st.RunID)

	evs := allEvents(t, log, st.RunID)
	assert.Equal(t, 1, countType(evs, models.EventRunRestored))
	assert.Equal(t, 2, countType(evs, models.EventScenePolishComplete))

	require.NoError(t, store.Load(context.Background(), st.RunID, artifacts.KindSnapshot, &snap))
	assert.Equal(t, models.SnapshotCompleted, snap.State)
}

func TestRestoreIgnoresCompletedSnapshots(t *testing.T) {
	caller := newFakeCaller(defaultResponses)
	log := events.NewMemoryLog()
	store := artifacts.NewMemoryStore()
	o := newTestOrchestrator(t, caller, log, store)

	st := start(t, o)
	waitCompleted(t, o, log, st.RunID)

	o2 := newTestOrchestrator(t, newFakeCaller(defaultResponses), log, store)
	restored, err := o2.RestoreInterrupted(context.Background())
	require.NoError(t, err)
	assert.Zero(t, restored)
}

func TestCompletedRunEvictedAfterTTL(t *testing.T) {
	caller := newFakeCaller(defaultResponses)
	log := events.NewMemoryLog()
	store := artifacts.NewMemoryStore()

	cfg := DefaultConfig()
	cfg.CompletedRunTTL = 30 * time.Millisecond
	factory := func(models.LLMConfig) (agent.Caller, error) { return caller, nil }
	o := New(log, store, nil, nil, factory, cfg, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.Shutdown(ctx)
	})

	st := start(t, o)
	waitCompleted(t, o, log, st.RunID)

	waitFor(t, "terminal run eviction", func() bool {
		_, err := o.Status(st.RunID)
		return errors.Is(err, ErrRunNotFound)
	})

	// eviction only drops the in-memory projection; history and the final
	// snapshot stay queryable
	evs := allEvents(t, log, st.RunID)
	assert.Equal(t, 1, countType(evs, models.EventGenerationCompleted))
	var snap models.RunSnapshot
	require.NoError(t, store.Load(context.Background(), st.RunID, artifacts.KindSnapshot, &snap))
	assert.Equal(t, models.SnapshotCompleted, snap.State)
}

func TestShutdownDeadlineKeepsCheckpointWhenRunnerIsStuck(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	caller := newFakeCaller(func(spec agent.Spec, nth int) (string, error) {
		// the first writer call hangs and ignores cancellation, like a
		// provider that stopped answering
		if spec.Agent == "writer" && nth == 1 {
			once.Do(func() { close(reached) })
			<-release
		}
		return defaultResponses(spec, nth)
	})
	log := events.NewMemoryLog()
	store := artifacts.NewMemoryStore()
	o := newTestOrchestrator(t, caller, log, store)
	defer close(release)

	st := start(t, o)
	<-reached

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	o.Shutdown(ctx)

	// the stuck runner was abandoned without a fresh snapshot; the
	// checkpoint written at the drafting boundary stands
	var snap models.RunSnapshot
	require.NoError(t, store.Load(context.Background(), st.RunID, artifacts.KindSnapshot, &snap))
	assert.Equal(t, models.SnapshotInterrupted, snap.State)
	assert.Equal(t, models.PhaseDrafting, snap.Run.Phase)
	assert.Empty(t, snap.Drafts)

	// a fresh process restores from that checkpoint and finishes the run
	o2 := newTestOrchestrator(t, newFakeCaller(defaultResponses), log, store)
	restored, err := o2.RestoreInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	status, err := o2.Status(st.RunID)
	require.NoError(t, err)
	assert.True(t, status.IsPaused)
	assert.Equal(t, models.PhaseDrafting, status.Phase)

	require.NoError(t, o2.Resume(st.RunID))
	waitCompleted(t, o2, log, st.RunID)
}

func TestRapidPauseResumeNeverStrandsRun(t *testing.T) {
	caller := newFakeCaller(defaultResponses)
	log := events.NewMemoryLog()
	store := artifacts.NewMemoryStore()
	o := newTestOrchestrator(t, caller, log, store)

	st := start(t, o)

	// hammer the window where a runner exits just as Resume clears the
	// pause flag; the run must never be left parked and unpaused
	for i := 0; i < 50; i++ {
		if err := o.Pause(st.RunID); err != nil {
			break
		}
		if err := o.Resume(st.RunID); err != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	_ = o.Resume(st.RunID)

	waitCompleted(t, o, log, st.RunID)
	evs := allEvents(t, log, st.RunID)
	assert.Equal(t, 2, countType(evs, models.EventScenePolishComplete))
}

func TestCriticParseFailureTerminatesRun(t *testing.T) {
	caller := newFakeCaller(func(spec agent.Spec, nth int) (string, error) {
		if spec.Agent == "critic" {
			return "I think it reads well.", nil
		}
		return defaultResponses(spec, nth)
	})
	log := events.NewMemoryLog()
	o := newTestOrchestrator(t, caller, log, artifacts.NewMemoryStore())

	st := start(t, o)
	waitFor(t, "run to fail", func() bool {
		status, err := o.Status(st.RunID)
		return err == nil && status.Error != ""
	})

	evs := allEvents(t, log, st.RunID)
	require.Equal(t, 1, countType(evs, models.EventError))
	var errEv models.Event
	for _, ev := range evs {
		if ev.Type == models.EventError {
			errEv = ev
		}
	}
	assert.Equal(t, string(models.PhaseDrafting), errEv.Data["phase"])
	assert.Equal(t, false, errEv.Data["recoverable"])
	assert.NotEmpty(t, errEv.Data["timestamp"])
	assert.Equal(t, 1, countType(evs, models.EventGenerationError))
	assert.Zero(t, countType(evs, models.EventGenerationCompleted))

	assert.ErrorIs(t, o.Resume(st.RunID), ErrRunTerminal)
	assert.ErrorIs(t, o.Pause(st.RunID), ErrRunTerminal)
}

func TestEvaluationFailureDoesNotFailRun(t *testing.T) {
	caller := newFakeCaller(func(spec agent.Spec, nth int) (string, error) {
		if spec.Agent == "originality" {
			return "no json here", nil
		}
		return defaultResponses(spec, nth)
	})
	log := events.NewMemoryLog()
	store := artifacts.NewMemoryStore()
	o := newTestOrchestrator(t, caller, log, store)

	st := start(t, o)
	waitCompleted(t, o, log, st.RunID)

	evs := allEvents(t, log, st.RunID)
	validationErrs := 0
	for _, ev := range evs {
		if ev.Type == models.EventValidationError && ev.Data["agent"] == "originality" {
			validationErrs++
		}
	}
	assert.Equal(t, 1, validationErrs)
	assert.Equal(t, 1, countType(evs, models.EventGenerationCompleted))

	// the impact assessment still landed
	var evals map[string]any
	require.NoError(t, store.Load(context.Background(), st.RunID, artifacts.KindEvaluations, &evals))
	assert.Contains(t, evals, "impact")
	assert.NotContains(t, evals, "originality")
}

func TestArchivistFailureKeepsFactsAndContinues(t *testing.T) {
	caller := newFakeCaller(func(spec agent.Spec, nth int) (string, error) {
		if spec.Agent == "archivist" {
			return "not a document", nil
		}
		return defaultResponses(spec, nth)
	})
	log := events.NewMemoryLog()
	store := artifacts.NewMemoryStore()
	o := newTestOrchestrator(t, caller, log, store)

	st := start(t, o)
	waitCompleted(t, o, log, st.RunID)

	evs := allEvents(t, log, st.RunID)
	assert.Equal(t, 1, countType(evs, models.EventArchivistStart))
	assert.Zero(t, countType(evs, models.EventArchivistComplete))

	var snap models.RunSnapshot
	require.NoError(t, store.Load(context.Background(), st.RunID, artifacts.KindSnapshot, &snap))
	assert.NotEmpty(t, snap.Facts)
}
