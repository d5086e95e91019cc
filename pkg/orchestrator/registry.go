package orchestrator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IShalkin/manoe-sub005/pkg/agent"
	"github.com/IShalkin/manoe-sub005/pkg/constraint"
	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// runState is the working state owned by the run's task goroutine. Other
// goroutines only see it through snapshots taken at safepoints.
type runState struct {
	narrative     *models.Narrative
	characters    []models.Character
	worldbuilding map[string]map[string]any
	outline       *models.Outline
	drafts        map[int]models.Draft
	critiques     map[int][]models.Critique
	revisions     map[int]int
	constraints   *constraint.Store
	facts         *constraint.FactLog
	world         models.WorldState

	lastArchivistScene  int
	currentSceneOutline *models.OutlineScene
}

func newRunState() *runState {
	return &runState{
		drafts:      make(map[int]models.Draft),
		critiques:   make(map[int][]models.Critique),
		revisions:   make(map[int]int),
		constraints: constraint.NewStore(nil),
		facts:       constraint.NewFactLog(),
		world:       models.NewWorldState(),
	}
}

// Task is one registered run: its state, its agent caller, and the
// cooperative stop flags the phase runner checks at safepoints.
type Task struct {
	mu     sync.RWMutex
	run    *models.GenerationRun
	state  *runState
	caller agent.Caller

	pauseFlag  atomic.Bool
	cancelFlag atomic.Bool
	running    atomic.Bool

	stop context.CancelFunc
}

func newTask(run *models.GenerationRun, caller agent.Caller) *Task {
	return &Task{run: run, state: newRunState(), caller: caller}
}

// ShouldStop is the safepoint check: true once a pause or cancel has been
// requested.
func (t *Task) ShouldStop() bool {
	return t.pauseFlag.Load() || t.cancelFlag.Load()
}

// Status returns the externally visible projection of the run.
func (t *Task) Status() models.RunStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.run.Status()
}

func (t *Task) runID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.run.RunID
}

func (t *Task) phase() models.Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.run.Phase
}

func (t *Task) terminal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.run.Terminal()
}

// setStop installs the new runner's cancel func, releasing the previous
// one so the finished runner's context is not kept alive by its parent.
func (t *Task) setStop(cancel context.CancelFunc) {
	t.mu.Lock()
	prev := t.stop
	t.stop = cancel
	t.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// signalStop cancels the runner's context if one is active.
func (t *Task) signalStop() {
	t.mu.RLock()
	stop := t.stop
	t.mu.RUnlock()
	if stop != nil {
		stop()
	}
}

// update mutates the run under the task lock and bumps UpdatedAt.
func (t *Task) update(fn func(r *models.GenerationRun)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.run)
	t.run.UpdatedAt = time.Now().UTC()
}

// Registry is the concurrent runId to task map. Only the owning task
// mutates a run's state; everyone else reads projections.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

func (r *Registry) Add(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.runID()] = t
}

func (r *Registry) Get(runID string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[runID]
	return t, ok
}

func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, runID)
}

// Tasks returns a stable snapshot of all registered tasks.
func (r *Registry) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].runID() < out[j].runID() })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
