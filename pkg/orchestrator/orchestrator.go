// Package orchestrator drives the generation phase machine: one
// long-lived task per active run, cooperative pause/resume/cancel at
// safepoints, snapshot on shutdown, and restore on startup.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/IShalkin/manoe-sub005/pkg/agent"
	"github.com/IShalkin/manoe-sub005/pkg/artifacts"
	"github.com/IShalkin/manoe-sub005/pkg/drafting"
	"github.com/IShalkin/manoe-sub005/pkg/events"
	"github.com/IShalkin/manoe-sub005/pkg/metrics"
	"github.com/IShalkin/manoe-sub005/pkg/models"
	"github.com/IShalkin/manoe-sub005/pkg/vector"
)

var (
	// ErrRunNotFound means the runId is not in the registry.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunTerminal means the run already completed or failed.
	ErrRunTerminal = errors.New("run already terminal")
	// ErrInvalidRequest covers malformed start requests.
	ErrInvalidRequest = errors.New("invalid request")
)

// CallerFactory builds an agent caller for a run's LLM configuration.
// Tests substitute scripted callers here.
type CallerFactory func(cfg models.LLMConfig) (agent.Caller, error)

// Config holds the orchestrator tuning knobs.
type Config struct {
	Drafting              drafting.Params
	ArchivistCadence      int
	EvaluationConcurrency int
	MaxTokens             int
	// EventRetention is how long a terminal run's event history stays
	// readable before it is purged. Zero keeps events indefinitely.
	EventRetention time.Duration
	// CompletedRunTTL is how long a finished or failed run stays in the
	// registry before eviction. Zero keeps it registered indefinitely.
	CompletedRunTTL time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Drafting:              drafting.DefaultParams(),
		ArchivistCadence:      3,
		EvaluationConcurrency: 3,
		MaxTokens:             4096,
		EventRetention:        24 * time.Hour,
		CompletedRunTTL:       time.Hour,
	}
}

// Orchestrator owns the run registry and executes runs.
type Orchestrator struct {
	log     events.Log
	store   artifacts.Store
	vectors vector.Store
	embed   vector.Embedder
	callers CallerFactory
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config

	registry *Registry
	evalSem  *semaphore.Weighted
	wg       sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

func New(log events.Log, store artifacts.Store, vectors vector.Store, embed vector.Embedder, callers CallerFactory, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if cfg.EvaluationConcurrency < 1 {
		cfg.EvaluationConcurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		log:        log,
		store:      store,
		vectors:    vectors,
		embed:      embed,
		callers:    callers,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		registry:   NewRegistry(),
		evalSem:    semaphore.NewWeighted(int64(cfg.EvaluationConcurrency)),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// StartRequest is the StartGeneration input.
type StartRequest struct {
	ProjectID string
	SeedIdea  string
	LLMConfig models.LLMConfig
	Mode      models.GenerationMode
}

// StartGeneration registers a new run and launches its task.
func (o *Orchestrator) StartGeneration(ctx context.Context, req StartRequest) (models.RunStatus, error) {
	if strings.TrimSpace(req.SeedIdea) == "" {
		return models.RunStatus{}, fmt.Errorf("%w: seedIdea is required", ErrInvalidRequest)
	}
	if req.ProjectID == "" {
		req.ProjectID = uuid.NewString()
	}
	if req.Mode == "" {
		req.Mode = models.ModeFull
	}

	caller, err := o.callers(req.LLMConfig)
	if err != nil {
		return models.RunStatus{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	now := time.Now().UTC()
	run := &models.GenerationRun{
		RunID:     uuid.NewString(),
		ProjectID: req.ProjectID,
		SeedIdea:  req.SeedIdea,
		LLMConfig: req.LLMConfig,
		Mode:      req.Mode,
		Phase:     models.PhaseGenesis,
		StartedAt: now,
		UpdatedAt: now,
	}

	t := newTask(run, caller)
	o.registry.Add(t)
	o.metrics.RunsActive.Inc()

	o.publish(ctx, run.RunID, models.EventGenerationStarted, map[string]any{
		"projectId": run.ProjectID,
		"mode":      string(run.Mode),
		"phase":     string(run.Phase),
	})

	o.launch(t)
	return t.Status(), nil
}

// launch starts (or restarts, after resume) the phase runner goroutine.
func (o *Orchestrator) launch(t *Task) {
	if !t.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(o.baseCtx)
	t.setStop(cancel)
	o.wg.Add(1)
	go o.runPhases(ctx, t)
}

// Status returns the run's projection; ErrRunNotFound if unknown.
func (o *Orchestrator) Status(runID string) (models.RunStatus, error) {
	t, ok := o.registry.Get(runID)
	if !ok {
		return models.RunStatus{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return t.Status(), nil
}

// List returns projections for every registered run.
func (o *Orchestrator) List() []models.RunStatus {
	tasks := o.registry.Tasks()
	out := make([]models.RunStatus, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Status())
	}
	return out
}

// Pause requests a cooperative stop; the runner exits at the next
// safepoint and a later Resume picks up at the current phase and scene.
func (o *Orchestrator) Pause(runID string) error {
	t, ok := o.registry.Get(runID)
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if t.terminal() {
		return fmt.Errorf("run %s: %w", runID, ErrRunTerminal)
	}
	t.pauseFlag.Store(true)
	t.update(func(r *models.GenerationRun) { r.IsPaused = true })
	o.logger.Info("Run paused", "run_id", runID)
	return nil
}

// Resume clears the pause flag and relaunches the runner if it exited.
func (o *Orchestrator) Resume(runID string) error {
	t, ok := o.registry.Get(runID)
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if t.terminal() {
		return fmt.Errorf("run %s: %w", runID, ErrRunTerminal)
	}
	t.pauseFlag.Store(false)
	t.update(func(r *models.GenerationRun) { r.IsPaused = false })
	o.launch(t)
	o.logger.Info("Run resumed", "run_id", runID)
	return nil
}

// Cancel marks the run cancelled and evicts it. No further events are
// emitted for a cancelled run.
func (o *Orchestrator) Cancel(runID string) error {
	t, ok := o.registry.Get(runID)
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	t.cancelFlag.Store(true)
	t.signalStop()
	t.update(func(r *models.GenerationRun) { r.Error = "cancelled" })
	o.registry.Remove(runID)
	o.metrics.RunsActive.Dec()
	// a parked runner has no exit path left to clean up its checkpoint
	if !t.running.Load() {
		o.dropSnapshot(runID)
	}
	o.logger.Info("Run cancelled", "run_id", runID)
	return nil
}

// Shutdown pauses every run, waits for tasks to reach a safepoint within
// the ctx deadline, then snapshots all non-terminal runs. Still-in-flight
// LLM calls are abandoned.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	tasks := o.registry.Tasks()
	for _, t := range tasks {
		if t.terminal() {
			continue
		}
		t.pauseFlag.Store(true)
		o.publish(ctx, t.runID(), models.EventShutdownInitiated, nil)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Warn("Shutdown deadline reached, abandoning in-flight work")
	}
	o.baseCancel()

	snapCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, t := range tasks {
		if t.terminal() {
			continue
		}
		// An abandoned runner may still be mutating task state; its last
		// phase-boundary checkpoint stands as the restore point.
		if t.running.Load() {
			o.logger.Warn("Runner still active at shutdown deadline, keeping last checkpoint", "run_id", t.runID())
			continue
		}
		if err := o.saveSnapshot(snapCtx, t, models.SnapshotInterrupted); err != nil {
			o.logger.Error("Failed to snapshot run on shutdown", "run_id", t.runID(), "error", err)
		}
	}
}

// RestoreInterrupted loads every interrupted snapshot into the registry,
// paused, waiting for an explicit Resume.
func (o *Orchestrator) RestoreInterrupted(ctx context.Context) (int, error) {
	runIDs, err := o.store.ListRuns(ctx, artifacts.KindSnapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	restored := 0
	for _, runID := range runIDs {
		var snap models.RunSnapshot
		if err := o.store.Load(ctx, runID, artifacts.KindSnapshot, &snap); err != nil {
			o.logger.Error("Failed to load snapshot", "run_id", runID, "error", err)
			continue
		}
		if snap.State != models.SnapshotInterrupted {
			continue
		}
		if _, ok := o.registry.Get(runID); ok {
			continue
		}

		caller, err := o.callers(snap.Run.LLMConfig)
		if err != nil {
			o.logger.Error("Failed to build caller for restored run", "run_id", runID, "error", err)
			continue
		}

		t := restoreTask(&snap, caller)
		t.pauseFlag.Store(true)
		o.registry.Add(t)
		o.metrics.RunsActive.Inc()
		o.publish(ctx, runID, models.EventRunRestored, map[string]any{
			"phase":        string(snap.Run.Phase),
			"currentScene": snap.Run.CurrentScene,
		})
		restored++
	}
	if restored > 0 {
		o.logger.Info("Restored interrupted runs", "count", restored)
	}
	return restored, nil
}

// Registry exposes the run registry, used by health reporting.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// handleError routes a phase failure to the terminal ERROR state. It runs
// on the task's own goroutine, so overwriting the checkpoint snapshot with
// a failed one is safe.
func (o *Orchestrator) handleError(ctx context.Context, t *Task, phase models.Phase, err error) {
	st := t.Status()
	t.update(func(r *models.GenerationRun) { r.Error = err.Error() })

	if snapErr := o.saveSnapshot(ctx, t, models.SnapshotFailed); snapErr != nil {
		o.logger.Error("Failed to save failure snapshot", "run_id", st.RunID, "error", snapErr)
	}

	o.logger.Error("Run failed", "run_id", st.RunID, "phase", phase, "error", err,
		"error_kind", string(agent.Classify(err)))

	o.publish(ctx, st.RunID, models.EventError, map[string]any{
		"error":        err.Error(),
		"phase":        string(phase),
		"currentScene": st.CurrentScene,
		"totalScenes":  st.TotalScenes,
		"recoverable":  false,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
	o.publish(ctx, st.RunID, models.EventGenerationError, map[string]any{
		"error": err.Error(),
		"phase": string(phase),
	})
	o.metrics.RunsActive.Dec()
	o.scheduleEventCleanup(st.RunID)
	o.scheduleEviction(st.RunID)
}

// scheduleEviction drops a terminal run from the registry after its TTL.
// Cancelled runs leave immediately; completed and failed runs stay
// queryable until the TTL elapses.
func (o *Orchestrator) scheduleEviction(runID string) {
	if o.cfg.CompletedRunTTL <= 0 {
		return
	}
	time.AfterFunc(o.cfg.CompletedRunTTL, func() {
		o.registry.Remove(runID)
		o.logger.Info("Evicted terminal run from registry", "run_id", runID)
	})
}

// scheduleEventCleanup purges a terminal run's event history once the
// retention window elapses, so late stream joiners can still replay it
// in the meantime.
func (o *Orchestrator) scheduleEventCleanup(runID string) {
	if o.cfg.EventRetention <= 0 {
		return
	}
	time.AfterFunc(o.cfg.EventRetention, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.log.Purge(ctx, runID); err != nil {
			o.logger.Error("Failed to purge run events", "run_id", runID, "error", err)
		}
	})
}

func (o *Orchestrator) publish(ctx context.Context, runID, eventType string, data map[string]any) {
	if _, err := o.log.Publish(ctx, runID, eventType, data); err != nil {
		o.logger.Error("Failed to publish event", "run_id", runID, "type", eventType, "error", err)
		return
	}
	o.metrics.EventsPublished.WithLabelValues(eventType).Inc()
}
