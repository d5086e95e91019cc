package drafting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IShalkin/manoe-sub005/pkg/agent"
	"github.com/IShalkin/manoe-sub005/pkg/events"
	"github.com/IShalkin/manoe-sub005/pkg/metrics"
	"github.com/IShalkin/manoe-sub005/pkg/models"
	"github.com/IShalkin/manoe-sub005/pkg/normalize"
	"github.com/IShalkin/manoe-sub005/pkg/prompt"
	"github.com/IShalkin/manoe-sub005/pkg/vector"
)

// ErrBeatInsufficient is returned when a beats-mode part stays under half
// its target length across all retry attempts.
var ErrBeatInsufficient = errors.New("beat produced insufficient content")

// ErrStopped is returned when the caller's ShouldStop hook fires at a
// safepoint. Partial scene work is discarded; the scene restarts on
// resume.
var ErrStopped = errors.New("drafting stopped at safepoint")

const (
	beatRetries    = 3
	minWordsFactor = 0.7

	contextCharacters = 3
	contextWorld      = 3
	contextScenes     = 2
	contextMinScore   = 0.5
)

// Params are the scene-drafting knobs, all taken from configuration.
type Params struct {
	BeatsThreshold int
	WordsPerBeat   int
	MaxRevisions   int
	MaxExpansions  int
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		BeatsThreshold: 1000,
		WordsPerBeat:   500,
		MaxRevisions:   2,
		MaxExpansions:  3,
	}
}

// Engine turns one outline scene into one accepted draft, emitting
// progress events along the way.
type Engine struct {
	agents  agent.Caller
	log     events.Log
	vectors vector.Store
	embed   vector.Embedder
	metrics *metrics.Metrics
	logger  *slog.Logger
	params  Params
}

func NewEngine(agents agent.Caller, log events.Log, vectors vector.Store, embed vector.Embedder, params Params, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Engine{
		agents:  agents,
		log:     log,
		vectors: vectors,
		embed:   embed,
		metrics: m,
		logger:  logger,
		params:  params,
	}
}

// SceneInput carries everything the engine needs for one scene.
type SceneInput struct {
	RunID       string
	ProjectID   string
	Scene       models.OutlineScene
	Constraints string

	// ShouldStop is consulted at safepoints (between beats, expansion
	// rounds, and critique iterations); a true return aborts the scene
	// with ErrStopped.
	ShouldStop func() bool
}

func (in SceneInput) stopped() bool {
	return in.ShouldStop != nil && in.ShouldStop()
}

// SceneResult is the outcome of one scene's drafting loop.
type SceneResult struct {
	Draft         models.Draft
	Critiques     []models.Critique
	RevisionCount int
	PolishStatus  string
}

// DraftScene runs the full per-scene pipeline: draft (single-shot or
// beats), expansion, the critique loop, and polish. It emits exactly one
// scene_polish_complete event regardless of outcome, then indexes the
// accepted content for later scenes to retrieve.
func (e *Engine) DraftScene(ctx context.Context, in SceneInput) (*SceneResult, error) {
	scene := in.Scene
	target := scene.WordCount
	if target <= 0 {
		target = normalize.DefaultWordCount
	}
	minWords := int(minWordsFactor * float64(target))

	sceneContext := e.fetchContext(ctx, in)

	method := "single_shot"
	if target > e.params.BeatsThreshold {
		method = "beats"
	}
	e.publish(ctx, in.RunID, models.EventSceneDraftStart, map[string]any{
		"sceneNum":        scene.SceneNumber,
		"title":           scene.Title,
		"targetWordCount": target,
		"method":          method,
	})

	var content string
	var err error
	if method == "beats" {
		content, err = e.draftBeats(ctx, in, sceneContext, target)
	} else {
		content, err = e.draftSingle(ctx, in, sceneContext, target)
	}
	if err != nil {
		return nil, err
	}

	complete := map[string]any{
		"sceneNum":  scene.SceneNumber,
		"method":    method,
		"wordCount": CountWords(content),
	}
	if method == "beats" {
		complete["partsGenerated"] = e.partsFor(target)
	}
	e.publish(ctx, in.RunID, models.EventSceneDraftComplete, complete)

	if method == "single_shot" {
		content = e.expand(ctx, in, sceneContext, content, target, minWords)
	}

	content, critiques, revisions, approved, lastScore, err := e.critiqueLoop(ctx, in, sceneContext, content, target)
	if err != nil {
		return nil, err
	}

	final, status := e.polish(ctx, in, content, critiques, approved, lastScore)

	e.publish(ctx, in.RunID, models.EventScenePolishComplete, map[string]any{
		"sceneNum":     scene.SceneNumber,
		"polishStatus": status,
		"finalContent": final,
		"wordCount":    CountWords(final),
	})
	e.metrics.ScenesCompleted.Inc()

	e.indexScene(ctx, in, final)

	return &SceneResult{
		Draft: models.Draft{
			SceneNumber:    scene.SceneNumber,
			Title:          scene.Title,
			Content:        final,
			WordCount:      CountWords(final),
			RevisionNumber: revisions,
			Status:         draftStatus(status),
		},
		Critiques:     critiques,
		RevisionCount: revisions,
		PolishStatus:  status,
	}, nil
}

func draftStatus(polishStatus string) string {
	switch polishStatus {
	case models.PolishStatusPolished:
		return models.DraftStatusPolished
	case models.PolishStatusRejected:
		return models.DraftStatusPolishRejected
	case models.PolishStatusNotApproved:
		return models.DraftStatusNotApproved
	default:
		return models.DraftStatusDraft
	}
}

// fetchContext assembles the semantic-memory block: nearby characters,
// worldbuilding, and prior scenes above the similarity floor.
func (e *Engine) fetchContext(ctx context.Context, in SceneInput) string {
	if e.vectors == nil || e.embed == nil {
		return ""
	}
	query := in.Scene.Title + " " + in.Scene.Setting + " " + strings.Join(in.Scene.Characters, " ")
	embedding, err := e.embed.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("Context embedding failed, drafting without retrieved context",
			"scene", in.Scene.SceneNumber, "error", err)
		return ""
	}

	var blocks []string
	for _, q := range []struct {
		kind  string
		limit int
		label string
	}{
		{vector.KindCharacter, contextCharacters, "Characters"},
		{vector.KindWorldbuilding, contextWorld, "World"},
		{vector.KindScene, contextScenes, "Previous scenes"},
	} {
		results, err := e.vectors.Search(ctx, in.ProjectID, q.kind, embedding, q.limit, contextMinScore)
		if err != nil {
			e.logger.Warn("Context search failed", "kind", q.kind, "error", err)
			continue
		}
		var lines []string
		for _, r := range results {
			lines = append(lines, "- "+r.Text)
		}
		if len(lines) > 0 {
			blocks = append(blocks, q.label+":\n"+strings.Join(lines, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n")
}

// indexScene stores the accepted content so later scenes can retrieve it.
func (e *Engine) indexScene(ctx context.Context, in SceneInput, content string) {
	if e.vectors == nil || e.embed == nil {
		return
	}
	text := fmt.Sprintf("Scene %d (%s): %s", in.Scene.SceneNumber, in.Scene.Title, content)
	embedding, err := e.embed.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("Scene embedding failed", "scene", in.Scene.SceneNumber, "error", err)
		return
	}
	err = e.vectors.Store(ctx, vector.Document{
		ID:        fmt.Sprintf("scene-%d", in.Scene.SceneNumber),
		ProjectID: in.ProjectID,
		Kind:      vector.KindScene,
		Text:      text,
		Embedding: embedding,
	})
	if err != nil {
		e.logger.Warn("Scene indexing failed", "scene", in.Scene.SceneNumber, "error", err)
	}
}

func (e *Engine) writerVars(in SceneInput, sceneContext string, target int, mode string) map[string]any {
	return map[string]any{
		"SceneNumber":      in.Scene.SceneNumber,
		"Title":            in.Scene.Title,
		"Setting":          in.Scene.Setting,
		"SceneCharacters":  strings.Join(in.Scene.Characters, ", "),
		"TargetWordCount":  target,
		"Constraints":      in.Constraints,
		"Context":          sceneContext,
		"ModeInstructions": mode,
	}
}

func (e *Engine) draftSingle(ctx context.Context, in SceneInput, sceneContext string, target int) (string, error) {
	out, err := e.agents.Run(ctx, agent.Spec{
		Agent:    "writer",
		Fallback: prompt.FallbackWriter,
		Vars:     e.writerVars(in, sceneContext, target, "Write the complete scene in one pass."),
	})
	if err != nil {
		return "", fmt.Errorf("scene %d draft: %w", in.Scene.SceneNumber, err)
	}
	return Sanitize(out.Content), nil
}

// draftBeats builds long scenes in 3 or 4 parts. Each part retries up to
// beatRetries times when the model returns under half the part target;
// exhausting the retries fails the scene with ErrBeatInsufficient.
func (e *Engine) partsFor(target int) int {
	parts := (target + e.params.WordsPerBeat - 1) / e.params.WordsPerBeat
	if parts < 3 {
		parts = 3
	}
	if parts > 4 {
		parts = 4
	}
	return parts
}

func (e *Engine) draftBeats(ctx context.Context, in SceneInput, sceneContext string, target int) (string, error) {
	partsTotal := e.partsFor(target)
	partTarget := (target + partsTotal - 1) / partsTotal

	var content string
	for i := 1; i <= partsTotal; i++ {
		if in.stopped() {
			return "", ErrStopped
		}
		e.publish(ctx, in.RunID, models.EventSceneBeatStart, map[string]any{
			"sceneNum":        in.Scene.SceneNumber,
			"partIndex":       i,
			"partsTotal":      partsTotal,
			"partTargetWords": partTarget,
		})

		var part string
		lastWords := 0
		for attempt := 1; attempt <= beatRetries; attempt++ {
			out, err := e.agents.Run(ctx, agent.Spec{
				Agent:    "writer",
				Fallback: prompt.FallbackWriter,
				Vars:     e.writerVars(in, sceneContext, target, beatInstructions(i, partsTotal, partTarget, content)),
			})
			if err != nil {
				return "", fmt.Errorf("scene %d part %d: %w", in.Scene.SceneNumber, i, err)
			}
			candidate := Sanitize(out.Content)
			if i >= 2 {
				candidate = StripOverlap(content, candidate)
			}
			lastWords = CountWords(candidate)
			if lastWords*2 >= partTarget {
				part = candidate
				break
			}
			e.logger.Warn("Beat came back short, retrying",
				"scene", in.Scene.SceneNumber, "part", i, "attempt", attempt,
				"words", lastWords, "part_target", partTarget)
		}
		if part == "" {
			e.publish(ctx, in.RunID, models.EventSceneBeatError, map[string]any{
				"sceneNum":       in.Scene.SceneNumber,
				"partIndex":      i,
				"partsTotal":     partsTotal,
				"reason":         "BeatInsufficient",
				"wordsGenerated": lastWords,
				"wordsRequired":  (partTarget + 1) / 2,
			})
			return "", fmt.Errorf("scene %d part %d/%d: %w", in.Scene.SceneNumber, i, partsTotal, ErrBeatInsufficient)
		}

		if content == "" {
			content = part
		} else {
			content = content + "\n\n" + part
		}
		e.publish(ctx, in.RunID, models.EventSceneBeatComplete, map[string]any{
			"sceneNum":       in.Scene.SceneNumber,
			"partIndex":      i,
			"partsTotal":     partsTotal,
			"partWordCount":  CountWords(part),
			"totalWordCount": CountWords(content),
		})
	}
	return content, nil
}

func beatInstructions(i, total, partTarget int, existing string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are writing part %d of %d of this scene, about %d words for this part.\n", i, total, partTarget)
	switch {
	case i == 1:
		b.WriteString("Open the scene.")
	case i == total:
		b.WriteString("Bring the scene to its close.")
	default:
		b.WriteString("Continue the scene; do not resolve it yet.")
	}
	if existing != "" {
		fmt.Fprintf(&b, "\n\nThe scene so far ends with:\n...%s\n\nContinue directly from that point. Do not repeat earlier text.", lastTokens(existing, 120))
	}
	return b.String()
}

// expand grows a short single-shot draft until it crosses the minimum or
// the round budget runs out. A round whose continuation strips to nothing
// keeps the content as-is and still counts against the budget.
func (e *Engine) expand(ctx context.Context, in SceneInput, sceneContext, content string, target, minWords int) string {
	for round := 1; round <= e.params.MaxExpansions && CountWords(content) < minWords; round++ {
		if in.stopped() {
			return content
		}
		needed := target - CountWords(content)
		e.publish(ctx, in.RunID, models.EventSceneExpandStart, map[string]any{
			"sceneNum":              in.Scene.SceneNumber,
			"round":                 round,
			"currentWordCount":      CountWords(content),
			"additionalWordsNeeded": needed,
		})

		mode := fmt.Sprintf("The scene below is about %d words short. Continue it seamlessly from where it ends, adding roughly %d words. Do not repeat existing text.\n\nThe scene so far ends with:\n...%s",
			needed, needed, lastTokens(content, 120))
		out, err := e.agents.Run(ctx, agent.Spec{
			Agent:    "writer",
			Fallback: prompt.FallbackWriter,
			Vars:     e.writerVars(in, sceneContext, target, mode),
		})
		if err != nil {
			e.logger.Warn("Expansion round failed, keeping current content",
				"scene", in.Scene.SceneNumber, "round", round, "error", err)
		} else {
			continuation := StripOverlap(content, Sanitize(out.Content))
			if strings.TrimSpace(continuation) != "" {
				content = content + "\n\n" + continuation
			}
		}

		e.publish(ctx, in.RunID, models.EventSceneExpandComplete, map[string]any{
			"sceneNum":         in.Scene.SceneNumber,
			"round":            round,
			"wordCount":        CountWords(content),
			"assembledContent": content,
		})
	}
	return content
}

// critiqueLoop alternates Critic and revision until approval or the
// revision budget is spent. It returns the last content, every critique
// in order, the revision count, and whether the final verdict approved.
func (e *Engine) critiqueLoop(ctx context.Context, in SceneInput, sceneContext, content string, target int) (string, []models.Critique, int, bool, int, error) {
	var critiques []models.Critique
	revisions := 0

	for {
		if in.stopped() {
			return "", nil, 0, false, 0, ErrStopped
		}
		e.publish(ctx, in.RunID, models.EventSceneCritiqueStart, map[string]any{
			"sceneNum": in.Scene.SceneNumber,
			"revision": revisions,
		})

		critique, err := e.critique(ctx, in, content, target)
		if err != nil {
			return "", nil, 0, false, 0, err
		}
		critiques = append(critiques, critique)

		e.publish(ctx, in.RunID, models.EventSceneCritiqueDone, map[string]any{
			"sceneNum": in.Scene.SceneNumber,
			"revision": revisions,
			"critique": critique,
		})

		if critique.IsApproved() {
			return content, critiques, revisions, true, critique.Score, nil
		}
		if revisions >= e.params.MaxRevisions {
			return content, critiques, revisions, false, critique.Score, nil
		}

		revisions++
		e.publish(ctx, in.RunID, models.EventSceneRevisionStart, map[string]any{
			"sceneNum": in.Scene.SceneNumber,
			"revision": revisions,
		})

		mode := "Revise the scene to address this critique, keeping everything that works:\n" + critiqueNotes(critique)
		out, err := e.agents.Run(ctx, agent.Spec{
			Agent:    "writer",
			Fallback: prompt.FallbackWriter,
			Vars:     e.writerVars(in, sceneContext, target, mode),
		})
		if err != nil {
			return "", nil, 0, false, 0, fmt.Errorf("scene %d revision %d: %w", in.Scene.SceneNumber, revisions, err)
		}
		content = Sanitize(out.Content)

		e.publish(ctx, in.RunID, models.EventSceneRevisionDone, map[string]any{
			"sceneNum":  in.Scene.SceneNumber,
			"revision":  revisions,
			"wordCount": CountWords(content),
		})
	}
}

func (e *Engine) critique(ctx context.Context, in SceneInput, content string, target int) (models.Critique, error) {
	out, err := e.agents.Run(ctx, agent.Spec{
		Agent:    "critic",
		Fallback: prompt.FallbackCritic,
		Vars: map[string]any{
			"SceneNumber":     in.Scene.SceneNumber,
			"Title":           in.Scene.Title,
			"TargetWordCount": target,
			"ActualWordCount": CountWords(content),
			"Hook":            in.Scene.Hook,
			"Content":         content,
		},
	})
	if err != nil {
		return models.Critique{}, fmt.Errorf("scene %d critique: %w", in.Scene.SceneNumber, err)
	}
	parsed, err := agent.ParseJSON(out.Content)
	if err != nil {
		return models.Critique{}, fmt.Errorf("scene %d critique: %w", in.Scene.SceneNumber, err)
	}

	critique := normalize.Critique(parsed)
	scene := in.Scene
	scene.WordCount = target
	ApplyVerdictRules(&critique, content, scene)
	return critique, nil
}

// polish runs the final pass when warranted and validates its output.
// Failures downgrade to polish_rejected; they never fail the scene.
func (e *Engine) polish(ctx context.Context, in SceneInput, content string, critiques []models.Critique, approved bool, lastScore int) (string, string) {
	if !approved {
		return content, models.PolishStatusNotApproved
	}
	if lastScore >= approvalScore {
		return content, models.PolishStatusSkippedHigh
	}

	e.publish(ctx, in.RunID, models.EventScenePolishStart, map[string]any{
		"sceneNum": in.Scene.SceneNumber,
	})

	notes := ""
	if len(critiques) > 0 {
		notes = critiqueNotes(critiques[len(critiques)-1])
	}
	out, err := e.agents.Run(ctx, agent.Spec{
		Agent:    "polish",
		Fallback: prompt.FallbackPolish,
		Vars: map[string]any{
			"SceneNumber":   in.Scene.SceneNumber,
			"Title":         in.Scene.Title,
			"Content":       content,
			"CritiqueNotes": notes,
		},
	})
	if err != nil {
		e.logger.Warn("Polish call failed, keeping pre-polish draft",
			"scene", in.Scene.SceneNumber, "error", err)
		e.metrics.PolishRejections.Inc()
		return content, models.PolishStatusRejected
	}

	polished := Sanitize(out.Content)
	if ok, reason := ValidatePolish(content, polished); !ok {
		e.logger.Warn("Polish rejected", "scene", in.Scene.SceneNumber, "reason", reason)
		e.metrics.PolishRejections.Inc()
		return content, models.PolishStatusRejected
	}
	return polished, models.PolishStatusPolished
}

func critiqueNotes(c models.Critique) string {
	var lines []string
	for _, issue := range c.Issues {
		lines = append(lines, "- issue: "+issue)
	}
	for _, req := range c.RevisionRequests {
		lines = append(lines, "- request: "+req)
	}
	for _, s := range c.Strengths {
		lines = append(lines, "- keep: "+s)
	}
	if len(lines) == 0 {
		return fmt.Sprintf("- score was %d; tighten prose and deepen the scene", c.Score)
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) publish(ctx context.Context, runID, eventType string, data map[string]any) {
	if _, err := e.log.Publish(ctx, runID, eventType, data); err != nil {
		e.logger.Error("Failed to publish event", "run_id", runID, "type", eventType, "error", err)
	}
}
