package models

import "time"

// Phase is a node in the generation state machine.
type Phase string

const (
	PhaseGenesis          Phase = "genesis"
	PhaseCharacters       Phase = "characters"
	PhaseNarratorDesign   Phase = "narrator_design"
	PhaseWorldbuilding    Phase = "worldbuilding"
	PhaseOutlining        Phase = "outlining"
	PhaseAdvancedPlanning Phase = "advanced_planning"
	PhaseDrafting         Phase = "drafting"
	PhaseCritique         Phase = "critique"
	PhaseRevision         Phase = "revision"
	PhaseOriginality      Phase = "originality_check"
	PhaseImpact           Phase = "impact_assessment"
	PhasePolish           Phase = "polish"
)

// GenerationMode selects how the pipeline explores the outline.
type GenerationMode string

const (
	ModeFull      GenerationMode = "full"
	ModeBranching GenerationMode = "branching"
)

// LLMConfig carries the provider settings a run was started with.
type LLMConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	APIKey      string  `json:"apiKey,omitempty"`
	Temperature float64 `json:"temperature"`
}

// GenerationRun is the mutable state of one pipeline invocation. The owning
// run goroutine is the only writer; everyone else reads through the registry.
type GenerationRun struct {
	RunID     string         `json:"runId"`
	ProjectID string         `json:"projectId"`
	SeedIdea  string         `json:"seedIdea"`
	LLMConfig LLMConfig      `json:"llmConfig"`
	Mode      GenerationMode `json:"mode"`

	Phase        Phase `json:"phase"`
	CurrentScene int   `json:"currentScene"`
	TotalScenes  int   `json:"totalScenes"`

	IsPaused    bool   `json:"isPaused"`
	IsCompleted bool   `json:"isCompleted"`
	Error       string `json:"error,omitempty"`

	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RunStatus is the read-only projection returned by status queries.
type RunStatus struct {
	RunID        string    `json:"runId"`
	ProjectID    string    `json:"projectId"`
	Phase        Phase     `json:"phase"`
	CurrentScene int       `json:"currentScene"`
	TotalScenes  int       `json:"totalScenes"`
	IsPaused     bool      `json:"isPaused"`
	IsCompleted  bool      `json:"isCompleted"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Status projects the run into its externally visible form.
func (r *GenerationRun) Status() RunStatus {
	return RunStatus{
		RunID:        r.RunID,
		ProjectID:    r.ProjectID,
		Phase:        r.Phase,
		CurrentScene: r.CurrentScene,
		TotalScenes:  r.TotalScenes,
		IsPaused:     r.IsPaused,
		IsCompleted:  r.IsCompleted,
		Error:        r.Error,
		StartedAt:    r.StartedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Terminal reports whether the run has reached a state from which no
// further events will be emitted.
func (r *GenerationRun) Terminal() bool {
	return r.IsCompleted || r.Error != ""
}
