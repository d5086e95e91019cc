package models

import "time"

// Seed constraint keys installed once at the end of Genesis.
const (
	ConstraintSeedIdea     = "seed_idea"
	ConstraintPremise      = "premise"
	ConstraintGenre        = "genre"
	ConstraintTone         = "tone"
	ConstraintNarrativeArc = "narrative_arc"
)

// KeyConstraint is one keyed story fact. Immutable entries are seed
// constraints and are never overwritten; for mutable entries sharing a key
// the one with the greatest timestamp wins.
type KeyConstraint struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	SceneNumber int       `json:"sceneNumber"`
	Timestamp   time.Time `json:"timestamp"`
	Immutable   bool      `json:"immutable"`
}

// RawFact is an un-curated observation extracted from generated prose,
// consumed by the Archivist.
type RawFact struct {
	Fact        string    `json:"fact"`
	Source      string    `json:"source"`
	SceneNumber int       `json:"sceneNumber"`
	Timestamp   time.Time `json:"timestamp"`
}

// Development is one structured change surfaced alongside raw facts.
type Development struct {
	Subject  string `json:"subject"`
	Change   string `json:"change"`
	Category string `json:"category,omitempty"`
}

// CharacterState is the per-character slice of the world state.
type CharacterState struct {
	Location      string            `json:"location"`
	Status        string            `json:"status"`
	Possessions   []string          `json:"possessions"`
	Relationships map[string]string `json:"relationships"`
}

// WorldState is the canonical continuity document. It is only mutated by
// the world-state applier between scenes.
type WorldState struct {
	Characters map[string]CharacterState `json:"characters"`
	Locations  map[string]map[string]any `json:"locations"`
	Flags      map[string]any            `json:"flags"`
}

// NewWorldState returns an empty state with all maps allocated.
func NewWorldState() WorldState {
	return WorldState{
		Characters: map[string]CharacterState{},
		Locations:  map[string]map[string]any{},
		Flags:      map[string]any{},
	}
}
