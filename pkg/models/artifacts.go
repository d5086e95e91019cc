package models

import "time"

// Narrative is the Genesis artifact.
type Narrative struct {
	Premise      string   `json:"premise"`
	Genre        string   `json:"genre"`
	Tone         string   `json:"tone"`
	NarrativeArc string   `json:"narrativeArc"`
	Themes       []string `json:"themes,omitempty"`
	Hook         string   `json:"hook,omitempty"`
}

// Character roles after normalization. Unknown roles are lowercased and
// kept as-is.
const (
	RoleProtagonist = "protagonist"
	RoleAntagonist  = "antagonist"
	RoleSupporting  = "supporting"
)

// Character is one normalized character record. Name is the only required
// field; everything else is best-effort from the model output.
type Character struct {
	Name          string         `json:"name"`
	Role          string         `json:"role,omitempty"`
	Description   string         `json:"description,omitempty"`
	Psychology    string         `json:"psychology,omitempty"`
	Background    string         `json:"background,omitempty"`
	Motivation    string         `json:"motivation,omitempty"`
	Relationships map[string]any `json:"relationships,omitempty"`
}

// OutlineScene is one planned scene from the Strategist.
type OutlineScene struct {
	SceneNumber  int      `json:"sceneNumber"`
	Title        string   `json:"title"`
	Setting      string   `json:"setting,omitempty"`
	Characters   []string `json:"characters,omitempty"`
	WordCount    int      `json:"wordCount"`
	Hook         string   `json:"hook,omitempty"`
	FutureEvents []string `json:"futureEvents,omitempty"`
}

// Outline is the full scene plan.
type Outline struct {
	Scenes []OutlineScene `json:"scenes"`
}

// Draft statuses.
const (
	DraftStatusDraft          = "draft"
	DraftStatusRevised        = "revised"
	DraftStatusPolished       = "polished"
	DraftStatusPolishRejected = "polish_rejected"
	DraftStatusNotApproved    = "not_approved"
)

// Draft is the accepted prose for one scene.
type Draft struct {
	SceneNumber    int       `json:"sceneNumber"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	WordCount      int       `json:"wordCount"`
	RevisionNumber int       `json:"revisionNumber"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Critique is the normalized Critic verdict for a draft. RevisionNeeded and
// Approved are pointers so "absent" stays distinguishable from "false".
type Critique struct {
	Score               int      `json:"score"`
	Approved            *bool    `json:"approved,omitempty"`
	RevisionNeeded      *bool    `json:"revision_needed,omitempty"`
	Issues              []string `json:"issues,omitempty"`
	RevisionRequests    []string `json:"revisionRequests,omitempty"`
	Strengths           []string `json:"strengths,omitempty"`
	WordCountCompliance *bool    `json:"wordCountCompliance,omitempty"`
	ScopeAdherence      *bool    `json:"scopeAdherence,omitempty"`
}

// IsApproved applies the acceptance rule: an explicit revision_needed=false,
// an explicit approved=true, or a score of 8 or higher.
func (c *Critique) IsApproved() bool {
	if c.RevisionNeeded != nil && !*c.RevisionNeeded {
		return true
	}
	if c.Approved != nil && *c.Approved {
		return true
	}
	return c.Score >= 8
}
