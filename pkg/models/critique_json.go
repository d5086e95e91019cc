package models

import "encoding/json"

type critiqueWire struct {
	Score               int      `json:"score"`
	Approved            *bool    `json:"approved,omitempty"`
	RevisionNeededSnake *bool    `json:"revision_needed,omitempty"`
	RevisionNeededCamel *bool    `json:"revisionNeeded,omitempty"`
	Issues              []string `json:"issues,omitempty"`
	RevisionRequests    []string `json:"revisionRequests,omitempty"`
	Strengths           []string `json:"strengths,omitempty"`
	WordCountCompliance *bool    `json:"wordCountCompliance,omitempty"`
	ScopeAdherence      *bool    `json:"scopeAdherence,omitempty"`
}

// MarshalJSON writes the revision decision under both revision_needed and
// revisionNeeded so downstream readers of either spelling stay working.
func (c Critique) MarshalJSON() ([]byte, error) {
	return json.Marshal(critiqueWire{
		Score:               c.Score,
		Approved:            c.Approved,
		RevisionNeededSnake: c.RevisionNeeded,
		RevisionNeededCamel: c.RevisionNeeded,
		Issues:              c.Issues,
		RevisionRequests:    c.RevisionRequests,
		Strengths:           c.Strengths,
		WordCountCompliance: c.WordCountCompliance,
		ScopeAdherence:      c.ScopeAdherence,
	})
}

// UnmarshalJSON accepts either spelling; revision_needed is canonical when
// both are present.
func (c *Critique) UnmarshalJSON(data []byte) error {
	var w critiqueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Score = w.Score
	c.Approved = w.Approved
	c.RevisionNeeded = w.RevisionNeededSnake
	if c.RevisionNeeded == nil {
		c.RevisionNeeded = w.RevisionNeededCamel
	}
	c.Issues = w.Issues
	c.RevisionRequests = w.RevisionRequests
	c.Strengths = w.Strengths
	c.WordCountCompliance = w.WordCountCompliance
	c.ScopeAdherence = w.ScopeAdherence
	return nil
}
