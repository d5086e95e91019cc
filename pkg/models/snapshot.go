package models

import (
	"sort"
	"time"
)

// Snapshot states. Interrupted snapshots are the restorable ones: they
// are written at phase boundaries and on shutdown, and overwritten with
// a completed or failed snapshot when the run ends.
const (
	SnapshotInterrupted = "interrupted"
	SnapshotCompleted   = "completed"
	SnapshotFailed      = "failed"
)

// SceneCritiques carries the ordered critiques for one scene. Maps keyed by
// scene number are projected to arrays like this one for persistence.
type SceneCritiques struct {
	SceneNumber int        `json:"sceneNumber"`
	Critiques   []Critique `json:"critiques"`
}

// SceneCount is a (sceneNumber, count) pair, used for revision counters.
type SceneCount struct {
	SceneNumber int `json:"sceneNumber"`
	Count       int `json:"count"`
}

// WorldbuildingEntry is one (element type, element) pair.
type WorldbuildingEntry struct {
	Type    string         `json:"type"`
	Element map[string]any `json:"element"`
}

// RunSnapshot is the JSON-compatible projection of a run's full state,
// written on graceful shutdown and loaded on restart. All integer-keyed
// maps are stored as arrays so the document survives any JSON codec.
type RunSnapshot struct {
	Run           GenerationRun        `json:"run"`
	Narrative     *Narrative           `json:"narrative,omitempty"`
	Characters    []Character          `json:"characters,omitempty"`
	Worldbuilding []WorldbuildingEntry `json:"worldbuilding,omitempty"`
	Outline       *Outline             `json:"outline,omitempty"`
	Drafts        []Draft              `json:"drafts,omitempty"`
	Critiques     []SceneCritiques     `json:"critiques,omitempty"`
	RevisionCount []SceneCount         `json:"revisionCount,omitempty"`
	Constraints   []KeyConstraint      `json:"constraints,omitempty"`
	Facts         []RawFact            `json:"facts,omitempty"`
	World         WorldState           `json:"world"`

	LastArchivistScene int       `json:"lastArchivistScene"`
	State              string    `json:"state"`
	SavedAt            time.Time `json:"savedAt"`
}

// DraftsToList projects a sceneNumber-keyed draft map to an array ordered
// by scene number.
func DraftsToList(m map[int]Draft) []Draft {
	out := make([]Draft, 0, len(m))
	for n, d := range m {
		d.SceneNumber = n
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SceneNumber < out[j].SceneNumber })
	return out
}

// DraftsFromList is the inverse of DraftsToList.
func DraftsFromList(list []Draft) map[int]Draft {
	m := make(map[int]Draft, len(list))
	for _, d := range list {
		m[d.SceneNumber] = d
	}
	return m
}

// CritiquesToList projects a sceneNumber-keyed critique map to an ordered
// array.
func CritiquesToList(m map[int][]Critique) []SceneCritiques {
	out := make([]SceneCritiques, 0, len(m))
	for n, cs := range m {
		out = append(out, SceneCritiques{SceneNumber: n, Critiques: cs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SceneNumber < out[j].SceneNumber })
	return out
}

// CritiquesFromList is the inverse of CritiquesToList.
func CritiquesFromList(list []SceneCritiques) map[int][]Critique {
	m := make(map[int][]Critique, len(list))
	for _, sc := range list {
		m[sc.SceneNumber] = sc.Critiques
	}
	return m
}

// CountsToList projects an integer-keyed counter map to an ordered array.
func CountsToList(m map[int]int) []SceneCount {
	out := make([]SceneCount, 0, len(m))
	for n, c := range m {
		out = append(out, SceneCount{SceneNumber: n, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SceneNumber < out[j].SceneNumber })
	return out
}

// CountsFromList is the inverse of CountsToList.
func CountsFromList(list []SceneCount) map[int]int {
	m := make(map[int]int, len(list))
	for _, sc := range list {
		m[sc.SceneNumber] = sc.Count
	}
	return m
}

// WorldbuildingToList projects the element-type map to an array ordered by
// type name.
func WorldbuildingToList(m map[string]map[string]any) []WorldbuildingEntry {
	out := make([]WorldbuildingEntry, 0, len(m))
	for t, el := range m {
		out = append(out, WorldbuildingEntry{Type: t, Element: el})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// WorldbuildingFromList is the inverse of WorldbuildingToList.
func WorldbuildingFromList(list []WorldbuildingEntry) map[string]map[string]any {
	m := make(map[string]map[string]any, len(list))
	for _, e := range list {
		m[e.Type] = e.Element
	}
	return m
}
