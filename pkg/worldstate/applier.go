// Package worldstate maintains the canonical continuity document for a run
// and applies the structured diffs the Archivist emits against it.
package worldstate

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// Diff is one structured world-state change set. Within a category,
// additions are applied first, then removals, then field sets, so any
// producer ordering yields the same result.
type Diff struct {
	Characters CategoryDiff `json:"characters,omitempty"`
	Locations  CategoryDiff `json:"locations,omitempty"`
	Flags      FlagDiff     `json:"flags,omitempty"`
}

// CategoryDiff covers a name-keyed category (characters, locations).
type CategoryDiff struct {
	Add    map[string]map[string]any `json:"add,omitempty"`
	Remove []string                  `json:"remove,omitempty"`
	Set    map[string]map[string]any `json:"set,omitempty"`
}

// FlagDiff covers the flat flags map.
type FlagDiff struct {
	Remove []string       `json:"remove,omitempty"`
	Set    map[string]any `json:"set,omitempty"`
}

// Empty reports whether the diff carries no changes at all.
func (d Diff) Empty() bool {
	return len(d.Characters.Add) == 0 && len(d.Characters.Remove) == 0 && len(d.Characters.Set) == 0 &&
		len(d.Locations.Add) == 0 && len(d.Locations.Remove) == 0 && len(d.Locations.Set) == 0 &&
		len(d.Flags.Remove) == 0 && len(d.Flags.Set) == 0
}

// ParseDiff extracts a Diff from a loosely structured document. Unknown
// top-level keys are skipped and reported as warnings; the caller decides
// whether to log them.
func ParseDiff(raw map[string]any) (Diff, []string) {
	var diff Diff
	var warnings []string
	for key, val := range raw {
		switch strings.ToLower(key) {
		case "characters":
			diff.Characters = parseCategory(val)
		case "locations":
			diff.Locations = parseCategory(val)
		case "flags":
			diff.Flags = parseFlags(val)
		default:
			warnings = append(warnings, fmt.Sprintf("unknown world-state key %q ignored", key))
		}
	}
	return diff, warnings
}

func parseCategory(val any) CategoryDiff {
	m, ok := val.(map[string]any)
	if !ok {
		return CategoryDiff{}
	}
	var cd CategoryDiff
	if add, ok := m["add"].(map[string]any); ok {
		cd.Add = toRecordMap(add)
	}
	if set, ok := m["set"].(map[string]any); ok {
		cd.Set = toRecordMap(set)
	}
	cd.Remove = toStringSlice(m["remove"])
	return cd
}

func parseFlags(val any) FlagDiff {
	m, ok := val.(map[string]any)
	if !ok {
		return FlagDiff{}
	}
	var fd FlagDiff
	if set, ok := m["set"].(map[string]any); ok {
		fd.Set = set
	}
	fd.Remove = toStringSlice(m["remove"])
	return fd
}

func toRecordMap(m map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(m))
	for name, v := range m {
		if rec, ok := v.(map[string]any); ok {
			out[name] = rec
		}
	}
	return out
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Apply folds a diff into the current state and returns the result.
// Neither input is mutated. Order within each category: add, remove, set.
func Apply(current models.WorldState, diff Diff, sceneNumber int, logger *slog.Logger) models.WorldState {
	if logger == nil {
		logger = slog.Default()
	}
	next := cloneState(current)

	for name, rec := range diff.Characters.Add {
		if _, exists := next.Characters[name]; !exists {
			next.Characters[name] = characterFromRecord(rec)
		}
	}
	for _, name := range diff.Characters.Remove {
		delete(next.Characters, name)
	}
	for name, fields := range diff.Characters.Set {
		cs, ok := next.Characters[name]
		if !ok {
			logger.Warn("World-state set for unknown character", "character", name, "scene", sceneNumber)
			cs = newCharacterState()
		}
		next.Characters[name] = setCharacterFields(cs, fields)
	}

	for name, rec := range diff.Locations.Add {
		if _, exists := next.Locations[name]; !exists {
			next.Locations[name] = cloneRecord(rec)
		}
	}
	for _, name := range diff.Locations.Remove {
		delete(next.Locations, name)
	}
	for name, fields := range diff.Locations.Set {
		loc, ok := next.Locations[name]
		if !ok {
			loc = map[string]any{}
		}
		for k, v := range fields {
			loc[k] = v
		}
		next.Locations[name] = loc
	}

	for _, name := range diff.Flags.Remove {
		delete(next.Flags, name)
	}
	for k, v := range diff.Flags.Set {
		next.Flags[k] = v
	}

	return next
}

// Initial builds the world state installed after the characters phase:
// every character starts alive at an unknown location.
func Initial(characters []models.Character) models.WorldState {
	ws := models.NewWorldState()
	for _, c := range characters {
		if c.Name == "" {
			continue
		}
		ws.Characters[c.Name] = newCharacterState()
	}
	return ws
}

func newCharacterState() models.CharacterState {
	return models.CharacterState{
		Location:      "unknown",
		Status:        "alive",
		Possessions:   []string{},
		Relationships: map[string]string{},
	}
}

func characterFromRecord(rec map[string]any) models.CharacterState {
	cs := newCharacterState()
	return setCharacterFields(cs, rec)
}

func setCharacterFields(cs models.CharacterState, fields map[string]any) models.CharacterState {
	for k, v := range fields {
		switch strings.ToLower(k) {
		case "location":
			if s, ok := v.(string); ok {
				cs.Location = s
			}
		case "status":
			if s, ok := v.(string); ok {
				cs.Status = s
			}
		case "possessions":
			if list := toStringSlice(v); list != nil {
				cs.Possessions = list
			}
		case "relationships":
			if m, ok := v.(map[string]any); ok {
				rels := make(map[string]string, len(m))
				for name, rel := range m {
					if s, ok := rel.(string); ok {
						rels[name] = s
					}
				}
				cs.Relationships = rels
			}
		}
	}
	return cs
}

func cloneState(ws models.WorldState) models.WorldState {
	next := models.NewWorldState()
	for name, cs := range ws.Characters {
		clone := cs
		clone.Possessions = append([]string{}, cs.Possessions...)
		clone.Relationships = make(map[string]string, len(cs.Relationships))
		for k, v := range cs.Relationships {
			clone.Relationships[k] = v
		}
		next.Characters[name] = clone
	}
	for name, rec := range ws.Locations {
		next.Locations[name] = cloneRecord(rec)
	}
	for k, v := range ws.Flags {
		next.Flags[k] = v
	}
	return next
}

func cloneRecord(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
