package normalize

import (
	"strings"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

var characterAliases = []alias{
	{canonical: "name", names: []string{"Name", "fullName", "characterName", "character_name", "full_name"}},
	{canonical: "role", names: []string{"Role", "type", "archetype"}},
	{canonical: "description", names: []string{"Description", "desc", "summary"}},
	{canonical: "psychology", names: []string{"Psychology", "personality", "psych_profile"}},
	{canonical: "background", names: []string{"Background", "backstory", "history"}},
	{canonical: "motivation", names: []string{"Motivation", "goal", "goals"}},
}

var roleSynonyms = map[string]string{
	"hero":           models.RoleProtagonist,
	"main":           models.RoleProtagonist,
	"main character": models.RoleProtagonist,
	"protagonist":    models.RoleProtagonist,
	"villain":        models.RoleAntagonist,
	"antagonist":     models.RoleAntagonist,
	"side":           models.RoleSupporting,
	"secondary":      models.RoleSupporting,
	"minor":          models.RoleSupporting,
	"supporting":     models.RoleSupporting,
}

// NormalizeRole maps role synonyms onto the canonical set. Unknown roles
// are lowercased and kept.
func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if canonical, ok := roleSynonyms[r]; ok {
		return canonical
	}
	return r
}

// Characters coerces a model response into an ordered character list.
// Records without a usable name are dropped.
func Characters(raw any) []models.Character {
	raw = UnwrapEnvelope(raw)

	var records []map[string]any
	switch t := raw.(type) {
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				records = append(records, m)
			}
		}
	case map[string]any:
		// single character object
		records = append(records, t)
	default:
		return nil
	}

	var out []models.Character
	for _, rec := range records {
		applyAliases(rec, characterAliases)
		name := asString(rec["name"])
		if name == "" {
			continue
		}
		c := models.Character{
			Name:        name,
			Role:        NormalizeRole(asString(rec["role"])),
			Description: asString(rec["description"]),
			Psychology:  asString(rec["psychology"]),
			Background:  asString(rec["background"]),
			Motivation:  asString(rec["motivation"]),
		}
		if rels, ok := rec["relationships"].(map[string]any); ok {
			c.Relationships = rels
		}
		out = append(out, c)
	}
	return out
}
