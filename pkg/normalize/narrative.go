package normalize

import "github.com/IShalkin/manoe-sub005/pkg/models"

var narrativeAliases = []alias{
	{canonical: "premise", names: []string{"Premise", "concept", "idea"}},
	{canonical: "genre", names: []string{"Genre"}},
	{canonical: "tone", names: []string{"Tone", "mood"}},
	{canonical: "narrativeArc", names: []string{"narrative_arc", "arc", "structure"}},
	{canonical: "themes", names: []string{"Themes", "theme"}},
	{canonical: "hook", names: []string{"Hook", "openingHook", "opening_hook"}},
}

// Narrative coerces the genesis response into the canonical narrative.
func Narrative(raw any) models.Narrative {
	rec, ok := UnwrapEnvelope(raw).(map[string]any)
	if !ok {
		return models.Narrative{}
	}
	applyAliases(rec, narrativeAliases)
	return models.Narrative{
		Premise:      asString(rec["premise"]),
		Genre:        asString(rec["genre"]),
		Tone:         asString(rec["tone"]),
		NarrativeArc: asString(rec["narrativeArc"]),
		Themes:       asStringSlice(rec["themes"]),
		Hook:         asString(rec["hook"]),
	}
}

// Worldbuilding coerces the worldbuilding response into the element-type
// map. Non-object element values are dropped.
func Worldbuilding(raw any) map[string]map[string]any {
	rec, ok := UnwrapEnvelope(raw).(map[string]any)
	if !ok {
		return map[string]map[string]any{}
	}
	out := make(map[string]map[string]any, len(rec))
	for t, v := range rec {
		if el, ok := v.(map[string]any); ok {
			out[t] = el
		}
	}
	return out
}
