package normalize

import (
	"fmt"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

var sceneAliases = []alias{
	{canonical: "sceneNumber", names: []string{"scene_number", "number", "scene"}},
	{canonical: "title", names: []string{"Title", "name", "heading"}},
	{canonical: "setting", names: []string{"Setting", "location", "place"}},
	{canonical: "wordCount", names: []string{"word_count", "words", "targetWordCount", "target_word_count", "length"}},
	{canonical: "hook", names: []string{"Hook", "opening"}},
	{canonical: "futureEvents", names: []string{"future_events", "foreshadowing"}},
}

// Outline coerces a model response into the canonical outline. A bare
// array is wrapped as {scenes: [...]}; scene numbers fall back to the
// 1-based index, titles to "Scene N", word counts to the default.
func Outline(raw any) models.Outline {
	raw = UnwrapEnvelope(raw)

	var items []any
	switch t := raw.(type) {
	case []any:
		items = t
	case map[string]any:
		if scenes, ok := t["scenes"].([]any); ok {
			items = scenes
		}
	}

	var out models.Outline
	for i, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		applyAliases(rec, sceneAliases)

		scene := models.OutlineScene{SceneNumber: i + 1}
		if n, ok := asInt(rec["sceneNumber"]); ok && n > 0 {
			scene.SceneNumber = n
		}
		scene.Title = asString(rec["title"])
		if scene.Title == "" {
			scene.Title = fmt.Sprintf("Scene %d", scene.SceneNumber)
		}
		scene.Setting = asString(rec["setting"])
		scene.Characters = asStringSlice(rec["characters"])
		scene.WordCount = ParseWordCount(rec["wordCount"], DefaultWordCount)
		scene.Hook = asString(rec["hook"])
		scene.FutureEvents = asStringSlice(rec["futureEvents"])
		out.Scenes = append(out.Scenes, scene)
	}
	return out
}
