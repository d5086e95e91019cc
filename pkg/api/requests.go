package api

import (
	"github.com/IShalkin/manoe-sub005/pkg/models"
	"github.com/IShalkin/manoe-sub005/pkg/orchestrator"
)

// startGenerationRequest accepts both camelCase and snake_case keys; older
// clients still send the snake_case form.
type startGenerationRequest struct {
	ProjectID      string `json:"projectId"`
	ProjectIDSnake string `json:"project_id"`

	SeedIdea      string `json:"seedIdea"`
	SeedIdeaSnake string `json:"seed_idea"`

	Mode                string `json:"mode"`
	GenerationMode      string `json:"generationMode"`
	GenerationModeSnake string `json:"generation_mode"`

	LLMConfig      llmConfigRequest `json:"llmConfig"`
	LLMConfigSnake llmConfigRequest `json:"llm_config"`
}

type llmConfigRequest struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	APIKey      string  `json:"apiKey"`
	APIKeySnake string  `json:"api_key"`
	Temperature float64 `json:"temperature"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (r llmConfigRequest) empty() bool {
	return r.Provider == "" && r.Model == "" && r.APIKey == "" && r.APIKeySnake == "" && r.Temperature == 0
}

func (r startGenerationRequest) toStartRequest() orchestrator.StartRequest {
	llm := r.LLMConfig
	if llm.empty() {
		llm = r.LLMConfigSnake
	}
	return orchestrator.StartRequest{
		ProjectID: firstNonEmpty(r.ProjectID, r.ProjectIDSnake),
		SeedIdea:  firstNonEmpty(r.SeedIdea, r.SeedIdeaSnake),
		Mode:      models.GenerationMode(firstNonEmpty(r.Mode, r.GenerationMode, r.GenerationModeSnake)),
		LLMConfig: models.LLMConfig{
			Provider:    llm.Provider,
			Model:       llm.Model,
			APIKey:      firstNonEmpty(llm.APIKey, llm.APIKeySnake),
			Temperature: llm.Temperature,
		},
	}
}

// actionResponse is the pause/resume/cancel reply shape.
type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
