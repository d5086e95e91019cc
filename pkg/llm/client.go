package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// DefaultTimeout bounds one provider round-trip.
const DefaultTimeout = 5 * time.Minute

// New builds the provider adapter for a run's LLM configuration.
func New(cfg models.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "llm api key is required"}}
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAIAdapter(cfg.APIKey, "", DefaultTimeout), nil
	case "anthropic":
		return NewAnthropicAdapter(cfg.APIKey, "", DefaultTimeout), nil
	case "openai-compatible":
		baseURL := os.Getenv("LLM_BASE_URL")
		if baseURL == "" {
			return nil, &ConfigurationError{SDKError: SDKError{Message: "LLM_BASE_URL is required for openai-compatible providers"}}
		}
		return NewOpenAIAdapter(cfg.APIKey, baseURL, DefaultTimeout), nil
	default:
		return nil, &ConfigurationError{
			SDKError: SDKError{Message: fmt.Sprintf("unknown llm provider %q", cfg.Provider)},
		}
	}
}
