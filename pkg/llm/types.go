// Package llm is the language-model call layer: a uniform Client interface
// with hand-rolled HTTP adapters per provider, a typed error hierarchy, and
// a retry policy with exponential backoff.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for a JSON-object response where supported.
	JSONMode bool
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Response is a provider-agnostic completion result.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Client is implemented by every provider adapter.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
	Close() error
}
