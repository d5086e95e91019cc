package llm

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// AnthropicAdapter talks to the Anthropic messages API.
type AnthropicAdapter struct {
	*BaseAdapter
}

// NewAnthropicAdapter builds an adapter for the given key.
func NewAnthropicAdapter(apiKey, baseURL string, timeout time.Duration) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	a := &AnthropicAdapter{BaseAdapter: NewBaseAdapter(apiKey, baseURL, timeout)}
	a.DefaultHeaders["x-api-key"] = apiKey
	a.DefaultHeaders["anthropic-version"] = anthropicVersion
	return a
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a messages request. System messages are lifted into the
// top-level system field; JSON mode becomes an instruction because the API
// has no response_format knob.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	var systemParts []string
	var remaining []Message
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, m.Content)
		} else {
			remaining = append(remaining, m)
		}
	}
	if req.JSONMode {
		systemParts = append(systemParts, "Respond with a single valid JSON object and nothing else.")
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	payload := anthropicRequest{
		Model:       req.Model,
		System:      strings.Join(systemParts, "\n"),
		Messages:    remaining,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}

	resp, err := a.DoRequest(ctx, "/messages", payload, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "reading response body", Cause: err}}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, a.DecodeError(resp, "anthropic", body)
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &ProviderError{
			SDKError:   SDKError{Message: "decoding response", Cause: err},
			Provider:   "anthropic",
			StatusCode: resp.StatusCode,
			Raw:        body,
		}
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Response{
		Content: text.String(),
		Model:   decoded.Model,
		Usage: Usage{
			PromptTokens:     decoded.Usage.InputTokens,
			CompletionTokens: decoded.Usage.OutputTokens,
			TotalTokens:      decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
		},
	}, nil
}

func (a *AnthropicAdapter) Close() error {
	a.HTTPClient.CloseIdleConnections()
	return nil
}
