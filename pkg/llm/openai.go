package llm

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter talks to the OpenAI chat completions API, and to any
// openai-compatible endpoint when given a different base URL.
type OpenAIAdapter struct {
	*BaseAdapter
	provider string
}

// NewOpenAIAdapter builds an adapter for the given key. baseURL may be
// empty for the public API.
func NewOpenAIAdapter(apiKey, baseURL string, timeout time.Duration) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	a := &OpenAIAdapter{
		BaseAdapter: NewBaseAdapter(apiKey, baseURL, timeout),
		provider:    "openai",
	}
	a.DefaultHeaders["Authorization"] = "Bearer " + apiKey
	return a
}

func (a *OpenAIAdapter) Name() string { return a.provider }

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a chat completion request and decodes the first choice.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	payload := openAIRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	resp, err := a.DoRequest(ctx, "/chat/completions", payload, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "reading response body", Cause: err}}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, a.DecodeError(resp, a.provider, body)
	}

	var decoded openAIResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &ProviderError{
			SDKError:   SDKError{Message: "decoding response", Cause: err},
			Provider:   a.provider,
			StatusCode: resp.StatusCode,
			Raw:        body,
		}
	}
	if len(decoded.Choices) == 0 {
		return nil, &ProviderError{
			SDKError:   SDKError{Message: "response contained no choices"},
			Provider:   a.provider,
			StatusCode: resp.StatusCode,
			Raw:        body,
		}
	}

	return &Response{
		Content: decoded.Choices[0].Message.Content,
		Model:   decoded.Model,
		Usage: Usage{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
		},
	}, nil
}

func (a *OpenAIAdapter) Close() error {
	a.HTTPClient.CloseIdleConnections()
	return nil
}
