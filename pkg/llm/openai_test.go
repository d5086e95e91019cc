package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

func testConfig(provider string) models.LLMConfig {
	return models.LLMConfig{Provider: provider, Model: "m", APIKey: "k"}
}

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIAdapter("test-key", srv.URL, 5*time.Second)
}

func TestOpenAIComplete(t *testing.T) {
	var captured openAIRequest
	adapter := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o",
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"premise":"x"}`}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
		})
	})

	resp, err := adapter.Complete(context.Background(), Request{
		Model:       "gpt-4o",
		Messages:    []Message{{Role: RoleUser, Content: "go"}},
		Temperature: 0.7,
		JSONMode:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"premise":"x"}`, resp.Content)
	assert.Equal(t, 19, resp.Usage.TotalTokens)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
}

func TestOpenAICompleteRateLimited(t *testing.T) {
	adapter := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	})

	_, err := adapter.Complete(context.Background(), Request{Model: "gpt-4o"})
	require.Error(t, err)

	rle, ok := err.(*RateLimitError)
	require.True(t, ok)
	require.NotNil(t, rle.RetryAfter)
	assert.Equal(t, 2.0, *rle.RetryAfter)
	assert.True(t, rle.IsRetryable())
}

func TestOpenAICompleteServerError(t *testing.T) {
	adapter := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := adapter.Complete(context.Background(), Request{Model: "gpt-4o"})
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	adapter := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"gpt-4o","choices":[]}`))
	})
	_, err := adapter.Complete(context.Background(), Request{Model: "gpt-4o"})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
}

func TestAnthropicComplete(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "claude-sonnet",
			"content": []map[string]any{{"type": "text", "text": "the fog rolled in"}},
			"usage":   map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)

	adapter := NewAnthropicAdapter("test-key", srv.URL, 5*time.Second)
	resp, err := adapter.Complete(context.Background(), Request{
		Model: "claude-sonnet",
		Messages: []Message{
			{Role: RoleSystem, Content: "you are a writer"},
			{Role: RoleUser, Content: "write"},
		},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "the fog rolled in", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Contains(t, captured.System, "you are a writer")
	assert.Contains(t, captured.System, "JSON object")
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, RoleUser, captured.Messages[0].Role)
}

func TestNewClientByProvider(t *testing.T) {
	c, err := New(testConfig("openai"))
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = New(testConfig("anthropic"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	_, err = New(testConfig("mystery"))
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)
}
