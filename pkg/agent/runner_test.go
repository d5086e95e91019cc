package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IShalkin/manoe-sub005/pkg/llm"
	"github.com/IShalkin/manoe-sub005/pkg/metrics"
	"github.com/IShalkin/manoe-sub005/pkg/prompt"
)

// scriptedClient returns queued responses/errors in order, repeating the
// last entry when exhausted.
type scriptedClient struct {
	responses []any // *llm.Response or error
	requests  []llm.Request
}

func (c *scriptedClient) Name() string { return "scripted" }
func (c *scriptedClient) Close() error { return nil }

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	idx := len(c.requests) - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	switch v := c.responses[idx].(type) {
	case *llm.Response:
		return v, nil
	case error:
		return nil, v
	}
	return nil, errors.New("script exhausted")
}

func newTestRunner(client llm.Client) *Runner {
	r := NewRunner(prompt.NewStore(nil, 0, nil), client, "test-model", 0.7, metrics.NewNop(), nil)
	r.retry.BaseDelay = time.Millisecond
	r.retry.MaxDelay = 2 * time.Millisecond
	r.retry.Jitter = false
	return r
}

func TestRunCompilesAndCalls(t *testing.T) {
	client := &scriptedClient{responses: []any{
		&llm.Response{Content: "prose", Usage: llm.Usage{TotalTokens: 9}},
	}}
	r := newTestRunner(client)

	out, err := r.Run(context.Background(), Spec{
		Agent:    "writer",
		Fallback: "Write scene {{.SceneNumber}}.",
		Vars:     map[string]any{"SceneNumber": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "prose", out.Content)

	require.Len(t, client.requests, 1)
	assert.Equal(t, "Write scene 2.", client.requests[0].Messages[0].Content)
	assert.False(t, client.requests[0].JSONMode)
}

func TestRunRequestsJSONMode(t *testing.T) {
	client := &scriptedClient{responses: []any{&llm.Response{Content: "{}"}}}
	r := newTestRunner(client)

	_, err := r.Run(context.Background(), Spec{
		Agent:    "critic",
		Fallback: "Evaluate this.\n\nOutput as JSON.",
	})
	require.NoError(t, err)
	require.Len(t, client.requests, 1)
	assert.True(t, client.requests[0].JSONMode)
}

func TestRunRetriesRateLimit(t *testing.T) {
	throttle := &llm.RateLimitError{ProviderError: llm.ProviderError{
		SDKError: llm.SDKError{Message: "throttled"}, Retryable: true,
	}}
	client := &scriptedClient{responses: []any{
		throttle, throttle, &llm.Response{Content: "ok"},
	}}
	r := newTestRunner(client)

	out, err := r.Run(context.Background(), Spec{Agent: "writer", Fallback: "go"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Content)
	assert.Len(t, client.requests, 3)
}

func TestRunGivesUpAfterThreeAttempts(t *testing.T) {
	throttle := &llm.RateLimitError{ProviderError: llm.ProviderError{
		SDKError: llm.SDKError{Message: "throttled"}, Retryable: true,
	}}
	client := &scriptedClient{responses: []any{throttle}}
	r := newTestRunner(client)

	_, err := r.Run(context.Background(), Spec{Agent: "writer", Fallback: "go"})
	require.Error(t, err)
	assert.Len(t, client.requests, 3)
	assert.Equal(t, KindRateLimit, Classify(err))
}

func TestRunDoesNotRetryInvalidRequest(t *testing.T) {
	bad := &llm.InvalidRequestError{ProviderError: llm.ProviderError{
		SDKError: llm.SDKError{Message: "bad request"},
	}}
	client := &scriptedClient{responses: []any{bad}}
	r := newTestRunner(client)

	_, err := r.Run(context.Background(), Spec{Agent: "writer", Fallback: "go"})
	require.Error(t, err)
	assert.Len(t, client.requests, 1)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"rate limit", &llm.RateLimitError{}, KindRateLimit},
		{"server", &llm.ServerError{}, KindProvider},
		{"network", &llm.NetworkError{}, KindNetwork},
		{"timeout", &llm.RequestTimeoutError{}, KindNetwork},
		{"deadline", context.DeadlineExceeded, KindNetwork},
		{"validation", ErrValidation, KindValidation},
		{"wrapped validation", errors.Join(errors.New("ctx"), ErrValidation), KindValidation},
		{"plain", errors.New("whatever"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestParseJSON(t *testing.T) {
	v, err := ParseJSON(`{"a": 1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, v)

	v, err = ParseJSON("```json\n{\"a\": 1}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, v)

	v, err = ParseJSON("Here is the result:\n{\"a\": 1}\nHope that helps!")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, v)

	v, err = ParseJSON(`[1, 2]`)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, v)

	_, err = ParseJSON("no json here")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, KindValidation, Classify(err))
}
