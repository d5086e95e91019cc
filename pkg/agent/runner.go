// Package agent wraps every model call behind one uniform path: compile
// the prompt, call the provider, parse and normalize the output, record
// metrics. Agents differ only in their template and variables.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IShalkin/manoe-sub005/pkg/llm"
	"github.com/IShalkin/manoe-sub005/pkg/metrics"
	"github.com/IShalkin/manoe-sub005/pkg/prompt"
)

// DefaultTemperature applies when a run's config leaves it unset.
const DefaultTemperature = 0.7

// Spec names an agent invocation.
type Spec struct {
	// Agent is the role name, used for the registry lookup and metrics.
	Agent string
	// Fallback is the baked-in template used when the registry misses.
	Fallback string
	// Vars feed the template.
	Vars map[string]any
	// MaxTokens is the per-phase output ceiling; 0 uses the provider default.
	MaxTokens int
	// Temperature overrides the run default when non-zero.
	Temperature float64
}

// Output is the result of one agent execution.
type Output struct {
	Content   string
	Usage     llm.Usage
	LatencyMs int64
}

// Caller is the surface the drafting engine and orchestrator depend on;
// tests substitute a scripted implementation.
type Caller interface {
	Run(ctx context.Context, spec Spec) (Output, error)
}

// Runner is the production Caller.
type Runner struct {
	prompts     *prompt.Store
	client      llm.Client
	model       string
	temperature float64
	retry       llm.RetryPolicy
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewRunner wires a runner for one run's model configuration.
func NewRunner(prompts *prompt.Store, client llm.Client, model string, temperature float64, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		prompts:     prompts,
		client:      client,
		model:       model,
		temperature: temperature,
		retry:       llm.DefaultRetryPolicy(),
		metrics:     m,
		logger:      logger,
	}
}

// Run executes one agent call. Retryable provider failures (rate limit,
// 5xx, network) are retried with backoff; everything else propagates.
func (r *Runner) Run(ctx context.Context, spec Spec) (Output, error) {
	compiled, err := r.prompts.Compile(ctx, spec.Agent, spec.Vars, spec.Fallback)
	if err != nil {
		return Output{}, fmt.Errorf("failed to compile prompt for %s: %w", spec.Agent, err)
	}

	req := llm.Request{
		Model:       r.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: compiled}},
		Temperature: r.temperature,
		MaxTokens:   spec.MaxTokens,
		JSONMode:    WantsJSON(compiled),
	}
	if spec.Temperature != 0 {
		req.Temperature = spec.Temperature
	}

	start := time.Now()
	var resp *llm.Response
	err = llm.Retry(ctx, r.retryPolicy(spec.Agent), func() error {
		var callErr error
		resp, callErr = r.client.Complete(ctx, req)
		return callErr
	})
	elapsed := time.Since(start)

	if err != nil {
		r.metrics.AgentExecutions.WithLabelValues(spec.Agent, "failure").Inc()
		r.logger.Error("Agent execution failed",
			"agent", spec.Agent, "kind", string(Classify(err)), "duration_ms", elapsed.Milliseconds(), "error", err)
		return Output{}, fmt.Errorf("agent %s failed: %w", spec.Agent, err)
	}

	r.metrics.AgentExecutions.WithLabelValues(spec.Agent, "success").Inc()
	r.metrics.AgentDuration.WithLabelValues(spec.Agent).Observe(elapsed.Seconds())
	r.metrics.LLMTokens.WithLabelValues(r.client.Name(), "prompt").Add(float64(resp.Usage.PromptTokens))
	r.metrics.LLMTokens.WithLabelValues(r.client.Name(), "completion").Add(float64(resp.Usage.CompletionTokens))
	r.logger.Debug("Agent execution succeeded",
		"agent", spec.Agent, "duration_ms", elapsed.Milliseconds(), "tokens", resp.Usage.TotalTokens)

	return Output{
		Content:   resp.Content,
		Usage:     resp.Usage,
		LatencyMs: elapsed.Milliseconds(),
	}, nil
}

func (r *Runner) retryPolicy(agentName string) llm.RetryPolicy {
	policy := r.retry
	logger := r.logger
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("Retrying agent call",
			"agent", agentName, "attempt", attempt+1, "delay", delay, "kind", string(Classify(err)), "error", err)
	}
	return policy
}

// WantsJSON reports whether the compiled prompt asks for structured
// output, which switches the provider into JSON response mode.
func WantsJSON(compiledPrompt string) bool {
	return strings.Contains(compiledPrompt, "Output as JSON") ||
		strings.Contains(compiledPrompt, "Output JSON")
}
