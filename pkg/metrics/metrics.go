// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the pipeline records into.
type Metrics struct {
	AgentExecutions  *prometheus.CounterVec
	AgentDuration    *prometheus.HistogramVec
	PhaseDuration    *prometheus.HistogramVec
	LLMTokens        *prometheus.CounterVec
	EventsPublished  *prometheus.CounterVec
	RateLimitDenials *prometheus.CounterVec
	RunsActive       prometheus.Gauge
	ScenesCompleted  prometheus.Counter
	PolishRejections prometheus.Counter
	ArchivistPasses  prometheus.Counter
}

// New registers all collectors on the given registerer (use
// prometheus.DefaultRegisterer in main, a fresh registry in tests).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AgentExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "manoe_agent_executions_total",
			Help: "Agent executions by agent and outcome.",
		}, []string{"agent", "outcome"}),
		AgentDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "manoe_agent_duration_seconds",
			Help:    "Agent execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"agent"}),
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "manoe_phase_duration_seconds",
			Help:    "Generation phase duration.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"phase"}),
		LLMTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "manoe_llm_tokens_total",
			Help: "Tokens consumed by provider and direction.",
		}, []string{"provider", "direction"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "manoe_events_published_total",
			Help: "Events published to the run stream by type.",
		}, []string{"type"}),
		RateLimitDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "manoe_rate_limit_denials_total",
			Help: "Requests denied by the rate-limit gate.",
		}, []string{"window"}),
		RunsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "manoe_runs_active",
			Help: "Currently registered generation runs.",
		}),
		ScenesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "manoe_scenes_completed_total",
			Help: "Scenes that reached their terminal polish event.",
		}),
		PolishRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "manoe_polish_rejections_total",
			Help: "Polish outputs rejected by validation.",
		}),
		ArchivistPasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "manoe_archivist_passes_total",
			Help: "Successful archivist consolidation passes.",
		}),
	}
}

// NewNop returns metrics backed by a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
