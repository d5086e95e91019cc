// Package config loads and validates the service configuration: a single
// YAML file with environment-variable expansion, overlaid on built-in
// defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the umbrella configuration object returned by Load.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Generation GenerationConfig `yaml:"generation"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	LLM        LLMDefaults      `yaml:"llm"`
}

// ServerConfig groups HTTP ingress settings.
type ServerConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	AllowedWSOrigins   []string `yaml:"allowed_ws_origins"`
	GracefulShutdownMs int      `yaml:"graceful_shutdown_ms"`
}

// GracefulShutdown returns the shutdown budget as a duration.
func (s ServerConfig) GracefulShutdown() time.Duration {
	return time.Duration(s.GracefulShutdownMs) * time.Millisecond
}

// GenerationConfig holds the pipeline tuning knobs.
type GenerationConfig struct {
	MaxRevisions          int `yaml:"max_revisions"`
	BeatsThreshold        int `yaml:"beats_threshold"`
	WordsPerBeat          int `yaml:"words_per_beat"`
	MaxExpansions         int `yaml:"max_expansions"`
	ArchivistCadence      int `yaml:"archivist_cadence"`
	EvaluationConcurrency int `yaml:"evaluation_concurrency"`
	// EventRetentionHours is how long a finished run's event history is
	// kept for stream replays. Zero disables purging.
	EventRetentionHours int `yaml:"event_retention_hours"`
	// CompletedRunTTLSec is how long a finished run stays queryable in
	// the registry before eviction. Zero disables eviction.
	CompletedRunTTLSec int `yaml:"completed_run_ttl_sec"`
}

// EventRetention returns the retention window as a duration.
func (g GenerationConfig) EventRetention() time.Duration {
	return time.Duration(g.EventRetentionHours) * time.Hour
}

// CompletedRunTTL returns the registry eviction TTL as a duration.
func (g GenerationConfig) CompletedRunTTL() time.Duration {
	return time.Duration(g.CompletedRunTTLSec) * time.Second
}

// WindowConfig is one sliding rate-limit window.
type WindowConfig struct {
	WindowSec int `yaml:"window_sec"`
	Max       int `yaml:"max"`
}

// Window returns the window length as a duration.
func (w WindowConfig) Window() time.Duration {
	return time.Duration(w.WindowSec) * time.Second
}

// RateLimitConfig holds the two request-rate windows.
type RateLimitConfig struct {
	Default   WindowConfig `yaml:"default"`
	Expensive WindowConfig `yaml:"expensive"`
}

// PromptsConfig tunes the prompt registry.
type PromptsConfig struct {
	CacheTTLSec int `yaml:"cache_ttl_sec"`
}

// CacheTTL returns the prompt cache lifetime as a duration.
func (p PromptsConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSec) * time.Second
}

// LLMDefaults apply to runs that do not override provider settings.
type LLMDefaults struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			GracefulShutdownMs: 30000,
		},
		Generation: GenerationConfig{
			MaxRevisions:          2,
			BeatsThreshold:        1000,
			WordsPerBeat:          500,
			MaxExpansions:         3,
			ArchivistCadence:      3,
			EvaluationConcurrency: 3,
			EventRetentionHours:   24,
			CompletedRunTTLSec:    3600,
		},
		RateLimit: RateLimitConfig{
			Default:   WindowConfig{WindowSec: 60, Max: 100},
			Expensive: WindowConfig{WindowSec: 60, Max: 10},
		},
		Prompts: PromptsConfig{
			CacheTTLSec: 300,
		},
		LLM: LLMDefaults{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.GracefulShutdownMs < 0 {
		return fmt.Errorf("server.graceful_shutdown_ms must not be negative")
	}
	for name, n := range map[string]int{
		"generation.max_revisions":          c.Generation.MaxRevisions,
		"generation.max_expansions":         c.Generation.MaxExpansions,
		"generation.archivist_cadence":      c.Generation.ArchivistCadence,
		"generation.evaluation_concurrency": c.Generation.EvaluationConcurrency,
		"generation.beats_threshold":        c.Generation.BeatsThreshold,
		"generation.words_per_beat":         c.Generation.WordsPerBeat,
	} {
		if n < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}
	for name, w := range map[string]WindowConfig{
		"rate_limit.default":   c.RateLimit.Default,
		"rate_limit.expensive": c.RateLimit.Expensive,
	} {
		if w.WindowSec < 1 || w.Max < 1 {
			return fmt.Errorf("%s window_sec and max must be at least 1", name)
		}
	}
	if c.Generation.EventRetentionHours < 0 {
		return fmt.Errorf("generation.event_retention_hours must not be negative")
	}
	if c.Generation.CompletedRunTTLSec < 0 {
		return fmt.Errorf("generation.completed_run_ttl_sec must not be negative")
	}
	if c.Prompts.CacheTTLSec < 0 {
		return fmt.Errorf("prompts.cache_ttl_sec must not be negative")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "openai-compatible":
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	return nil
}
