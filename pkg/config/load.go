package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path, expands environment variables,
// overlays it on the defaults, and validates the result. An empty path
// or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Info("Config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(ExpandEnv(data), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	fillZeroes(cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// fillZeroes restores defaults for fields the file set to zero values,
// so a partial YAML file only overrides what it mentions.
func fillZeroes(cfg *Config) {
	def := Default()
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.GracefulShutdownMs == 0 {
		cfg.Server.GracefulShutdownMs = def.Server.GracefulShutdownMs
	}
	if cfg.Generation.MaxRevisions == 0 {
		cfg.Generation.MaxRevisions = def.Generation.MaxRevisions
	}
	if cfg.Generation.BeatsThreshold == 0 {
		cfg.Generation.BeatsThreshold = def.Generation.BeatsThreshold
	}
	if cfg.Generation.WordsPerBeat == 0 {
		cfg.Generation.WordsPerBeat = def.Generation.WordsPerBeat
	}
	if cfg.Generation.MaxExpansions == 0 {
		cfg.Generation.MaxExpansions = def.Generation.MaxExpansions
	}
	if cfg.Generation.ArchivistCadence == 0 {
		cfg.Generation.ArchivistCadence = def.Generation.ArchivistCadence
	}
	if cfg.Generation.EvaluationConcurrency == 0 {
		cfg.Generation.EvaluationConcurrency = def.Generation.EvaluationConcurrency
	}
	if cfg.RateLimit.Default.WindowSec == 0 {
		cfg.RateLimit.Default.WindowSec = def.RateLimit.Default.WindowSec
	}
	if cfg.RateLimit.Default.Max == 0 {
		cfg.RateLimit.Default.Max = def.RateLimit.Default.Max
	}
	if cfg.RateLimit.Expensive.WindowSec == 0 {
		cfg.RateLimit.Expensive.WindowSec = def.RateLimit.Expensive.WindowSec
	}
	if cfg.RateLimit.Expensive.Max == 0 {
		cfg.RateLimit.Expensive.Max = def.RateLimit.Expensive.Max
	}
	if cfg.Prompts.CacheTTLSec == 0 {
		cfg.Prompts.CacheTTLSec = def.Prompts.CacheTTLSec
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = def.LLM.Temperature
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = def.LLM.MaxTokens
	}
}
