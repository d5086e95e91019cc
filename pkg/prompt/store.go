// Package prompt compiles agent prompts from a registry with a TTL cache,
// falling back to baked-in templates when the registry is unreachable or
// has no entry for an agent.
package prompt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"text/template"
	"time"
)

// Fetcher retrieves a raw template by name from a prompt registry.
// Implementations return an error when the registry has no entry.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// DefaultCacheTTL bounds how long a fetched template is reused.
const DefaultCacheTTL = 5 * time.Minute

type cached struct {
	text      string
	fetchedAt time.Time
}

// Store compiles templates with {{.Var}} substitution. Missing variables
// render as zero values rather than failing the compile.
type Store struct {
	fetcher Fetcher
	ttl     time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]cached
	now   func() time.Time
}

// NewStore builds a store. fetcher may be nil; then only fallbacks serve.
func NewStore(fetcher Fetcher, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		fetcher: fetcher,
		ttl:     ttl,
		logger:  logger,
		cache:   map[string]cached{},
		now:     time.Now,
	}
}

// Compile renders the named template with vars. Registry lookups are
// cached for the TTL; on miss or error the fallback template is used.
func (s *Store) Compile(ctx context.Context, name string, vars map[string]any, fallback string) (string, error) {
	text := s.lookup(ctx, name)
	if text == "" {
		text = fallback
	}
	if text == "" {
		return "", fmt.Errorf("no template available for %q", name)
	}

	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}
	return buf.String(), nil
}

func (s *Store) lookup(ctx context.Context, name string) string {
	if s.fetcher == nil {
		return ""
	}

	s.mu.Lock()
	entry, ok := s.cache[name]
	fresh := ok && s.now().Sub(entry.fetchedAt) < s.ttl
	s.mu.Unlock()
	if fresh {
		return entry.text
	}

	text, err := s.fetcher.Fetch(ctx, name)
	if err != nil {
		s.logger.Debug("Prompt registry miss, using fallback", "name", name, "error", err)
		// keep serving a stale entry over nothing
		if ok {
			return entry.text
		}
		return ""
	}

	s.mu.Lock()
	s.cache[name] = cached{text: text, fetchedAt: s.now()}
	s.mu.Unlock()
	return text
}
