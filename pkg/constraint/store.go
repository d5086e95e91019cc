// Package constraint holds the per-run continuity state: the keyed
// constraint list the Archivist curates and the raw fact log it consumes.
package constraint

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// Store is the append-only list of keyed constraints for one run. Seed
// constraints are installed once after genesis and can never be replaced;
// mutable constraints follow last-writer-wins by timestamp.
type Store struct {
	mu          sync.RWMutex
	constraints []models.KeyConstraint
	index       map[string]int
	seeded      bool
	logger      *slog.Logger
}

// NewStore returns an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		index:  map[string]int{},
		logger: logger,
	}
}

// AddSeed installs the immutable seed constraints. The call is idempotent:
// if any seed constraint is already present the whole batch is ignored.
func (s *Store) AddSeed(seeds []models.KeyConstraint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seeded {
		s.logger.Debug("Seed constraints already installed, ignoring", "count", len(seeds))
		return
	}
	for _, c := range seeds {
		if _, ok := s.index[c.Key]; ok {
			s.logger.Debug("Seed constraint key already present, ignoring batch", "key", c.Key)
			return
		}
	}
	for _, c := range seeds {
		c.Immutable = true
		c.SceneNumber = 0
		s.index[c.Key] = len(s.constraints)
		s.constraints = append(s.constraints, c)
	}
	s.seeded = true
}

// Merge folds proposed constraints into the store. Proposals against an
// immutable key are dropped; mutable keys are replaced only when the
// proposal is strictly newer; unknown keys are appended.
func (s *Store) Merge(proposed []models.KeyConstraint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range proposed {
		p.Immutable = false
		i, ok := s.index[p.Key]
		if !ok {
			s.index[p.Key] = len(s.constraints)
			s.constraints = append(s.constraints, p)
			continue
		}
		existing := s.constraints[i]
		if existing.Immutable {
			s.logger.Warn("Dropping proposed change to immutable constraint", "key", p.Key)
			continue
		}
		if p.Timestamp.After(existing.Timestamp) {
			s.constraints[i] = p
		}
	}
}

// Snapshot returns a copy of the constraints in insertion order.
func (s *Store) Snapshot() []models.KeyConstraint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.KeyConstraint, len(s.constraints))
	copy(out, s.constraints)
	return out
}

// Restore replaces the store contents from a snapshot.
func (s *Store) Restore(constraints []models.KeyConstraint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constraints = make([]models.KeyConstraint, len(constraints))
	copy(s.constraints, constraints)
	s.index = make(map[string]int, len(constraints))
	s.seeded = false
	for i, c := range s.constraints {
		s.index[c.Key] = i
		if c.Immutable {
			s.seeded = true
		}
	}
}

// Len reports the number of stored constraints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.constraints)
}

// RenderBlock serializes constraints for prompt injection, one line per
// constraint, immutable entries tagged.
func RenderBlock(constraints []models.KeyConstraint) string {
	var b strings.Builder
	for _, c := range constraints {
		if c.Immutable {
			fmt.Fprintf(&b, "- %s: %s [IMMUTABLE]\n", c.Key, c.Value)
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", c.Key, c.Value)
		}
	}
	return b.String()
}
