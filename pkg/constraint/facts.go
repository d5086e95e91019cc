package constraint

import (
	"sync"

	"github.com/IShalkin/manoe-sub005/pkg/models"
)

// FactLog is the append-only list of raw facts for one run. The Archivist
// consumes the suffix added since its previous pass.
type FactLog struct {
	mu    sync.RWMutex
	facts []models.RawFact
}

// NewFactLog returns an empty log.
func NewFactLog() *FactLog {
	return &FactLog{}
}

// Append adds facts to the log.
func (l *FactLog) Append(facts ...models.RawFact) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.facts = append(l.facts, facts...)
}

// Since returns a copy of every fact observed after the given scene.
func (l *FactLog) Since(scene int) []models.RawFact {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.RawFact
	for _, f := range l.facts {
		if f.SceneNumber > scene {
			out = append(out, f)
		}
	}
	return out
}

// All returns a copy of the full log.
func (l *FactLog) All() []models.RawFact {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.RawFact, len(l.facts))
	copy(out, l.facts)
	return out
}

// Restore replaces the log contents from a snapshot.
func (l *FactLog) Restore(facts []models.RawFact) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.facts = make([]models.RawFact, len(facts))
	copy(l.facts, facts)
}

// Len reports the number of stored facts.
func (l *FactLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.facts)
}
