package ratelimit

import (
	"context"
	"sync"
)

type hit struct {
	scoreMs int64
	member  string
}

type bucket struct {
	hits        []hit
	expiresAtMs int64
}

// MemoryStore is the in-process Store used by tests and single-node
// deployments. It implements the same four-op script as the shared store:
// drop, count, deny-or-add, refresh TTL, all under one lock.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: map[string]*bucket{}}
}

func (s *MemoryStore) Admit(_ context.Context, key, member string, nowMs, windowMs int64, limit int, ttlSec int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || b.expiresAtMs <= nowMs {
		b = &bucket{}
		s.buckets[key] = b
	}

	// 1. drop members outside the window
	cutoff := nowMs - windowMs
	kept := b.hits[:0]
	for _, h := range b.hits {
		if h.scoreMs >= cutoff {
			kept = append(kept, h)
		}
	}
	b.hits = kept

	// 2. count, 3. deny at the limit
	count := len(b.hits)
	if count >= limit {
		return count, false, nil
	}

	// 4. add and refresh TTL
	b.hits = append(b.hits, hit{scoreMs: nowMs, member: member})
	b.expiresAtMs = nowMs + int64(ttlSec)*1000
	return count, true, nil
}
