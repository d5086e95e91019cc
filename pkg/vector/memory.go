package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is the in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []Document
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Store(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// same id replaces in place
	for i, d := range s.docs {
		if d.ID == doc.ID && d.ProjectID == doc.ProjectID {
			s.docs[i] = doc
			return nil
		}
	}
	s.docs = append(s.docs, doc)
	return nil
}

func (s *MemoryStore) Search(_ context.Context, projectID, kind string, query []float32, limit int, minScore float64) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Result
	for _, d := range s.docs {
		if d.ProjectID != projectID || d.Kind != kind {
			continue
		}
		score := Cosine(query, d.Embedding)
		if score >= minScore {
			results = append(results, Result{Document: d, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) Scroll(_ context.Context, projectID, kind string, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for _, d := range s.docs {
		if d.ProjectID != projectID || d.Kind != kind {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Cosine computes cosine similarity; mismatched or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
