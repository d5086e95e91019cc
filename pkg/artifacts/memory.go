package artifacts

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps artifacts in process, for tests and single-process
// runs. Values round-trip through JSON so memory and Postgres behave
// identically.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // runID -> kind -> document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, runID, kind string, value any) error {
	doc, err := marshalSnake(kind, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[runID] == nil {
		s.data[runID] = make(map[string][]byte)
	}
	s.data[runID][kind] = doc
	return nil
}

func (s *MemoryStore) Load(_ context.Context, runID, kind string, out any) error {
	s.mu.RLock()
	doc, ok := s.data[runID][kind]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s/%s: %w", runID, kind, ErrNotFound)
	}
	return unmarshalCamel(kind, doc, out)
}

func (s *MemoryStore) ListRuns(_ context.Context, kind string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var runs []string
	for runID, kinds := range s.data {
		if _, ok := kinds[kind]; ok {
			runs = append(runs, runID)
		}
	}
	sort.Strings(runs)
	return runs, nil
}

func (s *MemoryStore) Delete(_ context.Context, runID, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[runID], kind)
	return nil
}
