package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/polymirror/engine/internal/model"
)

// MemoryStore is an in-process fingerprint store.
type MemoryStore struct {
	mu sync.Mutex
	m  map[model.Fingerprint]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[model.Fingerprint]time.Time)}
}

// TryAdmit inserts the fingerprint if absent.
func (s *MemoryStore) TryAdmit(ctx context.Context, fp model.Fingerprint, processedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[fp]; ok {
		return false, nil
	}
	s.m[fp] = processedAt
	return true, nil
}

// EvictOlderThan deletes fingerprints processed before cutoff.
func (s *MemoryStore) EvictOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for fp, at := range s.m {
		if at.Before(cutoff) {
			delete(s.m, fp)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored fingerprints.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
