package memcache

import (
	"sync"
	"time"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/metrics"
)

type detailEntry[T any] struct {
	value    T
	storedAt time.Time
}

// DetailStore caches single values by key: owner-scoped entity ids for detail
// reads, or the owner alone for per-user aggregates. Same get/set/invalidate
// contract as Store, without pagination.
type DetailStore[T any] struct {
	name string
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]*detailEntry[T]

	now func() time.Time
}

// NewDetailStore creates a detail store for one entity kind.
func NewDetailStore[T any](name string, ttl time.Duration) *DetailStore[T] {
	return &DetailStore[T]{
		name:    name,
		ttl:     ttl,
		entries: make(map[string]*detailEntry[T]),
		now:     time.Now,
	}
}

// Name returns the store's metric label.
func (s *DetailStore[T]) Name() string {
	return s.name
}

// Get returns the cached entity if present and not stale.
func (s *DetailStore[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entries[id]
	if !ok || s.now().Sub(ent.storedAt) > s.ttl {
		var zero T
		metrics.IncrementCacheMiss(s.name)
		return zero, false
	}
	metrics.IncrementCacheHit(s.name)
	return ent.value, true
}

// GetStale returns the cached entity regardless of freshness.
func (s *DetailStore[T]) GetStale(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	return ent.value, true
}

// Set replaces any existing entry for id, stamping the current time.
func (s *DetailStore[T]) Set(id string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = &detailEntry[T]{value: value, storedAt: s.now()}
}

// Invalidate removes only the entry for id.
func (s *DetailStore[T]) Invalidate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; ok {
		delete(s.entries, id)
		metrics.IncrementCacheInvalidation(s.name, 1)
	}
}

// InvalidateMatching removes every entry whose key satisfies the predicate.
// Used to clear one entity across all owner partitions.
func (s *DetailStore[T]) InvalidateMatching(match func(key string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.entries {
		if match(key) {
			delete(s.entries, key)
			n++
		}
	}
	if n > 0 {
		metrics.IncrementCacheInvalidation(s.name, n)
	}
}

// InvalidateAll clears every cached entity.
func (s *DetailStore[T]) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.entries); n > 0 {
		s.entries = make(map[string]*detailEntry[T])
		metrics.IncrementCacheInvalidation(s.name, n)
	}
}
