// Package memcache provides the in-process TTL cache stores backing the
// resource services. Each resource kind owns one store instance; entries are
// keyed by query signature and staleness is evaluated lazily at read time,
// never by a background timer.
package memcache

import (
	"sync"
	"time"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/metrics"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// DefaultMaxEntries bounds the number of distinct query signatures a store
// retains. The key space is otherwise unbounded (every distinct search string
// mints a key), so exceeding the bound evicts the oldest-stamped entry.
const DefaultMaxEntries = 256

type listEntry[T any] struct {
	items      []T
	pagination *domain.PaginationInfo
	storedAt   time.Time
}

// Store caches pages of T keyed by query signature. At most one entry exists
// per key; Set replaces wholesale and never merges partial data.
type Store[T any] struct {
	name       string
	ttl        time.Duration
	maxEntries int
	idOf       func(T) string

	mu      sync.RWMutex
	entries map[string]*listEntry[T]

	now func() time.Time // injectable for tests
}

// NewStore creates a list store. name labels metrics, ttl is the freshness
// window, maxEntries bounds the key space (DefaultMaxEntries when <= 0) and
// idOf extracts the row identifier used by OptimisticDelete.
func NewStore[T any](name string, ttl time.Duration, maxEntries int, idOf func(T) string) *Store[T] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store[T]{
		name:       name,
		ttl:        ttl,
		maxEntries: maxEntries,
		idOf:       idOf,
		entries:    make(map[string]*listEntry[T]),
		now:        time.Now,
	}
}

// Name returns the store's metric label.
func (s *Store[T]) Name() string {
	return s.name
}

// Get returns the cached page for key if present and not stale. A stale entry
// is reported as absent; the caller must treat absent as "needs fetch". The
// stale entry itself is left in place so it can still serve as fallback data
// when a refetch fails (see GetStale).
func (s *Store[T]) Get(key string) ([]T, *domain.PaginationInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entries[key]
	if !ok || s.now().Sub(ent.storedAt) > s.ttl {
		metrics.IncrementCacheMiss(s.name)
		return nil, nil, false
	}
	metrics.IncrementCacheHit(s.name)
	return ent.items, ent.pagination, true
}

// GetStale returns the cached page for key regardless of freshness. Used on
// the read-failure path, where prior cache contents are kept and served.
func (s *Store[T]) GetStale(key string) ([]T, *domain.PaginationInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entries[key]
	if !ok {
		return nil, nil, false
	}
	return ent.items, ent.pagination, true
}

// Set replaces any existing entry for key, stamping the current time.
func (s *Store[T]) Set(key string, items []T, pagination *domain.PaginationInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldestLocked()
	}
	s.entries[key] = &listEntry[T]{
		items:      items,
		pagination: pagination,
		storedAt:   s.now(),
	}
}

// evictOldestLocked removes the entry with the oldest timestamp. Caller holds mu.
func (s *Store[T]) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		first     = true
	)
	for key, ent := range s.entries {
		if first || ent.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = ent.storedAt
			first = false
		}
	}
	if !first {
		delete(s.entries, oldestKey)
		metrics.IncrementCacheEviction(s.name)
	}
}

// Invalidate removes only the entry for key, leaving others untouched.
func (s *Store[T]) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		metrics.IncrementCacheInvalidation(s.name, 1)
	}
}

// InvalidateAll clears the entire store.
func (s *Store[T]) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.entries); n > 0 {
		s.entries = make(map[string]*listEntry[T])
		metrics.IncrementCacheInvalidation(s.name, n)
	}
}

// OptimisticDelete synchronously removes the row with the given id from the
// cached page at key and decrements its pagination total, ahead of the backend
// delete resolving. A no-op when key is absent: there is nothing to update
// visually and no new key must be created. Returns whether a row was removed.
func (s *Store[T]) OptimisticDelete(id, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return false
	}

	filtered := make([]T, 0, len(ent.items))
	removed := false
	for _, item := range ent.items {
		if !removed && s.idOf(item) == id {
			removed = true
			continue
		}
		filtered = append(filtered, item)
	}
	if !removed {
		return false
	}

	ent.items = filtered
	if ent.pagination != nil && ent.pagination.Total > 0 {
		// The total moves together with the filtered list, in the same
		// critical section, so list and count never disagree.
		ent.pagination.Total--
	}
	metrics.IncrementOptimisticDelete(s.name)
	return true
}

// Len reports the number of cached keys. Intended for diagnostics.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
