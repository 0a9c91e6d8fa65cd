package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/backend"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/memcache"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/metrics"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/cachekeys"
)

// ListResult is what a list read hands to the HTTP layer. A read never fails
// past this boundary except for session-level problems: on a fetch error the
// prior cache contents (if any) are served with Stale set, and a notification
// has already been emitted.
type ListResult[T any] struct {
	Items      []T
	Pagination *domain.PaginationInfo
	// FromCache reports that no backend call was made for this read.
	FromCache bool
	// Stale reports that a backend refresh failed and the data shown is the
	// last known state.
	Stale bool
}

// ListResource binds one list-shaped resource kind to its cache store and
// backend fetcher, implementing the read-or-fetch and optimistic-mutation
// flows.
type ListResource[T any] struct {
	name     string
	store    *memcache.Store[T]
	fetch    func(ctx context.Context, q backend.ListQuery) ([]T, *domain.PaginationInfo, error)
	remove   func(ctx context.Context, id string) error
	logger   domain.Logger
	notifier domain.Notifier

	// onDeleted runs after a successful backend delete, for cross-resource
	// invalidation fan-out.
	onDeleted func(ctx context.Context, id string)

	// generations tags in-flight fetches per key so a superseded response
	// cannot overwrite newer state when fetches race.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewListResource creates a list resource service.
func NewListResource[T any](
	name string,
	store *memcache.Store[T],
	fetch func(ctx context.Context, q backend.ListQuery) ([]T, *domain.PaginationInfo, error),
	remove func(ctx context.Context, id string) error,
	logger domain.Logger,
	notifier domain.Notifier,
) *ListResource[T] {
	return &ListResource[T]{
		name:        name,
		store:       store,
		fetch:       fetch,
		remove:      remove,
		logger:      logger,
		notifier:    notifier,
		generations: make(map[string]uint64),
	}
}

// Store exposes the underlying cache store for invalidation fan-out wiring.
func (r *ListResource[T]) Store() *memcache.Store[T] {
	return r.store
}

// SetOnDeleted registers the cross-resource invalidation hook.
func (r *ListResource[T]) SetOnDeleted(fn func(ctx context.Context, id string)) {
	r.onDeleted = fn
}

func (r *ListResource[T]) nextGeneration(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[key]++
	return r.generations[key]
}

func (r *ListResource[T]) isCurrentGeneration(key string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[key] == gen
}

// List serves one page: a fresh cache hit short-circuits the network entirely;
// otherwise the backend is fetched and the store repopulated. The only error
// returned is a session-level one (ErrSessionInvalid), which the HTTP layer
// escalates to a sign-in redirect.
func (r *ListResource[T]) List(ctx context.Context, q backend.ListQuery) (ListResult[T], error) {
	key := cachekeys.List(cacheOwner(ctx), q.Search, q.Page)

	if items, pagination, ok := r.store.Get(key); ok {
		return ListResult[T]{Items: items, Pagination: pagination, FromCache: true}, nil
	}

	gen := r.nextGeneration(key)
	items, pagination, err := r.fetch(ctx, q)
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			return ListResult[T]{}, err
		}
		r.logger.Warn(ctx, "List fetch failed, keeping prior cache state", "resource", r.name, "key", key, "error", err.Error())
		r.notifier.Notify(ctx, domain.NotificationError, fmt.Sprintf("Could not refresh %s. Showing last known data.", r.name))
		if staleItems, stalePagination, ok := r.store.GetStale(key); ok {
			return ListResult[T]{Items: staleItems, Pagination: stalePagination, FromCache: true, Stale: true}, nil
		}
		return ListResult[T]{Items: []T{}, Stale: true}, nil
	}

	// A response from a superseded fetch is discarded rather than written,
	// so late arrivals cannot clobber newer state.
	if r.isCurrentGeneration(key, gen) {
		r.store.Set(key, items, pagination)
	} else {
		r.logger.Debug(ctx, "Discarding superseded fetch response", "resource", r.name, "key", key, "generation", gen)
	}
	return ListResult[T]{Items: items, Pagination: pagination}, nil
}

// Delete applies the optimistic removal to the cached page at q's key, then
// issues the backend delete. Success emits a confirmation; failure emits the
// backend's most specific message and issues a corrective refetch so the cache
// converges back to server truth (the optimistic removal is overwritten, not
// reverted).
func (r *ListResource[T]) Delete(ctx context.Context, id string, q backend.ListQuery) error {
	if r.remove == nil {
		return fmt.Errorf("resource %s does not support deletion", r.name)
	}
	key := cachekeys.List(cacheOwner(ctx), q.Search, q.Page)

	r.store.OptimisticDelete(id, key)

	if err := r.remove(ctx, id); err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			// The delete never reached the backend, so the optimistic removal
			// must not linger as fresh data for the key's TTL.
			r.store.Invalidate(key)
			return err
		}
		r.logger.Warn(ctx, "Backend delete failed, issuing corrective refetch", "resource", r.name, "id", id, "error", err.Error())
		r.notifier.Notify(ctx, domain.NotificationError, deleteFailureMessage(r.name, err))
		r.Refetch(ctx, q)
		return err
	}

	r.notifier.Notify(ctx, domain.NotificationSuccess, fmt.Sprintf("Deleted from %s.", r.name))
	if r.onDeleted != nil {
		r.onDeleted(ctx, id)
	}
	return nil
}

// Refetch bypasses the cache and reconciles the store with server truth.
func (r *ListResource[T]) Refetch(ctx context.Context, q backend.ListQuery) {
	key := cachekeys.List(cacheOwner(ctx), q.Search, q.Page)
	metrics.IncrementCorrectiveRefetch(r.name)

	gen := r.nextGeneration(key)
	items, pagination, err := r.fetch(ctx, q)
	if err != nil {
		// The entry is dropped so the next read goes to the backend instead
		// of serving the optimistically mutated page as truth.
		r.logger.Error(ctx, "Corrective refetch failed, invalidating key", "resource", r.name, "key", key, "error", err.Error())
		r.store.Invalidate(key)
		return
	}
	if r.isCurrentGeneration(key, gen) {
		r.store.Set(key, items, pagination)
	}
}

// deleteFailureMessage prefers the backend's own message and falls back to a
// generic one.
func deleteFailureMessage(resource string, err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fmt.Sprintf("Could not delete from %s. The list has been restored.", resource)
}
