package application

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/memcache"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/cachekeys"
)

// DetailResult wraps a single-entity read.
type DetailResult[T any] struct {
	Value     T
	FromCache bool
	Stale     bool
}

// DetailResource binds an entity-keyed detail cache to its backend fetcher.
// Entries are scoped to the session owner, matching the per-user data the
// backend returns.
type DetailResource[T any] struct {
	name     string
	store    *memcache.DetailStore[T]
	fetch    func(ctx context.Context, id string) (*T, error)
	logger   domain.Logger
	notifier domain.Notifier
}

// NewDetailResource creates a detail resource service.
func NewDetailResource[T any](
	name string,
	store *memcache.DetailStore[T],
	fetch func(ctx context.Context, id string) (*T, error),
	logger domain.Logger,
	notifier domain.Notifier,
) *DetailResource[T] {
	return &DetailResource[T]{
		name:     name,
		store:    store,
		fetch:    fetch,
		logger:   logger,
		notifier: notifier,
	}
}

// Store exposes the underlying cache store for invalidation fan-out wiring.
func (r *DetailResource[T]) Store() *memcache.DetailStore[T] {
	return r.store
}

// Get serves one entity, cache first. Fetch errors other than session-level
// ones resolve to the stale entry when available; a NotFound from the backend
// is returned as-is so the HTTP layer can answer 404.
func (r *DetailResource[T]) Get(ctx context.Context, id string) (DetailResult[T], error) {
	key := cachekeys.Detail(cacheOwner(ctx), id)

	if value, ok := r.store.Get(key); ok {
		return DetailResult[T]{Value: value, FromCache: true}, nil
	}

	value, err := r.fetch(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			return DetailResult[T]{}, err
		}
		if stale, ok := r.store.GetStale(key); ok {
			r.logger.Warn(ctx, "Detail fetch failed, serving stale entry", "resource", r.name, "id", id, "error", err.Error())
			r.notifier.Notify(ctx, domain.NotificationError, fmt.Sprintf("Could not refresh %s. Showing last known data.", r.name))
			return DetailResult[T]{Value: stale, FromCache: true, Stale: true}, nil
		}
		return DetailResult[T]{}, err
	}

	r.store.Set(key, *value)
	return DetailResult[T]{Value: *value}, nil
}

// SingleResult wraps an aggregate read.
type SingleResult[T any] struct {
	Value     T
	FromCache bool
	Stale     bool
}

// SingleResource binds a query-less aggregate (dashboard, settings) to its
// backend fetcher. The aggregate is computed per user, so the store holds one
// entry per session owner.
type SingleResource[T any] struct {
	name     string
	store    *memcache.DetailStore[T]
	fetch    func(ctx context.Context) (*T, error)
	logger   domain.Logger
	notifier domain.Notifier
}

// NewSingleResource creates an aggregate resource service.
func NewSingleResource[T any](
	name string,
	store *memcache.DetailStore[T],
	fetch func(ctx context.Context) (*T, error),
	logger domain.Logger,
	notifier domain.Notifier,
) *SingleResource[T] {
	return &SingleResource[T]{
		name:     name,
		store:    store,
		fetch:    fetch,
		logger:   logger,
		notifier: notifier,
	}
}

// Store exposes the underlying cache store for invalidation fan-out wiring.
func (r *SingleResource[T]) Store() *memcache.DetailStore[T] {
	return r.store
}

// Get serves the aggregate, cache first, falling back to the stale value on
// fetch failure.
func (r *SingleResource[T]) Get(ctx context.Context) (SingleResult[T], error) {
	key := cacheOwner(ctx)

	if value, ok := r.store.Get(key); ok {
		return SingleResult[T]{Value: value, FromCache: true}, nil
	}

	value, err := r.fetch(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			return SingleResult[T]{}, err
		}
		if stale, ok := r.store.GetStale(key); ok {
			r.logger.Warn(ctx, "Aggregate fetch failed, serving stale value", "resource", r.name, "error", err.Error())
			r.notifier.Notify(ctx, domain.NotificationError, fmt.Sprintf("Could not refresh %s. Showing last known data.", r.name))
			return SingleResult[T]{Value: stale, FromCache: true, Stale: true}, nil
		}
		return SingleResult[T]{}, err
	}

	r.store.Set(key, *value)
	return SingleResult[T]{Value: *value}, nil
}
