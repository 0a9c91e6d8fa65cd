package application

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// SubscriptionService is the feature-gate cache, partitioned per session owner
// since each user carries their own plan. Feature sets have no TTL; they are
// refreshed only by explicit invalidation (billing webhook, session teardown).
// Concurrent first reads for the same owner share one network round trip via
// singleflight.
type SubscriptionService struct {
	logger domain.Logger
	fetch  func(ctx context.Context) (*domain.FeatureSet, error)

	sf singleflight.Group

	mu       sync.RWMutex
	features map[string]*domain.FeatureSet
}

// NewSubscriptionService creates the feature cache around the given fetcher.
func NewSubscriptionService(logger domain.Logger, fetch func(ctx context.Context) (*domain.FeatureSet, error)) *SubscriptionService {
	return &SubscriptionService{
		logger:   logger,
		fetch:    fetch,
		features: make(map[string]*domain.FeatureSet),
	}
}

// Features returns the session owner's cached feature set, fetching it once on
// first use no matter how many callers arrive concurrently.
func (s *SubscriptionService) Features(ctx context.Context) (*domain.FeatureSet, error) {
	owner := cacheOwner(ctx)

	s.mu.RLock()
	cached := s.features[owner]
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	// The flight outlives the first caller's request: coalesced callers must
	// not fail because the request that happened to start the fetch was
	// cancelled.
	flightCtx := context.WithoutCancel(ctx)

	v, err, _ := s.sf.Do(owner, func() (any, error) {
		// Re-check under the flight: a racing caller may have populated the
		// cache between the read above and the flight starting.
		s.mu.RLock()
		if fs := s.features[owner]; fs != nil {
			defer s.mu.RUnlock()
			return fs, nil
		}
		s.mu.RUnlock()

		fs, err := s.fetch(flightCtx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.features[owner] = fs
		s.mu.Unlock()
		return fs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.FeatureSet), nil
}

// Invalidate drops every cached feature set so the next read refetches. The
// billing webhook carries no session, so all owners are cleared.
func (s *SubscriptionService) Invalidate() {
	s.mu.Lock()
	s.features = make(map[string]*domain.FeatureSet)
	s.mu.Unlock()
}
