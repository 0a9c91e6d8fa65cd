package application

import (
	"context"
	"sync"
	"time"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/metrics"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/safego"
)

// RecalculationService aggregates recalculation:update events into the status
// every dashboard indicator subscribes to. Counters are replaced per event,
// never merged. The completion notification is edge-triggered: it fires once
// on the transition to pending==0 and calculating==0 and must not refire while
// the job stays finished.
type RecalculationService struct {
	logger      domain.Logger
	notifier    domain.Notifier
	broadcaster domain.Broadcaster
	invalidator domain.RecipeDataInvalidator

	mu     sync.Mutex
	status domain.RecalculationStatus
	// armed is set once a job reports work in flight; the completion edge only
	// fires while armed, then disarms.
	armed bool
}

// NewRecalculationService creates the status aggregate service.
func NewRecalculationService(
	logger domain.Logger,
	notifier domain.Notifier,
	broadcaster domain.Broadcaster,
	invalidator domain.RecipeDataInvalidator,
) *RecalculationService {
	return &RecalculationService{
		logger:      logger,
		notifier:    notifier,
		broadcaster: broadcaster,
		invalidator: invalidator,
	}
}

// Apply folds one upstream event into the aggregate and performs the
// completion side effects when the job finishes: a one-shot notification plus
// a full recipe-data invalidation so cached pricing is refetched.
func (s *RecalculationService) Apply(ctx context.Context, upd domain.RecalculationUpdate) {
	s.mu.Lock()
	s.status.Pending = upd.Pending
	s.status.Calculating = len(upd.RecipeIDs)
	s.status.Error = upd.Errors

	inFlight := s.status.Pending + s.status.Calculating + s.status.Error
	if !s.armed && s.status.Pending > 0 {
		// A fresh job: the first report sizes the batch.
		s.status.Total = inFlight
	} else if inFlight > s.status.Total {
		s.status.Total = inFlight
	}
	if s.status.Pending > 0 {
		s.armed = true
	}

	finished := s.armed && s.status.Pending == 0 && s.status.Calculating == 0
	if finished {
		s.armed = false
	}
	snapshot := s.status
	s.mu.Unlock()

	metrics.IncrementRecalculationEvent()
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(ctx, "recalculation:update", snapshot)
	}

	if finished {
		s.logger.Info(ctx, "Recalculation job completed", "total", snapshot.Total, "errors", snapshot.Error)
		s.notifier.Notify(ctx, domain.NotificationSuccess, "Recalculation completed. Prices are up to date.")
		if s.invalidator != nil {
			// Derived pricing changed on the backend; every dependent cache
			// must refetch.
			s.invalidator.Invalidate(ctx, domain.InvalidateOptions{})
		}
	}
}

// Status returns the current aggregate snapshot.
func (s *RecalculationService) Status() domain.RecalculationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsRecalculating reports whether a job is in flight.
func (s *RecalculationService) IsRecalculating() bool {
	return s.Status().IsRecalculating()
}

// StartPollingFallback runs a background loop that polls the backend status
// endpoint whenever the live channel is not connected, so the indicator keeps
// moving even with the channel down. Runs until ctx is cancelled.
func (s *RecalculationService) StartPollingFallback(
	ctx context.Context,
	interval time.Duration,
	channelState func() domain.ChannelState,
	fetch func(ctx context.Context) (*domain.RecalculationUpdate, error),
) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	safego.Execute(ctx, s.logger, "RecalculationPollingFallback", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if channelState() == domain.ChannelConnected {
					continue
				}
				upd, err := fetch(ctx)
				if err != nil {
					s.logger.Warn(ctx, "Recalculation status poll failed", "error", err.Error())
					continue
				}
				s.Apply(ctx, *upd)
			}
		}
	})
}
