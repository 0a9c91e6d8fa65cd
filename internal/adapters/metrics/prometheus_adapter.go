package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalko_edge_cache_hits_total",
			Help: "Number of cache reads served without a backend call, per store.",
		},
		[]string{"store"},
	)

	cacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalko_edge_cache_misses_total",
			Help: "Number of cache reads that required a backend fetch (absent or stale), per store.",
		},
		[]string{"store"},
	)

	cacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalko_edge_cache_invalidations_total",
			Help: "Number of entries removed by explicit invalidation, per store.",
		},
		[]string{"store"},
	)

	cacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalko_edge_cache_evictions_total",
			Help: "Number of entries evicted because a store exceeded its entry bound, per store.",
		},
		[]string{"store"},
	)

	optimisticDeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalko_edge_optimistic_deletes_total",
			Help: "Number of optimistic row removals applied ahead of backend confirmation, per store.",
		},
		[]string{"store"},
	)

	correctiveRefetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalko_edge_corrective_refetches_total",
			Help: "Number of refetches issued to reconcile cache state after a failed mutation, per store.",
		},
		[]string{"store"},
	)

	channelReconnectAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kalko_edge_channel_reconnect_attempts_total",
			Help: "Number of reconnection attempts made by the recalculation channel.",
		},
	)

	channelState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kalko_edge_channel_state",
			Help: "Current recalculation channel state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting).",
		},
	)

	recalculationEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kalko_edge_recalculation_events_total",
			Help: "Number of recalculation:update events applied to the status store.",
		},
	)

	activeDashboardConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kalko_edge_active_dashboard_connections",
			Help: "Number of active dashboard WebSocket connections.",
		},
	)

	webhookForwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalko_edge_webhook_forwards_total",
			Help: "Number of payment-provider webhook deliveries relayed to the backend, by outcome.",
		},
		[]string{"outcome"},
	)
)

// IncrementCacheHit records a cache read served from a fresh entry.
func IncrementCacheHit(store string) {
	cacheHitsTotal.WithLabelValues(store).Inc()
}

// IncrementCacheMiss records a cache read that found no fresh entry.
func IncrementCacheMiss(store string) {
	cacheMissesTotal.WithLabelValues(store).Inc()
}

// IncrementCacheInvalidation records explicitly invalidated entries.
func IncrementCacheInvalidation(store string, count int) {
	cacheInvalidationsTotal.WithLabelValues(store).Add(float64(count))
}

// IncrementCacheEviction records a bound-triggered eviction.
func IncrementCacheEviction(store string) {
	cacheEvictionsTotal.WithLabelValues(store).Inc()
}

// IncrementOptimisticDelete records an optimistic row removal.
func IncrementOptimisticDelete(store string) {
	optimisticDeletesTotal.WithLabelValues(store).Inc()
}

// IncrementCorrectiveRefetch records a reconciliation refetch after a failed mutation.
func IncrementCorrectiveRefetch(store string) {
	correctiveRefetchesTotal.WithLabelValues(store).Inc()
}

// IncrementChannelReconnectAttempt records one reconnection attempt.
func IncrementChannelReconnectAttempt() {
	channelReconnectAttemptsTotal.Inc()
}

// SetChannelState publishes the channel state machine's current state.
func SetChannelState(state int32) {
	channelState.Set(float64(state))
}

// IncrementRecalculationEvent records an applied recalculation:update event.
func IncrementRecalculationEvent() {
	recalculationEventsTotal.Inc()
}

// IncrementActiveDashboardConnections increments the active connections gauge.
func IncrementActiveDashboardConnections() {
	activeDashboardConnections.Inc()
}

// DecrementActiveDashboardConnections decrements the active connections gauge.
func DecrementActiveDashboardConnections() {
	activeDashboardConnections.Dec()
}

// IncrementWebhookForward records a relayed webhook delivery by outcome
// ("success", "upstream_error", "relay_failure").
func IncrementWebhookForward(outcome string) {
	webhookForwardsTotal.WithLabelValues(outcome).Inc()
}
