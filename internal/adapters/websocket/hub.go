package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/metrics"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// Hub is the registry of connected dashboard clients. Everything pushed to
// the dashboard (recalculation status, notifications) is fanned out here.
type Hub struct {
	logger domain.Logger

	mu    sync.RWMutex
	conns map[*Connection]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger domain.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[*Connection]struct{}),
	}
}

// Register adds a connection to the fan-out set.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	metrics.IncrementActiveDashboardConnections()
}

// Unregister removes a connection from the fan-out set.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	_, present := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()
	if present {
		metrics.DecrementActiveDashboardConnections()
	}
}

// Broadcast pushes a named event to every connected client. Marshal failures
// and per-connection write failures are logged, never propagated: a broken
// subscriber must not take the producer down.
func (h *Hub) Broadcast(ctx context.Context, event string, payload any) {
	envelope := struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: event, Data: payload}

	msg, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Error(ctx, "Failed to marshal broadcast event", "event", event, "error", err.Error())
		return
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(msg); err != nil {
			h.logger.Debug(ctx, "Broadcast skipped closed connection", "event", event, "remote_addr", conn.RemoteAddr())
		}
	}
}

// ConnectionCount reports the number of registered clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HubNotifier implements domain.Notifier by pushing notification events to
// every connected dashboard client.
type HubNotifier struct {
	hub    *Hub
	logger domain.Logger
}

// NewHubNotifier creates the hub-backed notifier.
func NewHubNotifier(hub *Hub, logger domain.Logger) *HubNotifier {
	return &HubNotifier{hub: hub, logger: logger}
}

// Notify delivers a transient, dismissible notification to the dashboard.
func (n *HubNotifier) Notify(ctx context.Context, level domain.NotificationLevel, message string) {
	notification := domain.Notification{
		ID:      uuid.NewString(),
		Level:   level,
		Message: message,
		At:      time.Now().UTC(),
	}
	n.logger.Info(ctx, "User notification emitted", "level", string(level), "message", message, "notification_id", notification.ID)
	n.hub.Broadcast(ctx, "notification", notification)
}
