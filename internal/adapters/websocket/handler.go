package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/application"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// Handler upgrades dashboard clients to WebSocket and keeps them registered
// with the hub for status/notification push. It expects to run behind the
// session auth middleware.
type Handler struct {
	logger         domain.Logger
	configProvider config.Provider
	hub            *Hub
	recalcService  *application.RecalculationService
}

// NewHandler creates a new dashboard WebSocket Handler.
func NewHandler(logger domain.Logger, cfgProvider config.Provider, hub *Hub, recalcService *application.RecalculationService) *Handler {
	return &Handler{
		logger:         logger,
		configProvider: cfgProvider,
		hub:            hub,
		recalcService:  recalcService,
	}
}

// ServeHTTP is the entry point for dashboard WebSocket upgrade requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connCtx, cancel := context.WithCancel(r.Context())

	var managed *Connection
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"json.v1"},
		OnPongReceived: func(ctx context.Context, payload []byte) {
			if managed != nil {
				managed.UpdateLastPongTime()
			}
		},
	})
	if err != nil {
		h.logger.Warn(r.Context(), "Dashboard WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err.Error())
		cancel()
		return
	}

	managed = NewConnection(connCtx, cancel, wsConn, r.RemoteAddr, h.logger, h.configProvider)
	h.hub.Register(managed)
	h.logger.Info(connCtx, "Dashboard client connected", "remote_addr", r.RemoteAddr)

	// New subscribers receive the current aggregate immediately, so the
	// indicator is right even when the job started before they connected.
	if payload, err := json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: eventRecalculationUpdate, Data: h.recalcService.Status()}); err == nil {
		if err := managed.WriteMessage(payload); err != nil {
			h.logger.Warn(connCtx, "Failed to send initial recalculation status", "remote_addr", r.RemoteAddr, "error", err.Error())
		}
	}

	defer func() {
		h.hub.Unregister(managed)
		managed.Close(websocket.StatusNormalClosure, "session ended")
		h.logger.Info(context.Background(), "Dashboard client disconnected", "remote_addr", r.RemoteAddr)
	}()

	// The dashboard only listens; the read loop exists to notice the close.
	for {
		if _, _, err := wsConn.Read(connCtx); err != nil {
			return
		}
	}
}
