package websocket

import (
	"context"
	"net/http"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// Router registers the dashboard WebSocket endpoint behind the provided
// middleware chain.
type Router struct {
	logger         domain.Logger
	configProvider config.Provider
	wsHandler      http.Handler
}

// NewRouter creates a new WebSocket router.
func NewRouter(logger domain.Logger, cfgProvider config.Provider, wsHandler *Handler) *Router {
	return &Router{
		logger:         logger,
		configProvider: cfgProvider,
		wsHandler:      wsHandler,
	}
}

// RegisterRoutes sets up the WebSocket endpoint with the necessary middleware.
func (r *Router) RegisterRoutes(ctx context.Context, mux *http.ServeMux, middlewares ...func(http.Handler) http.Handler) {
	handler := r.wsHandler
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	mux.Handle("GET /ws", handler)
	r.logger.Info(ctx, "Dashboard WebSocket endpoint registered", "pattern", "GET /ws")
}
