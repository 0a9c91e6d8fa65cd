package http

import (
	"encoding/json"
	"net/http"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// RuntimeConfigHandler exposes the deployment's public settings so clients can
// pick them up at runtime instead of baking them in at build time. The values
// are non-secret and change only on redeploy, hence the long cache window with
// stale-while-revalidate so a deploy eventually propagates without a hard miss.
type RuntimeConfigHandler struct {
	logger         domain.Logger
	configProvider config.Provider
}

// NewRuntimeConfigHandler creates the handler.
func NewRuntimeConfigHandler(logger domain.Logger, cfgProvider config.Provider) *RuntimeConfigHandler {
	return &RuntimeConfigHandler{logger: logger, configProvider: cfgProvider}
}

func (h *RuntimeConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600, stale-while-revalidate=86400")
	if err := json.NewEncoder(w).Encode(h.configProvider.Get().Public); err != nil {
		h.logger.Error(r.Context(), "Failed to encode runtime config", "error", err.Error())
	}
}
