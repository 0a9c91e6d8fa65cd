// Package http holds the edge service's HTTP handlers: the cache-backed
// resource reads the dashboard issues, the webhook ingress proxy, and the
// runtime config endpoint.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/backend"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/application"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// listMeta tells the dashboard where its data came from.
type listMeta struct {
	FromCache bool `json:"fromCache"`
	Stale     bool `json:"stale,omitempty"`
}

type listResponse struct {
	Data       any                    `json:"data"`
	Pagination *domain.PaginationInfo `json:"pagination,omitempty"`
	Meta       listMeta               `json:"meta"`
}

type detailResponse struct {
	Data any      `json:"data"`
	Meta listMeta `json:"meta"`
}

// ResourceHandlers serves the dashboard's data reads and mutations.
type ResourceHandlers struct {
	logger         domain.Logger
	configProvider config.Provider
	resources      *application.ResourceService
	subscriptions  *application.SubscriptionService
	recalculation  *application.RecalculationService
}

// NewResourceHandlers creates the handler set.
func NewResourceHandlers(
	logger domain.Logger,
	cfgProvider config.Provider,
	resources *application.ResourceService,
	subscriptions *application.SubscriptionService,
	recalculation *application.RecalculationService,
) *ResourceHandlers {
	return &ResourceHandlers{
		logger:         logger,
		configProvider: cfgProvider,
		resources:      resources,
		subscriptions:  subscriptions,
		recalculation:  recalculation,
	}
}

// RegisterRoutes wires every resource endpoint onto the mux.
func (h *ResourceHandlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/ingredients", h.listIngredients)
	mux.HandleFunc("DELETE /v1/ingredients/{id}", h.deleteIngredient)
	mux.HandleFunc("GET /v1/recipes", h.listRecipes)
	mux.HandleFunc("GET /v1/recipes/{id}", h.getRecipe)
	mux.HandleFunc("DELETE /v1/recipes/{id}", h.deleteRecipe)
	mux.HandleFunc("GET /v1/recipes-for-orders", h.listRecipesForOrders)
	mux.HandleFunc("GET /v1/dashboard", h.getDashboard)
	mux.HandleFunc("GET /v1/costs-settings", h.getCostsSettings)
	mux.HandleFunc("GET /v1/recalculation-status", h.getRecalculationStatus)
	mux.HandleFunc("GET /v1/subscription/features", h.getFeatures)
}

func parseListQuery(r *http.Request) backend.ListQuery {
	q := backend.ListQuery{
		Search: r.URL.Query().Get("search"),
		Page:   1,
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && page > 0 {
		q.Page = page
	}
	if size, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && size > 0 {
		q.PageSize = size
	}
	return q
}

func (h *ResourceHandlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error(r.Context(), "Failed to encode response", "error", err.Error())
	}
}

// writeSessionError answers the 401 escalation path: the session is broken,
// the dashboard must navigate to sign-in.
func (h *ResourceHandlers) writeSessionError(w http.ResponseWriter) {
	domain.NewErrorResponse(domain.ErrUnauthorized, "Session is invalid or expired.", "").
		WithRedirect(h.configProvider.Get().Auth.SignInPath).
		WriteJSON(w, http.StatusUnauthorized)
}

func (h *ResourceHandlers) listIngredients(w http.ResponseWriter, r *http.Request) {
	result, err := h.resources.Ingredients.List(r.Context(), parseListQuery(r))
	if err != nil {
		h.writeSessionError(w)
		return
	}
	h.writeJSON(w, r, http.StatusOK, listResponse{
		Data:       result.Items,
		Pagination: result.Pagination,
		Meta:       listMeta{FromCache: result.FromCache, Stale: result.Stale},
	})
}

func (h *ResourceHandlers) deleteIngredient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		domain.NewErrorResponse(domain.ErrBadRequest, "Missing ingredient id.", "").WriteJSON(w, http.StatusBadRequest)
		return
	}

	err := h.resources.Ingredients.Delete(r.Context(), id, parseListQuery(r))
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			h.writeSessionError(w)
			return
		}
		// The cache was already reconciled and the user notified; the HTTP
		// status mirrors the backend outcome for the caller's benefit.
		status, message := mutationFailureStatus(err)
		domain.NewErrorResponse(domain.ErrUpstreamUnavailable, message, "").WriteJSON(w, status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ResourceHandlers) listRecipes(w http.ResponseWriter, r *http.Request) {
	result, err := h.resources.Recipes.List(r.Context(), parseListQuery(r))
	if err != nil {
		h.writeSessionError(w)
		return
	}
	h.writeJSON(w, r, http.StatusOK, listResponse{
		Data:       result.Items,
		Pagination: result.Pagination,
		Meta:       listMeta{FromCache: result.FromCache, Stale: result.Stale},
	})
}

func (h *ResourceHandlers) getRecipe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := h.resources.RecipeDetails.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			h.writeSessionError(w)
			return
		}
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			domain.NewErrorResponse(domain.ErrNotFound, "Recipe not found.", "").WriteJSON(w, http.StatusNotFound)
			return
		}
		domain.NewErrorResponse(domain.ErrUpstreamUnavailable, "Could not load recipe.", "").WriteJSON(w, http.StatusBadGateway)
		return
	}
	h.writeJSON(w, r, http.StatusOK, detailResponse{
		Data: result.Value,
		Meta: listMeta{FromCache: result.FromCache, Stale: result.Stale},
	})
}

func (h *ResourceHandlers) deleteRecipe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		domain.NewErrorResponse(domain.ErrBadRequest, "Missing recipe id.", "").WriteJSON(w, http.StatusBadRequest)
		return
	}

	err := h.resources.Recipes.Delete(r.Context(), id, parseListQuery(r))
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			h.writeSessionError(w)
			return
		}
		status, message := mutationFailureStatus(err)
		domain.NewErrorResponse(domain.ErrUpstreamUnavailable, message, "").WriteJSON(w, status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ResourceHandlers) listRecipesForOrders(w http.ResponseWriter, r *http.Request) {
	result, err := h.resources.RecipesForOrders.List(r.Context(), parseListQuery(r))
	if err != nil {
		h.writeSessionError(w)
		return
	}
	h.writeJSON(w, r, http.StatusOK, listResponse{
		Data:       result.Items,
		Pagination: result.Pagination,
		Meta:       listMeta{FromCache: result.FromCache, Stale: result.Stale},
	})
}

func (h *ResourceHandlers) getDashboard(w http.ResponseWriter, r *http.Request) {
	result, err := h.resources.Dashboard.Get(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			h.writeSessionError(w)
			return
		}
		domain.NewErrorResponse(domain.ErrUpstreamUnavailable, "Could not load dashboard.", "").WriteJSON(w, http.StatusBadGateway)
		return
	}
	h.writeJSON(w, r, http.StatusOK, detailResponse{
		Data: result.Value,
		Meta: listMeta{FromCache: result.FromCache, Stale: result.Stale},
	})
}

func (h *ResourceHandlers) getCostsSettings(w http.ResponseWriter, r *http.Request) {
	result, err := h.resources.CostsSettings.Get(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			h.writeSessionError(w)
			return
		}
		domain.NewErrorResponse(domain.ErrUpstreamUnavailable, "Could not load costs settings.", "").WriteJSON(w, http.StatusBadGateway)
		return
	}
	h.writeJSON(w, r, http.StatusOK, detailResponse{
		Data: result.Value,
		Meta: listMeta{FromCache: result.FromCache, Stale: result.Stale},
	})
}

func (h *ResourceHandlers) getRecalculationStatus(w http.ResponseWriter, r *http.Request) {
	status := h.recalculation.Status()
	h.writeJSON(w, r, http.StatusOK, struct {
		domain.RecalculationStatus
		IsRecalculating bool `json:"isRecalculating"`
	}{status, status.IsRecalculating()})
}

func (h *ResourceHandlers) getFeatures(w http.ResponseWriter, r *http.Request) {
	features, err := h.subscriptions.Features(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			h.writeSessionError(w)
			return
		}
		domain.NewErrorResponse(domain.ErrUpstreamUnavailable, "Could not load subscription features.", "").WriteJSON(w, http.StatusBadGateway)
		return
	}
	h.writeJSON(w, r, http.StatusOK, features)
}

func mutationFailureStatus(err error) (int, string) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "The backend rejected the operation."
		}
		return apiErr.StatusCode, message
	}
	return http.StatusBadGateway, "The backend could not be reached. The list has been restored."
}
