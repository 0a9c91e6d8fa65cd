// Package backend is the REST client for the Kalko backend API. Every request
// carries the session's bearer token; a 401 from the backend is surfaced as
// domain.ErrSessionInvalid so the edge can escalate to a sign-in redirect.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/contextkeys"
)

const apiPrefix = "/v1"

// APIError carries the backend's HTTP status and its most specific error
// message, so mutation failures can surface it to the user verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// ListQuery is the query signature of a paginated list read.
type ListQuery struct {
	Search   string
	Page     int
	PageSize int
}

// Values encodes the query for the backend list endpoints.
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	return v
}

// Client talks to the Kalko backend REST API.
type Client struct {
	httpClient     *http.Client
	configProvider config.Provider
	logger         domain.Logger
}

// NewClient creates a backend API client. The HTTP client timeout follows
// backend.request_timeout_seconds.
func NewClient(cfgProvider config.Provider, logger domain.Logger) *Client {
	timeout := time.Duration(cfgProvider.Get().Backend.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		configProvider: cfgProvider,
		logger:         logger,
	}
}

// bearerToken resolves the token for an outgoing request: the current
// session's token when present, otherwise the development fallback.
func (c *Client) bearerToken(ctx context.Context) string {
	if token, ok := ctx.Value(contextkeys.SessionTokenKey).(string); ok && token != "" {
		return token
	}
	return c.configProvider.Get().Auth.DevFallbackToken
}

// WebsocketURL returns the endpoint the recalculation channel should dial.
// When not configured explicitly it is derived from the REST base URL.
func (c *Client) WebsocketURL() string {
	cfg := c.configProvider.Get().Backend
	if cfg.WebsocketURL != "" {
		return cfg.WebsocketURL
	}
	base := cfg.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return strings.TrimRight(base, "/") + "/ws"
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, out any) error {
	base := strings.TrimRight(c.configProvider.Get().Backend.BaseURL, "/")
	reqURL := base + apiPrefix + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build backend request %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken(ctx))
	req.Header.Set("Accept", "application/json")
	if requestID, ok := ctx.Value(contextkeys.RequestIDKey).(string); ok && requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("backend rejected credentials on %s %s: %w", method, path, domain.ErrSessionInvalid)
	}
	if resp.StatusCode >= 400 {
		return c.decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode backend response for %s %s: %w", method, path, err)
		}
	}
	return nil
}

// decodeAPIError extracts the most specific message the backend provided.
func (c *Client) decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(body) > 0 {
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			if payload.Message != "" {
				apiErr.Message = payload.Message
			} else if payload.Error != "" {
				apiErr.Message = payload.Error
			}
		}
	}
	return apiErr
}

type listEnvelope[T any] struct {
	Data       []T                    `json:"data"`
	Pagination *domain.PaginationInfo `json:"pagination"`
}

func getList[T any](c *Client, ctx context.Context, path string, q ListQuery) ([]T, *domain.PaginationInfo, error) {
	var env listEnvelope[T]
	if err := c.doJSON(ctx, http.MethodGet, path, q.Values(), &env); err != nil {
		return nil, nil, err
	}
	return env.Data, env.Pagination, nil
}

// ListIngredients fetches one page of ingredients.
func (c *Client) ListIngredients(ctx context.Context, q ListQuery) ([]domain.Ingredient, *domain.PaginationInfo, error) {
	return getList[domain.Ingredient](c, ctx, "/ingredients", q)
}

// ListRecipes fetches one page of recipe summaries.
func (c *Client) ListRecipes(ctx context.Context, q ListQuery) ([]domain.RecipeSummary, *domain.PaginationInfo, error) {
	return getList[domain.RecipeSummary](c, ctx, "/recipes", q)
}

// ListRecipesForOrders fetches the slim recipe projection for the order view.
func (c *Client) ListRecipesForOrders(ctx context.Context, q ListQuery) ([]domain.RecipeForOrder, *domain.PaginationInfo, error) {
	return getList[domain.RecipeForOrder](c, ctx, "/recipes-for-orders", q)
}

// GetRecipe fetches one recipe's full detail.
func (c *Client) GetRecipe(ctx context.Context, id string) (*domain.Recipe, error) {
	var recipe domain.Recipe
	if err := c.doJSON(ctx, http.MethodGet, "/recipes/"+url.PathEscape(id), nil, &recipe); err != nil {
		return nil, err
	}
	return &recipe, nil
}

// GetDashboard fetches the profitability aggregate.
func (c *Client) GetDashboard(ctx context.Context) (*domain.DashboardSummary, error) {
	var summary domain.DashboardSummary
	if err := c.doJSON(ctx, http.MethodGet, "/dashboard", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// GetCostsSettings fetches the operation-wide cost parameters.
func (c *Client) GetCostsSettings(ctx context.Context) (*domain.CostsSettings, error) {
	var settings domain.CostsSettings
	if err := c.doJSON(ctx, http.MethodGet, "/costs-settings", nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// DeleteIngredient removes an ingredient on the backend.
func (c *Client) DeleteIngredient(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/ingredients/"+url.PathEscape(id), nil, nil)
}

// DeleteRecipe removes a recipe on the backend.
func (c *Client) DeleteRecipe(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/recipes/"+url.PathEscape(id), nil, nil)
}

// GetRecalculationStatus polls the recompute job status. Fallback path for
// when the recalculation channel is down.
func (c *Client) GetRecalculationStatus(ctx context.Context) (*domain.RecalculationUpdate, error) {
	var upd domain.RecalculationUpdate
	if err := c.doJSON(ctx, http.MethodGet, "/recipes/recalculation-status", nil, &upd); err != nil {
		return nil, err
	}
	return &upd, nil
}

// FetchFeatures fetches the current user's subscription feature set.
func (c *Client) FetchFeatures(ctx context.Context) (*domain.FeatureSet, error) {
	var features domain.FeatureSet
	if err := c.doJSON(ctx, http.MethodGet, "/subscription/features", nil, &features); err != nil {
		return nil, err
	}
	return &features, nil
}
