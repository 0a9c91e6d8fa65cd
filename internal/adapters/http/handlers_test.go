package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/backend"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/application"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

type nopLogger struct{}

func (l nopLogger) Debug(ctx context.Context, msg string, fields ...any) {}
func (l nopLogger) Info(ctx context.Context, msg string, fields ...any)  {}
func (l nopLogger) Warn(ctx context.Context, msg string, fields ...any)  {}
func (l nopLogger) Error(ctx context.Context, msg string, fields ...any) {}
func (l nopLogger) Fatal(ctx context.Context, msg string, fields ...any) {}
func (l nopLogger) With(fields ...any) domain.Logger                     { return l }

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, level domain.NotificationLevel, message string) {}

func testConfig(backendURL string) config.Provider {
	return &config.Static{Config: &config.Config{
		Backend: config.BackendConfig{
			BaseURL:               backendURL,
			WebhookForwardPath:    "/v1/billing/webhook",
			RequestTimeoutSeconds: 5,
		},
		Auth: config.AuthConfig{
			DevFallbackToken: "dev-token",
			SignInPath:       "/sign-in",
		},
		Cache: config.CacheConfig{
			ListTTLSeconds:      120,
			AggregateTTLSeconds: 300,
			MaxEntriesPerStore:  256,
		},
		Public: config.PublicConfig{
			APIBaseURL:           "https://api.kalko.app",
			StripePublishableKey: "pk_test_123",
			IdentityClientID:     "client-abc",
			IdentityDomain:       "auth.kalko.app",
		},
	}}
}

func newHandlerSet(t *testing.T, backendURL string) (*ResourceHandlers, *http.ServeMux) {
	t.Helper()
	cfg := testConfig(backendURL)
	client := backend.NewClient(cfg, nopLogger{})
	resources := application.NewResourceService(nopLogger{}, nopNotifier{}, client, cfg)
	subscriptions := application.NewSubscriptionService(nopLogger{}, client.FetchFeatures)
	recalc := application.NewRecalculationService(nopLogger{}, nopNotifier{}, nil, nil)

	handlers := NewResourceHandlers(nopLogger{}, cfg, resources, subscriptions, recalc)
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux)
	return handlers, mux
}

func TestListIngredientsEnvelope(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/ingredients", r.URL.Path)
		require.Equal(t, "Bearer dev-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"ing-1","name":"Flour"}],"pagination":{"total":1,"page":1,"pageSize":20}}`))
	}))
	defer upstream.Close()

	_, mux := newHandlerSet(t, upstream.URL)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ingredients?page=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data       []domain.Ingredient   `json:"data"`
		Pagination domain.PaginationInfo `json:"pagination"`
		Meta       struct {
			FromCache bool `json:"fromCache"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Flour", body.Data[0].Name)
	assert.Equal(t, 1, body.Pagination.Total)
	assert.False(t, body.Meta.FromCache)

	// Second read within the TTL serves from cache.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ingredients?page=1", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Meta.FromCache)
}

func TestSessionRejectionAnswers401WithRedirect(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	_, mux := newHandlerSet(t, upstream.URL)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/recipes", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var errResp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, domain.ErrUnauthorized, errResp.Code)
	assert.Equal(t, "/sign-in", errResp.Redirect)
}

func TestGetRecipeNotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"recipe not found"}`))
	}))
	defer upstream.Close()

	_, mux := newHandlerSet(t, upstream.URL)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/recipes/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, domain.ErrNotFound, errResp.Code)
}

func TestRecalculationStatusEndpoint(t *testing.T) {
	_, mux := newHandlerSet(t, "http://backend.invalid")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/recalculation-status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pending         int  `json:"pending"`
		IsRecalculating bool `json:"isRecalculating"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.IsRecalculating)
}

func TestWebhookProxyRelaysVerbatim(t *testing.T) {
	var receivedBody string
	var receivedSignature string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/billing/webhook", r.URL.Path)
		buf, _ := io.ReadAll(r.Body)
		receivedBody = string(buf)
		receivedSignature = r.Header.Get("Stripe-Signature")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}))
	defer upstream.Close()

	relayed := 0
	proxy := NewWebhookProxy(nopLogger{}, testConfig(upstream.URL), func() { relayed++ })

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{"type":"invoice.paid"}`))
	req.Header.Set("Stripe-Signature", "t=123,v1=abc")
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"received":true}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"type":"invoice.paid"}`, receivedBody)
	assert.Equal(t, "t=123,v1=abc", receivedSignature)
	assert.Equal(t, 1, relayed, "a delivered billing event drops the feature cache")
}

func TestWebhookProxyRelaysUpstreamErrorsWithoutInvalidating(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad signature"}`))
	}))
	defer upstream.Close()

	relayed := 0
	proxy := NewWebhookProxy(nopLogger{}, testConfig(upstream.URL), func() { relayed++ })

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code, "the backend's verdict passes through verbatim")
	assert.Equal(t, `{"error":"bad signature"}`, rec.Body.String())
	assert.Equal(t, 0, relayed)
}

func TestWebhookProxyAnswers502WhenBackendUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close() // dead target

	proxy := NewWebhookProxy(nopLogger{}, testConfig(upstream.URL), nil)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var errResp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, domain.ErrUpstreamUnavailable, errResp.Code)
}

func TestRuntimeConfigServesPublicValuesWithCacheHeaders(t *testing.T) {
	handler := NewRuntimeConfigHandler(nopLogger{}, testConfig("http://backend.invalid"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600, stale-while-revalidate=86400", rec.Header().Get("Cache-Control"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://api.kalko.app", body["apiBaseUrl"])
	assert.Equal(t, "pk_test_123", body["stripePublishableKey"])
	assert.Equal(t, "client-abc", body["identityClientId"])
	assert.Equal(t, "auth.kalko.app", body["identityDomain"])
}
