package http

import (
	"io"
	"net/http"
	"strings"
	"time"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/metrics"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// WebhookProxy relays payment-provider callbacks to the backend without
// interpreting them. The raw body and headers pass through untouched so the
// backend can verify the provider's signature; the backend's status code and
// body come back verbatim so the provider's retry logic sees the real outcome.
type WebhookProxy struct {
	logger         domain.Logger
	configProvider config.Provider
	httpClient     *http.Client
	// onRelayed runs after the backend accepted a callback. Billing events can
	// change the subscription, so the feature cache is dropped here.
	onRelayed func()
}

// NewWebhookProxy creates the relay handler. onRelayed may be nil.
func NewWebhookProxy(logger domain.Logger, cfgProvider config.Provider, onRelayed func()) *WebhookProxy {
	timeout := time.Duration(cfgProvider.Get().Backend.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookProxy{
		logger:         logger,
		configProvider: cfgProvider,
		httpClient:     &http.Client{Timeout: timeout},
		onRelayed:      onRelayed,
	}
}

func (p *WebhookProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg := p.configProvider.Get().Backend
	target := strings.TrimSuffix(cfg.BaseURL, "/") + cfg.WebhookForwardPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, r.Body)
	if err != nil {
		p.logger.Error(ctx, "Failed to build webhook forward request", "target", target, "error", err.Error())
		p.writeRelayFailure(w)
		return
	}

	for name, values := range r.Header {
		if isHopHeader(name) {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error(ctx, "Webhook forward failed", "target", target, "error", err.Error())
		p.writeRelayFailure(w)
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Warn(ctx, "Webhook response relay truncated", "error", err.Error())
	}

	outcome := "success"
	if resp.StatusCode >= 400 {
		outcome = "upstream_error"
	} else if p.onRelayed != nil {
		p.onRelayed()
	}
	metrics.IncrementWebhookForward(outcome)
	p.logger.Info(ctx, "Webhook relayed", "target", target, "status", resp.StatusCode)
}

// writeRelayFailure answers 502 with a fixed body. The backend's real error is
// never exposed to the payment provider.
func (p *WebhookProxy) writeRelayFailure(w http.ResponseWriter) {
	metrics.IncrementWebhookForward("relay_failure")
	domain.NewErrorResponse(domain.ErrUpstreamUnavailable, "Webhook could not be delivered.", "").
		WriteJSON(w, http.StatusBadGateway)
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	// Host is carried by the request URL, not the header map, but guard anyway.
	return strings.EqualFold(name, "Host")
}
