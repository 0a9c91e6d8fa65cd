package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// IdentityClient validates bearer tokens against the third-party identity
// provider's userinfo endpoint. Authentication itself (sign-in, token issuing)
// lives entirely with the provider; the edge only verifies.
type IdentityClient struct {
	httpClient     *http.Client
	configProvider config.Provider
	logger         domain.Logger
}

// NewIdentityClient creates an identity provider client.
func NewIdentityClient(cfgProvider config.Provider, logger domain.Logger) *IdentityClient {
	return &IdentityClient{
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		configProvider: cfgProvider,
		logger:         logger,
	}
}

// ValidateToken verifies the bearer token with the identity provider and
// returns the authenticated user. Any rejection maps to domain.ErrSessionInvalid.
func (c *IdentityClient) ValidateToken(ctx context.Context, token string) (*domain.AuthenticatedUser, error) {
	userInfoURL := c.configProvider.Get().Auth.IdentityUserInfoURL
	if userInfoURL == "" {
		return nil, fmt.Errorf("identity provider not configured: %w", domain.ErrSessionInvalid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("identity provider rejected token (%d): %w", resp.StatusCode, domain.ErrSessionInvalid)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider userinfo returned unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	if payload.Sub == "" {
		return nil, fmt.Errorf("userinfo response missing subject: %w", domain.ErrSessionInvalid)
	}

	ttl := time.Duration(c.configProvider.Get().Auth.TokenCacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &domain.AuthenticatedUser{
		UserID:    payload.Sub,
		Email:     payload.Email,
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}
