package application

import (
	"context"
	"errors"
	"time"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/cachekeys"
)

// TokenValidator verifies a bearer token with the identity provider.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*domain.AuthenticatedUser, error)
}

// AuthService validates session bearer tokens, caching successful validations
// so the identity provider is consulted at most once per TTL window.
type AuthService struct {
	logger    domain.Logger
	config    config.Provider
	validator TokenValidator
	cache     domain.TokenCacheStore
}

// NewAuthService creates a new AuthService.
func NewAuthService(logger domain.Logger, cfg config.Provider, validator TokenValidator, cache domain.TokenCacheStore) *AuthService {
	if logger == nil {
		panic("logger is nil in NewAuthService")
	}
	if cfg == nil {
		panic("config provider is nil in NewAuthService")
	}
	if validator == nil {
		panic("token validator is nil in NewAuthService")
	}
	return &AuthService{
		logger:    logger,
		config:    cfg,
		validator: validator,
		cache:     cache,
	}
}

// ProcessToken resolves a bearer token to an authenticated user.
// Order: development fallback, cache, identity provider. Validation failures
// map to domain.ErrSessionInvalid.
func (s *AuthService) ProcessToken(reqCtx context.Context, token string) (*domain.AuthenticatedUser, error) {
	if token == "" {
		return nil, domain.ErrSessionInvalid
	}

	authCfg := s.config.Get().Auth
	if authCfg.DevFallbackToken != "" && token == authCfg.DevFallbackToken {
		s.logger.Debug(reqCtx, "Accepting development fallback token")
		return &domain.AuthenticatedUser{
			UserID:    "dev-user",
			Token:     token,
			ExpiresAt: time.Now().Add(24 * time.Hour),
		}, nil
	}

	cacheKey := cachekeys.SessionToken(token)

	if s.cache != nil {
		cached, err := s.cache.Get(reqCtx, cacheKey)
		if err == nil && cached != nil {
			if time.Now().After(cached.ExpiresAt) {
				s.logger.Debug(reqCtx, "Cached session found but expired, revalidating", "user_id", cached.UserID)
			} else {
				return cached, nil
			}
		} else if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
			// Cache is unreliable; fall through to the provider.
			s.logger.Error(reqCtx, "Error reading session token cache", "error", err.Error())
		}
	}

	user, err := s.validator.ValidateToken(reqCtx, token)
	if err != nil {
		s.logger.Warn(reqCtx, "Session token validation failed", "error", err.Error())
		return nil, err
	}

	if s.cache != nil {
		ttl := time.Duration(authCfg.TokenCacheTTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		if err := s.cache.Set(reqCtx, cacheKey, user, ttl); err != nil {
			// Non-fatal: the session is valid, only the cache write failed.
			s.logger.Error(reqCtx, "Failed to cache validated session token", "user_id", user.UserID, "error", err.Error())
		}
	}

	return user, nil
}
