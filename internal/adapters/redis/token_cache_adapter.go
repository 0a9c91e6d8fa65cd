package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// TokenCacheAdapter implements the domain.TokenCacheStore interface using Redis
// for caching validated session tokens, so each bearer credential is verified
// against the identity provider at most once per TTL window.
type TokenCacheAdapter struct {
	redisClient *redis.Client
	logger      domain.Logger
}

// NewTokenCacheAdapter creates a new instance of TokenCacheAdapter.
func NewTokenCacheAdapter(redisClient *redis.Client, logger domain.Logger) *TokenCacheAdapter {
	if redisClient == nil {
		// Panicking here because this is a critical setup error.
		panic("redisClient cannot be nil in NewTokenCacheAdapter")
	}
	if logger == nil {
		panic("logger cannot be nil in NewTokenCacheAdapter")
	}
	return &TokenCacheAdapter{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Get retrieves an AuthenticatedUser from the Redis cache.
func (a *TokenCacheAdapter) Get(ctx context.Context, key string) (*domain.AuthenticatedUser, error) {
	val, err := a.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		a.logger.Debug(ctx, "Session token cache miss", "key", key)
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		a.logger.Error(ctx, "Failed to get session token from Redis cache", "key", key, "error", err.Error())
		return nil, fmt.Errorf("redis GET for session token key '%s' failed: %w", key, err)
	}

	var user domain.AuthenticatedUser
	if err = json.Unmarshal([]byte(val), &user); err != nil {
		a.logger.Error(ctx, "Failed to unmarshal cached session token data", "key", key, "error", err.Error())
		return nil, fmt.Errorf("failed to unmarshal session token data for key '%s': %w", key, err)
	}

	a.logger.Debug(ctx, "Session token cache hit", "key", key, "user_id", user.UserID)
	return &user, nil
}

// Set stores an AuthenticatedUser in the Redis cache with a specified TTL.
func (a *TokenCacheAdapter) Set(ctx context.Context, key string, value *domain.AuthenticatedUser, ttl time.Duration) error {
	payloadBytes, err := json.Marshal(value)
	if err != nil {
		a.logger.Error(ctx, "Failed to marshal session token for caching", "key", key, "user_id", value.UserID, "error", err.Error())
		return fmt.Errorf("failed to marshal session token for key '%s': %w", key, err)
	}

	if err = a.redisClient.Set(ctx, key, string(payloadBytes), ttl).Err(); err != nil {
		a.logger.Error(ctx, "Failed to set session token in Redis cache", "key", key, "user_id", value.UserID, "error", err.Error())
		return fmt.Errorf("redis SET for session token key '%s' failed: %w", key, err)
	}

	a.logger.Debug(ctx, "Successfully cached session token", "key", key, "user_id", value.UserID, "ttl", ttl.String())
	return nil
}
