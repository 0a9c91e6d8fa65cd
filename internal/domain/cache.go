package domain

import (
	"context"
	"time"
)

// PaginationInfo describes the server-side position of a cached list page.
// Total must be decremented together with every optimistic row removal so the
// displayed count stays consistent with the filtered list.
type PaginationInfo struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// InvalidateOptions scopes a recipe-data invalidation fan-out.
type InvalidateOptions struct {
	// EntityID limits detail-cache invalidation to one recipe. Empty clears all.
	EntityID string
	// SkipDashboard leaves the dashboard aggregate cache untouched. Used by
	// mutations known not to move aggregate figures.
	SkipDashboard bool
}

// RecipeDataInvalidator fans out invalidation to every cache whose contents
// are derived from recipe data.
type RecipeDataInvalidator interface {
	Invalidate(ctx context.Context, opts InvalidateOptions)
}

// TokenCacheStore defines the interface for caching validated session tokens.
type TokenCacheStore interface {
	// Get retrieves an AuthenticatedUser from the cache.
	// A miss is reported as (nil, ErrCacheMiss).
	Get(ctx context.Context, key string) (*AuthenticatedUser, error)

	// Set stores an AuthenticatedUser in the cache with a specific TTL.
	Set(ctx context.Context, key string, value *AuthenticatedUser, ttl time.Duration) error
}
