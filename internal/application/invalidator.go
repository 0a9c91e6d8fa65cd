package application

import (
	"context"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/memcache"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/cachekeys"
)

// RecipeInvalidator fans out invalidation to every cache whose contents derive
// from recipe data. Mutations to a leaf resource (an ingredient whose price
// changed, a deleted recipe) can ripple into recomputed values on every
// dependent resource; instead of tracking a dependency graph, all plausibly
// affected caches are cleared on any such mutation. Redundant refetching is
// the accepted price for correctness with this few resource kinds.
type RecipeInvalidator struct {
	recipes          *memcache.Store[domain.RecipeSummary]
	recipeDetails    *memcache.DetailStore[domain.Recipe]
	dashboard        *memcache.DetailStore[domain.DashboardSummary]
	recipesForOrders *memcache.Store[domain.RecipeForOrder]
	logger           domain.Logger
}

// NewRecipeInvalidator wires the invalidator to the dependent stores.
func NewRecipeInvalidator(
	recipes *memcache.Store[domain.RecipeSummary],
	recipeDetails *memcache.DetailStore[domain.Recipe],
	dashboard *memcache.DetailStore[domain.DashboardSummary],
	recipesForOrders *memcache.Store[domain.RecipeForOrder],
	logger domain.Logger,
) *RecipeInvalidator {
	return &RecipeInvalidator{
		recipes:          recipes,
		recipeDetails:    recipeDetails,
		dashboard:        dashboard,
		recipesForOrders: recipesForOrders,
		logger:           logger,
	}
}

// Invalidate clears the recipes list cache unconditionally, the detail cache
// (scoped to opts.EntityID when given, else all entities), the
// recipes-for-orders cache (it is a recipes projection), and the dashboard
// aggregate unless explicitly skipped.
func (iv *RecipeInvalidator) Invalidate(ctx context.Context, opts domain.InvalidateOptions) {
	iv.recipes.InvalidateAll()
	iv.recipesForOrders.InvalidateAll()

	if opts.EntityID != "" {
		// Detail entries are owner-scoped; a scoped invalidation must clear
		// the entity for every session that cached it.
		iv.recipeDetails.InvalidateMatching(func(key string) bool {
			return cachekeys.DetailMatches(key, opts.EntityID)
		})
	} else {
		iv.recipeDetails.InvalidateAll()
	}

	if !opts.SkipDashboard {
		iv.dashboard.InvalidateAll()
	}

	iv.logger.Debug(ctx, "Recipe data invalidation fan-out applied",
		"entity_id", opts.EntityID,
		"skip_dashboard", opts.SkipDashboard,
	)
}
