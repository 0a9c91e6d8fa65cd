package application

import (
	"context"
	"time"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/backend"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/memcache"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// Store names, used as metric labels and in notifications.
const (
	storeIngredients      = "ingredients"
	storeRecipes          = "recipes"
	storeRecipeDetails    = "recipe-detail"
	storeDashboard        = "dashboard"
	storeCostsSettings    = "costs-settings"
	storeRecipesForOrders = "recipes-for-orders"
)

// ResourceService owns one cache-backed resource per kind the dashboard
// reads, plus the invalidation fan-out connecting them. Every store partitions
// its entries by the session owner, since each fetch is authorized with the
// requesting user's token.
type ResourceService struct {
	Ingredients      *ListResource[domain.Ingredient]
	Recipes          *ListResource[domain.RecipeSummary]
	RecipeDetails    *DetailResource[domain.Recipe]
	Dashboard        *SingleResource[domain.DashboardSummary]
	CostsSettings    *SingleResource[domain.CostsSettings]
	RecipesForOrders *ListResource[domain.RecipeForOrder]

	invalidator *RecipeInvalidator
}

// NewResourceService builds every store with its configured TTL, binds each to
// the backend client, and wires mutation hooks into the invalidator.
func NewResourceService(
	logger domain.Logger,
	notifier domain.Notifier,
	client *backend.Client,
	cfgProvider config.Provider,
) *ResourceService {
	cacheCfg := cfgProvider.Get().Cache
	listTTL := time.Duration(cacheCfg.ListTTLSeconds) * time.Second
	if listTTL <= 0 {
		listTTL = 2 * time.Minute
	}
	aggregateTTL := time.Duration(cacheCfg.AggregateTTLSeconds) * time.Second
	if aggregateTTL <= 0 {
		aggregateTTL = 5 * time.Minute
	}
	maxEntries := cacheCfg.MaxEntriesPerStore

	ingredientStore := memcache.NewStore(storeIngredients, listTTL, maxEntries, func(i domain.Ingredient) string { return i.ID })
	recipeStore := memcache.NewStore(storeRecipes, listTTL, maxEntries, func(r domain.RecipeSummary) string { return r.ID })
	recipeDetailStore := memcache.NewDetailStore[domain.Recipe](storeRecipeDetails, listTTL)
	dashboardStore := memcache.NewDetailStore[domain.DashboardSummary](storeDashboard, aggregateTTL)
	costsSettingsStore := memcache.NewDetailStore[domain.CostsSettings](storeCostsSettings, aggregateTTL)
	ordersStore := memcache.NewStore(storeRecipesForOrders, listTTL, maxEntries, func(r domain.RecipeForOrder) string { return r.ID })

	invalidator := NewRecipeInvalidator(recipeStore, recipeDetailStore, dashboardStore, ordersStore, logger)

	svc := &ResourceService{
		Ingredients:      NewListResource(storeIngredients, ingredientStore, client.ListIngredients, client.DeleteIngredient, logger, notifier),
		Recipes:          NewListResource(storeRecipes, recipeStore, client.ListRecipes, client.DeleteRecipe, logger, notifier),
		RecipeDetails:    NewDetailResource(storeRecipeDetails, recipeDetailStore, client.GetRecipe, logger, notifier),
		Dashboard:        NewSingleResource(storeDashboard, dashboardStore, client.GetDashboard, logger, notifier),
		CostsSettings:    NewSingleResource(storeCostsSettings, costsSettingsStore, client.GetCostsSettings, logger, notifier),
		RecipesForOrders: NewListResource(storeRecipesForOrders, ordersStore, client.ListRecipesForOrders, nil, logger, notifier),
		invalidator:      invalidator,
	}

	// Ingredient prices feed every recipe's derived cost, so an ingredient
	// removal ripples through all recipe-derived caches.
	svc.Ingredients.SetOnDeleted(func(ctx context.Context, _ string) {
		invalidator.Invalidate(ctx, domain.InvalidateOptions{})
	})
	// A deleted recipe only invalidates its own detail entry, the lists it
	// appears in, and the dashboard aggregate.
	svc.Recipes.SetOnDeleted(func(ctx context.Context, id string) {
		invalidator.Invalidate(ctx, domain.InvalidateOptions{EntityID: id})
	})

	return svc
}

// Invalidator exposes the fan-out for the recalculation service and tests.
func (s *ResourceService) Invalidator() *RecipeInvalidator {
	return s.invalidator
}
