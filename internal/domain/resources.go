package domain

import "time"

// Ingredient is a purchasable input with a unit price. Ingredient price changes
// ripple into every recipe that uses the ingredient, which is why ingredient
// mutations trigger the recipe invalidation fan-out.
type Ingredient struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	PricePerUnit float64   `json:"pricePerUnit"`
	Supplier     string    `json:"supplier,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RecipeIngredient is one line of a recipe's composition.
type RecipeIngredient struct {
	IngredientID string  `json:"ingredientId"`
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	Cost         float64 `json:"cost"`
}

// RecipeSummary is the list-view projection of a recipe, including the derived
// pricing fields the backend recomputes asynchronously.
type RecipeSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CostPrice    float64   `json:"costPrice"`
	SellingPrice float64   `json:"sellingPrice"`
	MarginPct    float64   `json:"marginPct"`
	CalcStatus   string    `json:"calcStatus,omitempty"` // pending | calculating | done | error
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Recipe is the full detail view of a recipe.
type Recipe struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Ingredients  []RecipeIngredient `json:"ingredients"`
	CostPrice    float64            `json:"costPrice"`
	SellingPrice float64            `json:"sellingPrice"`
	MarginPct    float64            `json:"marginPct"`
	LaborMinutes int                `json:"laborMinutes"`
	Notes        string             `json:"notes,omitempty"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// RecipeForOrder is the slim projection used by the order-entry view.
type RecipeForOrder struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SellingPrice float64 `json:"sellingPrice"`
	Available    bool    `json:"available"`
}

// DashboardSummary aggregates profitability figures across all recipes.
// It is derived server-side from recipes and costs settings, so any recipe or
// ingredient mutation can change it.
type DashboardSummary struct {
	TotalRecipes     int             `json:"totalRecipes"`
	TotalIngredients int             `json:"totalIngredients"`
	AvgMarginPct     float64         `json:"avgMarginPct"`
	LowMarginCount   int             `json:"lowMarginCount"`
	TopRecipes       []RecipeSummary `json:"topRecipes"`
	GeneratedAt      time.Time       `json:"generatedAt"`
}

// CostsSettings holds the operation-wide cost parameters that feed every
// recipe's derived pricing.
type CostsSettings struct {
	OverheadPct      float64   `json:"overheadPct"`
	LaborRatePerHour float64   `json:"laborRatePerHour"`
	TargetMarginPct  float64   `json:"targetMarginPct"`
	VATPct           float64   `json:"vatPct"`
	Currency         string    `json:"currency"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
