package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/backend"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/memcache"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/contextkeys"
)

func sessionContext(userID string) context.Context {
	return context.WithValue(context.Background(), contextkeys.UserIDKey, userID)
}

func ingredientPage(n int) ([]domain.Ingredient, *domain.PaginationInfo) {
	items := make([]domain.Ingredient, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.Ingredient{ID: fmt.Sprintf("ing-%d", i), Name: fmt.Sprintf("Ingredient %d", i)})
	}
	return items, &domain.PaginationInfo{Total: n, Page: 1, PageSize: 20}
}

func newIngredientResource(t *testing.T, ttl time.Duration, fetchCalls *int, fetchErr *error, removeErr *error) (*ListResource[domain.Ingredient], *recordingNotifier) {
	t.Helper()
	store := memcache.NewStore("ingredients", ttl, 0, func(i domain.Ingredient) string { return i.ID })
	notifier := &recordingNotifier{}

	fetch := func(ctx context.Context, q backend.ListQuery) ([]domain.Ingredient, *domain.PaginationInfo, error) {
		*fetchCalls++
		if fetchErr != nil && *fetchErr != nil {
			return nil, nil, *fetchErr
		}
		items, pagination := ingredientPage(10)
		return items, pagination, nil
	}
	remove := func(ctx context.Context, id string) error {
		if removeErr != nil {
			return *removeErr
		}
		return nil
	}

	return NewListResource("ingredients", store, fetch, remove, nopLogger{}, notifier), notifier
}

func TestListServesFromCacheWithinTTL(t *testing.T) {
	fetchCalls := 0
	r, _ := newIngredientResource(t, 2*time.Minute, &fetchCalls, nil, nil)
	ctx := context.Background()
	q := backend.ListQuery{Page: 1}

	first, err := r.List(ctx, q)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Len(t, first.Items, 10)
	require.NotNil(t, first.Pagination)
	assert.Equal(t, 10, first.Pagination.Total)

	second, err := r.List(ctx, q)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, fetchCalls, "fresh cache hit must not touch the backend")
}

func TestListDistinctQueriesAreDistinctEntries(t *testing.T) {
	fetchCalls := 0
	r, _ := newIngredientResource(t, 2*time.Minute, &fetchCalls, nil, nil)
	ctx := context.Background()

	_, err := r.List(ctx, backend.ListQuery{Search: "flour", Page: 1})
	require.NoError(t, err)
	_, err = r.List(ctx, backend.ListQuery{Search: "flour", Page: 2})
	require.NoError(t, err)
	_, err = r.List(ctx, backend.ListQuery{Search: "sugar", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, fetchCalls)

	_, err = r.List(ctx, backend.ListQuery{Search: "flour", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, fetchCalls, "repeat of a cached signature must not fetch")
}

func TestListServesStaleOnFetchFailure(t *testing.T) {
	fetchCalls := 0
	var fetchErr error
	// Negative TTL makes every entry stale immediately, forcing the refetch path.
	r, notifier := newIngredientResource(t, -time.Nanosecond, &fetchCalls, &fetchErr, nil)
	ctx := context.Background()
	q := backend.ListQuery{Page: 1}

	_, err := r.List(ctx, q)
	require.NoError(t, err)

	fetchErr = errors.New("backend down")
	result, err := r.List(ctx, q)
	require.NoError(t, err, "a failed refresh must not surface as a read error")
	assert.True(t, result.Stale)
	assert.True(t, result.FromCache)
	assert.Len(t, result.Items, 10)

	assert.Equal(t, 1, notifier.count(domain.NotificationError))
}

func TestListFetchFailureWithEmptyCache(t *testing.T) {
	fetchCalls := 0
	fetchErr := error(errors.New("backend down"))
	r, notifier := newIngredientResource(t, 2*time.Minute, &fetchCalls, &fetchErr, nil)

	result, err := r.List(context.Background(), backend.ListQuery{Page: 1})
	require.NoError(t, err)
	assert.True(t, result.Stale)
	assert.Empty(t, result.Items)
	assert.Equal(t, 1, notifier.count(domain.NotificationError))
}

func TestListSessionInvalidPropagates(t *testing.T) {
	fetchCalls := 0
	fetchErr := error(fmt.Errorf("rejected: %w", domain.ErrSessionInvalid))
	r, notifier := newIngredientResource(t, 2*time.Minute, &fetchCalls, &fetchErr, nil)

	_, err := r.List(context.Background(), backend.ListQuery{Page: 1})
	require.ErrorIs(t, err, domain.ErrSessionInvalid)
	assert.Equal(t, 0, notifier.count(domain.NotificationError), "session failures escalate, they do not notify")
}

func TestDeleteOptimisticallyRemovesAndConfirms(t *testing.T) {
	fetchCalls := 0
	r, notifier := newIngredientResource(t, 2*time.Minute, &fetchCalls, nil, nil)
	ctx := context.Background()
	q := backend.ListQuery{Page: 1}

	_, err := r.List(ctx, q)
	require.NoError(t, err)

	var deletedID string
	r.SetOnDeleted(func(ctx context.Context, id string) { deletedID = id })

	require.NoError(t, r.Delete(ctx, "ing-3", q))

	result, err := r.List(ctx, q)
	require.NoError(t, err)
	assert.True(t, result.FromCache, "the optimistically mutated page stays served from cache")
	assert.Len(t, result.Items, 9)
	require.NotNil(t, result.Pagination)
	assert.Equal(t, 9, result.Pagination.Total, "total must decrement with the removed row")
	for _, item := range result.Items {
		assert.NotEqual(t, "ing-3", item.ID)
	}

	assert.Equal(t, "ing-3", deletedID)
	assert.Equal(t, 1, notifier.count(domain.NotificationSuccess))
	assert.Equal(t, 1, fetchCalls, "a successful delete must not trigger a refetch")
}

func TestDeleteFailureIssuesCorrectiveRefetch(t *testing.T) {
	fetchCalls := 0
	removeErr := error(&backend.APIError{StatusCode: http.StatusConflict, Message: "Ingredient is used by 3 recipes"})
	r, notifier := newIngredientResource(t, 2*time.Minute, &fetchCalls, nil, &removeErr)
	ctx := context.Background()
	q := backend.ListQuery{Page: 1}

	_, err := r.List(ctx, q)
	require.NoError(t, err)

	err = r.Delete(ctx, "ing-3", q)
	require.Error(t, err)

	// The corrective refetch restored server truth over the optimistic removal.
	result, err := r.List(ctx, q)
	require.NoError(t, err)
	assert.Len(t, result.Items, 10)
	require.NotNil(t, result.Pagination)
	assert.Equal(t, 10, result.Pagination.Total)
	assert.Equal(t, 2, fetchCalls)

	last, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, domain.NotificationError, last.Level)
	assert.Equal(t, "Ingredient is used by 3 recipes", last.Message, "the backend's own message wins over the generic one")
}

func TestDeleteFailureRefetchFailureDropsEntry(t *testing.T) {
	fetchCalls := 0
	var fetchErr error
	removeErr := error(errors.New("network blip"))
	r, _ := newIngredientResource(t, 2*time.Minute, &fetchCalls, &fetchErr, &removeErr)
	ctx := context.Background()
	q := backend.ListQuery{Page: 1}

	_, err := r.List(ctx, q)
	require.NoError(t, err)

	// Both the delete and the corrective refetch fail. The key must be dropped
	// so the optimistically mutated page is never served as truth.
	fetchErr = errors.New("still down")
	require.Error(t, r.Delete(ctx, "ing-3", q))

	fetchErr = nil
	result, err := r.List(ctx, q)
	require.NoError(t, err)
	assert.False(t, result.FromCache, "next read must refetch, not serve the mutated page")
	assert.Len(t, result.Items, 10)
}

func TestListEntriesAreScopedToTheSessionOwner(t *testing.T) {
	store := memcache.NewStore("ingredients", 2*time.Minute, 0, func(i domain.Ingredient) string { return i.ID })
	fetchCalls := 0
	// The backend answers with the requesting user's own rows: the fetch is
	// authorized by the token in the request context.
	fetch := func(ctx context.Context, q backend.ListQuery) ([]domain.Ingredient, *domain.PaginationInfo, error) {
		fetchCalls++
		user, _ := ctx.Value(contextkeys.UserIDKey).(string)
		return []domain.Ingredient{{ID: "ing-" + user}}, &domain.PaginationInfo{Total: 1, Page: 1}, nil
	}
	r := NewListResource("ingredients", store, fetch, nil, nopLogger{}, &recordingNotifier{})
	q := backend.ListQuery{Page: 1}

	alice, err := r.List(sessionContext("alice"), q)
	require.NoError(t, err)
	require.Len(t, alice.Items, 1)
	assert.Equal(t, "ing-alice", alice.Items[0].ID)

	bob, err := r.List(sessionContext("bob"), q)
	require.NoError(t, err)
	assert.False(t, bob.FromCache, "another session's identical query must not hit the first session's entry")
	require.Len(t, bob.Items, 1)
	assert.Equal(t, "ing-bob", bob.Items[0].ID)
	assert.Equal(t, 2, fetchCalls)

	aliceAgain, err := r.List(sessionContext("alice"), q)
	require.NoError(t, err)
	assert.True(t, aliceAgain.FromCache)
	assert.Equal(t, "ing-alice", aliceAgain.Items[0].ID)
	assert.Equal(t, 2, fetchCalls)
}

func TestDeleteSessionInvalidDropsOptimisticEntry(t *testing.T) {
	fetchCalls := 0
	removeErr := error(fmt.Errorf("rejected: %w", domain.ErrSessionInvalid))
	r, notifier := newIngredientResource(t, 2*time.Minute, &fetchCalls, nil, &removeErr)
	ctx := context.Background()
	q := backend.ListQuery{Page: 1}

	_, err := r.List(ctx, q)
	require.NoError(t, err)

	// The delete never reached the backend; the optimistic removal must not
	// stay cached as fresh data.
	require.ErrorIs(t, r.Delete(ctx, "ing-3", q), domain.ErrSessionInvalid)
	assert.Equal(t, 0, notifier.count(domain.NotificationError), "session failures escalate, they do not notify")

	result, err := r.List(ctx, q)
	require.NoError(t, err)
	assert.False(t, result.FromCache, "next read must refetch, not serve the mutated page")
	assert.Len(t, result.Items, 10)
	assert.Equal(t, 2, fetchCalls)
}

func TestDeleteUnsupportedResource(t *testing.T) {
	store := memcache.NewStore("recipes-for-orders", time.Minute, 0, func(r domain.RecipeForOrder) string { return r.ID })
	r := NewListResource[domain.RecipeForOrder]("recipes-for-orders", store,
		func(ctx context.Context, q backend.ListQuery) ([]domain.RecipeForOrder, *domain.PaginationInfo, error) {
			return nil, nil, nil
		}, nil, nopLogger{}, &recordingNotifier{})

	err := r.Delete(context.Background(), "r-1", backend.ListQuery{Page: 1})
	require.Error(t, err)
}

func TestSupersededGenerationIsNotCurrent(t *testing.T) {
	fetchCalls := 0
	r, _ := newIngredientResource(t, 2*time.Minute, &fetchCalls, nil, nil)

	gen1 := r.nextGeneration("q=&page=1")
	gen2 := r.nextGeneration("q=&page=1")
	assert.False(t, r.isCurrentGeneration("q=&page=1", gen1), "a superseded fetch must not write")
	assert.True(t, r.isCurrentGeneration("q=&page=1", gen2))
}

func TestDetailResourceNotFoundPassesThrough(t *testing.T) {
	store := memcache.NewDetailStore[domain.Recipe]("recipe-detail", time.Minute)
	r := NewDetailResource[domain.Recipe]("recipe-detail", store,
		func(ctx context.Context, id string) (*domain.Recipe, error) {
			return nil, &backend.APIError{StatusCode: http.StatusNotFound, Message: "recipe not found"}
		}, nopLogger{}, &recordingNotifier{})

	_, err := r.Get(context.Background(), "missing")
	var apiErr *backend.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestDetailResourceServesStaleOnFailure(t *testing.T) {
	store := memcache.NewDetailStore[domain.Recipe]("recipe-detail", -time.Nanosecond)
	notifier := &recordingNotifier{}
	calls := 0
	r := NewDetailResource[domain.Recipe]("recipe-detail", store,
		func(ctx context.Context, id string) (*domain.Recipe, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("backend down")
			}
			return &domain.Recipe{ID: id, Name: "Croissant"}, nil
		}, nopLogger{}, notifier)
	ctx := context.Background()

	first, err := r.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "Croissant", first.Value.Name)

	second, err := r.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.True(t, second.Stale)
	assert.Equal(t, "Croissant", second.Value.Name)
	assert.Equal(t, 1, notifier.count(domain.NotificationError))
}

func TestSingleResourceCachesAggregate(t *testing.T) {
	store := memcache.NewDetailStore[domain.DashboardSummary]("dashboard", 5*time.Minute)
	calls := 0
	r := NewSingleResource[domain.DashboardSummary]("dashboard", store,
		func(ctx context.Context) (*domain.DashboardSummary, error) {
			calls++
			return &domain.DashboardSummary{TotalRecipes: 42}, nil
		}, nopLogger{}, &recordingNotifier{})
	ctx := context.Background()

	first, err := r.Get(ctx)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := r.Get(ctx)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 42, second.Value.TotalRecipes)
	assert.Equal(t, 1, calls)
}
