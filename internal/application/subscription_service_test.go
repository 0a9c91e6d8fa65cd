package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/contextkeys"
)

func TestFeaturesFetchesOnceForConcurrentCallers(t *testing.T) {
	var fetches atomic.Int32
	svc := NewSubscriptionService(nopLogger{}, func(ctx context.Context) (*domain.FeatureSet, error) {
		fetches.Add(1)
		time.Sleep(20 * time.Millisecond) // widen the race window
		return &domain.FeatureSet{Plan: "pro", Features: map[string]bool{"export": true}}, nil
	})

	const callers = 16
	results := make([]*domain.FeatureSet, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Features(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), fetches.Load(), "concurrent first reads share one round trip")
	for _, fs := range results {
		require.NotNil(t, fs)
		assert.Same(t, results[0], fs, "every caller receives the shared result")
	}
}

func TestFeaturesHasNoTTL(t *testing.T) {
	var fetches atomic.Int32
	svc := NewSubscriptionService(nopLogger{}, func(ctx context.Context) (*domain.FeatureSet, error) {
		fetches.Add(1)
		return &domain.FeatureSet{Plan: "starter"}, nil
	})

	for i := 0; i < 5; i++ {
		_, err := svc.Features(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestFeaturesErrorIsNotCached(t *testing.T) {
	var fetches atomic.Int32
	fail := true
	svc := NewSubscriptionService(nopLogger{}, func(ctx context.Context) (*domain.FeatureSet, error) {
		fetches.Add(1)
		if fail {
			return nil, errors.New("backend down")
		}
		return &domain.FeatureSet{Plan: "pro"}, nil
	})

	_, err := svc.Features(context.Background())
	require.Error(t, err)

	fail = false
	fs, err := svc.Features(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pro", fs.Plan)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestFeaturesAreScopedToTheSessionOwner(t *testing.T) {
	var fetches atomic.Int32
	// Each user carries their own plan; the fetch is authorized by the token
	// in the request context.
	svc := NewSubscriptionService(nopLogger{}, func(ctx context.Context) (*domain.FeatureSet, error) {
		fetches.Add(1)
		user, _ := ctx.Value(contextkeys.UserIDKey).(string)
		if user == "alice" {
			return &domain.FeatureSet{Plan: "pro"}, nil
		}
		return &domain.FeatureSet{Plan: "starter"}, nil
	})

	alice, err := svc.Features(sessionContext("alice"))
	require.NoError(t, err)
	assert.Equal(t, "pro", alice.Plan)

	bob, err := svc.Features(sessionContext("bob"))
	require.NoError(t, err)
	assert.Equal(t, "starter", bob.Plan, "another session must not receive the first caller's plan")
	assert.Equal(t, int32(2), fetches.Load())

	aliceAgain, err := svc.Features(sessionContext("alice"))
	require.NoError(t, err)
	assert.Same(t, alice, aliceAgain)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestFeaturesFlightOutlivesCallerCancellation(t *testing.T) {
	svc := NewSubscriptionService(nopLogger{}, func(ctx context.Context) (*domain.FeatureSet, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &domain.FeatureSet{Plan: "pro"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs, err := svc.Features(ctx)
	require.NoError(t, err, "a cancelled caller must not poison the shared flight")
	assert.Equal(t, "pro", fs.Plan)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	var fetches atomic.Int32
	svc := NewSubscriptionService(nopLogger{}, func(ctx context.Context) (*domain.FeatureSet, error) {
		fetches.Add(1)
		return &domain.FeatureSet{Plan: "pro"}, nil
	})

	_, err := svc.Features(context.Background())
	require.NoError(t, err)

	svc.Invalidate()

	_, err = svc.Features(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestFeatureSetHas(t *testing.T) {
	fs := domain.FeatureSet{Features: map[string]bool{"export": true, "api": false}}
	assert.True(t, fs.Has("export"))
	assert.False(t, fs.Has("api"))
	assert.False(t, fs.Has("unknown"))
}
