package memcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

type row struct {
	ID   string
	Name string
}

func rowID(r row) string { return r.ID }

func newTestStore(ttl time.Duration, maxEntries int) (*Store[row], *time.Time) {
	s := NewStore[row]("test", ttl, maxEntries, rowID)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestStoreGetAfterSet(t *testing.T) {
	s, now := newTestStore(2*time.Minute, 0)

	s.Set("q=&page=1", []row{{ID: "a"}, {ID: "b"}}, &domain.PaginationInfo{Total: 2, Page: 1, PageSize: 20})

	items, p, ok := s.Get("q=&page=1")
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, 2, p.Total)

	// Within the TTL the entry stays fresh.
	*now = now.Add(119 * time.Second)
	_, _, ok = s.Get("q=&page=1")
	assert.True(t, ok)

	// Past the TTL it must be treated as absent.
	*now = now.Add(2 * time.Second)
	_, _, ok = s.Get("q=&page=1")
	assert.False(t, ok)

	// The stale entry is still reachable for the read-failure fallback path.
	items, _, ok = s.GetStale("q=&page=1")
	assert.True(t, ok)
	assert.Len(t, items, 2)
}

func TestStoreGetUnknownKey(t *testing.T) {
	s, _ := newTestStore(time.Minute, 0)
	_, _, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestStoreSetReplacesWholesale(t *testing.T) {
	s, _ := newTestStore(time.Minute, 0)

	s.Set("k", []row{{ID: "a"}}, &domain.PaginationInfo{Total: 1})
	s.Set("k", []row{{ID: "b"}, {ID: "c"}}, &domain.PaginationInfo{Total: 2})

	items, p, ok := s.Get("k")
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, 1, s.Len())
}

func TestStoreInvalidateSingleKey(t *testing.T) {
	s, _ := newTestStore(time.Minute, 0)
	s.Set("k1", []row{{ID: "a"}}, nil)
	s.Set("k2", []row{{ID: "b"}}, nil)

	s.Invalidate("k1")

	_, _, ok := s.Get("k1")
	assert.False(t, ok)
	_, _, ok = s.Get("k2")
	assert.True(t, ok, "other keys must be left untouched")
}

func TestStoreInvalidateAll(t *testing.T) {
	s, _ := newTestStore(time.Minute, 0)
	s.Set("k1", []row{{ID: "a"}}, nil)
	s.Set("k2", []row{{ID: "b"}}, nil)

	s.InvalidateAll()

	assert.Equal(t, 0, s.Len())
}

func TestStoreOptimisticDelete(t *testing.T) {
	s, _ := newTestStore(time.Minute, 0)
	s.Set("k", []row{{ID: "a"}, {ID: "b"}, {ID: "c"}}, &domain.PaginationInfo{Total: 10, Page: 1, PageSize: 3})

	removed := s.OptimisticDelete("b", "k")
	require.True(t, removed)

	items, p, ok := s.Get("k")
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "c", items[1].ID)
	assert.Equal(t, 9, p.Total, "total must be decremented by exactly 1")
}

func TestStoreOptimisticDeleteAbsentKeyIsNoop(t *testing.T) {
	s, _ := newTestStore(time.Minute, 0)

	removed := s.OptimisticDelete("a", "no-such-key")

	assert.False(t, removed)
	assert.Equal(t, 0, s.Len(), "no-op must not create a key")
}

func TestStoreOptimisticDeleteUnknownID(t *testing.T) {
	s, _ := newTestStore(time.Minute, 0)
	s.Set("k", []row{{ID: "a"}}, &domain.PaginationInfo{Total: 1})

	removed := s.OptimisticDelete("zzz", "k")

	assert.False(t, removed)
	items, p, _ := s.Get("k")
	assert.Len(t, items, 1)
	assert.Equal(t, 1, p.Total, "total must not move when nothing was removed")
}

func TestStoreEvictsOldestWhenBounded(t *testing.T) {
	s, now := newTestStore(time.Hour, 3)

	for i := 0; i < 3; i++ {
		s.Set(fmt.Sprintf("k%d", i), []row{{ID: "x"}}, nil)
		*now = now.Add(time.Second)
	}
	s.Set("k3", []row{{ID: "y"}}, nil)

	assert.Equal(t, 3, s.Len())
	_, _, ok := s.Get("k0")
	assert.False(t, ok, "oldest entry must have been evicted")
	_, _, ok = s.Get("k3")
	assert.True(t, ok)
}

func TestDetailStore(t *testing.T) {
	s := NewDetailStore[row]("detail", 2*time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Set("r1", row{ID: "r1", Name: "Brioche"})
	s.Set("r2", row{ID: "r2", Name: "Croissant"})

	got, ok := s.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "Brioche", got.Name)

	now = now.Add(3 * time.Minute)
	_, ok = s.Get("r1")
	assert.False(t, ok, "detail entries expire like list entries")

	s.Set("r1", row{ID: "r1", Name: "Brioche"})
	s.Invalidate("r1")
	_, ok = s.Get("r1")
	assert.False(t, ok)

	s.Set("r1", row{ID: "r1"})
	s.InvalidateAll()
	_, ok = s.GetStale("r1")
	assert.False(t, ok)
	_, ok = s.GetStale("r2")
	assert.False(t, ok)
}

func TestDetailStoreInvalidateMatching(t *testing.T) {
	s := NewDetailStore[row]("detail", time.Minute)

	s.Set("alice|r-1", row{ID: "r-1"})
	s.Set("bob|r-1", row{ID: "r-1"})
	s.Set("alice|r-2", row{ID: "r-2"})

	s.InvalidateMatching(func(key string) bool {
		return key == "alice|r-1" || key == "bob|r-1"
	})

	_, ok := s.GetStale("alice|r-1")
	assert.False(t, ok)
	_, ok = s.GetStale("bob|r-1")
	assert.False(t, ok)
	_, ok = s.GetStale("alice|r-2")
	assert.True(t, ok, "non-matching keys must survive")
}
