package secondlevel

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/l2cache/internal/cache"
)

func newTimestamps(store cache.Store) *TimestampRegion {
	log := zap.NewNop()
	return newTimestampRegion(&storeAccess{store: store, log: log}, log)
}

func TestTimestampTouchIsMonotonic(t *testing.T) {
	ctx := context.Background()
	ts := newTimestamps(cache.NewMemoryStore())

	value, known := ts.LastInvalidation(ctx, "attraction")
	require.False(t, known)
	require.Zero(t, value)

	rng := rand.New(rand.NewSource(42))
	var high int64
	for i := 0; i < 500; i++ {
		now := rng.Int63n(10_000)
		advanced := ts.Touch(ctx, "attraction", now)
		require.Equal(t, now >= high, advanced, "touch(%d) with high=%d", now, high)

		if now > high {
			high = now
		}
		current, _ := ts.LastInvalidation(ctx, "attraction")
		require.Equal(t, high, current)
	}
}

func TestTimestampSharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	first := newTimestamps(store)
	second := newTimestamps(store)

	require.True(t, first.Touch(ctx, "attraction", 100))
	value, known := second.LastInvalidation(ctx, "attraction")
	require.True(t, known)
	require.EqualValues(t, 100, value)

	require.False(t, second.Touch(ctx, "attraction", 50))
	require.True(t, second.Touch(ctx, "attraction", 150))

	value, _ = first.LastInvalidation(ctx, "attraction")
	require.EqualValues(t, 150, value)
}

func TestTimestampFloorSurvivesStoreOutage(t *testing.T) {
	ctx := context.Background()
	ts := newTimestamps(brokenStore{})

	require.True(t, ts.Touch(ctx, "attraction", 100))
	require.False(t, ts.Touch(ctx, "attraction", 90))

	value, known := ts.LastInvalidation(ctx, "attraction")
	require.True(t, known)
	require.EqualValues(t, 100, value)

	require.False(t, ts.Fresh(ctx, []string{"attraction"}, 1_000), "unreadable timestamps count as stale")
}

func TestTimestampFresh(t *testing.T) {
	ctx := context.Background()
	ts := newTimestamps(cache.NewMemoryStore())

	require.True(t, ts.Fresh(ctx, []string{"attraction", "attraction_info"}, 1))

	ts.Touch(ctx, "attraction_info", 50)
	require.True(t, ts.Fresh(ctx, []string{"attraction_info"}, 51))
	require.False(t, ts.Fresh(ctx, []string{"attraction_info"}, 50), "equal timestamps invalidate")
	require.False(t, ts.Fresh(ctx, []string{"attraction", "attraction_info"}, 10))
}

func TestMonotonicClockStrictlyIncreases(t *testing.T) {
	clock := NewMonotonicClock()
	prev := clock.Now()
	for i := 0; i < 1000; i++ {
		next := clock.Now()
		require.Greater(t, next, prev)
		prev = next
	}
}
