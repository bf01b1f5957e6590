package authapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle_SlidingWindow(t *testing.T) {
	th := newThrottle(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	allow := func(key string, at time.Time) bool {
		ok, err := th.Allow(context.Background(), key, at)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, allow("10.0.0.1", now))
	assert.True(t, allow("10.0.0.1", now.Add(10*time.Second)))
	assert.False(t, allow("10.0.0.1", now.Add(20*time.Second)))

	// Other keys are independent.
	assert.True(t, allow("10.0.0.2", now.Add(20*time.Second)))

	// The first attempt leaves the window.
	assert.True(t, allow("10.0.0.1", now.Add(61*time.Second)))
}

func TestThrottle_DisabledIsNil(t *testing.T) {
	th := newThrottle(0, time.Minute)
	assert.Nil(t, th)
	for i := 0; i < 100; i++ {
		ok, err := th.Allow(context.Background(), "x", time.Now())
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestThrottle_SweepKeepsLiveCounts(t *testing.T) {
	th := newThrottle(3, time.Minute)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	allow := func(key string, at time.Time) bool {
		ok, err := th.Allow(ctx, key, at)
		require.NoError(t, err)
		return ok
	}

	// One attempt that will be stale and one that stays live.
	require.True(t, allow("203.0.113.9", t0))
	require.True(t, allow("203.0.113.9", t0.Add(30*time.Second)))

	// Push the limiter across an idle-eviction sweep from another address.
	now := t0.Add(70 * time.Second)
	for i := 0; i < 1024; i++ {
		allow("198.51.100.1", now)
	}

	th.mu.Lock()
	stored := len(th.events["203.0.113.9"])
	th.mu.Unlock()
	assert.Equal(t, 1, stored, "sweep must drop only the stale attempt")

	assert.True(t, allow("203.0.113.9", now))
	assert.True(t, allow("203.0.113.9", now))
	assert.False(t, allow("203.0.113.9", now))
}
