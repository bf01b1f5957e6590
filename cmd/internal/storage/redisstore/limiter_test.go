package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fumohouse/cmd/identity"
)

// Redis tests are opt-in and require FUMO_REDIS_URL.

func mustConnect(t *testing.T) *AttemptLimiter {
	t.Helper()

	url := os.Getenv("FUMO_REDIS_URL")
	if url == "" {
		t.Skip("FUMO_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, Config{URL: url, ConnectTimeout: 3 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	id, err := identity.NewULID(time.Now())
	require.NoError(t, err)

	l, err := NewAttemptLimiter(client, "fumohouse_test:"+id+":", 2, time.Minute)
	require.NoError(t, err)
	return l
}

func TestAttemptLimiter_SlidingWindow(t *testing.T) {
	l := mustConnect(t)
	ctx := context.Background()
	now := time.Now()

	allow := func(key string, at time.Time) bool {
		ok, err := l.Allow(ctx, key, at)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, allow("10.0.0.1", now))
	assert.True(t, allow("10.0.0.1", now.Add(time.Second)))
	assert.False(t, allow("10.0.0.1", now.Add(2*time.Second)))
	assert.True(t, allow("10.0.0.2", now.Add(2*time.Second)))
	assert.True(t, allow("10.0.0.1", now.Add(61*time.Second)))
}

func TestNewAttemptLimiter_Rejects(t *testing.T) {
	_, err := NewAttemptLimiter(nil, "", 1, time.Minute)
	assert.Error(t, err)
}

func TestConfig(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.NoError(t, Config{}.Validate())

	assert.ErrorIs(t, Config{URL: "http://nope", ConnectTimeout: time.Second}.Validate(), ErrParseURL)
	assert.NoError(t, Config{URL: "redis://localhost:6379/0", ConnectTimeout: time.Second}.Validate())
	assert.Error(t, Config{URL: "redis://localhost:6379/0"}.Validate())

	_, err := Connect(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrEmptyConnectionURL)
}
