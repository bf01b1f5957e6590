package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fumohouse/cmd/identity"
	"fumohouse/cmd/internal/auth/session"
	"fumohouse/cmd/internal/storage/memstore"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := parseConfig()
	require.NoError(t, err)
	cfg.DatabaseURL = ""
	cfg.Redis.URL = ""
	cfg.Password.Params.MemoryKiB = 8 * 1024
	cfg.Password.Params.Iterations = 1
	return cfg
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return a
}

func TestApp_ProbesAndHeaders(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	h := a.Handler()

	apitest.New().
		Handler(h).
		Get("/healthz").
		Expect(t).
		Status(http.StatusOK).
		Body("ok\n").
		Header("X-Content-Type-Options", "nosniff").
		Header("X-Frame-Options", "DENY").
		End()

	apitest.New().
		Handler(h).
		Get("/readyz").
		Expect(t).
		Status(http.StatusOK).
		End()
}

func TestApp_ReadyzRequiresDB(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReadinessRequireDB = true

	apitest.New().
		Handler(newTestApp(t, cfg).Handler()).
		Get("/readyz").
		Expect(t).
		Status(http.StatusServiceUnavailable).
		End()
}

func TestApp_MetricsToggle(t *testing.T) {
	cfg := testConfig(t)

	apitest.New().
		Handler(newTestApp(t, cfg).Handler()).
		Get("/metrics").
		Expect(t).
		Status(http.StatusOK).
		Assert(func(res *http.Response, _ *http.Request) error {
			b, err := io.ReadAll(res.Body)
			if err != nil {
				return err
			}
			assert.True(t, strings.Contains(string(b), "go_goroutines"))
			return nil
		}).
		End()

	cfg.MetricsEnabled = false
	apitest.New().
		Handler(newTestApp(t, cfg).Handler()).
		Get("/metrics").
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func TestApp_AuthRoutesMounted(t *testing.T) {
	h := newTestApp(t, testConfig(t)).Handler()

	apitest.New().
		Handler(h).
		Get("/me").
		Expect(t).
		Status(http.StatusUnauthorized).
		Assert(jsonpath.Equal(`$.error.code`, "unauthorized")).
		End()

	apitest.New().
		Handler(h).
		Get("/auth/csrf").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Present(`$.csrf_token`)).
		CookiePresent("csrf_token").
		End()
}

func TestApp_PurgeExpired(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	mem, ok := a.stores.Sessions.(*memstore.Store)
	require.True(t, ok)

	ctx := context.Background()
	hash, err := a.cfg.Password.Hash("purge-me-please")
	require.NoError(t, err)
	u, err := a.stores.Users.CreateUser(ctx, identity.CreateUserInput{
		Username:     "Kogasa",
		PasswordHash: hash,
		Now:          time.Now().UTC(),
	})
	require.NoError(t, err)

	past := time.Now().UTC().Add(-2 * time.Hour)
	_, err = mem.CreateSession(ctx, session.NewSession{
		UserID:      u.ID,
		Fingerprint: make([]byte, 32),
		Now:         past,
		ExpiresAt:   past.Add(time.Hour),
	})
	require.NoError(t, err)

	n, err := a.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 0, mem.SessionCount())
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTPAddr = "127.0.0.1:0"
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
