// Package app wires the fumohouse server runtime: config, logging, stores,
// the session machinery and HTTP routes.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fumohouse/cmd/identity"
	"fumohouse/cmd/internal/auth/account"
	authapi "fumohouse/cmd/internal/auth/api"
	"fumohouse/cmd/internal/auth/captcha"
	"fumohouse/cmd/internal/auth/csrf"
	"fumohouse/cmd/internal/auth/session"
	"fumohouse/cmd/internal/metrics"
	"fumohouse/cmd/internal/storage/memstore"
	"fumohouse/cmd/internal/storage/redisstore"
	"fumohouse/cmd/internal/web/cookies"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Stores groups the persistence boundaries the app runs on.
type Stores struct {
	Users    identity.Store
	Sessions session.Store
}

// App is the fumohouse server runtime.
type App struct {
	cfg Config
	log Logger

	stores    Stores
	dbPool    *pgxpool.Pool
	dbEnabled bool
	redis     *redis.Client

	metrics *metrics.Auth
	auth    *authapi.Handler
	purger  *session.Purger
}

// New constructs a fully wired App. With no FUMO_DATABASE_URL it runs on the
// in-memory store.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	stores, pool, err := newStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var (
		rdb     *redis.Client
		limiter authapi.AttemptLimiter
	)
	if cfg.Redis.Enabled() {
		rdb, err = redisstore.Connect(ctx, cfg.Redis)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, err
		}
		log.Info("redis.enabled")
		if cfg.Auth.AttemptLimit > 0 {
			limiter, err = redisstore.NewAttemptLimiter(rdb, cfg.Redis.KeyPrefix, cfg.Auth.AttemptLimit, cfg.Auth.AttemptWindow)
			if err != nil {
				_ = rdb.Close()
				if pool != nil {
					pool.Close()
				}
				return nil, err
			}
		}
	}

	a, err := newApp(cfg, log, stores, limiter)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}
	a.dbPool = pool
	a.dbEnabled = pool != nil
	a.redis = rdb
	return a, nil
}

// newApp builds the runtime over ready stores. A nil limiter keeps the
// in-process attempt limit.
func newApp(cfg Config, log Logger, stores Stores, limiter authapi.AttemptLimiter) (*App, error) {
	fp, err := newFingerprinter(log)
	if err != nil {
		return nil, err
	}
	sealer, err := newSealer(cfg, log)
	if err != nil {
		return nil, err
	}

	var mt *metrics.Auth
	if cfg.MetricsEnabled {
		mt = metrics.NewAuth()
	}

	verifier, err := captcha.New(cfg.Captcha)
	if err != nil {
		return nil, err
	}
	accounts, err := account.NewService(stores.Users, cfg.Password,
		account.WithLogger(log),
		account.WithCaptcha(verifier),
	)
	if err != nil {
		return nil, err
	}

	jar := cookies.NewJar(cfg.Cookies, sealer, nil)
	mgr := session.NewManager(cfg.Session, stores.Sessions, jar, fp,
		session.WithLogger(log),
		session.WithMetrics(mt),
		session.WithFailureHandler(authapi.SessionFailure),
	)

	var auth *authapi.Handler
	guard := csrf.NewGuard(cfg.CSRF, jar,
		csrf.WithLogger(log),
		csrf.WithClientIP(func(r *http.Request) string { return auth.ClientAddr(r) }),
		csrf.WithMetrics(mt),
		csrf.WithRejectHandler(authapi.RejectCSRF),
	)
	opts := []authapi.HandlerOption{}
	if limiter != nil {
		opts = append(opts, authapi.WithAttemptLimiter(limiter))
	}
	if cfg.Captcha.Enabled {
		opts = append(opts, authapi.WithCaptchaSiteKey(cfg.Captcha.SiteKey))
	}
	auth, err = authapi.NewHandler(log, cfg.Auth, accounts, mgr, guard, opts...)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		log:     log,
		stores:  stores,
		metrics: mt,
		auth:    auth,
		purger:  session.NewPurger(stores.Sessions, cfg.Session.PurgeInterval, log, mt),
	}, nil
}

// newStores picks Postgres when configured and ensures its tables exist.
func newStores(ctx context.Context, cfg Config, log Logger) (Stores, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		mem := memstore.New()
		return Stores{Users: mem, Sessions: mem}, nil, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return Stores{}, nil, err
	}

	stores, err := newPostgresStores(ctx, pool, cfg.DBSchema)
	if err != nil {
		pool.Close()
		return Stores{}, nil, err
	}
	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)
	return stores, pool, nil
}

func newPostgresStores(ctx context.Context, pool *pgxpool.Pool, schema string) (Stores, error) {
	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		return Stores{}, err
	}
	if err := users.EnsureSchema(ctx); err != nil {
		return Stores{}, err
	}

	sessions, err := session.NewPostgresStore(pool, session.WithSchema(schema))
	if err != nil {
		return Stores{}, err
	}
	if err := sessions.EnsureSchema(ctx); err != nil {
		return Stores{}, err
	}
	return Stores{Users: users, Sessions: sessions}, nil
}

// Handler returns the complete HTTP handler, middleware included.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)
	return WithRequestLogging(WithSecurityHeaders(mux), a.log)
}

// Run starts the purger and the HTTP server, and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	purgeCtx, stopPurge := context.WithCancel(ctx)
	purgeDone := make(chan struct{})
	go func() {
		defer close(purgeDone)
		a.purger.Run(purgeCtx)
	}()

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	stopPurge()
	<-purgeDone
	a.Close()

	if runErr == nil {
		a.log.Info("server.stopped")
	}
	return runErr
}

// PurgeExpired runs a single sweep, for the purge-sessions command.
func (a *App) PurgeExpired(ctx context.Context) (int64, error) {
	return a.purger.Sweep(ctx)
}

// Close releases the database pool and Redis client, if any.
func (a *App) Close() {
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
