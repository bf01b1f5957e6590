package app

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	authapi "fumohouse/cmd/internal/auth/api"
	"fumohouse/cmd/internal/auth/captcha"
	"fumohouse/cmd/internal/auth/csrf"
	"fumohouse/cmd/internal/auth/session"
	"fumohouse/cmd/internal/storage/redisstore"
	"fumohouse/cmd/internal/web/cookies"
	"fumohouse/cmd/security/password"
)

// ErrConfig wraps every configuration failure.
var ErrConfig = errors.New("invalid configuration")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string `env:"FUMO_HTTP_ADDR" envDefault:"0.0.0.0:8080"`

	LogLevel  string `env:"FUMO_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"FUMO_LOG_FORMAT" envDefault:"json"`
	LogColor  bool   `env:"FUMO_LOG_COLOR" envDefault:"false"`

	ReadHeaderTimeout time.Duration `env:"FUMO_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"FUMO_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"FUMO_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"FUMO_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"FUMO_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// DatabaseURL selects Postgres; empty runs on the in-memory store.
	DatabaseURL string `env:"FUMO_DATABASE_URL"`
	DBSchema    string `env:"FUMO_DB_SCHEMA" envDefault:"fumohouse"`
	DBMaxConns  int32  `env:"FUMO_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"FUMO_DB_MIN_CONNS" envDefault:"0"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"FUMO_READINESS_REQUIRE_DB" envDefault:"false"`

	// Security policy. With RequireTokenHMAC, FUMO_TOKEN_HMAC_KEY must be set
	// (>= 32 bytes) and session fingerprints are HMAC-SHA256.
	RequireTokenHMAC bool `env:"FUMO_REQUIRE_TOKEN_HMAC" envDefault:"false"`
	// CookieKey is the hex v4.local key sealing private cookies. Without it
	// a random key is generated and every restart logs everyone out.
	CookieKey        string `env:"FUMO_COOKIE_KEY"`
	RequireCookieKey bool   `env:"FUMO_REQUIRE_COOKIE_KEY" envDefault:"false"`

	MetricsEnabled bool `env:"FUMO_METRICS_ENABLED" envDefault:"true"`

	Cookies  cookies.Config
	Session  session.Config
	CSRF     csrf.Config
	Auth     authapi.Config
	Captcha  captcha.Config
	Password password.Config
	Redis    redisstore.Config
}

// LoadConfig reads .env (when present) and the environment, then validates.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: .env: %v", ErrConfig, err)
	}
	return parseConfig()
}

func parseConfig() (Config, error) {
	cfg := Config{Password: password.DefaultConfig()}
	if err := env.ParseWithOptions(&cfg, env.Options{FuncMap: cookies.EnvParsers()}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.Cookies = cfg.Cookies.Normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every subsystem config plus cross-cutting guardrails.
func (c Config) Validate() error {
	var errs []error
	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	if err := c.CSRF.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("csrf: %w", err))
	}
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Captcha.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Password.Check(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Redis.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}
	if c.CSRF.CookieName == c.Session.CookieName {
		errs = append(errs, errors.New("csrf cookie name must differ from session cookie name"))
	}
	switch c.LogFormat {
	case "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("FUMO_LOG_FORMAT must be json or pretty, got %q", c.LogFormat))
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		errs = append(errs, errors.New("FUMO_DB_MIN_CONNS/FUMO_DB_MAX_CONNS out of range"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}
