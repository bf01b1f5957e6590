package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// CookieName is the private cookie carrying the client token.
	CookieName string `env:"FUMO_SESSION_COOKIE" envDefault:"fh_session"`

	// TokenLength is the number of alphanumeric characters in a client token.
	TokenLength int `env:"FUMO_SESSION_TOKEN_LENGTH" envDefault:"32"`

	// Lifetime is how long a session stays valid after creation or renewal.
	Lifetime time.Duration `env:"FUMO_SESSION_LIFETIME" envDefault:"720h"`

	// RenewalThreshold is the idle time after which a request rotates the token.
	RenewalThreshold time.Duration `env:"FUMO_SESSION_RENEWAL_THRESHOLD" envDefault:"15m"`

	// PurgeInterval is the period between expired-session sweeps.
	PurgeInterval time.Duration `env:"FUMO_SESSION_PURGE_INTERVAL" envDefault:"30m"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		CookieName:       "fh_session",
		TokenLength:      32,
		Lifetime:         30 * 24 * time.Hour,
		RenewalThreshold: 15 * time.Minute,
		PurgeInterval:    30 * time.Minute,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - FUMO_SESSION_COOKIE
//   - FUMO_SESSION_TOKEN_LENGTH
//   - FUMO_SESSION_LIFETIME
//   - FUMO_SESSION_RENEWAL_THRESHOLD
//   - FUMO_SESSION_PURGE_INTERVAL
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, ErrConfig
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants between the policy values.
func (c Config) Validate() error {
	if !validCookieName(c.CookieName) {
		return ErrConfig
	}
	if c.TokenLength < 16 || c.TokenLength > 128 {
		return ErrConfig
	}
	if c.Lifetime <= 0 || c.RenewalThreshold <= 0 || c.PurgeInterval <= 0 {
		return ErrConfig
	}
	// Renewal must happen well before the session could lapse.
	if c.RenewalThreshold >= c.Lifetime {
		return ErrConfig
	}
	return nil
}

func validCookieName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	// net/http drops cookies with invalid names; round-trip to detect that.
	c := &http.Cookie{Name: name, Value: "x"}
	return c.Valid() == nil
}
