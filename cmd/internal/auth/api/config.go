package authapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrConfig is returned for an unusable auth API configuration.
var ErrConfig = errors.New("invalid auth api config")

// Config controls auth API behavior and security defaults.
type Config struct {
	// TrustProxy makes client IPs come from X-Forwarded-For / X-Real-IP.
	TrustProxy   bool  `env:"FUMO_AUTH_TRUST_PROXY" envDefault:"false"`
	MaxBodyBytes int64 `env:"FUMO_AUTH_MAX_BODY_BYTES" envDefault:"65536"`

	// AttemptLimit caps login and registration attempts per client address
	// within AttemptWindow. Zero disables the limit.
	AttemptLimit  int           `env:"FUMO_AUTH_ATTEMPT_LIMIT" envDefault:"20"`
	AttemptWindow time.Duration `env:"FUMO_AUTH_ATTEMPT_WINDOW" envDefault:"1m"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: 64 << 10, AttemptLimit: 20, AttemptWindow: time.Minute}
}

// LoadConfigFromEnv loads auth API config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks bounds.
func (c Config) Validate() error {
	if c.MaxBodyBytes < 1<<10 || c.MaxBodyBytes > 1<<20 {
		return fmt.Errorf("%w: FUMO_AUTH_MAX_BODY_BYTES must be within [1KiB..1MiB]", ErrConfig)
	}
	if c.AttemptLimit < 0 || c.AttemptWindow < 0 {
		return fmt.Errorf("%w: FUMO_AUTH_ATTEMPT_LIMIT/FUMO_AUTH_ATTEMPT_WINDOW must not be negative", ErrConfig)
	}
	return nil
}
