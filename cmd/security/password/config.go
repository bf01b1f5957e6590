package password

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"FUMO_ARGON2_MEMORY_KIB"`
	Iterations  uint32 `env:"FUMO_ARGON2_ITERATIONS"`
	Parallelism uint8  `env:"FUMO_ARGON2_PARALLELISM"`
	SaltLength  uint32 `env:"FUMO_ARGON2_SALT_LEN"`
	KeyLength   uint32 `env:"FUMO_ARGON2_KEY_LEN"`
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int `env:"FUMO_PASSWORD_MIN_LEN"`
	MaxLength int `env:"FUMO_PASSWORD_MAX_LEN"`
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool `env:"FUMO_PASSWORD_REJECT_VERY_WEAK"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the OWASP Argon2id baseline (19 MiB, t=2, p=1).
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   19 * 1024,
			Iterations:  2,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
// - FUMO_PASSWORD_MIN_LEN
// - FUMO_PASSWORD_MAX_LEN
// - FUMO_PASSWORD_REJECT_VERY_WEAK (true/false)
// - FUMO_ARGON2_MEMORY_KIB
// - FUMO_ARGON2_ITERATIONS
// - FUMO_ARGON2_PARALLELISM
// - FUMO_ARGON2_SALT_LEN
// - FUMO_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check validates the hashing parameters and policy. A failing Check is a
// startup-fatal misconfiguration.
func (c Config) Check() error {
	var errs []error

	p := c.Params
	errs = append(errs,
		inRange("FUMO_ARGON2_MEMORY_KIB", p.MemoryKiB, 8*1024, 1024*1024), // 8 MiB .. 1 GiB
		inRange("FUMO_ARGON2_ITERATIONS", p.Iterations, 1, 20),
		inRange("FUMO_ARGON2_PARALLELISM", uint32(p.Parallelism), 1, 64),
		inRange("FUMO_ARGON2_SALT_LEN", p.SaltLength, 8, 64),
		inRange("FUMO_ARGON2_KEY_LEN", p.KeyLength, 16, 64),
		inRange("FUMO_PASSWORD_MIN_LEN", c.Policy.MinLength, 1, 1024),
		inRange("FUMO_PASSWORD_MAX_LEN", c.Policy.MaxLength, 1, 4096),
	)
	if c.Policy.MinLength > c.Policy.MaxLength {
		errs = append(errs, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			c.Policy.MinLength,
			c.Policy.MaxLength,
		))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrMisconfigured, err)
	}
	return nil
}

func inRange[T ~int | ~uint32](name string, v, minVal, maxVal T) error {
	if v < minVal || v > maxVal {
		return fmt.Errorf("%s: %d out of range [%d..%d]", name, v, minVal, maxVal)
	}
	return nil
}
