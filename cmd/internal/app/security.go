package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fumohouse/cmd/internal/web/cookies"
	"fumohouse/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy. Failing here
// is fatal: a silent fallback to weaker settings in production is worse than
// not starting.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.RequireTokenHMAC {
		if _, err := token.HMACKeyFromEnv(32); err != nil {
			switch {
			case errors.Is(err, token.ErrHMACKeyMissing):
				return errors.New("security policy: FUMO_REQUIRE_TOKEN_HMAC=true but FUMO_TOKEN_HMAC_KEY is missing")
			case errors.Is(err, token.ErrHMACKeyTooShort):
				return errors.New("security policy: FUMO_REQUIRE_TOKEN_HMAC=true but FUMO_TOKEN_HMAC_KEY is too short (min 32 bytes)")
			default:
				return err
			}
		}
		if !token.HMACEnabled() {
			return errors.New("security policy: FUMO_REQUIRE_TOKEN_HMAC=true but fingerprints are not in HMAC mode")
		}
	}

	if cfg.RequireCookieKey && strings.TrimSpace(cfg.CookieKey) == "" {
		return errors.New("security policy: FUMO_REQUIRE_COOKIE_KEY=true but FUMO_COOKIE_KEY is missing")
	}
	if key := strings.TrimSpace(cfg.CookieKey); key != "" {
		if _, err := cookies.NewSealer(key); err != nil {
			return fmt.Errorf("security policy: FUMO_COOKIE_KEY: %w", err)
		}
	}
	return nil
}

// newFingerprinter keys session fingerprints with FUMO_TOKEN_HMAC_KEY when
// set, plain SHA-256 otherwise.
func newFingerprinter(log *slog.Logger) (token.Fingerprinter, error) {
	key, err := token.HMACKeyFromEnv(32)
	switch {
	case err == nil:
		return token.NewFingerprinter(key), nil
	case errors.Is(err, token.ErrHMACKeyMissing):
		log.Warn("security.fingerprint.unkeyed", "hint", "set FUMO_TOKEN_HMAC_KEY to key session fingerprints")
		return token.NewFingerprinter(nil), nil
	default:
		return token.Fingerprinter{}, err
	}
}

// newSealer opens the cookie sealing key, or generates an ephemeral one.
func newSealer(cfg Config, log *slog.Logger) (*cookies.Sealer, error) {
	if key := strings.TrimSpace(cfg.CookieKey); key != "" {
		return cookies.NewSealer(key)
	}
	log.Warn("security.cookie_key.ephemeral", "hint", "set FUMO_COOKIE_KEY to keep sessions across restarts")
	return cookies.NewEphemeralSealer(), nil
}
