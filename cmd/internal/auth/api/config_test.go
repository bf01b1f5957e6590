package authapi

import (
	"errors"
	"testing"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("FUMO_AUTH_TRUST_PROXY", "true")
	t.Setenv("FUMO_AUTH_MAX_BODY_BYTES", "4096")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if !cfg.TrustProxy {
		t.Fatalf("expected TrustProxy=true")
	}
	if cfg.MaxBodyBytes != 4096 {
		t.Fatalf("MaxBodyBytes=%d, want 4096", cfg.MaxBodyBytes)
	}
}

func TestLoadConfigFromEnv_Guardrails(t *testing.T) {
	for _, v := range []string{"12", "999999999", "lots"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("FUMO_AUTH_MAX_BODY_BYTES", v)
			if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig for %q, got %v", v, err)
			}
		})
	}
}

func TestLoadConfigFromEnv_AttemptLimit(t *testing.T) {
	t.Setenv("FUMO_AUTH_ATTEMPT_LIMIT", "0")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if newThrottle(cfg.AttemptLimit, cfg.AttemptWindow) != nil {
		t.Fatalf("expected a zero limit to disable throttling")
	}

	t.Setenv("FUMO_AUTH_ATTEMPT_LIMIT", "-1")
	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig invalid: %v", err)
	}
}
