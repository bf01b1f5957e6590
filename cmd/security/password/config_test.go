package password

import (
	"errors"
	"os"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"FUMO_PASSWORD_MIN_LEN",
		"FUMO_PASSWORD_MAX_LEN",
		"FUMO_PASSWORD_REJECT_VERY_WEAK",
		"FUMO_ARGON2_MEMORY_KIB",
		"FUMO_ARGON2_ITERATIONS",
		"FUMO_ARGON2_PARALLELISM",
		"FUMO_ARGON2_SALT_LEN",
		"FUMO_ARGON2_KEY_LEN",
	} {
		_ = os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	def := DefaultConfig()
	if cfg != def {
		t.Fatalf("defaults mismatch: got %+v want %+v", cfg, def)
	}
	if def.Params.MemoryKiB != 19456 || def.Params.Iterations != 2 || def.Params.Parallelism != 1 {
		t.Fatalf("unexpected argon2 baseline: %+v", def.Params)
	}
	if def.Policy.MinLength != 8 {
		t.Fatalf("unexpected min length: %d", def.Policy.MinLength)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("FUMO_PASSWORD_MIN_LEN", "10")
	t.Setenv("FUMO_PASSWORD_MAX_LEN", "200")
	t.Setenv("FUMO_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("FUMO_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("FUMO_ARGON2_ITERATIONS", "4")
	t.Setenv("FUMO_ARGON2_PARALLELISM", "2")
	t.Setenv("FUMO_ARGON2_SALT_LEN", "24")
	t.Setenv("FUMO_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 || !cfg.Policy.RejectVeryWeak {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 4 || cfg.Params.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
	if cfg.Params.SaltLength != 24 || cfg.Params.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_InvalidMinMax(t *testing.T) {
	t.Setenv("FUMO_PASSWORD_MIN_LEN", "20")
	t.Setenv("FUMO_PASSWORD_MAX_LEN", "10")

	_, err := FromEnv()
	if !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
}

func TestFromEnv_OutOfRange(t *testing.T) {
	t.Setenv("FUMO_ARGON2_MEMORY_KIB", "1024")

	if _, err := FromEnv(); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
}

func TestFromEnv_NotANumber(t *testing.T) {
	t.Setenv("FUMO_ARGON2_ITERATIONS", "lots")

	if _, err := FromEnv(); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
}

func TestHash_FailsOnBrokenParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Params.Iterations = 0

	if _, err := cfg.Hash("whatever-password"); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
}
