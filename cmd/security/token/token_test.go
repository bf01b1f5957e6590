package token

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRandomAlphanumeric_LengthAndCharset(t *testing.T) {
	for _, n := range []int{1, 32, 64, 257} {
		s, err := RandomAlphanumeric(n)
		if err != nil {
			t.Fatalf("RandomAlphanumeric(%d) err: %v", n, err)
		}
		if len(s) != n {
			t.Fatalf("len = %d, want %d", len(s), n)
		}
		for _, r := range s {
			if !strings.ContainsRune(alphanumeric, r) {
				t.Fatalf("unexpected rune %q in %q", r, s)
			}
		}
	}
}

func TestRandomAlphanumeric_Distinct(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		s, err := RandomAlphanumeric(32)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate token %q", s)
		}
		seen[s] = struct{}{}
	}
}

func TestRandomAlphanumeric_RejectsBadLength(t *testing.T) {
	if _, err := RandomAlphanumeric(0); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestRandomAlphanumeric_EntropyFailure(t *testing.T) {
	old := Reader
	Reader = failingReader{}
	t.Cleanup(func() { Reader = old })

	if _, err := RandomAlphanumeric(8); !errors.Is(err, ErrEntropy) {
		t.Fatalf("expected ErrEntropy, got %v", err)
	}
}

func TestFingerprint_SizeAndDeterminism(t *testing.T) {
	plain := NewFingerprinter(nil)
	keyed := NewFingerprinter([]byte("0123456789abcdef0123456789abcdef"))

	if plain.Keyed() || !keyed.Keyed() {
		t.Fatalf("Keyed() mismatch")
	}

	a := plain.Fingerprint("tok")
	b := plain.Fingerprint("tok")
	if len(a) != FingerprintSize || !bytes.Equal(a, b) {
		t.Fatalf("plain fingerprint not stable/sized: %x %x", a, b)
	}

	k := keyed.Fingerprint("tok")
	if len(k) != FingerprintSize {
		t.Fatalf("keyed len = %d", len(k))
	}
	if bytes.Equal(a, k) {
		t.Fatalf("keyed fingerprint must differ from plain sha256")
	}
	if bytes.Equal(plain.Fingerprint("tok"), plain.Fingerprint("tok2")) {
		t.Fatalf("distinct tokens must not collide")
	}
}

func TestHMACKeyFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := HMACKeyFromEnv(32); !errors.Is(err, ErrHMACKeyMissing) {
		t.Fatalf("expected missing, got %v", err)
	}
	t.Setenv(HMACEnvKey, "short")
	if _, err := HMACKeyFromEnv(32); !errors.Is(err, ErrHMACKeyTooShort) {
		t.Fatalf("expected too short, got %v", err)
	}
	t.Setenv(HMACEnvKey, "  "+strings.Repeat("k", 32)+"  ")
	k, err := HMACKeyFromEnv(32)
	if err != nil || len(k) != 32 {
		t.Fatalf("unexpected: %v len=%d", err, len(k))
	}
	if !HMACEnabled() {
		t.Fatalf("HMACEnabled should be true")
	}
}

func TestEqual(t *testing.T) {
	if !Equal("abc", "abc") || Equal("abc", "abd") || Equal("abc", "ab") {
		t.Fatalf("Equal mismatch")
	}
}
