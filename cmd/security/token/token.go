package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"io"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the fingerprint HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "FUMO_TOKEN_HMAC_KEY"

	// FingerprintSize is the byte length of every fingerprint.
	FingerprintSize = sha256.Size

	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Reader is the entropy source for generated tokens. Tests may swap it.
var Reader io.Reader = rand.Reader

// RandomAlphanumeric returns n characters drawn uniformly from [A-Za-z0-9].
// Bytes that would bias the distribution are rejected and redrawn.
func RandomAlphanumeric(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}

	// 62*4 = 248; bytes >= 248 are rejected so every symbol is equally likely.
	const limit = byte(len(alphanumeric) * 4)

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+8)
	for len(out) < n {
		if _, err := io.ReadFull(Reader, buf); err != nil {
			return "", ErrEntropy
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Fingerprinter maps client tokens to fixed-size digests for server-side storage.
// With a key it computes HMAC-SHA256(token, key); without one it falls back to SHA-256.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter returns a Fingerprinter. A nil or empty key selects plain SHA-256.
func NewFingerprinter(key []byte) Fingerprinter {
	if len(key) == 0 {
		return Fingerprinter{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Fingerprinter{key: k}
}

// Keyed reports whether fingerprints are HMAC based.
func (f Fingerprinter) Keyed() bool { return len(f.key) > 0 }

// Fingerprint returns the FingerprintSize-byte digest of tok.
func (f Fingerprinter) Fingerprint(tok string) []byte {
	if len(f.key) == 0 {
		sum := sha256.Sum256([]byte(tok))
		return sum[:]
	}
	m := hmac.New(sha256.New, f.key)
	_, _ = m.Write([]byte(tok))
	return m.Sum(nil)
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// HMACEnabled reports whether the env key is present (non-empty after trim).
// Note: This does not enforce minimum length. Use HMACKeyFromEnv for policy checks.
func HMACEnabled() bool {
	return strings.TrimSpace(os.Getenv(HMACEnvKey)) != ""
}
