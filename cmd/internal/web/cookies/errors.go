package cookies

import "errors"

var (
	// ErrInvalidKey indicates the configured cookie key is not 32 bytes of hex.
	ErrInvalidKey = errors.New("cookie key must be 64 hex characters")

	// ErrNotFound indicates the request carries no cookie of that name.
	ErrNotFound = errors.New("cookie not found")

	// ErrTampered indicates the cookie failed authentication, decryption or validity checks.
	ErrTampered = errors.New("cookie tampered or expired")
)
