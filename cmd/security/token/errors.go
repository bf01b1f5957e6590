package token

import "errors"

// Public, stable errors for callers.
var (
	ErrHMACKeyMissing  = errors.New("token HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")
	ErrInvalidLength   = errors.New("token length must be positive")
	ErrEntropy         = errors.New("token entropy source failed")
)
