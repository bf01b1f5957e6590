// Package token generates client tokens and derives their server-side fingerprints.
//
// Clients only ever hold the random token; the store only ever holds the fingerprint.
//
// Modes:
// - Default dev mode: SHA-256(token) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(token, key) when policy requires it.
// - Output is always FingerprintSize (32) bytes.
//
// Environment:
// - FUMO_TOKEN_HMAC_KEY: when set, enables HMAC mode.
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback).
package token
