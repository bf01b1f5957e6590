// Package cookies provides private cookies: values are sealed with PASETO
// v4.local (XChaCha20 + BLAKE2b) and written HttpOnly, so clients can neither
// read nor forge them.
package cookies
