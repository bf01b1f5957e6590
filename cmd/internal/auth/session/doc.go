// Package session implements cookie-backed login sessions.
//
// A client holds a random token inside the private fh_session cookie; the
// store keeps only its fingerprint. Each request is resolved to one of three
// outcomes: anonymous, authenticated, or a store failure. Sessions idle for
// longer than the renewal threshold are rotated in place (same row, new
// token) and their expiry slides forward. A Purger removes expired rows.
package session
