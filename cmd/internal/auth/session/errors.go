package session

import "errors"

var (
	// ErrSessionNotFound is returned when no live session matches a fingerprint or id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRotationConflict is returned when a rotation lost the race against
	// another request that already replaced the fingerprint.
	ErrRotationConflict = errors.New("session rotated concurrently")

	// ErrStore wraps persistence failures surfaced to callers as a Failure outcome.
	ErrStore = errors.New("session store failure")

	// ErrPurgePanic is reported when a sweep recovered from a panic.
	ErrPurgePanic = errors.New("session purge panicked")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
