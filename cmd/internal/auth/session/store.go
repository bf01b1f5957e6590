package session

import (
	"context"
	"time"

	"fumohouse/cmd/identity"
)

// Session mirrors a sessions row. The client token itself is never stored.
type Session struct {
	ID          string
	UserID      string
	Fingerprint []byte
	CreatedAt   time.Time
	// ModifiedAt is set on every renewal; nil until the first one.
	ModifiedAt *time.Time
	ExpiresAt  time.Time
}

// LastActivity is the later of creation and the most recent renewal.
func (s Session) LastActivity() time.Time {
	if s.ModifiedAt != nil {
		return *s.ModifiedAt
	}
	return s.CreatedAt
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NewSession is the input to Store.CreateSession.
type NewSession struct {
	UserID      string
	Fingerprint []byte
	Now         time.Time
	ExpiresAt   time.Time
}

// Rotation replaces a session's fingerprint in place. It only applies while
// the row still carries OldFingerprint.
type Rotation struct {
	SessionID      string
	OldFingerprint []byte
	NewFingerprint []byte
	Now            time.Time
	ExpiresAt      time.Time
}

// Store abstracts persistence for session state.
type Store interface {
	// CreateSession inserts a row and returns it with its generated id.
	CreateSession(ctx context.Context, in NewSession) (Session, error)

	// FindSessionByFingerprint returns the live session (expires_at > now) with
	// that fingerprint together with its user. Missing -> ErrSessionNotFound.
	FindSessionByFingerprint(ctx context.Context, fingerprint []byte, now time.Time) (identity.User, Session, error)

	// RotateSession swaps the fingerprint, sets modified_at and slides the expiry.
	// A row that no longer carries OldFingerprint -> ErrRotationConflict.
	RotateSession(ctx context.Context, in Rotation) (Session, error)

	// DeleteSession removes one session. Deleting a missing row is not an error.
	DeleteSession(ctx context.Context, sessionID string) error

	// DeleteUserSessions removes every session of a user and returns the count.
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)

	// DeleteExpiredSessions removes rows with expires_at < now and returns the count.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
