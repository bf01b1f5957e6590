// Package memstore keeps users and sessions in process memory. It backs
// development runs without Postgres and the HTTP tests.
package memstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"fumohouse/cmd/identity"
	"fumohouse/cmd/internal/auth/session"
)

// Store implements identity.Store and session.Store behind one mutex, so a
// password change and its session wipe are observed atomically.
type Store struct {
	mu sync.Mutex

	users      map[string]identity.User
	byUsername map[string]string // username_norm -> id

	sessions      map[string]session.Session
	byFingerprint map[string]string // hex(fingerprint) -> id
}

var (
	_ identity.Store = (*Store)(nil)
	_ session.Store  = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]identity.User),
		byUsername:    make(map[string]string),
		sessions:      make(map[string]session.Session),
		byFingerprint: make(map[string]string),
	}
}

// CreateUser implements identity.Store.
func (s *Store) CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return identity.User{}, err
	}
	if err := identity.ValidateUsername(in.Username); err != nil {
		return identity.User{}, err
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return identity.User{}, identity.Invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := identity.NewULID(now)
	if err != nil {
		return identity.User{}, err
	}

	u := identity.User{
		ID:           id,
		Username:     in.Username,
		UsernameNorm: identity.NormalizeUsername(in.Username),
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[u.UsernameNorm]; taken {
		return identity.User{}, identity.ConflictError{Op: op, Field: "username"}
	}
	s.users[u.ID] = u
	s.byUsername[u.UsernameNorm] = u.ID
	return u, nil
}

// FindUserByUsername implements identity.Store.
func (s *Store) FindUserByUsername(_ context.Context, username string) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUsername[identity.NormalizeUsername(username)]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "identity.FindUserByUsername", Resource: "user"}
	}
	return s.users[id], nil
}

// GetUser implements identity.Store.
func (s *Store) GetUser(_ context.Context, userID string) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "identity.GetUser", Resource: "user"}
	}
	return u, nil
}

// ChangePassword implements identity.Store.
func (s *Store) ChangePassword(ctx context.Context, userID, passwordHash string, _ time.Time) (int64, error) {
	const op = "identity.ChangePassword"

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return 0, identity.Invalid(op, "password hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, identity.NotFoundError{Op: op, Resource: "user"}
	}
	u.PasswordHash = passwordHash
	s.users[userID] = u

	return s.deleteUserSessionsLocked(userID), nil
}

// CreateSession implements session.Store.
func (s *Store) CreateSession(ctx context.Context, in session.NewSession) (session.Session, error) {
	const op = "session.CreateSession"

	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}
	if len(in.Fingerprint) == 0 {
		return session.Session{}, identity.Invalid(op, "missing fingerprint")
	}

	id, err := identity.NewULID(in.Now)
	if err != nil {
		return session.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.UserID]; !ok {
		return session.Session{}, identity.NotFoundError{Op: op, Resource: "user"}
	}
	key := hex.EncodeToString(in.Fingerprint)
	if _, dup := s.byFingerprint[key]; dup {
		return session.Session{}, identity.ConflictError{Op: op, Field: "session_fingerprint"}
	}

	sess := session.Session{
		ID:          id,
		UserID:      in.UserID,
		Fingerprint: clone(in.Fingerprint),
		CreatedAt:   in.Now,
		ExpiresAt:   in.ExpiresAt,
	}
	s.sessions[id] = sess
	s.byFingerprint[key] = id
	return copySession(sess), nil
}

// FindSessionByFingerprint implements session.Store.
func (s *Store) FindSessionByFingerprint(ctx context.Context, fingerprint []byte, now time.Time) (identity.User, session.Session, error) {
	if err := ctx.Err(); err != nil {
		return identity.User{}, session.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byFingerprint[hex.EncodeToString(fingerprint)]
	if !ok {
		return identity.User{}, session.Session{}, session.ErrSessionNotFound
	}
	sess := s.sessions[id]
	if !sess.ExpiresAt.After(now) {
		return identity.User{}, session.Session{}, session.ErrSessionNotFound
	}
	u, ok := s.users[sess.UserID]
	if !ok {
		return identity.User{}, session.Session{}, session.ErrSessionNotFound
	}
	return u, copySession(sess), nil
}

// RotateSession implements session.Store.
func (s *Store) RotateSession(ctx context.Context, in session.Rotation) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[in.SessionID]
	if !ok || !bytes.Equal(sess.Fingerprint, in.OldFingerprint) {
		return session.Session{}, session.ErrRotationConflict
	}

	newKey := hex.EncodeToString(in.NewFingerprint)
	if _, dup := s.byFingerprint[newKey]; dup {
		return session.Session{}, identity.ConflictError{Op: "session.RotateSession", Field: "session_fingerprint"}
	}

	delete(s.byFingerprint, hex.EncodeToString(sess.Fingerprint))
	now := in.Now
	sess.Fingerprint = clone(in.NewFingerprint)
	sess.ModifiedAt = &now
	sess.ExpiresAt = in.ExpiresAt
	s.sessions[sess.ID] = sess
	s.byFingerprint[newKey] = sess.ID

	return copySession(sess), nil
}

// DeleteSession implements session.Store.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(sessionID)
	return nil
}

// DeleteUserSessions implements session.Store.
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteUserSessionsLocked(userID), nil
}

// DeleteExpiredSessions implements session.Store.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(now) {
			s.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

// SessionCount reports the number of stored sessions, expired ones included.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) deleteUserSessionsLocked(userID string) int64 {
	var n int64
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			s.deleteLocked(id)
			n++
		}
	}
	return n
}

func (s *Store) deleteLocked(id string) {
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.byFingerprint, hex.EncodeToString(sess.Fingerprint))
	delete(s.sessions, id)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func copySession(s session.Session) session.Session {
	s.Fingerprint = clone(s.Fingerprint)
	if s.ModifiedAt != nil {
		t := *s.ModifiedAt
		s.ModifiedAt = &t
	}
	return s
}
