package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fumohouse/cmd/identity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (<schema>.sessions joined to <schema>.users).
// The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema (default identity.DefaultSchema).
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !identity.PgIdentIsValid(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: identity.DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

// EnsureSchema creates the sessions table when missing. The users table must exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	sessions := s.table()

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  session_fingerprint BYTEA NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  modified_at TIMESTAMPTZ NULL,
  expires_at TIMESTAMPTZ NOT NULL,

  CONSTRAINT chk_sessions_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_sessions_fingerprint_len CHECK (octet_length(session_fingerprint) = 32),
  CONSTRAINT uq_sessions_fingerprint UNIQUE (session_fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON %s (user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON %s (expires_at);
`, sessions, identity.PgIdent(s.schema, "users"), sessions, sessions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) table() string { return identity.PgIdent(s.schema, "sessions") }

const sessionColumns = `id, user_id, session_fingerprint, created_at, modified_at, expires_at`

// CreateSession inserts a new session row keyed by a fresh ULID.
func (s *PostgresStore) CreateSession(ctx context.Context, in NewSession) (Session, error) {
	const op = "session.CreateSession"

	if strings.TrimSpace(in.UserID) == "" {
		return Session{}, identity.Invalid(op, "missing user_id")
	}
	if len(in.Fingerprint) == 0 {
		return Session{}, identity.Invalid(op, "missing fingerprint")
	}

	id, err := identity.NewULID(in.Now)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		ID:          id,
		UserID:      in.UserID,
		Fingerprint: in.Fingerprint,
		CreatedAt:   in.Now,
		ExpiresAt:   in.ExpiresAt,
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (id, user_id, session_fingerprint, created_at, modified_at, expires_at)
		 VALUES ($1, $2, $3, $4, NULL, $5)`,
		sess.ID, sess.UserID, sess.Fingerprint, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		if identity.PgIsForeignKeyViolation(err) {
			return Session{}, identity.NotFoundError{Op: op, Resource: "user"}
		}
		if field, ok := identity.PgClassifyUniqueViolation(err); ok {
			return Session{}, identity.ConflictError{Op: op, Field: field}
		}
		return Session{}, err
	}
	return sess, nil
}

// FindSessionByFingerprint loads a live session joined with its user.
func (s *PostgresStore) FindSessionByFingerprint(ctx context.Context, fingerprint []byte, now time.Time) (identity.User, Session, error) {
	var (
		u    identity.User
		sess Session
	)

	err := s.pool.QueryRow(ctx, `
		SELECT
			s.id, s.user_id, s.session_fingerprint, s.created_at, s.modified_at, s.expires_at,
			u.id, u.username, u.username_norm, u.password_hash, u.created_at
		FROM `+s.table()+` s
		JOIN `+identity.PgIdent(s.schema, "users")+` u ON u.id = s.user_id
		WHERE s.session_fingerprint = $1
		  AND s.expires_at > $2
	`, fingerprint, now).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Fingerprint,
		&sess.CreatedAt,
		&sess.ModifiedAt,
		&sess.ExpiresAt,
		&u.ID,
		&u.Username,
		&u.UsernameNorm,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.User{}, Session{}, ErrSessionNotFound
	}
	if err != nil {
		return identity.User{}, Session{}, err
	}
	return u, sess, nil
}

// RotateSession is a single compare-and-swap UPDATE on the old fingerprint.
func (s *PostgresStore) RotateSession(ctx context.Context, in Rotation) (Session, error) {
	var sess Session

	err := s.pool.QueryRow(ctx, `
		UPDATE `+s.table()+`
		SET session_fingerprint = $3,
		    modified_at = $4,
		    expires_at = $5
		WHERE id = $1
		  AND session_fingerprint = $2
		RETURNING `+sessionColumns,
		in.SessionID, in.OldFingerprint, in.NewFingerprint, in.Now, in.ExpiresAt,
	).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Fingerprint,
		&sess.CreatedAt,
		&sess.ModifiedAt,
		&sess.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrRotationConflict
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// DeleteSession removes a single session (idempotent).
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1`, sessionID)
	return err
}

// DeleteUserSessions removes all sessions for a user.
func (s *PostgresStore) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredSessions removes every row whose expiry has passed.
func (s *PostgresStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
