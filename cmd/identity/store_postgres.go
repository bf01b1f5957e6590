package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the Postgres schema holding users and sessions.
const DefaultSchema = "fumohouse"

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - ChangePassword locks the user row, rewrites the hash and deletes sessions in one tx.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "fumohouse").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !PgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// EnsureSchema creates the schema and users table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	users := PgIdent(s.schema, "users")

	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  username_norm TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  password_changed_at TIMESTAMPTZ NULL,

  CONSTRAINT chk_users_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_users_username_norm UNIQUE (username_norm)
);
`, pgx.Identifier{s.schema}.Sanitize(), users)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

const userColumns = `id, username, username_norm, password_hash, created_at`

// CreateUser inserts a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if err := ValidateUsername(in.Username); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, Invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	userID, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           userID,
		Username:     in.Username,
		UsernameNorm: NormalizeUsername(in.Username),
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+PgIdent(s.schema, "users")+` (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.UsernameNorm, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if field, ok := PgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}
	return u, nil
}

// FindUserByUsername loads a user by case-insensitive username.
func (s *PostgresStore) FindUserByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.FindUserByUsername"

	norm := NormalizeUsername(username)
	if norm == "" {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+PgIdent(s.schema, "users")+` WHERE username_norm = $1`,
		norm,
	)
	return scanUser(op, row)
}

// GetUser loads a user by id.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUser"

	if strings.TrimSpace(userID) == "" {
		return User{}, Invalid(op, "missing user_id")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+PgIdent(s.schema, "users")+` WHERE id = $1`,
		userID,
	)
	return scanUser(op, row)
}

// ChangePassword rewrites the hash and drops all sessions of the user atomically.
func (s *PostgresStore) ChangePassword(ctx context.Context, userID, passwordHash string, now time.Time) (int64, error) {
	const op = "identity.ChangePassword"

	if strings.TrimSpace(userID) == "" {
		return 0, Invalid(op, "missing user_id")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return 0, Invalid(op, "password hash is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE `+PgIdent(s.schema, "users")+`
		    SET password_hash = $2, password_changed_at = $3
		  WHERE id = $1`,
		userID, passwordHash, now,
	)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, NotFoundError{Op: op, Resource: "user"}
	}

	tag, err = tx.Exec(ctx,
		`DELETE FROM `+PgIdent(s.schema, "sessions")+` WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, err
	}
	revoked := tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return revoked, nil
}

func scanUser(op string, row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.UsernameNorm, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// ---- helpers shared with the session store ----

// PgIdentIsValid checks if a string is a safe Postgres identifier.
func PgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// PgIdent safely quotes a schema-qualified identifier: "schema"."name".
func PgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// PgIsForeignKeyViolation reports a foreign_key_violation (23503).
func PgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503"
}

// PgClassifyUniqueViolation maps a unique_violation (23505) to a logical field name.
func PgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" {
		return "", false
	}

	// Prefer stable constraint names, fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_username_norm":
		return "username", true
	case "uq_sessions_fingerprint":
		return "session_fingerprint", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "fingerprint"):
			return "session_fingerprint", true
		default:
			return "unique", true
		}
	}
}
