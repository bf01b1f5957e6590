package identity

import (
	"context"
	"time"
)

// User is the security principal behind a session.
type User struct {
	ID           string
	Username     string
	UsernameNorm string
	// PasswordHash is the encoded Argon2id string. Never log it.
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUserInput describes a new account. The caller hashes the password.
type CreateUserInput struct {
	Username     string
	PasswordHash string
	Now          time.Time
}

// Store is the user persistence boundary.
type Store interface {
	// CreateUser inserts a user. A case-insensitive username clash yields a ConflictError.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// FindUserByUsername looks a user up case-insensitively. Missing -> ErrNotFound.
	FindUserByUsername(ctx context.Context, username string) (User, error)

	// GetUser loads a user by id. Missing -> ErrNotFound.
	GetUser(ctx context.Context, userID string) (User, error)

	// ChangePassword replaces the stored hash and deletes every session of the
	// user in one transaction. It returns the number of sessions removed.
	ChangePassword(ctx context.Context, userID, passwordHash string, now time.Time) (int64, error)
}
