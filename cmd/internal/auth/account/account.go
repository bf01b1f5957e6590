// Package account holds the credential flows: registration, login checks and
// password changes. HTTP concerns live in authapi.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"fumohouse/cmd/identity"
	"fumohouse/cmd/internal/auth/captcha"
	"fumohouse/cmd/security/password"
)

// Service runs account operations over a user store.
type Service struct {
	users   identity.Store
	pw      password.Config
	captcha captcha.Verifier
	log     *slog.Logger
	now     func() time.Time

	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCaptcha overrides the default no-op captcha verifier.
func WithCaptcha(v captcha.Verifier) Option {
	return func(s *Service) {
		if v != nil {
			s.captcha = v
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a Service. It hashes a throwaway password up front so
// logins for unknown users cost the same as real ones.
func NewService(users identity.Store, pw password.Config, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("account: nil user store")
	}
	s := &Service{
		users:   users,
		pw:      pw,
		captcha: captcha.Noop{},
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	dummy, err := pw.Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy
	return s, nil
}

// Register validates the form, checks the captcha and creates the user.
func (s *Service) Register(ctx context.Context, username, pass, captchaResponse string, ip net.IP) (identity.User, error) {
	if err := identity.ValidateUsername(username); err != nil {
		return identity.User{}, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	if err := s.pw.Validate(pass); err != nil {
		return identity.User{}, fmt.Errorf("%w: %w", ErrInvalidPassword, err)
	}

	if err := s.captcha.Verify(ctx, strings.TrimSpace(captchaResponse), ip); err != nil {
		if errors.Is(err, captcha.ErrRequired) || errors.Is(err, captcha.ErrInvalid) {
			s.log.Info("account.register.captcha_rejected", "username", username)
			return identity.User{}, fmt.Errorf("%w: %w", ErrCaptchaFailed, err)
		}
		return identity.User{}, err
	}

	hash, err := s.pw.Hash(pass)
	if err != nil {
		return identity.User{}, err
	}

	u, err := s.users.CreateUser(ctx, identity.CreateUserInput{
		Username:     username,
		PasswordHash: hash,
		Now:          s.now().UTC(),
	})
	if err != nil {
		if identity.IsConflict(err) {
			return identity.User{}, ErrUsernameTaken
		}
		return identity.User{}, err
	}

	s.log.Debug("account.register.created", "user_id", u.ID)
	return u, nil
}

// Authenticate checks a username/password pair. Unknown users, wrong
// passwords and unreadable stored hashes all yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, pass string) (identity.User, error) {
	u, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		if identity.IsNotFound(err) || identity.IsInvalidInput(err) {
			_, _ = s.pw.Verify(s.dummyHash, pass)
			return identity.User{}, ErrInvalidCredentials
		}
		return identity.User{}, err
	}

	if err := s.checkPassword(u, pass); err != nil {
		return identity.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// ChangePassword verifies current, checks that next and confirm agree and
// satisfy policy, then stores the new hash. Every session of the user is
// deleted in the same transaction; the count is returned.
func (s *Service) ChangePassword(ctx context.Context, user identity.User, current, next, confirm string) (int64, error) {
	// Check against the stored hash, not the copy the caller resolved earlier.
	stored, err := s.users.GetUser(ctx, user.ID)
	if err != nil {
		s.log.Error("account.password.lookup.fail", "user_id", user.ID, "err", err)
		return 0, err
	}
	if err := s.checkPassword(stored, current); err != nil {
		return 0, ErrIncorrectPassword
	}
	if next != confirm {
		return 0, ErrPasswordsDontMatch
	}
	if err := s.pw.Validate(next); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPassword, err)
	}

	hash, err := s.pw.Hash(next)
	if err != nil {
		s.log.Error("account.password.hash.fail", "user_id", user.ID, "err", err)
		return 0, err
	}

	n, err := s.users.ChangePassword(ctx, user.ID, hash, s.now().UTC())
	if err != nil {
		s.log.Error("account.password.update.fail", "user_id", user.ID, "err", err)
		return 0, err
	}

	s.log.Debug("account.password.updated", "user_id", user.ID, "sessions_deleted", n)
	return n, nil
}

func (s *Service) checkPassword(u identity.User, pass string) error {
	ok, err := s.pw.Verify(u.PasswordHash, pass)
	if err != nil {
		// A stored hash we cannot parse is an operator problem, not a typo.
		s.log.Error("account.password.malformed_hash", "user_id", u.ID, "err", err)
		return err
	}
	if !ok {
		return ErrIncorrectPassword
	}
	return nil
}
