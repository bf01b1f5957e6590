package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fumohouse/cmd/identity"
	"fumohouse/cmd/internal/web/cookies"
	"fumohouse/cmd/security/token"
)

// Outcome classifies a resolved request. Store failures are reported as an
// error from Resolve rather than as an Outcome.
type Outcome int

const (
	// Anonymous means no usable session accompanied the request.
	Anonymous Outcome = iota
	// Authenticated means a live session was found.
	Authenticated
)

func (o Outcome) String() string {
	if o == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Resolution is the result of resolving a request's session cookie.
type Resolution struct {
	Outcome Outcome
	User    identity.User
	Session Session
	// Rotated is true when this request renewed the session and re-set the cookie.
	Rotated bool
}

// Authenticated reports whether the request carries a live session.
func (r Resolution) Authenticated() bool { return r.Outcome == Authenticated }

// Metrics receives session outcome counts. A nil Metrics is valid.
type Metrics interface {
	SessionResolved(outcome string)
	SessionRotated()
	SessionsPurged(n int64)
	SessionPurgeFailed()
}

// Manager turns session cookies into Resolutions and starts/ends sessions.
type Manager struct {
	cfg     Config
	store   Store
	jar     *cookies.Jar
	fp      token.Fingerprinter
	log     *slog.Logger
	now     func() time.Time
	metrics Metrics
	onFail  func(http.ResponseWriter, *http.Request, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMetrics attaches outcome counters.
func WithMetrics(mt Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithFailureHandler sets the response written by Middleware when resolution fails.
func WithFailureHandler(h func(http.ResponseWriter, *http.Request, error)) Option {
	return func(m *Manager) {
		if h != nil {
			m.onFail = h
		}
	}
}

// NewManager builds a Manager.
func NewManager(cfg Config, store Store, jar *cookies.Jar, fp token.Fingerprinter, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg,
		store: store,
		jar:   jar,
		fp:    fp,
		log:   slog.Default(),
		now:   time.Now,
		onFail: func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Config returns the active configuration.
func (m *Manager) Config() Config { return m.cfg }

// Resolve reads the session cookie and returns Anonymous or Authenticated.
// A non-nil error (wrapping ErrStore) is the Failure outcome; callers must
// answer with a server error and never treat the request as authenticated.
//
// When the session has been idle longer than RenewalThreshold the token is
// rotated in place and w receives the replacement cookie.
func (m *Manager) Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request) (Resolution, error) {
	tok, err := m.jar.GetPrivate(r, m.cfg.CookieName)
	if err != nil {
		if errors.Is(err, cookies.ErrTampered) {
			m.log.Debug("session.cookie.rejected", "remote_addr", r.RemoteAddr)
		}
		return m.anonymous(), nil
	}
	if tok == "" {
		return m.anonymous(), nil
	}

	now := m.now()
	user, sess, err := m.store.FindSessionByFingerprint(ctx, m.fp.Fingerprint(tok), now)
	if errors.Is(err, ErrSessionNotFound) {
		return m.anonymous(), nil
	}
	if err != nil {
		m.log.Error("session.lookup.fail", "err", err)
		m.observe("failure")
		return Resolution{}, fmt.Errorf("%w: lookup: %w", ErrStore, err)
	}

	// The store filters on expiry, but a row may lapse between query and use.
	if sess.Expired(now) {
		return m.anonymous(), nil
	}

	res := Resolution{Outcome: Authenticated, User: user, Session: sess}

	if now.Sub(sess.LastActivity()) > m.cfg.RenewalThreshold {
		rotated, err := m.rotate(ctx, w, sess, now)
		switch {
		case errors.Is(err, ErrRotationConflict):
			// Another request renewed this session first; its response carries the new cookie.
			m.log.Debug("session.renew.raced", "session_id", sess.ID)
		case err != nil:
			m.log.Error("session.renew.fail", "session_id", sess.ID, "err", err)
			m.observe("failure")
			return Resolution{}, fmt.Errorf("%w: rotate: %w", ErrStore, err)
		default:
			res.Session = rotated
			res.Rotated = true
		}
	}

	m.observe("authenticated")
	return res, nil
}

func (m *Manager) rotate(ctx context.Context, w http.ResponseWriter, sess Session, now time.Time) (Session, error) {
	tok, err := token.RandomAlphanumeric(m.cfg.TokenLength)
	if err != nil {
		return Session{}, err
	}
	exp := now.Add(m.cfg.Lifetime)

	rotated, err := m.store.RotateSession(ctx, Rotation{
		SessionID:      sess.ID,
		OldFingerprint: sess.Fingerprint,
		NewFingerprint: m.fp.Fingerprint(tok),
		Now:            now,
		ExpiresAt:      exp,
	})
	if err != nil {
		return Session{}, err
	}

	if w != nil {
		m.jar.SetPrivate(w, m.cfg.CookieName, tok, exp)
	}
	if m.metrics != nil {
		m.metrics.SessionRotated()
	}
	m.log.Info("session.renew", "session_id", sess.ID, "user_id", sess.UserID, "expires_at", exp)
	return rotated, nil
}

// Begin creates a session for userID and writes its cookie.
func (m *Manager) Begin(ctx context.Context, w http.ResponseWriter, userID string) (Session, error) {
	tok, err := token.RandomAlphanumeric(m.cfg.TokenLength)
	if err != nil {
		return Session{}, err
	}

	now := m.now()
	exp := now.Add(m.cfg.Lifetime)

	sess, err := m.store.CreateSession(ctx, NewSession{
		UserID:      userID,
		Fingerprint: m.fp.Fingerprint(tok),
		Now:         now,
		ExpiresAt:   exp,
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: create: %w", ErrStore, err)
	}

	m.jar.SetPrivate(w, m.cfg.CookieName, tok, exp)
	m.log.Info("session.begin", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// End deletes one session and clears the cookie.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, sess Session) error {
	if err := m.store.DeleteSession(ctx, sess.ID); err != nil {
		return fmt.Errorf("%w: delete: %w", ErrStore, err)
	}
	m.jar.Remove(w, m.cfg.CookieName)
	m.log.Info("session.end", "session_id", sess.ID, "user_id", sess.UserID)
	return nil
}

// EndAll deletes every session of userID and clears the cookie.
func (m *Manager) EndAll(ctx context.Context, w http.ResponseWriter, userID string) (int64, error) {
	n, err := m.store.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete all: %w", ErrStore, err)
	}
	m.jar.Remove(w, m.cfg.CookieName)
	m.log.Info("session.end_all", "user_id", userID, "count", n)
	return n, nil
}

// ClearCookie removes the session cookie without touching the store.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	m.jar.Remove(w, m.cfg.CookieName)
}

// Middleware resolves every request and stores the Resolution in its context.
// Failures stop the chain with the failure handler (500 by default).
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := m.Resolve(r.Context(), w, r)
		if err != nil {
			m.onFail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithResolution(r.Context(), res)))
	})
}

func (m *Manager) anonymous() Resolution {
	m.observe("anonymous")
	return Resolution{Outcome: Anonymous}
}

func (m *Manager) observe(outcome string) {
	if m.metrics != nil {
		m.metrics.SessionResolved(outcome)
	}
}

type ctxKey struct{}

// WithResolution attaches res to ctx.
func WithResolution(ctx context.Context, res Resolution) context.Context {
	return context.WithValue(ctx, ctxKey{}, res)
}

// FromContext returns the Resolution placed by Middleware.
func FromContext(ctx context.Context) (Resolution, bool) {
	res, ok := ctx.Value(ctxKey{}).(Resolution)
	return res, ok
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (identity.User, bool) {
	res, ok := FromContext(ctx)
	if !ok || !res.Authenticated() {
		return identity.User{}, false
	}
	return res.User, true
}
