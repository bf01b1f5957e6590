// Package csrf guards state-changing requests with single-use tokens.
//
// Issue stores a fresh token in the private csrf_token cookie and exposes it
// to the page, which echoes it back in the csrf_token form field (or the
// X-CSRF-Token header). Verify compares the echo against the cookie; a match
// consumes the token and issues the next one, a mismatch issues nothing.
package csrf

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fumohouse/cmd/internal/web/cookies"
	"fumohouse/cmd/security/token"
)

var (
	// ErrInvalid is returned when the echoed token is missing or does not match.
	ErrInvalid = errors.New("csrf token invalid")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid csrf config")
)

// Config names the cookie, field and header carrying the token.
type Config struct {
	CookieName  string `env:"FUMO_CSRF_COOKIE" envDefault:"csrf_token"`
	FieldName   string `env:"FUMO_CSRF_FIELD" envDefault:"csrf_token"`
	HeaderName  string `env:"FUMO_CSRF_HEADER" envDefault:"X-CSRF-Token"`
	TokenLength int    `env:"FUMO_CSRF_TOKEN_LENGTH" envDefault:"64"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		CookieName:  "csrf_token",
		FieldName:   "csrf_token",
		HeaderName:  "X-CSRF-Token",
		TokenLength: 64,
	}
}

// Validate checks names and token length.
func (c Config) Validate() error {
	if strings.TrimSpace(c.CookieName) == "" || strings.TrimSpace(c.FieldName) == "" || strings.TrimSpace(c.HeaderName) == "" {
		return ErrConfig
	}
	if c.TokenLength < 32 || c.TokenLength > 256 {
		return ErrConfig
	}
	return nil
}

// Metrics receives verification results ("ok", "rejected"). A nil Metrics is valid.
type Metrics interface {
	CSRFChecked(result string)
}

// Guard issues and verifies tokens.
type Guard struct {
	cfg      Config
	jar      *cookies.Jar
	log      *slog.Logger
	metrics  Metrics
	clientIP func(*http.Request) string
	onReject func(http.ResponseWriter, *http.Request, error)
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// WithMetrics attaches result counters.
func WithMetrics(m Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithClientIP sets how violations report the client address (default r.RemoteAddr).
func WithClientIP(fn func(*http.Request) string) Option {
	return func(g *Guard) {
		if fn != nil {
			g.clientIP = fn
		}
	}
}

// WithRejectHandler sets the response Protect writes on failure (default 403 text).
func WithRejectHandler(h func(http.ResponseWriter, *http.Request, error)) Option {
	return func(g *Guard) {
		if h != nil {
			g.onReject = h
		}
	}
}

// NewGuard builds a Guard.
func NewGuard(cfg Config, jar *cookies.Jar, opts ...Option) *Guard {
	g := &Guard{
		cfg:      cfg,
		jar:      jar,
		log:      slog.Default(),
		clientIP: func(r *http.Request) string { return r.RemoteAddr },
		onReject: func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Config returns the active configuration.
func (g *Guard) Config() Config { return g.cfg }

// Issue generates a token, stores it in the private cookie and mirrors it in
// the response header. Any previously issued token stops verifying.
func (g *Guard) Issue(w http.ResponseWriter) (string, error) {
	tok, err := token.RandomAlphanumeric(g.cfg.TokenLength)
	if err != nil {
		return "", err
	}
	// Browser-session cookie; the sealed value still lapses after the jar TTL.
	g.jar.SetPrivate(w, g.cfg.CookieName, tok, time.Time{})
	w.Header().Set(g.cfg.HeaderName, tok)
	return tok, nil
}

// Verify checks the echoed token against the cookie. On success it returns
// the next token, already issued on w. On failure it returns ErrInvalid and
// leaves w untouched.
func (g *Guard) Verify(w http.ResponseWriter, r *http.Request) (string, error) {
	if err := g.check(r); err != nil {
		g.log.Warn("csrf.verify.fail",
			"remote_addr", g.clientIP(r),
			"method", r.Method,
			"path", r.URL.Path,
			"reason", err.Error(),
		)
		g.observe("rejected")
		return "", ErrInvalid
	}

	g.observe("ok")
	return g.Issue(w)
}

func (g *Guard) check(r *http.Request) error {
	echoed := strings.TrimSpace(r.FormValue(g.cfg.FieldName))
	if echoed == "" {
		echoed = strings.TrimSpace(r.Header.Get(g.cfg.HeaderName))
	}
	if echoed == "" {
		return errors.New("missing echoed token")
	}

	prior, err := g.jar.GetPrivate(r, g.cfg.CookieName)
	if err != nil {
		return err
	}
	if len(prior) != len(echoed) || !token.Equal(prior, echoed) {
		return errors.New("token mismatch")
	}
	return nil
}

// Protect verifies every unsafe request before next runs. Safe methods pass
// through untouched; handlers that render forms call Issue themselves.
// After a successful check the next token is available via TokenFromContext.
func (g *Guard) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		tok, err := g.Verify(w, r)
		if err != nil {
			g.onReject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, tok)))
	})
}

func safeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func (g *Guard) observe(result string) {
	if g.metrics != nil {
		g.metrics.CSRFChecked(result)
	}
}

type ctxKey struct{}

// TokenFromContext returns the token issued after a successful Protect check.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(ctxKey{}).(string)
	return tok, ok && tok != ""
}
