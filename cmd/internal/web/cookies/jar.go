package cookies

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds attributes shared by every cookie the jar writes.
type Config struct {
	Path     string        `env:"FUMO_COOKIE_PATH" envDefault:"/"`
	Domain   string        `env:"FUMO_COOKIE_DOMAIN"`
	Secure   bool          `env:"FUMO_COOKIE_SECURE" envDefault:"true"`
	SameSite http.SameSite `env:"FUMO_COOKIE_SAMESITE" envDefault:"lax"`
	// BrowserSessionTTL bounds the sealed validity of cookies that carry no Expires.
	BrowserSessionTTL time.Duration `env:"FUMO_COOKIE_BROWSER_SESSION_TTL" envDefault:"24h"`
}

// DefaultConfig matches the envDefault tags.
func DefaultConfig() Config {
	return Config{
		Path:              "/",
		Secure:            true,
		SameSite:          http.SameSiteLaxMode,
		BrowserSessionTTL: 24 * time.Hour,
	}
}

// Normalize applies guardrails: SameSite=None requires Secure.
func (c Config) Normalize() Config {
	if c.SameSite == http.SameSiteNoneMode {
		c.Secure = true
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c
}

// ParseSameSite maps strict/lax/none/default to http.SameSite. Unknown
// values fall back to Lax.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

// EnvParsers lets env.ParseWithOptions fill http.SameSite fields from names.
func EnvParsers() map[reflect.Type]env.ParserFunc {
	return map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(http.SameSite(0)): func(v string) (any, error) {
			return ParseSameSite(v), nil
		},
	}
}

// Jar reads and writes private (sealed, HttpOnly) cookies.
type Jar struct {
	cfg    Config
	sealer *Sealer
	now    func() time.Time
}

// NewJar returns a Jar. A nil clock defaults to time.Now.
func NewJar(cfg Config, sealer *Sealer, now func() time.Time) *Jar {
	if now == nil {
		now = time.Now
	}
	cfg = cfg.Normalize()
	if cfg.BrowserSessionTTL <= 0 {
		cfg.BrowserSessionTTL = 24 * time.Hour
	}
	return &Jar{cfg: cfg, sealer: sealer, now: now}
}

// SetPrivate writes a sealed cookie. A zero expires produces a browser-session
// cookie whose sealed value is still bounded by BrowserSessionTTL.
func (j *Jar) SetPrivate(w http.ResponseWriter, name, value string, expires time.Time) {
	now := j.now()
	validUntil := expires
	if validUntil.IsZero() {
		validUntil = now.Add(j.cfg.BrowserSessionTTL)
	}

	c := &http.Cookie{
		Name:     name,
		Value:    j.sealer.Seal(name, value, now, validUntil),
		Path:     j.cfg.Path,
		Domain:   j.cfg.Domain,
		HttpOnly: true,
		Secure:   j.cfg.Secure,
		SameSite: j.cfg.SameSite,
	}
	if !expires.IsZero() {
		c.Expires = expires.UTC()
		c.MaxAge = int(expires.Sub(now).Seconds())
		if c.MaxAge <= 0 {
			c.MaxAge = -1
		}
	}
	http.SetCookie(w, c)
}

// GetPrivate returns the opened value of cookie name.
// ErrNotFound when absent, ErrTampered when it does not open.
func (j *Jar) GetPrivate(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrNotFound
		}
		return "", err
	}
	if c.Value == "" {
		return "", ErrNotFound
	}
	return j.sealer.Open(name, c.Value, j.now())
}

// Remove expires cookie name on the client.
func (j *Jar) Remove(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     j.cfg.Path,
		Domain:   j.cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   j.cfg.Secure,
		SameSite: j.cfg.SameSite,
	})
}
