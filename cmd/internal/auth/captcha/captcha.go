// Package captcha verifies human-challenge responses submitted with
// registration forms.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVerifyURL is the hCaptcha siteverify endpoint.
const DefaultVerifyURL = "https://hcaptcha.com/siteverify"

// FieldName is the form field hCaptcha's widget posts its response in.
const FieldName = "h-captcha-response"

var (
	// ErrRequired indicates verification is enabled but no response was sent.
	ErrRequired = errors.New("captcha response required")
	// ErrInvalid indicates the provider rejected the response.
	ErrInvalid = errors.New("captcha invalid")
	// ErrUnavailable indicates the provider could not be reached or answered garbage.
	ErrUnavailable = errors.New("captcha provider unavailable")
	// ErrConfig indicates an unusable captcha configuration.
	ErrConfig = errors.New("captcha config invalid")
)

// Config selects and configures the verifier.
type Config struct {
	Enabled   bool          `env:"FUMO_CAPTCHA_ENABLED" envDefault:"false"`
	SiteKey   string        `env:"FUMO_HCAPTCHA_SITEKEY"`
	Secret    string        `env:"FUMO_HCAPTCHA_SECRET"`
	VerifyURL string        `env:"FUMO_HCAPTCHA_VERIFY_URL" envDefault:"https://hcaptcha.com/siteverify"`
	Timeout   time.Duration `env:"FUMO_HCAPTCHA_TIMEOUT" envDefault:"5s"`
}

// Validate reports whether an enabled verifier has what it needs.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.SiteKey) == "" {
		return fmt.Errorf("%w: FUMO_HCAPTCHA_SITEKEY is required when captcha is enabled", ErrConfig)
	}
	if strings.TrimSpace(c.Secret) == "" {
		return fmt.Errorf("%w: FUMO_HCAPTCHA_SECRET is required when captcha is enabled", ErrConfig)
	}
	if _, err := url.ParseRequestURI(c.VerifyURL); err != nil {
		return fmt.Errorf("%w: FUMO_HCAPTCHA_VERIFY_URL: %v", ErrConfig, err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: FUMO_HCAPTCHA_TIMEOUT must be > 0", ErrConfig)
	}
	return nil
}

// Verifier checks a user-provided captcha response.
type Verifier interface {
	Verify(ctx context.Context, response string, ip net.IP) error
}

// New returns the verifier cfg describes: HCaptcha when enabled, Noop otherwise.
func New(cfg Config) (Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return NewHCaptcha(cfg.Secret, cfg.VerifyURL, &http.Client{Timeout: cfg.Timeout}), nil
}

// Noop accepts every response. Used when captcha is disabled.
type Noop struct{}

// Verify always succeeds.
func (Noop) Verify(_ context.Context, _ string, _ net.IP) error { return nil }

// HCaptcha verifies responses against the hCaptcha siteverify API.
type HCaptcha struct {
	secret string
	url    string
	client *http.Client
}

// NewHCaptcha builds a verifier. A nil client uses http.DefaultClient.
func NewHCaptcha(secret, verifyURL string, client *http.Client) *HCaptcha {
	if client == nil {
		client = http.DefaultClient
	}
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	return &HCaptcha{secret: secret, url: verifyURL, client: client}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// Verify posts the response and secret as a form and reads the success flag.
func (h *HCaptcha) Verify(ctx context.Context, response string, ip net.IP) error {
	response = strings.TrimSpace(response)
	if response == "" {
		return ErrRequired
	}

	form := url.Values{}
	form.Set("response", response)
	form.Set("secret", h.secret)
	if ip != nil {
		form.Set("remoteip", ip.String())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, res.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if !out.Success {
		if len(out.ErrorCodes) > 0 {
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(out.ErrorCodes, ","))
		}
		return ErrInvalid
	}
	return nil
}
