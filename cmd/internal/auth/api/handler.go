package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fumohouse/cmd/internal/auth/account"
	"fumohouse/cmd/internal/auth/captcha"
	"fumohouse/cmd/internal/auth/csrf"
	"fumohouse/cmd/internal/auth/session"
)

// Form field names accepted by the auth endpoints.
const (
	fieldUsername        = "username"
	fieldPassword        = "password"
	fieldCurrentPassword = "current_password"
	fieldNewPassword     = "new_password"
	fieldVerifyPassword  = "verify_password"
)

// Handler wires HTTP auth endpoints to the account service, session manager
// and CSRF guard.
type Handler struct {
	log *slog.Logger
	cfg Config

	accounts *account.Service
	sessions *session.Manager
	csrf     *csrf.Guard
	attempts AttemptLimiter

	captchaSiteKey string
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithCaptchaSiteKey publishes the hCaptcha site key on GET /auth/csrf.
func WithCaptchaSiteKey(key string) HandlerOption {
	return func(h *Handler) {
		if h != nil {
			h.captchaSiteKey = strings.TrimSpace(key)
		}
	}
}

// WithAttemptLimiter replaces the in-process attempt limiter, typically with
// one shared between instances.
func WithAttemptLimiter(l AttemptLimiter) HandlerOption {
	return func(h *Handler) {
		if h != nil && l != nil {
			h.attempts = l
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, accounts *account.Service, sessions *session.Manager, guard *csrf.Guard, opts ...HandlerOption) (*Handler, error) {
	if accounts == nil || sessions == nil || guard == nil {
		return nil, errors.New("auth: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		sessions: sessions,
		csrf:     guard,
	}
	if th := newThrottle(cfg.AttemptLimit, cfg.AttemptWindow); th != nil {
		h.attempts = th
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux. Every route runs behind
// the body limit, CSRF verification of unsafe methods and session resolution.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.Handle("/auth/csrf", h.Wrap(http.HandlerFunc(h.handleCSRF)))
	mux.Handle("/auth/register", h.Wrap(http.HandlerFunc(h.handleRegister)))
	mux.Handle("/auth/login", h.Wrap(http.HandlerFunc(h.handleLogin)))
	mux.Handle("/auth/logout", h.Wrap(http.HandlerFunc(h.handleLogout)))
	mux.Handle("/auth/logout_all", h.Wrap(http.HandlerFunc(h.handleLogoutAll)))
	mux.Handle("/account/password", h.Wrap(http.HandlerFunc(h.handlePasswordChange)))
	mux.Handle("/me", h.Wrap(http.HandlerFunc(h.handleMe)))
}

// Wrap applies the auth middleware chain to next.
func (h *Handler) Wrap(next http.Handler) http.Handler {
	return limitBody(h.cfg.MaxBodyBytes, h.csrf.Protect(h.sessions.Middleware(next)))
}

// RejectCSRF is the JSON response for a failed CSRF check.
func RejectCSRF(w http.ResponseWriter, _ *http.Request, _ error) {
	writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
}

// SessionFailure is the JSON response for an unresolvable session.
func SessionFailure(w http.ResponseWriter, _ *http.Request, _ error) {
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}

// ---- handlers ----

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tok, err := h.csrf.Issue(w)
	if err != nil {
		h.log.Error("auth.csrf.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, csrfResponse{CSRFToken: tok, CaptchaSiteKey: h.captchaSiteKey})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := readForm(r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "invalid request body")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	if !h.allowAttempt(w, r) {
		return
	}

	u, err := h.accounts.Register(ctx,
		formValue(r, fieldUsername),
		formValue(r, fieldPassword),
		formValue(r, captcha.FieldName),
		ip,
	)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrInvalidUsername):
			writeError(w, http.StatusBadRequest, "invalid_username", account.ErrInvalidUsername.Error())
		case errors.Is(err, account.ErrInvalidPassword):
			writeError(w, http.StatusBadRequest, "invalid_password", passwordPolicyMessage(err))
		case errors.Is(err, account.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "username_taken", account.ErrUsernameTaken.Error())
		case errors.Is(err, account.ErrCaptchaFailed):
			writeError(w, http.StatusForbidden, "captcha_invalid", account.ErrCaptchaFailed.Error())
		case errors.Is(err, captcha.ErrUnavailable):
			h.log.Error("auth.register.captcha.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}
	h.auditRegistered(ctx, u.ID, ip, r.UserAgent())

	h.endCurrent(w, r)
	sess, err := h.sessions.Begin(ctx, w, u.ID)
	if err != nil {
		h.log.Error("auth.register.begin_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.auditLoginSuccess(ctx, u.ID, sess.ID, ip, r.UserAgent())

	writeJSON(w, http.StatusCreated, authResponse{User: toUserResponse(u), CSRFToken: nextCSRF(r)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := readForm(r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "invalid request body")
		return
	}

	username := strings.TrimSpace(formValue(r, fieldUsername))
	password := formValue(r, fieldPassword)
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()
	if !h.allowAttempt(w, r) {
		return
	}

	u, err := h.accounts.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			h.auditLoginFailed(ctx, "", ip, ua, username, "invalid_credentials")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.endCurrent(w, r)
	sess, err := h.sessions.Begin(ctx, w, u.ID)
	if err != nil {
		h.log.Error("auth.login.begin_session.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.auditLoginSuccess(ctx, u.ID, sess.ID, ip, ua)

	writeJSON(w, http.StatusOK, authResponse{User: toUserResponse(u), CSRFToken: nextCSRF(r)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	res, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.sessions.End(ctx, w, res.Session); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLogout(ctx, res.User.ID, res.Session.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	res, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	n, err := h.sessions.EndAll(ctx, w, res.User.ID)
	if err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditLogoutAll(ctx, res.User.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent(), n)
	writeJSON(w, http.StatusOK, sessionsDeletedResponse{SessionsDeleted: n, CSRFToken: nextCSRF(r)})
}

func (h *Handler) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	res, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	if err := readForm(r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "invalid request body")
		return
	}

	ctx := r.Context()
	n, err := h.accounts.ChangePassword(ctx, res.User,
		formValue(r, fieldCurrentPassword),
		formValue(r, fieldNewPassword),
		formValue(r, fieldVerifyPassword),
	)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrIncorrectPassword):
			writeError(w, http.StatusForbidden, "password_incorrect", account.ErrIncorrectPassword.Error())
		case errors.Is(err, account.ErrPasswordsDontMatch):
			writeError(w, http.StatusBadRequest, "passwords_dont_match", account.ErrPasswordsDontMatch.Error())
		case errors.Is(err, account.ErrInvalidPassword):
			writeError(w, http.StatusBadRequest, "invalid_password", passwordPolicyMessage(err))
		default:
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	// Every session, this one included, is gone; drop the stale cookie too.
	h.sessions.ClearCookie(w)
	h.auditPasswordChanged(ctx, res.User.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent(), n)
	writeJSON(w, http.StatusOK, sessionsDeletedResponse{SessionsDeleted: n, CSRFToken: nextCSRF(r)})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	res, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:      toUserResponse(res.User),
		SessionID: res.Session.ID,
		ExpiresAt: res.Session.ExpiresAt,
	})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.Resolution, bool) {
	res, ok := session.FromContext(r.Context())
	if !ok || !res.Authenticated() {
		writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
		return session.Resolution{}, false
	}
	return res, true
}

// endCurrent drops the session the request arrived with, if any, so a fresh
// login never inherits it.
func (h *Handler) endCurrent(w http.ResponseWriter, r *http.Request) {
	res, ok := session.FromContext(r.Context())
	if !ok || !res.Authenticated() {
		return
	}
	if err := h.sessions.End(r.Context(), w, res.Session); err != nil {
		h.log.Warn("auth.session.replace.fail", "session_id", res.Session.ID, "err", err)
	}
}

func (h *Handler) allowAttempt(w http.ResponseWriter, r *http.Request) bool {
	if h.attempts == nil {
		return true
	}
	addr := h.ClientAddr(r)
	ok, err := h.attempts.Allow(r.Context(), addr, time.Now())
	if err != nil {
		// A broken limiter backend must not lock everyone out.
		h.log.Warn("auth.attempt.limiter.fail", "err", err)
		return true
	}
	if ok {
		return true
	}
	h.log.Warn("auth.attempt.throttled", "ip", addr, "path", r.URL.Path)
	w.Header().Set("Retry-After", strconv.Itoa(int(h.cfg.AttemptWindow.Seconds())))
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts, slow down")
	return false
}

func nextCSRF(r *http.Request) string {
	tok, _ := csrf.TokenFromContext(r.Context())
	return tok
}

func passwordPolicyMessage(err error) string {
	// The wrapped policy error is safe to show: it names a rule, not a value.
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
