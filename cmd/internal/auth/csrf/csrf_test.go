package csrf

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"fumohouse/cmd/internal/web/cookies"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct{ results []string }

func (m *recordingMetrics) CSRFChecked(r string) { m.results = append(m.results, r) }

func newGuard(t *testing.T) (*Guard, *recordingMetrics) {
	t.Helper()
	cfg := cookies.DefaultConfig()
	cfg.Secure = false
	m := &recordingMetrics{}
	g := NewGuard(DefaultConfig(), cookies.NewJar(cfg, cookies.NewEphemeralSealer(), nil),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(m),
	)
	return g, m
}

func csrfCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "csrf_token" {
			return c
		}
	}
	return nil
}

func postForm(cookie *http.Cookie, field string) *http.Request {
	form := url.Values{}
	if field != "" {
		form.Set("csrf_token", field)
	}
	r := httptest.NewRequest(http.MethodPost, "/account/password", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return r
}

func TestIssue(t *testing.T) {
	g, _ := newGuard(t)

	rec := httptest.NewRecorder()
	tok, err := g.Issue(rec)
	require.NoError(t, err)
	assert.Len(t, tok, 64)
	assert.Equal(t, tok, rec.Header().Get("X-CSRF-Token"))

	c := csrfCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.NotContains(t, c.Value, tok)
}

func TestVerify_SuccessRotates(t *testing.T) {
	g, m := newGuard(t)

	rec := httptest.NewRecorder()
	tok, err := g.Issue(rec)
	require.NoError(t, err)
	c := csrfCookie(rec)

	rec2 := httptest.NewRecorder()
	next, err := g.Verify(rec2, postForm(c, tok))
	require.NoError(t, err)
	assert.Len(t, next, 64)
	assert.NotEqual(t, tok, next)
	assert.Equal(t, next, rec2.Header().Get("X-CSRF-Token"))
	c2 := csrfCookie(rec2)
	require.NotNil(t, c2)

	// The consumed token does not verify against the new cookie.
	_, err = g.Verify(httptest.NewRecorder(), postForm(c2, tok))
	assert.ErrorIs(t, err, ErrInvalid)

	// The new one does.
	_, err = g.Verify(httptest.NewRecorder(), postForm(c2, next))
	require.NoError(t, err)

	assert.Equal(t, []string{"ok", "rejected", "ok"}, m.results)
}

func TestVerify_FailureIssuesNothing(t *testing.T) {
	g, _ := newGuard(t)

	rec := httptest.NewRecorder()
	tok, err := g.Issue(rec)
	require.NoError(t, err)
	c := csrfCookie(rec)

	cases := map[string]*http.Request{
		"missing field":  postForm(c, ""),
		"wrong token":    postForm(c, strings.Repeat("a", 64)),
		"prefix":         postForm(c, tok[:32]),
		"missing cookie": postForm(nil, tok),
		"forged cookie":  postForm(&http.Cookie{Name: "csrf_token", Value: tok}, tok),
	}
	for name, r := range cases {
		out := httptest.NewRecorder()
		next, err := g.Verify(out, r)
		assert.ErrorIs(t, err, ErrInvalid, name)
		assert.Empty(t, next, name)
		assert.Nil(t, csrfCookie(out), name)
		assert.Empty(t, out.Header().Get("X-CSRF-Token"), name)
	}
}

func TestVerify_HeaderAndQueryEcho(t *testing.T) {
	g, _ := newGuard(t)

	rec := httptest.NewRecorder()
	tok, err := g.Issue(rec)
	require.NoError(t, err)
	c := csrfCookie(rec)

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	r.Header.Set("X-CSRF-Token", tok)
	_, err = g.Verify(httptest.NewRecorder(), r)
	require.NoError(t, err)

	r = httptest.NewRequest(http.MethodPost, "/auth/logout?csrf_token="+tok, nil)
	r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	_, err = g.Verify(httptest.NewRecorder(), r)
	require.NoError(t, err)
}

func TestProtect(t *testing.T) {
	g, _ := newGuard(t)

	var gotToken string
	h := g.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken, _ = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// Safe methods pass through and issue nothing.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, csrfCookie(rec))
	assert.Empty(t, gotToken)

	// Unsafe without a token is rejected before the handler.
	gotToken = ""
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, postForm(nil, ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, gotToken)

	issue := httptest.NewRecorder()
	tok, err := g.Issue(issue)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, postForm(csrfCookie(issue), tok))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, gotToken)
	assert.NotEqual(t, tok, gotToken)
	assert.NotNil(t, csrfCookie(rec))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.TokenLength = 8
	assert.ErrorIs(t, bad.Validate(), ErrConfig)

	bad = DefaultConfig()
	bad.FieldName = " "
	assert.ErrorIs(t, bad.Validate(), ErrConfig)
}
