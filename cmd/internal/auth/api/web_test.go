package authapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.0.2.10:5555", want: "192.0.2.10"},
		{name: "forwarded ignored without trust", remoteAddr: "192.0.2.10:5555", xff: "203.0.113.7", want: "192.0.2.10"},
		{name: "forwarded first valid", remoteAddr: "192.0.2.10:5555", xff: "garbage, 203.0.113.7, 198.51.100.1", trustProxy: true, want: "203.0.113.7"},
		{name: "real ip fallback", remoteAddr: "192.0.2.10:5555", xRealIP: "198.51.100.2", trustProxy: true, want: "198.51.100.2"},
		{name: "unparseable keeps raw addr", remoteAddr: "@unix-peer-7", want: "@unix-peer-7"},
		{name: "empty", remoteAddr: "", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xRealIP != "" {
				r.Header.Set("X-Real-IP", tc.xRealIP)
			}

			h := &Handler{cfg: Config{TrustProxy: tc.trustProxy}}
			if got := h.ClientAddr(r); got != tc.want {
				t.Fatalf("ClientAddr=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestLimitBody(t *testing.T) {
	var parseErr error
	h := limitBody(16, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parseErr = r.ParseForm()
	}))

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("username="+strings.Repeat("a", 64)))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if parseErr == nil {
		t.Fatalf("expected oversized body to fail parsing")
	}
}
