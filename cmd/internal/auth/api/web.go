package authapi

import (
	"net"
	"net/http"
	"strings"
)

// limitBody caps request bodies before anything parses a form.
func limitBody(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

// ClientAddr renders the client IP, falling back to the raw RemoteAddr when
// it does not parse. It keys the attempt limiter, so unparseable peers must
// not collapse into one shared value.
func (h *Handler) ClientAddr(r *http.Request) string {
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		return ip.String()
	}
	return strings.TrimSpace(r.RemoteAddr)
}
