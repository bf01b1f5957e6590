package authapi

import (
	"context"
	"log/slog"
	"net"
	"strings"
)

// audit writes security events to the log. Passwords and tokens never reach it.
func (h *Handler) audit(ctx context.Context, action string, userID string, ip net.IP, ua string, attrs ...slog.Attr) {
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	all := make([]slog.Attr, 0, len(attrs)+3)
	if userID != "" {
		all = append(all, slog.String("user_id", userID))
	}
	if ip != nil {
		all = append(all, slog.String("ip", ip.String()))
	}
	if ua = strings.TrimSpace(ua); ua != "" {
		all = append(all, slog.String("user_agent", ua))
	}
	all = append(all, attrs...)

	h.log.LogAttrs(ctx, slog.LevelInfo, action, all...)
}

func (h *Handler) auditLoginFailed(ctx context.Context, userID string, ip net.IP, ua, identifier, reason string) {
	h.audit(ctx, "auth.login.failed", userID, ip, ua,
		slog.String("identifier", identifier),
		slog.String("reason", reason),
	)
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID, sessionID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.login.success", userID, ip, ua, slog.String("session_id", sessionID))
}

func (h *Handler) auditRegistered(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.register.success", userID, ip, ua)
}

func (h *Handler) auditLogout(ctx context.Context, userID, sessionID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.logout", userID, ip, ua, slog.String("session_id", sessionID))
}

func (h *Handler) auditLogoutAll(ctx context.Context, userID string, ip net.IP, ua string, n int64) {
	h.audit(ctx, "auth.logout_all", userID, ip, ua, slog.Int64("sessions_deleted", n))
}

func (h *Handler) auditPasswordChanged(ctx context.Context, userID string, ip net.IP, ua string, n int64) {
	h.audit(ctx, "account.password.changed", userID, ip, ua, slog.Int64("sessions_deleted", n))
}
