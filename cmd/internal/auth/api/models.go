package authapi

import (
	"time"

	"fumohouse/cmd/identity"
)

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type csrfResponse struct {
	CSRFToken      string `json:"csrf_token"`
	CaptchaSiteKey string `json:"captcha_site_key,omitempty"`
}

type authResponse struct {
	User      userResponse `json:"user"`
	CSRFToken string       `json:"csrf_token,omitempty"`
}

type meResponse struct {
	User      userResponse `json:"user"`
	SessionID string       `json:"session_id"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type sessionsDeletedResponse struct {
	SessionsDeleted int64  `json:"sessions_deleted"`
	CSRFToken       string `json:"csrf_token,omitempty"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}
