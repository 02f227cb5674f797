package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session tracks one live login. The session store is its only owner: entries
// are created on login, touched on every validated request, and removed on
// logout, end-all, or idle eviction.
type Session struct {
	Token        string    `json:"token"`
	UserID       string    `json:"user_id"`
	LastActivity time.Time `json:"last_activity"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
}

// SessionInfo is the session view returned to its owner.
type SessionInfo struct {
	Token        string    `json:"token"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	UserAgent    string    `json:"userAgent"`
}

// Info projects the owner-facing view of a session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		Token:        s.Token,
		LastActivity: s.LastActivity,
		IPAddress:    s.IPAddress,
		UserAgent:    s.UserAgent,
	}
}

// SessionClaims is the JWT payload for session tokens. The signed expiry
// bounds absolute lifetime; the idle window is enforced separately against
// the session store.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
