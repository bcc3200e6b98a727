package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the JWT payload. Subject carries the user id.
type TokenClaims struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated identity behind a bearer credential
type Principal struct {
	Subject   string
	SessionID string
}

// TokenPair holds a freshly issued access/refresh pair
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Session is one logged-in device
type Session struct {
	ID        string
	UserID    string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpiredAt reports whether the session has lapsed by now
func (s *Session) IsExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionResponse is a session as listed to its owner
type SessionResponse struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsCurrent bool      `json:"is_current"`
}

// ToResponse renders the session, flagging it when it is the caller's own.
func (s *Session) ToResponse(currentSessionID string) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		IsCurrent: s.ID == currentSessionID,
	}
}
