package models

import (
	"time"
)

type User struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	EmailVerified bool
	Role          string // "user" or "admin"
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserPreferences holds per-user settings, including the second factor.
// MFAEnabled implies TOTPSecret is non-empty. A non-empty secret with
// MFAEnabled=false is a pending enrollment.
type UserPreferences struct {
	UserID             string
	MFAEnabled         bool
	TOTPSecret         string
	EmailNotifications bool
	UpdatedAt          time.Time
}

// HasPendingSecret reports whether an enrollment was started but not confirmed.
func (p *UserPreferences) HasPendingSecret() bool {
	return !p.MFAEnabled && p.TOTPSecret != ""
}

// PreferencesUpdate names the fields to change. Nil fields are left untouched.
type PreferencesUpdate struct {
	MFAEnabled         *bool
	TOTPSecret         *string
	EmailNotifications *bool
}

// IsEmpty reports whether the update carries no field changes.
func (u PreferencesUpdate) IsEmpty() bool {
	return u.MFAEnabled == nil && u.TOTPSecret == nil && u.EmailNotifications == nil
}

// UserResponse is the public profile returned to clients
type UserResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
	Role          string `json:"role"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// ToResponse strips credential material from a user.
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		Role:          u.Role,
		CreatedAt:     u.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     u.UpdatedAt.Format(time.RFC3339),
	}
}
