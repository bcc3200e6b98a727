package models

import (
	"time"
)

// VerificationType distinguishes what a one-time code authorizes
type VerificationType string

const (
	VerificationEmail         VerificationType = "EMAIL_VERIFICATION"
	VerificationPasswordReset VerificationType = "PASSWORD_RESET"
)

// IsValid reports whether t is a known verification type
func (t VerificationType) IsValid() bool {
	return t == VerificationEmail || t == VerificationPasswordReset
}

// VerificationRequest is a single-use code bound to a user and purpose
type VerificationRequest struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Code      string           `json:"-"`
	Type      VerificationType `json:"type"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
}
