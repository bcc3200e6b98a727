package models

// MFASetup is returned when TOTP enrollment begins
type MFASetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRImageURL      string `json:"qr_image_url"`
}

// LoginResult is the outcome of a password login. When MFARequired is set
// no session exists yet and Tokens is nil.
type LoginResult struct {
	User        *UserResponse `json:"user"`
	MFARequired bool          `json:"mfa_required"`
	Tokens      *TokenPair    `json:"tokens,omitempty"`
	SessionID   string        `json:"session_id,omitempty"`
}

// AuthResult is a completed authentication: a session and its tokens
type AuthResult struct {
	User      *UserResponse `json:"user"`
	Tokens    *TokenPair    `json:"tokens"`
	SessionID string        `json:"session_id"`
}

// PasswordResetLink is what the forgot-password flow reports back
type PasswordResetLink struct {
	URL     string `json:"url"`
	EmailID string `json:"email_id"`
}
