package auth

import (
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSkew       = 1  // one step either side
	totpSecretSize = 20 // 160 bits
)

var totpValidateOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPManager generates and validates RFC 6238 codes
type TOTPManager struct {
	issuer string
	now    func() time.Time
}

func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{issuer: issuer, now: time.Now}
}

// GenerateSecret returns a fresh base32 secret and its otpauth:// URI
func (tm *TOTPManager) GenerateSecret(accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

// ProvisioningURI rebuilds the otpauth:// URI for an existing secret
func (tm *TOTPManager) ProvisioningURI(secret, accountName string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("invalid TOTP secret encoding: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		Secret:      raw,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build provisioning URI: %w", err)
	}

	return key.URL(), nil
}

// ValidateCode accepts codes from the current step and one step either
// side. Comparison inside the otp library is constant time. Malformed input
// is simply invalid.
func (tm *TOTPManager) ValidateCode(code, secret string) bool {
	if code == "" || secret == "" {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, tm.now().UTC(), totpValidateOpts)
	if err != nil {
		return false
	}
	return valid
}

// GenerateCode returns the code for secret at t
func (tm *TOTPManager) GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totpValidateOpts)
}
