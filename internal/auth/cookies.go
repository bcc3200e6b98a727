package auth

import (
	"net/http"
	"time"

	"github.com/BradenHooton/warden/internal/models"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain      string // empty = current host only
	Secure      bool   // HTTPS only
	SameSite    http.SameSite
	RefreshPath string // refresh cookie is only sent to the refresh endpoint
}

// NewCookieConfig derives cookie settings for the environment
func NewCookieConfig(domain string, secure bool, basePath string) CookieConfig {
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteStrictMode
	}

	return CookieConfig{
		Domain:      domain,
		Secure:      secure,
		SameSite:    sameSite,
		RefreshPath: basePath + "/auth/refresh",
	}
}

// SetAuthCookies writes both tokens as httpOnly cookies
func SetAuthCookies(w http.ResponseWriter, pair *models.TokenPair, config CookieConfig) {
	setCookie(w, AccessTokenCookie, pair.AccessToken, "/", pair.AccessExpiresAt, config)
	setCookie(w, RefreshTokenCookie, pair.RefreshToken, config.RefreshPath, pair.RefreshExpiresAt, config)
}

// ClearAuthCookies expires both token cookies
func ClearAuthCookies(w http.ResponseWriter, config CookieConfig) {
	clearCookie(w, AccessTokenCookie, "/", config)
	clearCookie(w, RefreshTokenCookie, config.RefreshPath, config)
}

func setCookie(w http.ResponseWriter, name, value, path string, expires time.Time, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   config.Domain,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: config.SameSite,
	})
}

func clearCookie(w http.ResponseWriter, name, path string, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: config.SameSite,
	})
}

// AccessTokenFromCookie returns the access cookie value or ""
func AccessTokenFromCookie(r *http.Request) string {
	return cookieValue(r, AccessTokenCookie)
}

// RefreshTokenFromCookie returns the refresh cookie value or ""
func RefreshTokenFromCookie(r *http.Request) string {
	return cookieValue(r, RefreshTokenCookie)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
