package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/warden/internal/models"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	refreshContextKey   contextKey = "refresh_claims"
)

// BearerToken extracts a token from "Authorization: Bearer <t>"
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAccessToken authenticates the request from the Authorization header
// or, failing that, the access token cookie.
func RequireAccessToken(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				token = AccessTokenFromCookie(r)
			}
			if token == "" {
				pkghttp.WriteUnauthorized(w, "missing access token")
				return
			}

			principal, err := tm.Authenticate(token)
			if err != nil {
				pkghttp.WriteUnauthorized(w, tokenFailureMessage("access", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRefreshToken verifies a refresh token from the refresh cookie or the
// Authorization header and exposes its claims to the handler.
func RequireRefreshToken(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := RefreshTokenFromCookie(r)
			if token == "" {
				token = BearerToken(r)
			}
			if token == "" {
				pkghttp.WriteUnauthorized(w, "missing refresh token")
				return
			}

			claims, err := tm.Verify(token, KeyRefresh)
			if err != nil {
				pkghttp.WriteUnauthorized(w, tokenFailureMessage("refresh", err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithRefreshClaims(r.Context(), claims)))
		})
	}
}

// tokenFailureMessage tells a client whether refreshing can help
func tokenFailureMessage(kind string, err error) string {
	if IsExpiredTokenError(err) {
		return kind + " token expired"
	}
	return "invalid " + kind + " token"
}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the principal set by RequireAccessToken
func PrincipalFromContext(ctx context.Context) *models.Principal {
	p, ok := ctx.Value(principalContextKey).(*models.Principal)
	if !ok {
		return nil
	}
	return p
}

// WithRefreshClaims stores verified refresh claims in ctx
func WithRefreshClaims(ctx context.Context, c *models.TokenClaims) context.Context {
	return context.WithValue(ctx, refreshContextKey, c)
}

// RefreshClaimsFromContext returns the claims set by RequireRefreshToken
func RefreshClaimsFromContext(ctx context.Context) *models.TokenClaims {
	c, ok := ctx.Value(refreshContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return c
}
