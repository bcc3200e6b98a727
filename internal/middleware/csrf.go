package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/BradenHooton/warden/internal/auth"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// OriginCheck rejects state-changing requests that authenticate with
// cookies but come from an origin outside config. Bearer-authenticated
// requests are not exposed to CSRF and pass through.
func OriginCheck(config CORSConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) || !usesCookieAuth(r) {
				next.ServeHTTP(w, r)
				return
			}

			origin := requestOrigin(r)
			if origin == "" || config.allows(origin) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("cross-origin request with auth cookies rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", origin))
			pkghttp.WriteError(w, http.StatusForbidden, "forbidden", "origin not allowed")
		})
	}
}

func usesCookieAuth(r *http.Request) bool {
	if auth.BearerToken(r) != "" {
		return false
	}
	return auth.AccessTokenFromCookie(r) != "" || auth.RefreshTokenFromCookie(r) != ""
}

// requestOrigin prefers Origin and falls back to the scheme and host of Referer
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}

	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Host == "" {
		return ""
	}
	return ref.Scheme + "://" + ref.Host
}

func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
