package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/warden/internal/models"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// writeServiceError maps a service error onto an HTTP status. More specific
// sentinels are matched before the kinds they wrap.
func writeServiceError(w http.ResponseWriter, err error) {
	var pwErr *pkgauth.PasswordValidationError

	switch {
	case errors.As(err, &pwErr):
		pkghttp.WriteBadRequest(w, pwErr.Error())
	case errors.Is(err, models.ErrTooManyRequests):
		pkghttp.WriteTooManyRequests(w, "too many requests")
	case errors.Is(err, models.ErrInvalidOrExpiredCode):
		pkghttp.WriteUnauthorized(w, "invalid or expired code")
	case errors.Is(err, models.ErrMFAInvalidCode):
		pkghttp.WriteUnauthorized(w, "invalid MFA code")
	case errors.Is(err, models.ErrMFANotEnrolled):
		pkghttp.WriteUnauthorized(w, "MFA setup has not been started")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "authentication failed")
	case errors.Is(err, models.ErrInvalidToken):
		pkghttp.WriteUnauthorized(w, "invalid or expired token")
	case errors.Is(err, models.ErrMFAAlreadyEnabled):
		pkghttp.WriteConflict(w, "MFA is already enabled")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "email is already registered")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "resource not found")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "bad request")
	case errors.Is(err, models.ErrTransient):
		pkghttp.WriteServiceUnavailable(w, "temporarily unavailable, please retry")
	default:
		pkghttp.WriteInternalError(w, "internal server error")
	}
}
