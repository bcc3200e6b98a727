package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/models"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

type MFAServiceInterface interface {
	Begin(ctx context.Context, userID string) (*models.MFASetup, error)
	Confirm(ctx context.Context, userID, code, secret string) (*models.UserPreferences, error)
	Revoke(ctx context.Context, userID string) (*models.UserPreferences, error)
	LoginWithCode(ctx context.Context, email, code, userAgent string) (*models.AuthResult, error)
}

// MFAHandler handles TOTP enrollment and the second login step
type MFAHandler struct {
	service MFAServiceInterface
	cookies auth.CookieConfig
}

func NewMFAHandler(service MFAServiceInterface, cookies auth.CookieConfig) *MFAHandler {
	return &MFAHandler{service: service, cookies: cookies}
}

// MFAVerifyRequest confirms enrollment. Secret is optional; when sent it must
// match the pending one.
type MFAVerifyRequest struct {
	Code   string `json:"code" validate:"required,len=6,numeric"`
	Secret string `json:"secret,omitempty" validate:"max=128"`
}

type MFALoginRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type MFAStatusResponse struct {
	MFAEnabled bool `json:"mfa_enabled"`
}

// Setup handles GET /mfa/setup
func (h *MFAHandler) Setup(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "missing access token")
		return
	}

	setup, err := h.service.Begin(r.Context(), principal.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, setup)
}

// Verify handles POST /mfa/verify
func (h *MFAHandler) Verify(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "missing access token")
		return
	}

	var req MFAVerifyRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	prefs, err := h.service.Confirm(r.Context(), principal.Subject, req.Code, req.Secret)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MFAStatusResponse{MFAEnabled: prefs.MFAEnabled})
}

// Revoke handles PUT /mfa/revoke
func (h *MFAHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "missing access token")
		return
	}

	prefs, err := h.service.Revoke(r.Context(), principal.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MFAStatusResponse{MFAEnabled: prefs.MFAEnabled})
}

// VerifyLogin handles POST /mfa/verify-login, the second step of an MFA login
func (h *MFAHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req MFALoginRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.LoginWithCode(r.Context(), req.Email, req.Code, r.UserAgent())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	auth.SetAuthCookies(w, result.Tokens, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, result)
}
