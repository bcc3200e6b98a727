package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/services"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// AuthServiceInterface is the account lifecycle the auth endpoints drive
type AuthServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.UserResponse, error)
	VerifyEmail(ctx context.Context, code string) error
	Login(ctx context.Context, email, password, userAgent string) (*models.LoginResult, error)
	Refresh(ctx context.Context, subject, sessionID string) (*models.TokenPair, error)
	Logout(ctx context.Context, p *models.Principal) error
	ForgotPassword(ctx context.Context, email string) (*models.PasswordResetLink, error)
	ResetPassword(ctx context.Context, code, newPassword string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service AuthServiceInterface
	cookies auth.CookieConfig
}

func NewAuthHandler(service AuthServiceInterface, cookies auth.CookieConfig) *AuthHandler {
	return &AuthHandler{service: service, cookies: cookies}
}

// Request DTOs

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
}

type VerifyEmailRequest struct {
	Code string `json:"code" validate:"required,max=128"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Code     string `json:"code" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=128"`
}

// Response DTOs

type MessageResponse struct {
	Message string `json:"message"`
}

type ForgotPasswordResponse struct {
	Message string `json:"message"`
	EmailID string `json:"email_id"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, user)
}

// VerifyEmail handles POST /auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.VerifyEmail(r.Context(), req.Code); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "email verified"})
}

// Login handles POST /auth/login. When the account has MFA enabled no
// cookies are set and the client must finish with /mfa/verify-login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, r.UserAgent())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if !result.MFARequired {
		auth.SetAuthCookies(w, result.Tokens, h.cookies)
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// Refresh handles POST /auth/refresh behind auth.RequireRefreshToken
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims := auth.RefreshClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "missing refresh token")
		return
	}

	pair, err := h.service.Refresh(r.Context(), claims.Subject, claims.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	auth.SetAuthCookies(w, pair, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, pair)
}

// Logout handles POST /auth/logout. Cookies are cleared even when the
// session was already gone.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "missing access token")
		return
	}

	err := h.service.Logout(r.Context(), principal)
	auth.ClearAuthCookies(w, h.cookies)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ForgotPassword handles POST /auth/forgot-password. The reset link itself
// only travels by email.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	link, err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		// A throttled reset is an authorization failure, not a 429
		if errors.Is(err, models.ErrTooManyRequests) {
			pkghttp.WriteUnauthorized(w, "too many reset requests, try again later")
			return
		}
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ForgotPasswordResponse{
		Message: "password reset email sent",
		EmailID: link.EmailID,
	})
}

// ResetPassword handles POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Code, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}

	auth.ClearAuthCookies(w, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})
}
