package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/services"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext attaches a principal as the access middleware would
func WithAuthContext(req *http.Request, userID, sessionID string) *http.Request {
	ctx := auth.WithPrincipal(req.Context(), &models.Principal{Subject: userID, SessionID: sessionID})
	return req.WithContext(ctx)
}

// WithRefreshContext attaches refresh claims as the refresh middleware would
func WithRefreshContext(req *http.Request, userID, sessionID string) *http.Request {
	claims := &models.TokenClaims{Type: models.TokenTypeRefresh, SessionID: sessionID}
	claims.Subject = userID
	return req.WithContext(auth.WithRefreshClaims(req.Context(), claims))
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// TestTokenPair is a fixed pair whose expiries lie in the future
func TestTokenPair() *models.TokenPair {
	now := time.Now()
	return &models.TokenPair{
		AccessToken:      "access-token",
		RefreshToken:     "refresh-token",
		AccessExpiresAt:  now.Add(15 * time.Minute),
		RefreshExpiresAt: now.Add(30 * 24 * time.Hour),
	}
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc       func(ctx context.Context, in services.RegisterInput) (*models.UserResponse, error)
	VerifyEmailFunc    func(ctx context.Context, code string) error
	LoginFunc          func(ctx context.Context, email, password, userAgent string) (*models.LoginResult, error)
	RefreshFunc        func(ctx context.Context, subject, sessionID string) (*models.TokenPair, error)
	LogoutFunc         func(ctx context.Context, p *models.Principal) error
	ForgotPasswordFunc func(ctx context.Context, email string) (*models.PasswordResetLink, error)
	ResetPasswordFunc  func(ctx context.Context, code, newPassword string) error
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*models.UserResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, code string) error {
	if m.VerifyEmailFunc == nil {
		return models.ErrInvalidOrExpiredCode
	}
	return m.VerifyEmailFunc(ctx, code)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, userAgent string) (*models.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, userAgent)
}

func (m *MockAuthService) Refresh(ctx context.Context, subject, sessionID string) (*models.TokenPair, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshFunc(ctx, subject, sessionID)
}

func (m *MockAuthService) Logout(ctx context.Context, p *models.Principal) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, p)
}

func (m *MockAuthService) ForgotPassword(ctx context.Context, email string) (*models.PasswordResetLink, error) {
	if m.ForgotPasswordFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ForgotPasswordFunc(ctx, email)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, code, newPassword string) error {
	if m.ResetPasswordFunc == nil {
		return models.ErrInvalidOrExpiredCode
	}
	return m.ResetPasswordFunc(ctx, code, newPassword)
}

// MockMFAService implements MFAServiceInterface for testing
type MockMFAService struct {
	BeginFunc         func(ctx context.Context, userID string) (*models.MFASetup, error)
	ConfirmFunc       func(ctx context.Context, userID, code, secret string) (*models.UserPreferences, error)
	RevokeFunc        func(ctx context.Context, userID string) (*models.UserPreferences, error)
	LoginWithCodeFunc func(ctx context.Context, email, code, userAgent string) (*models.AuthResult, error)
}

func (m *MockMFAService) Begin(ctx context.Context, userID string) (*models.MFASetup, error) {
	if m.BeginFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.BeginFunc(ctx, userID)
}

func (m *MockMFAService) Confirm(ctx context.Context, userID, code, secret string) (*models.UserPreferences, error) {
	if m.ConfirmFunc == nil {
		return nil, models.ErrMFAInvalidCode
	}
	return m.ConfirmFunc(ctx, userID, code, secret)
}

func (m *MockMFAService) Revoke(ctx context.Context, userID string) (*models.UserPreferences, error) {
	if m.RevokeFunc == nil {
		return &models.UserPreferences{UserID: userID}, nil
	}
	return m.RevokeFunc(ctx, userID)
}

func (m *MockMFAService) LoginWithCode(ctx context.Context, email, code, userAgent string) (*models.AuthResult, error) {
	if m.LoginWithCodeFunc == nil {
		return nil, models.ErrMFAInvalidCode
	}
	return m.LoginWithCodeFunc(ctx, email, code, userAgent)
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	ListForPrincipalFunc func(ctx context.Context, p *models.Principal) ([]models.SessionResponse, error)
	CurrentFunc          func(ctx context.Context, p *models.Principal) (*models.Session, *models.User, error)
	DeleteFunc           func(ctx context.Context, sessionID, ownerID string) error
}

func (m *MockSessionService) ListForPrincipal(ctx context.Context, p *models.Principal) ([]models.SessionResponse, error) {
	if m.ListForPrincipalFunc == nil {
		return []models.SessionResponse{}, nil
	}
	return m.ListForPrincipalFunc(ctx, p)
}

func (m *MockSessionService) Current(ctx context.Context, p *models.Principal) (*models.Session, *models.User, error) {
	if m.CurrentFunc == nil {
		return nil, nil, models.ErrNotFound
	}
	return m.CurrentFunc(ctx, p)
}

func (m *MockSessionService) Delete(ctx context.Context, sessionID, ownerID string) error {
	if m.DeleteFunc == nil {
		return models.ErrNotFound
	}
	return m.DeleteFunc(ctx, sessionID, ownerID)
}
