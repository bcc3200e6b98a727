package services

import (
	"context"
	"time"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/repositories"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	CreateFunc            func(ctx context.Context, user *models.User, then repositories.CreateHook) (*models.User, error)
	GetByIDFunc           func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc        func(ctx context.Context, email string) (*models.User, error)
	GetPreferencesFunc    func(ctx context.Context, userID string) (*models.UserPreferences, error)
	UpdatePreferencesFunc func(ctx context.Context, userID string, upd models.PreferencesUpdate) (*models.UserPreferences, error)
	MarkEmailVerifiedFunc func(ctx context.Context, q database.DBTX, userID string) error
	UpdatePasswordFunc    func(ctx context.Context, q database.DBTX, userID, passwordHash string) error
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User, then repositories.CreateHook) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user, then)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	if m.GetPreferencesFunc != nil {
		return m.GetPreferencesFunc(ctx, userID)
	}
	return &models.UserPreferences{UserID: userID, EmailNotifications: true}, nil
}

func (m *MockUserRepository) UpdatePreferences(ctx context.Context, userID string, upd models.PreferencesUpdate) (*models.UserPreferences, error) {
	if m.UpdatePreferencesFunc != nil {
		return m.UpdatePreferencesFunc(ctx, userID, upd)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) MarkEmailVerified(ctx context.Context, q database.DBTX, userID string) error {
	if m.MarkEmailVerifiedFunc != nil {
		return m.MarkEmailVerifiedFunc(ctx, q, userID)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, q database.DBTX, userID, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, q, userID, passwordHash)
	}
	return nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc             func(ctx context.Context, session *models.Session) (*models.Session, error)
	ListActiveByUserFunc   func(ctx context.Context, userID string) ([]models.Session, error)
	GetActiveWithOwnerFunc func(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error)
	DeleteFunc             func(ctx context.Context, sessionID, userID string) error
	DeleteAllByUserFunc    func(ctx context.Context, userID string) (int64, error)
	DeleteExpiredFunc      func(ctx context.Context) (int64, error)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	session.ID = TestSessionID
	return session, nil
}

func (m *MockSessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]models.Session, error) {
	if m.ListActiveByUserFunc != nil {
		return m.ListActiveByUserFunc(ctx, userID)
	}
	return []models.Session{}, nil
}

func (m *MockSessionRepository) GetActiveWithOwner(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error) {
	if m.GetActiveWithOwnerFunc != nil {
		return m.GetActiveWithOwnerFunc(ctx, sessionID)
	}
	return nil, nil, nil, models.ErrNotFound
}

func (m *MockSessionRepository) Delete(ctx context.Context, sessionID, userID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, sessionID, userID)
	}
	return nil
}

func (m *MockSessionRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	if m.DeleteAllByUserFunc != nil {
		return m.DeleteAllByUserFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

// MockVerificationRepository implements VerificationRepository for testing
type MockVerificationRepository struct {
	CreateFunc        func(ctx context.Context, req *models.VerificationRequest) (*models.VerificationRequest, error)
	CreateWithFunc    func(ctx context.Context, q database.DBTX, req *models.VerificationRequest) (*models.VerificationRequest, error)
	CountSinceFunc    func(ctx context.Context, userID string, vType models.VerificationType, since time.Time) (int, error)
	ConsumeFunc       func(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error)
	DeleteExpiredFunc func(ctx context.Context) (int64, error)
}

func (m *MockVerificationRepository) Create(ctx context.Context, req *models.VerificationRequest) (*models.VerificationRequest, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	req.ID = "verification_123"
	req.CreatedAt = time.Now()
	return req, nil
}

func (m *MockVerificationRepository) CreateWith(ctx context.Context, q database.DBTX, req *models.VerificationRequest) (*models.VerificationRequest, error) {
	if m.CreateWithFunc != nil {
		return m.CreateWithFunc(ctx, q, req)
	}
	return m.Create(ctx, req)
}

func (m *MockVerificationRepository) CountSince(ctx context.Context, userID string, vType models.VerificationType, since time.Time) (int, error) {
	if m.CountSinceFunc != nil {
		return m.CountSinceFunc(ctx, userID, vType, since)
	}
	return 0, nil
}

func (m *MockVerificationRepository) Consume(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, code, vType, apply)
	}
	return nil, models.ErrInvalidOrExpiredCode
}

func (m *MockVerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

// MockSessionStore implements SessionStore for testing
type MockSessionStore struct {
	CreateFunc           func(ctx context.Context, userID, userAgent string) (*models.Session, error)
	GetWithOwnerFunc     func(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error)
	DeleteFunc           func(ctx context.Context, sessionID, ownerID string) error
	DeleteAllForUserFunc func(ctx context.Context, userID string) (int64, error)
}

func (m *MockSessionStore) Create(ctx context.Context, userID, userAgent string) (*models.Session, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, userAgent)
	}
	now := time.Now()
	return &models.Session{ID: TestSessionID, UserID: userID, UserAgent: userAgent, CreatedAt: now, ExpiresAt: now.Add(30 * 24 * time.Hour)}, nil
}

func (m *MockSessionStore) GetWithOwner(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error) {
	if m.GetWithOwnerFunc != nil {
		return m.GetWithOwnerFunc(ctx, sessionID)
	}
	return nil, nil, nil, models.ErrNotFound
}

func (m *MockSessionStore) Delete(ctx context.Context, sessionID, ownerID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, sessionID, ownerID)
	}
	return nil
}

func (m *MockSessionStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	if m.DeleteAllForUserFunc != nil {
		return m.DeleteAllForUserFunc(ctx, userID)
	}
	return 0, nil
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	IssueTokenPairFunc func(ctx context.Context, subject, sessionID string) (*models.TokenPair, error)
}

func (m *MockTokenIssuer) IssueTokenPair(ctx context.Context, subject, sessionID string) (*models.TokenPair, error) {
	if m.IssueTokenPairFunc != nil {
		return m.IssueTokenPairFunc(ctx, subject, sessionID)
	}
	now := time.Now()
	return &models.TokenPair{
		AccessToken:      "access." + subject + "." + sessionID,
		RefreshToken:     "refresh." + subject + "." + sessionID,
		AccessExpiresAt:  now.Add(15 * time.Minute),
		RefreshExpiresAt: now.Add(30 * 24 * time.Hour),
	}, nil
}

// MockCodeRegistry implements CodeRegistry for testing
type MockCodeRegistry struct {
	IssueFunc     func(ctx context.Context, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error)
	IssueWithFunc func(ctx context.Context, q database.DBTX, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error)
	ConsumeFunc   func(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error)
}

// IssueWith falls back to IssueFunc so tests can stub either
func (m *MockCodeRegistry) IssueWith(ctx context.Context, q database.DBTX, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error) {
	if m.IssueWithFunc != nil {
		return m.IssueWithFunc(ctx, q, userID, vType, ttl)
	}
	return m.Issue(ctx, userID, vType, ttl)
}

func (m *MockCodeRegistry) Issue(ctx context.Context, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, userID, vType, ttl)
	}
	return &models.VerificationRequest{
		ID: "verification_123", UserID: userID, Code: "test-code", Type: vType,
		ExpiresAt: time.Now().Add(ttl), CreatedAt: time.Now(),
	}, nil
}

func (m *MockCodeRegistry) Consume(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, code, vType, apply)
	}
	return nil, models.ErrInvalidOrExpiredCode
}

// MockRequestLimiter implements RequestLimiter for testing
type MockRequestLimiter struct {
	CheckFunc func(ctx context.Context, subject string, policy Policy) error
}

func (m *MockRequestLimiter) Check(ctx context.Context, subject string, policy Policy) error {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, subject, policy)
	}
	return nil
}

// MockMailer implements Mailer and records what it was asked to send
type MockMailer struct {
	SendFunc func(ctx context.Context, msg Message) (string, error)
	Sent     []Message
}

func (m *MockMailer) Send(ctx context.Context, msg Message) (string, error) {
	m.Sent = append(m.Sent, msg)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return "message-123", nil
}

// MockTOTPEngine implements TOTPEngine for testing. Codes equal to
// ValidCode are accepted.
type MockTOTPEngine struct {
	GenerateSecretFunc  func(accountName string) (string, string, error)
	ProvisioningURIFunc func(secret, accountName string) (string, error)
	ValidCode           string
	GenerateCalls       int
}

func (m *MockTOTPEngine) GenerateSecret(accountName string) (string, string, error) {
	m.GenerateCalls++
	if m.GenerateSecretFunc != nil {
		return m.GenerateSecretFunc(accountName)
	}
	return TestTOTPSecret, "otpauth://totp/Warden:" + accountName + "?secret=" + TestTOTPSecret, nil
}

func (m *MockTOTPEngine) ProvisioningURI(secret, accountName string) (string, error) {
	if m.ProvisioningURIFunc != nil {
		return m.ProvisioningURIFunc(secret, accountName)
	}
	return "otpauth://totp/Warden:" + accountName + "?secret=" + secret, nil
}

func (m *MockTOTPEngine) ValidateCode(code, secret string) bool {
	return m.ValidCode != "" && code == m.ValidCode && secret != ""
}

// MockQRRenderer implements QRRenderer for testing
type MockQRRenderer struct {
	RenderDataURLFunc func(content string) (string, error)
}

func (m *MockQRRenderer) RenderDataURL(content string) (string, error) {
	if m.RenderDataURLFunc != nil {
		return m.RenderDataURLFunc(content)
	}
	return "data:image/png;base64,AAAA", nil
}

// MockAttemptLimiter implements AttemptLimiter for testing
type MockAttemptLimiter struct {
	CheckFunc         func(ctx context.Context, key string) error
	RecordFailureFunc func(ctx context.Context, key string) error
	ResetFunc         func(ctx context.Context, key string) error
	Failures          int
	Resets            int
}

func (m *MockAttemptLimiter) Check(ctx context.Context, key string) error {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, key)
	}
	return nil
}

func (m *MockAttemptLimiter) RecordFailure(ctx context.Context, key string) error {
	m.Failures++
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, key)
	}
	return nil
}

func (m *MockAttemptLimiter) Reset(ctx context.Context, key string) error {
	m.Resets++
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, key)
	}
	return nil
}

const (
	TestSessionID  = "6f1c1f3e-7a3b-4a51-9d7e-2f1f6c1a9b10"
	TestTOTPSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
)

// NewTestUser creates a verified test user
func NewTestUser(id, email, name string) *models.User {
	now := time.Now()
	return &models.User{
		ID:            id,
		Email:         email,
		Name:          name,
		EmailVerified: true,
		Role:          "user",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
