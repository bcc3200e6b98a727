package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/repositories"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "Correct-Horse-42!"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AppOrigin:            "https://app.example.com",
		EmailVerificationTTL: 45 * time.Minute,
		ResetPolicy:          Policy{Type: models.VerificationPasswordReset, Window: 3 * time.Minute, MaxAttempts: 2},
		ResetCodeTTL:         time.Hour,
		StoreTimeout:         time.Second,
		MailerTimeout:        time.Second,
	}
}

type authFixture struct {
	users    *MockUserRepository
	sessions *MockSessionStore
	codes    *MockCodeRegistry
	limiter  *MockRequestLimiter
	tokens   *MockTokenIssuer
	mailer   *MockMailer
}

func newAuthFixture() *authFixture {
	return &authFixture{
		users:    &MockUserRepository{},
		sessions: &MockSessionStore{},
		codes:    &MockCodeRegistry{},
		limiter:  &MockRequestLimiter{},
		tokens:   &MockTokenIssuer{},
		mailer:   &MockMailer{},
	}
}

func (f *authFixture) service() *AuthService {
	logger := newTestLogger()
	return NewAuthService(f.users, f.sessions, f.codes, f.limiter, f.tokens, f.mailer,
		testAuthConfig(), logger, pkglogger.NewAuditLogger(logger))
}

func userWithPassword(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPassword(password)
	require.NoError(t, err)
	u := NewTestUser("user_123", "alice@example.com", "Alice")
	u.PasswordHash = hash
	return u
}

// ============================================================================
// Register
// ============================================================================

// createRunsHook stands in for the repository: it assigns an id, runs the
// hook and only then records the user as stored
func createRunsHook(stored map[string]*models.User) func(ctx context.Context, user *models.User, then repositories.CreateHook) (*models.User, error) {
	return func(ctx context.Context, user *models.User, then repositories.CreateHook) (*models.User, error) {
		if _, taken := stored[user.Email]; taken {
			return nil, models.ErrConflict
		}
		user.ID = "user_" + strconv.Itoa(len(stored)+1)
		if then != nil {
			if err := then(ctx, nil, user); err != nil {
				return nil, err
			}
		}
		stored[user.Email] = user
		return user, nil
	}
}

func TestAuthService_Register_Success(t *testing.T) {
	f := newAuthFixture()
	stored := map[string]*models.User{}
	f.users.CreateFunc = createRunsHook(stored)
	var issuedTTL time.Duration
	f.codes.IssueWithFunc = func(ctx context.Context, q database.DBTX, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error) {
		assert.Equal(t, "user_1", userID)
		assert.Equal(t, models.VerificationEmail, vType)
		issuedTTL = ttl
		return &models.VerificationRequest{UserID: userID, Code: "abc_DEF-123", Type: vType, ExpiresAt: time.Now().Add(ttl)}, nil
	}

	resp, err := f.service().Register(context.Background(), RegisterInput{
		Email: "  Alice@Example.COM ", Password: testPassword, Name: " Alice ",
	})
	require.NoError(t, err)

	created := stored["alice@example.com"]
	require.NotNil(t, created)
	assert.Equal(t, "user_1", resp.ID)
	assert.Equal(t, "alice@example.com", resp.Email)
	assert.Equal(t, "Alice", created.Name)
	assert.False(t, created.EmailVerified)

	ok, err := pkgauth.VerifyPassword(testPassword, created.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 45*time.Minute, issuedTTL)
	require.Len(t, f.mailer.Sent, 1)
	assert.Equal(t, "alice@example.com", f.mailer.Sent[0].To)
	assert.Contains(t, f.mailer.Sent[0].HTMLBody, "https://app.example.com/confirm-account?code=abc_DEF-123")
	assert.Contains(t, f.mailer.Sent[0].TextBody, "45 minutes")
}

func TestAuthService_Register_ShortPasswordAndNoName(t *testing.T) {
	f := newAuthFixture()
	stored := map[string]*models.User{}
	f.users.CreateFunc = createRunsHook(stored)

	resp, err := f.service().Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "Pw1!"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", resp.Email)
	assert.Empty(t, stored["a@x.com"].Name)
	assert.Len(t, f.mailer.Sent, 1)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	f := newAuthFixture()
	f.users.GetByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		return NewTestUser("existing", email, "Existing"), nil
	}

	resp, err := f.service().Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: testPassword, Name: "Alice",
	})

	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Nil(t, resp)
	assert.Empty(t, f.mailer.Sent)
}

func TestAuthService_Register_UniqueViolationIsConflict(t *testing.T) {
	f := newAuthFixture()
	f.users.CreateFunc = func(ctx context.Context, user *models.User, then repositories.CreateHook) (*models.User, error) {
		return nil, models.ErrConflict
	}

	_, err := f.service().Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: testPassword, Name: "Alice",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAuthService_Register_InvalidInput(t *testing.T) {
	svc := newAuthFixture().service()

	_, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: ""})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "", Password: testPassword, Name: "A"})
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAuthService_Register_PasswordPolicy(t *testing.T) {
	f := newAuthFixture()
	cfg := testAuthConfig()
	cfg.EnforcePasswordPolicy = true
	logger := newTestLogger()
	svc := NewAuthService(f.users, f.sessions, f.codes, f.limiter, f.tokens, f.mailer, cfg, logger, pkglogger.NewAuditLogger(logger))

	_, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "Pw1!"})
	var pwErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pwErr)
}

func TestAuthService_Register_MailerFailure(t *testing.T) {
	f := newAuthFixture()
	f.users.CreateFunc = createRunsHook(map[string]*models.User{})
	f.mailer.SendFunc = func(ctx context.Context, msg Message) (string, error) {
		return "", errors.New("ses: throttled")
	}

	_, err := f.service().Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: testPassword, Name: "Alice",
	})
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestAuthService_Register_MailerTimeoutCanBeRetried(t *testing.T) {
	f := newAuthFixture()
	stored := map[string]*models.User{}
	f.users.CreateFunc = createRunsHook(stored)
	f.users.GetByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		if u, ok := stored[email]; ok {
			return u, nil
		}
		return nil, models.ErrNotFound
	}

	attempts := 0
	f.mailer.SendFunc = func(ctx context.Context, msg Message) (string, error) {
		attempts++
		if attempts == 1 {
			return "", context.DeadlineExceeded
		}
		return "msg-2", nil
	}

	svc := f.service()
	in := RegisterInput{Email: "a@x.com", Password: "Pw1!"}

	_, err := svc.Register(context.Background(), in)
	require.ErrorIs(t, err, models.ErrTransient)
	assert.Empty(t, stored)

	resp, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", resp.Email)

	_, err = svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, models.ErrConflict)
}

// ============================================================================
// VerifyEmail
// ============================================================================

func TestAuthService_VerifyEmail_MarksUserInsideConsume(t *testing.T) {
	f := newAuthFixture()
	var marked string
	f.users.MarkEmailVerifiedFunc = func(ctx context.Context, q database.DBTX, userID string) error {
		marked = userID
		return nil
	}
	f.codes.ConsumeFunc = func(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error) {
		assert.Equal(t, "the-code", code)
		assert.Equal(t, models.VerificationEmail, vType)
		req := &models.VerificationRequest{UserID: "user_123", Type: vType}
		if err := apply(ctx, nil, req); err != nil {
			return nil, err
		}
		return req, nil
	}

	require.NoError(t, f.service().VerifyEmail(context.Background(), "the-code"))
	assert.Equal(t, "user_123", marked)
}

func TestAuthService_VerifyEmail_InvalidCode(t *testing.T) {
	f := newAuthFixture()

	err := f.service().VerifyEmail(context.Background(), "bogus")
	assert.ErrorIs(t, err, models.ErrInvalidOrExpiredCode)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

// ============================================================================
// Login
// ============================================================================

func TestAuthService_Login_Success(t *testing.T) {
	f := newAuthFixture()
	user := userWithPassword(t, testPassword)
	f.users.GetByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		assert.Equal(t, "alice@example.com", email)
		return user, nil
	}
	var sessionUA string
	f.sessions.CreateFunc = func(ctx context.Context, userID, userAgent string) (*models.Session, error) {
		sessionUA = userAgent
		return &models.Session{ID: TestSessionID, UserID: userID}, nil
	}

	result, err := f.service().Login(context.Background(), "Alice@example.com", testPassword, "curl/8.0")
	require.NoError(t, err)

	assert.False(t, result.MFARequired)
	assert.Equal(t, TestSessionID, result.SessionID)
	require.NotNil(t, result.Tokens)
	assert.Equal(t, "access.user_123."+TestSessionID, result.Tokens.AccessToken)
	assert.Equal(t, "curl/8.0", sessionUA)
	assert.Equal(t, "alice@example.com", result.User.Email)
}

func TestAuthService_Login_FailuresAreIndistinguishable(t *testing.T) {
	user := userWithPassword(t, testPassword)

	t.Run("unknown email", func(t *testing.T) {
		f := newAuthFixture()
		_, err := f.service().Login(context.Background(), "nobody@example.com", testPassword, "")
		assert.Equal(t, models.ErrUnauthorized, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newAuthFixture()
		f.users.GetByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		}
		f.sessions.CreateFunc = func(ctx context.Context, userID, userAgent string) (*models.Session, error) {
			t.Fatal("no session may be created on a failed login")
			return nil, nil
		}
		_, err := f.service().Login(context.Background(), "alice@example.com", "Wrong-Password-1!", "")
		assert.Equal(t, models.ErrUnauthorized, err)
	})
}

func TestAuthService_Login_MFARequired(t *testing.T) {
	f := newAuthFixture()
	user := userWithPassword(t, testPassword)
	f.users.GetByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		return user, nil
	}
	f.users.GetPreferencesFunc = func(ctx context.Context, userID string) (*models.UserPreferences, error) {
		return &models.UserPreferences{UserID: userID, MFAEnabled: true, TOTPSecret: TestTOTPSecret}, nil
	}
	f.sessions.CreateFunc = func(ctx context.Context, userID, userAgent string) (*models.Session, error) {
		t.Fatal("MFA login must not create a session before the second factor")
		return nil, nil
	}

	result, err := f.service().Login(context.Background(), "alice@example.com", testPassword, "")
	require.NoError(t, err)

	assert.True(t, result.MFARequired)
	assert.Nil(t, result.Tokens)
	assert.Empty(t, result.SessionID)
	assert.Equal(t, "user_123", result.User.ID)
}

func TestAuthService_Login_StoreTimeoutIsTransient(t *testing.T) {
	f := newAuthFixture()
	f.users.GetByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		return nil, models.ErrTransient
	}

	_, err := f.service().Login(context.Background(), "alice@example.com", testPassword, "")
	assert.ErrorIs(t, err, models.ErrTransient)
}

func TestAuthService_Login_TokenFailureDropsSession(t *testing.T) {
	f := newAuthFixture()
	user := userWithPassword(t, testPassword)
	f.users.GetByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		return user, nil
	}
	f.tokens.IssueTokenPairFunc = func(ctx context.Context, subject, sessionID string) (*models.TokenPair, error) {
		return nil, errors.New("signing failed")
	}
	var deleted string
	f.sessions.DeleteFunc = func(ctx context.Context, sessionID, ownerID string) error {
		deleted = sessionID
		return nil
	}

	_, err := f.service().Login(context.Background(), "alice@example.com", testPassword, "")
	assert.ErrorIs(t, err, models.ErrInternalServer)
	assert.Equal(t, TestSessionID, deleted)
}

// ============================================================================
// Refresh / Logout
// ============================================================================

func TestAuthService_Refresh(t *testing.T) {
	owner := NewTestUser("user_123", "alice@example.com", "Alice")

	tests := []struct {
		name      string
		sessionID string
		lookup    func(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error)
		wantErr   error
	}{
		{
			name:      "live session",
			sessionID: TestSessionID,
			lookup: func(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error) {
				return &models.Session{ID: sessionID, UserID: owner.ID}, owner, &models.UserPreferences{}, nil
			},
		},
		{
			name:      "deleted session",
			sessionID: TestSessionID,
			wantErr:   models.ErrUnauthorized,
		},
		{
			name:      "session owned by someone else",
			sessionID: TestSessionID,
			lookup: func(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error) {
				other := NewTestUser("user_999", "mallory@example.com", "Mallory")
				return &models.Session{ID: sessionID, UserID: other.ID}, other, &models.UserPreferences{}, nil
			},
			wantErr: models.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture()
			f.sessions.GetWithOwnerFunc = tt.lookup

			pair, err := f.service().Refresh(context.Background(), "user_123", tt.sessionID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, pair)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "refresh.user_123."+TestSessionID, pair.RefreshToken)
		})
	}
}

func TestAuthService_Refresh_WithoutSession(t *testing.T) {
	f := newAuthFixture()
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return NewTestUser(id, "alice@example.com", "Alice"), nil
	}

	pair, err := f.service().Refresh(context.Background(), "user_123", "")
	require.NoError(t, err)
	assert.Equal(t, "access.user_123.", pair.AccessToken)

	f.users.GetByIDFunc = nil
	_, err = f.service().Refresh(context.Background(), "gone", "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture()
	var gotSession, gotOwner string
	f.sessions.DeleteFunc = func(ctx context.Context, sessionID, ownerID string) error {
		gotSession, gotOwner = sessionID, ownerID
		return nil
	}

	err := f.service().Logout(context.Background(), &models.Principal{Subject: "user_123", SessionID: TestSessionID})
	require.NoError(t, err)
	assert.Equal(t, TestSessionID, gotSession)
	assert.Equal(t, "user_123", gotOwner)

	f.sessions.DeleteFunc = func(ctx context.Context, sessionID, ownerID string) error {
		return models.ErrNotFound
	}
	err = f.service().Logout(context.Background(), &models.Principal{Subject: "user_123", SessionID: TestSessionID})
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = f.service().Logout(context.Background(), &models.Principal{Subject: "user_123"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// ============================================================================
// ForgotPassword / ResetPassword
// ============================================================================

func TestAuthService_ForgotPassword_Success(t *testing.T) {
	f := newAuthFixture()
	f.users.GetByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		return NewTestUser("user_123", email, "Alice"), nil
	}
	var policy Policy
	f.limiter.CheckFunc = func(ctx context.Context, subject string, p Policy) error {
		assert.Equal(t, "user_123", subject)
		policy = p
		return nil
	}
	expiresAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.codes.IssueFunc = func(ctx context.Context, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error) {
		assert.Equal(t, models.VerificationPasswordReset, vType)
		assert.Equal(t, time.Hour, ttl)
		return &models.VerificationRequest{UserID: userID, Code: "reset-code", Type: vType, ExpiresAt: expiresAt}, nil
	}
	f.mailer.SendFunc = func(ctx context.Context, msg Message) (string, error) {
		return "ses-id-1", nil
	}

	link, err := f.service().ForgotPassword(context.Background(), "alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, 3*time.Minute, policy.Window)
	assert.Equal(t, 2, policy.MaxAttempts)
	assert.Equal(t, "ses-id-1", link.EmailID)

	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, "/reset-password", u.Path)
	assert.Equal(t, "reset-code", u.Query().Get("code"))
	assert.Equal(t, strconv.FormatInt(expiresAt.UnixMilli(), 10), u.Query().Get("exp"))

	require.Len(t, f.mailer.Sent, 1)
	assert.True(t, strings.Contains(f.mailer.Sent[0].TextBody, link.URL))
}

func TestAuthService_ForgotPassword_Errors(t *testing.T) {
	known := func(ctx context.Context, email string) (*models.User, error) {
		return NewTestUser("user_123", email, "Alice"), nil
	}

	tests := []struct {
		name    string
		setup   func(f *authFixture)
		wantErr error
	}{
		{
			name:    "unknown email",
			setup:   func(f *authFixture) {},
			wantErr: models.ErrNotFound,
		},
		{
			name: "throttled",
			setup: func(f *authFixture) {
				f.users.GetByEmailFunc = known
				f.limiter.CheckFunc = func(ctx context.Context, subject string, p Policy) error {
					return models.ErrTooManyRequests
				}
				f.codes.IssueFunc = func(ctx context.Context, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error) {
					panic("no code may be issued when throttled")
				}
			},
			wantErr: models.ErrTooManyRequests,
		},
		{
			name: "mailer failure",
			setup: func(f *authFixture) {
				f.users.GetByEmailFunc = known
				f.mailer.SendFunc = func(ctx context.Context, msg Message) (string, error) {
					return "", errors.New("ses: message rejected")
				}
			},
			wantErr: models.ErrInternalServer,
		},
		{
			name: "mailer timeout",
			setup: func(f *authFixture) {
				f.users.GetByEmailFunc = known
				f.mailer.SendFunc = func(ctx context.Context, msg Message) (string, error) {
					return "", context.DeadlineExceeded
				}
			},
			wantErr: models.ErrTransient,
		},
		{
			name: "mailer returns no id",
			setup: func(f *authFixture) {
				f.users.GetByEmailFunc = known
				f.mailer.SendFunc = func(ctx context.Context, msg Message) (string, error) {
					return "", nil
				}
			},
			wantErr: models.ErrInternalServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture()
			tt.setup(f)

			link, err := f.service().ForgotPassword(context.Background(), "alice@example.com")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, link)
		})
	}
}

func TestAuthService_ForgotPassword_ThrottleIsUnauthorized(t *testing.T) {
	f := newAuthFixture()
	f.users.GetByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		return NewTestUser("user_123", email, "Alice"), nil
	}
	f.limiter.CheckFunc = func(ctx context.Context, subject string, p Policy) error {
		return models.ErrTooManyRequests
	}

	_, err := f.service().ForgotPassword(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Contains(t, err.Error(), "too many requests")
}

func TestAuthService_ResetPassword(t *testing.T) {
	f := newAuthFixture()
	var storedHash string
	f.users.UpdatePasswordFunc = func(ctx context.Context, q database.DBTX, userID, passwordHash string) error {
		assert.Equal(t, "user_123", userID)
		storedHash = passwordHash
		return nil
	}
	f.codes.ConsumeFunc = func(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error) {
		assert.Equal(t, models.VerificationPasswordReset, vType)
		req := &models.VerificationRequest{UserID: "user_123", Type: vType}
		return req, apply(ctx, nil, req)
	}
	var revokedFor string
	f.sessions.DeleteAllForUserFunc = func(ctx context.Context, userID string) (int64, error) {
		revokedFor = userID
		return 3, nil
	}

	require.NoError(t, f.service().ResetPassword(context.Background(), "reset-code", "Brand-New-Pass-7"))

	ok, err := pkgauth.VerifyPassword("Brand-New-Pass-7", storedHash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user_123", revokedFor)
}

func TestAuthService_ResetPassword_Rejections(t *testing.T) {
	f := newAuthFixture()
	f.sessions.DeleteAllForUserFunc = func(ctx context.Context, userID string) (int64, error) {
		t.Fatal("sessions must survive a failed reset")
		return 0, nil
	}

	err := f.service().ResetPassword(context.Background(), "reset-code", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	err = f.service().ResetPassword(context.Background(), "expired-code", "Brand-New-Pass-7")
	assert.ErrorIs(t, err, models.ErrInvalidOrExpiredCode)
}
