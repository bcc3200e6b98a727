package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/repositories"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

// UserRepository is the storage behind accounts and their preferences
type UserRepository interface {
	Create(ctx context.Context, user *models.User, then repositories.CreateHook) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error)
	UpdatePreferences(ctx context.Context, userID string, upd models.PreferencesUpdate) (*models.UserPreferences, error)
	MarkEmailVerified(ctx context.Context, q database.DBTX, userID string) error
	UpdatePassword(ctx context.Context, q database.DBTX, userID, passwordHash string) error
}

// SessionStore is the session surface the login flows need
type SessionStore interface {
	Create(ctx context.Context, userID, userAgent string) (*models.Session, error)
	GetWithOwner(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error)
	Delete(ctx context.Context, sessionID, ownerID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}

// TokenIssuer mints an access/refresh pair bound to a session
type TokenIssuer interface {
	IssueTokenPair(ctx context.Context, subject, sessionID string) (*models.TokenPair, error)
}

// CodeRegistry issues and spends single-use verification codes
type CodeRegistry interface {
	Issue(ctx context.Context, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error)
	IssueWith(ctx context.Context, q database.DBTX, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error)
	Consume(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error)
}

// RequestLimiter rejects a subject that has exhausted a policy
type RequestLimiter interface {
	Check(ctx context.Context, subject string, policy Policy) error
}

type AuthConfig struct {
	AppOrigin            string
	EmailVerificationTTL time.Duration
	ResetPolicy          Policy
	ResetCodeTTL         time.Duration
	StoreTimeout         time.Duration
	MailerTimeout        time.Duration
	// EnforcePasswordPolicy applies pkgauth.ValidatePassword to new
	// passwords. Off, any non-empty password is accepted.
	EnforcePasswordPolicy bool
}

// RegisterInput carries a new account's details
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// dummyHash is verified against when the email is unknown so both login
// failures cost the same
var dummyHash = sync.OnceValue(func() string {
	hash, err := pkgauth.HashPassword("warden-timing-equalizer")
	if err != nil {
		panic(fmt.Sprintf("failed to hash dummy password: %v", err))
	}
	return hash
})

// AuthService runs registration, login and account recovery
type AuthService struct {
	users       UserRepository
	sessions    SessionStore
	codes       CodeRegistry
	limiter     RequestLimiter
	tokens      TokenIssuer
	mailer      Mailer
	starter     *sessionStarter
	config      AuthConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAuthService(
	users UserRepository,
	sessions SessionStore,
	codes CodeRegistry,
	limiter RequestLimiter,
	tokens TokenIssuer,
	mailer Mailer,
	config AuthConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:       users,
		sessions:    sessions,
		codes:       codes,
		limiter:     limiter,
		tokens:      tokens,
		mailer:      mailer,
		starter:     &sessionStarter{sessions: sessions, tokens: tokens, logger: logger},
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) checkPassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", models.ErrBadRequest)
	}
	if s.config.EnforcePasswordPolicy {
		return pkgauth.ValidatePassword(password)
	}
	return nil
}

// Register creates an unverified account and mails its verification link.
// The user row, its code and the send share one transaction, so a failed
// send leaves nothing behind and the call can be retried. A taken email is
// reported as models.ErrConflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.UserResponse, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", models.ErrBadRequest)
	}

	if err := s.checkPassword(in.Password); err != nil {
		return nil, err
	}

	lookupCtx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	_, err := s.users.GetByEmail(lookupCtx, email)
	cancel()
	if err == nil {
		s.logger.Info("registration rejected: email taken")
		recordAuthEvent("register", models.ErrConflict)
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing user", slog.Any("error", err))
		return nil, storeError(err)
	}

	hash, err := pkgauth.HashPassword(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// The hook logs its own failures
	var hookErr error
	createCtx, cancel := withTimeout(ctx, s.config.StoreTimeout+s.config.MailerTimeout)
	user, err := s.users.Create(createCtx, &models.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         "user",
	}, func(ctx context.Context, tx database.DBTX, user *models.User) error {
		hookErr = s.sendVerification(ctx, tx, user)
		return hookErr
	})
	cancel()
	if err != nil {
		if hookErr == nil && !errors.Is(err, models.ErrConflict) {
			s.logger.Error("failed to create user", slog.Any("error", err))
		}
		recordAuthEvent("register", err)
		return nil, storeError(err)
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	s.auditLogger.LogAccountAction("user_registered", user.ID, nil)
	recordAuthEvent("register", nil)

	return user.ToResponse(), nil
}

// sendVerification issues an email verification code through q and mails it
func (s *AuthService) sendVerification(ctx context.Context, q database.DBTX, user *models.User) error {
	req, err := s.codes.IssueWith(ctx, q, user.ID, models.VerificationEmail, s.config.EmailVerificationTTL)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/confirm-account?code=%s", s.config.AppOrigin, url.QueryEscape(req.Code))
	msg, err := verificationEmail(user.Email, link, s.config.EmailVerificationTTL)
	if err != nil {
		s.logger.Error("failed to render verification email", slog.Any("error", err))
		return models.ErrInternalServer
	}

	_, err = s.send(ctx, "verification", msg)
	return err
}

// VerifyEmail spends an email verification code and marks the address
// verified in the same transaction
func (s *AuthService) VerifyEmail(ctx context.Context, code string) error {
	req, err := s.codes.Consume(ctx, code, models.VerificationEmail,
		func(ctx context.Context, tx database.DBTX, req *models.VerificationRequest) error {
			return s.users.MarkEmailVerified(ctx, tx, req.UserID)
		})
	recordAuthEvent("verify_email", err)
	if err != nil {
		return err
	}

	s.auditLogger.LogAccountAction("email_verified", req.UserID, nil)
	return nil
}

// Login checks the password. Users with MFA on get MFARequired and no
// tokens; everyone else gets a new session and token pair. A missing user
// and a wrong password fail identically.
func (s *AuthService) Login(ctx context.Context, email, password, userAgent string) (*models.LoginResult, error) {
	email = normalizeEmail(email)

	lookupCtx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	user, err := s.users.GetByEmail(lookupCtx, email)
	cancel()
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load user by email", slog.Any("error", err))
			recordAuthEvent("login", err)
			return nil, storeError(err)
		}
		_, _ = pkgauth.VerifyPassword(password, dummyHash())
		s.failLogin("", userAgent, "invalid_credentials")
		return nil, models.ErrUnauthorized
	}

	ok, err := pkgauth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash is malformed", slog.String("user_id", user.ID), slog.Any("error", err))
		recordAuthEvent("login", models.ErrInternalServer)
		return nil, models.ErrInternalServer
	}
	if !ok {
		s.failLogin(user.ID, userAgent, "invalid_credentials")
		return nil, models.ErrUnauthorized
	}

	prefsCtx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	prefs, err := s.users.GetPreferences(prefsCtx, user.ID)
	cancel()
	if err != nil {
		s.logger.Error("failed to load preferences", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, storeError(err)
	}

	if prefs.MFAEnabled {
		s.logger.Info("login pending MFA", slog.String("user_id", user.ID))
		recordAuthEvent("login", nil)
		return &models.LoginResult{
			User:        &models.UserResponse{ID: user.ID, Email: user.Email},
			MFARequired: true,
		}, nil
	}

	result, err := s.starter.start(ctx, user, userAgent)
	if err != nil {
		recordAuthEvent("login", err)
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login", UserID: user.ID, SessionID: result.SessionID, UserAgent: userAgent, Success: true,
	})
	recordAuthEvent("login", nil)

	return &models.LoginResult{User: result.User, Tokens: result.Tokens, SessionID: result.SessionID}, nil
}

func (s *AuthService) failLogin(userID, userAgent, reason string) {
	s.logger.Info("login failed", slog.String("reason", reason))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login", UserID: userID, UserAgent: userAgent, FailureReason: reason,
	})
	recordAuthEvent("login", models.ErrUnauthorized)
}

// Refresh mints a new pair for a holder of a verified refresh token. When
// the token names a session, that session must still exist and belong to
// subject, so deleting a session also stops its refreshes.
func (s *AuthService) Refresh(ctx context.Context, subject, sessionID string) (*models.TokenPair, error) {
	if sessionID != "" {
		_, owner, _, err := s.sessions.GetWithOwner(ctx, sessionID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				recordAuthEvent("refresh", models.ErrUnauthorized)
				return nil, models.ErrUnauthorized
			}
			return nil, err
		}
		if owner.ID != subject {
			s.logger.Warn("refresh token subject does not own its session",
				slog.String("user_id", subject), slog.String("session_id", sessionID))
			recordAuthEvent("refresh", models.ErrUnauthorized)
			return nil, models.ErrUnauthorized
		}
	} else {
		lookupCtx, cancel := withTimeout(ctx, s.config.StoreTimeout)
		_, err := s.users.GetByID(lookupCtx, subject)
		cancel()
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.ErrUnauthorized
			}
			s.logger.Error("failed to load user for refresh", slog.Any("error", err))
			return nil, storeError(err)
		}
	}

	pair, err := s.tokens.IssueTokenPair(ctx, subject, sessionID)
	if err != nil {
		s.logger.Error("failed to issue token pair", slog.String("user_id", subject), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	recordAuthEvent("refresh", nil)
	return pair, nil
}

// Logout deletes the session the principal's token is bound to. Its access
// token stays valid until it expires.
func (s *AuthService) Logout(ctx context.Context, p *models.Principal) error {
	if p == nil || p.SessionID == "" {
		return models.ErrNotFound
	}

	if err := s.sessions.Delete(ctx, p.SessionID, p.Subject); err != nil {
		recordAuthEvent("logout", err)
		return err
	}

	s.logger.Info("user logged out", slog.String("user_id", p.Subject))
	recordAuthEvent("logout", nil)
	return nil
}

// ForgotPassword mails a reset link unless the user is throttled. The link
// and the mailer's message id are returned to the caller.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (*models.PasswordResetLink, error) {
	email = normalizeEmail(email)

	lookupCtx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	user, err := s.users.GetByEmail(lookupCtx, email)
	cancel()
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load user by email", slog.Any("error", err))
		}
		recordAuthEvent("forgot_password", err)
		return nil, storeError(err)
	}

	if err := s.limiter.Check(ctx, user.ID, s.config.ResetPolicy); err != nil {
		recordAuthEvent("forgot_password", err)
		return nil, err
	}

	req, err := s.codes.Issue(ctx, user.ID, models.VerificationPasswordReset, s.config.ResetCodeTTL)
	if err != nil {
		return nil, err
	}

	link := fmt.Sprintf("%s/reset-password?code=%s&exp=%d",
		s.config.AppOrigin, url.QueryEscape(req.Code), req.ExpiresAt.UnixMilli())

	msg, err := passwordResetEmail(user.Email, link, s.config.ResetCodeTTL)
	if err != nil {
		s.logger.Error("failed to render reset email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	emailID, err := s.send(ctx, "password_reset", msg)
	if err != nil {
		recordAuthEvent("forgot_password", err)
		return nil, err
	}

	s.auditLogger.LogAccountAction("password_reset_requested", user.ID, nil)
	recordAuthEvent("forgot_password", nil)

	return &models.PasswordResetLink{URL: link, EmailID: emailID}, nil
}

// ResetPassword spends a reset code, stores the new hash in the same
// transaction and then signs the user out everywhere
func (s *AuthService) ResetPassword(ctx context.Context, code, newPassword string) error {
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	req, err := s.codes.Consume(ctx, code, models.VerificationPasswordReset,
		func(ctx context.Context, tx database.DBTX, req *models.VerificationRequest) error {
			return s.users.UpdatePassword(ctx, tx, req.UserID, hash)
		})
	recordAuthEvent("reset_password", err)
	if err != nil {
		return err
	}

	if n, err := s.sessions.DeleteAllForUser(ctx, req.UserID); err != nil {
		s.logger.Warn("password reset but sessions not revoked", slog.String("user_id", req.UserID), slog.Any("error", err))
	} else {
		s.logger.Info("password reset", slog.String("user_id", req.UserID), slog.Int64("sessions_revoked", n))
	}

	s.auditLogger.LogAccountAction("password_reset", req.UserID, nil)
	return nil
}

// send delivers msg within the mailer timeout. A timeout is transient;
// any other failure, or a success without a message id, is internal.
func (s *AuthService) send(ctx context.Context, kind string, msg Message) (string, error) {
	ctx, cancel := withTimeout(ctx, s.config.MailerTimeout)
	defer cancel()

	id, err := s.mailer.Send(ctx, msg)
	if err != nil {
		s.logger.Error("failed to send email",
			slog.String("kind", kind),
			slog.String("to", pkglogger.SanitizedEmail(msg.To)),
			slog.Any("error", err))

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			recordEmail(kind, models.ErrTransient)
			return "", models.ErrTransient
		}
		recordEmail(kind, models.ErrInternalServer)
		return "", models.ErrInternalServer
	}

	if id == "" {
		s.logger.Error("mailer returned no message id", slog.String("kind", kind))
		recordEmail(kind, models.ErrInternalServer)
		return "", models.ErrInternalServer
	}

	recordEmail(kind, nil)
	return id, nil
}

// sessionStarter opens a session and mints the pair bound to it. Both the
// password and the MFA login finish here.
type sessionStarter struct {
	sessions SessionStore
	tokens   TokenIssuer
	logger   *slog.Logger
}

func (st *sessionStarter) start(ctx context.Context, user *models.User, userAgent string) (*models.AuthResult, error) {
	session, err := st.sessions.Create(ctx, user.ID, userAgent)
	if err != nil {
		return nil, err
	}

	pair, err := st.tokens.IssueTokenPair(ctx, user.ID, session.ID)
	if err != nil {
		st.logger.Error("failed to issue token pair", slog.String("user_id", user.ID), slog.Any("error", err))
		if delErr := st.sessions.Delete(ctx, session.ID, user.ID); delErr != nil {
			st.logger.Warn("failed to drop session after token failure", slog.Any("error", delErr))
		}
		return nil, models.ErrInternalServer
	}

	return &models.AuthResult{User: user.ToResponse(), Tokens: pair, SessionID: session.ID}, nil
}
