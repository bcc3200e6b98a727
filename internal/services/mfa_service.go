package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/models"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

// TOTPEngine generates and checks time-based codes
type TOTPEngine interface {
	GenerateSecret(accountName string) (secret, uri string, err error)
	ProvisioningURI(secret, accountName string) (string, error)
	ValidateCode(code, secret string) bool
}

// QRRenderer turns a provisioning URI into an image URL
type QRRenderer interface {
	RenderDataURL(content string) (string, error)
}

type MFAConfig struct {
	StoreTimeout time.Duration
}

// MFAService drives TOTP enrollment and second-factor login. State lives
// in UserPreferences: no secret is unenrolled, a secret with MFA disabled is
// pending, MFA enabled requires a secret.
type MFAService struct {
	users       UserRepository
	starter     *sessionStarter
	totp        TOTPEngine
	qr          QRRenderer
	limiter     AttemptLimiter // nil disables lockout
	config      MFAConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewMFAService(
	users UserRepository,
	sessions SessionStore,
	tokens TokenIssuer,
	totp TOTPEngine,
	qr QRRenderer,
	limiter AttemptLimiter,
	config MFAConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *MFAService {
	return &MFAService{
		users:       users,
		starter:     &sessionStarter{sessions: sessions, tokens: tokens, logger: logger},
		totp:        totp,
		qr:          qr,
		limiter:     limiter,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

func (s *MFAService) loadUser(ctx context.Context, userID string) (*models.User, *models.UserPreferences, error) {
	ctx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load user", slog.String("user_id", userID), slog.Any("error", err))
		}
		return nil, nil, storeError(err)
	}

	prefs, err := s.users.GetPreferences(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load preferences", slog.String("user_id", userID), slog.Any("error", err))
		return nil, nil, storeError(err)
	}

	return user, prefs, nil
}

func (s *MFAService) updatePreferences(ctx context.Context, userID string, upd models.PreferencesUpdate) (*models.UserPreferences, error) {
	ctx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	prefs, err := s.users.UpdatePreferences(ctx, userID, upd)
	if err != nil {
		s.logger.Error("failed to update preferences", slog.String("user_id", userID), slog.Any("error", err))
		return nil, storeError(err)
	}
	return prefs, nil
}

// Begin starts enrollment or re-displays a pending one. A user with MFA
// already on gets models.ErrMFAAlreadyEnabled.
func (s *MFAService) Begin(ctx context.Context, userID string) (*models.MFASetup, error) {
	user, prefs, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if prefs.MFAEnabled {
		return nil, models.ErrMFAAlreadyEnabled
	}

	var secret, uri string
	if prefs.HasPendingSecret() {
		secret = prefs.TOTPSecret
		uri, err = s.totp.ProvisioningURI(secret, user.Email)
		if err != nil {
			s.logger.Error("failed to rebuild provisioning URI", slog.String("user_id", userID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	} else {
		secret, uri, err = s.totp.GenerateSecret(user.Email)
		if err != nil {
			s.logger.Error("failed to generate TOTP secret", slog.String("user_id", userID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		if _, err := s.updatePreferences(ctx, userID, models.PreferencesUpdate{TOTPSecret: &secret}); err != nil {
			return nil, err
		}

		s.auditLogger.LogMFAEvent(pkglogger.AuditEvent{EventType: "mfa_enrollment_started", UserID: userID, Success: true})
	}

	qr, err := s.qr.RenderDataURL(uri)
	if err != nil {
		s.logger.Error("failed to render QR code", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.MFASetup{Secret: secret, ProvisioningURI: uri, QRImageURL: qr}, nil
}

// Confirm enables MFA when code matches the pending secret. If the client
// echoes the secret it was shown, it must match the stored one. Confirming
// an already enabled user is a no-op.
func (s *MFAService) Confirm(ctx context.Context, userID, code, secret string) (*models.UserPreferences, error) {
	_, prefs, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if prefs.MFAEnabled {
		return prefs, nil
	}

	if prefs.TOTPSecret == "" {
		return nil, models.ErrMFANotEnrolled
	}

	if secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(prefs.TOTPSecret)) != 1 {
		s.auditLogger.LogMFAEvent(pkglogger.AuditEvent{
			EventType: "mfa_enrollment_confirm", UserID: userID, FailureReason: "secret_mismatch",
		})
		return nil, models.ErrMFAInvalidCode
	}

	if err := s.checkCode(ctx, userID, code, prefs.TOTPSecret); err != nil {
		s.auditLogger.LogMFAEvent(pkglogger.AuditEvent{
			EventType: "mfa_enrollment_confirm", UserID: userID, FailureReason: outcomeLabel(err),
		})
		return nil, err
	}

	enabled := true
	updated, err := s.updatePreferences(ctx, userID, models.PreferencesUpdate{MFAEnabled: &enabled})
	if err != nil {
		return nil, err
	}

	s.logger.Info("MFA enabled", slog.String("user_id", userID))
	s.auditLogger.LogMFAEvent(pkglogger.AuditEvent{EventType: "mfa_enabled", UserID: userID, Success: true})
	recordAuthEvent("mfa_confirm", nil)

	return updated, nil
}

// Revoke turns MFA off and drops the secret. Revoking when already off
// returns the current state.
func (s *MFAService) Revoke(ctx context.Context, userID string) (*models.UserPreferences, error) {
	_, prefs, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !prefs.MFAEnabled && prefs.TOTPSecret == "" {
		return prefs, nil
	}

	disabled := false
	cleared := ""
	updated, err := s.updatePreferences(ctx, userID, models.PreferencesUpdate{
		MFAEnabled: &disabled,
		TOTPSecret: &cleared,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("MFA revoked", slog.String("user_id", userID))
	s.auditLogger.LogMFAEvent(pkglogger.AuditEvent{EventType: "mfa_revoked", UserID: userID, Success: true})

	return updated, nil
}

// LoginWithCode completes a login that stopped at the MFA step
func (s *MFAService) LoginWithCode(ctx context.Context, email, code, userAgent string) (*models.AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	lookupCtx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	user, err := s.users.GetByEmail(lookupCtx, email)
	var prefs *models.UserPreferences
	if err == nil {
		prefs, err = s.users.GetPreferences(lookupCtx, user.ID)
	}
	cancel()
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load user for MFA login", slog.Any("error", err))
		}
		recordAuthEvent("mfa_login", err)
		return nil, storeError(err)
	}

	if !prefs.MFAEnabled || prefs.TOTPSecret == "" {
		recordAuthEvent("mfa_login", models.ErrNotFound)
		return nil, models.ErrNotFound
	}

	if err := s.checkCode(ctx, user.ID, code, prefs.TOTPSecret); err != nil {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType: "mfa_login", UserID: user.ID, UserAgent: userAgent, FailureReason: outcomeLabel(err),
		})
		recordAuthEvent("mfa_login", err)
		return nil, err
	}

	result, err := s.starter.start(ctx, user, userAgent)
	if err != nil {
		recordAuthEvent("mfa_login", err)
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "mfa_login", UserID: user.ID, SessionID: result.SessionID, UserAgent: userAgent, Success: true,
	})
	recordAuthEvent("mfa_login", nil)

	return result, nil
}

// checkCode validates code against secret, consulting the lockout first
func (s *MFAService) checkCode(ctx context.Context, userID, code, secret string) error {
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, userID); err != nil {
			if errors.Is(err, models.ErrTooManyRequests) {
				s.logger.Warn("MFA attempts locked out", slog.String("user_id", userID))
			} else {
				s.logger.Error("MFA limiter unavailable", slog.Any("error", err))
			}
			return err
		}
	}

	if !s.totp.ValidateCode(strings.TrimSpace(code), secret) {
		if s.limiter != nil {
			if err := s.limiter.RecordFailure(ctx, userID); err != nil && !errors.Is(err, models.ErrTooManyRequests) {
				s.logger.Error("failed to record MFA failure", slog.Any("error", err))
			}
		}
		return models.ErrMFAInvalidCode
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, userID); err != nil {
			s.logger.Warn("failed to reset MFA attempts", slog.Any("error", err))
		}
	}

	return nil
}
