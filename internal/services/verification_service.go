package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/repositories"
)

// codeBytes is the raw entropy of a verification code (256 bits)
const codeBytes = 32

// VerificationRepository is the storage behind single-use codes
type VerificationRepository interface {
	Create(ctx context.Context, req *models.VerificationRequest) (*models.VerificationRequest, error)
	CreateWith(ctx context.Context, q database.DBTX, req *models.VerificationRequest) (*models.VerificationRequest, error)
	CountSince(ctx context.Context, userID string, vType models.VerificationType, since time.Time) (int, error)
	Consume(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// VerificationService issues and consumes one-time codes
type VerificationService struct {
	repo         VerificationRepository
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func NewVerificationService(repo VerificationRepository, storeTimeout time.Duration, logger *slog.Logger) *VerificationService {
	return &VerificationService{
		repo:         repo,
		storeTimeout: storeTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// GenerateCode returns a URL-safe random code
func GenerateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue stores a fresh code of vType for userID that expires after ttl
func (s *VerificationService) Issue(ctx context.Context, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error) {
	return s.issue(ctx, nil, userID, vType, ttl)
}

// IssueWith is Issue inside the caller's transaction q
func (s *VerificationService) IssueWith(ctx context.Context, q database.DBTX, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error) {
	return s.issue(ctx, q, userID, vType, ttl)
}

func (s *VerificationService) issue(ctx context.Context, q database.DBTX, userID string, vType models.VerificationType, ttl time.Duration) (*models.VerificationRequest, error) {
	if !vType.IsValid() {
		return nil, fmt.Errorf("%w: unknown verification type %q", models.ErrBadRequest, vType)
	}

	code, err := GenerateCode()
	if err != nil {
		s.logger.Error("failed to generate verification code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	draft := &models.VerificationRequest{
		UserID:    userID,
		Code:      code,
		Type:      vType,
		ExpiresAt: s.now().Add(ttl).UTC(),
	}

	var req *models.VerificationRequest
	if q == nil {
		req, err = s.repo.Create(ctx, draft)
	} else {
		req, err = s.repo.CreateWith(ctx, q, draft)
	}
	if err != nil {
		s.logger.Error("failed to store verification code",
			slog.String("user_id", userID),
			slog.String("type", string(vType)),
			slog.Any("error", err))
		return nil, storeError(err)
	}

	return req, nil
}

// Consume spends code and runs apply in the same transaction. An unknown,
// expired or wrong-type code yields models.ErrInvalidOrExpiredCode and
// changes nothing.
func (s *VerificationService) Consume(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error) {
	if code == "" {
		return nil, models.ErrInvalidOrExpiredCode
	}

	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	req, err := s.repo.Consume(ctx, code, vType, apply)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidOrExpiredCode) {
			s.logger.Error("failed to consume verification code",
				slog.String("type", string(vType)),
				slog.Any("error", err))
		}
		return nil, storeError(err)
	}

	return req, nil
}

// PurgeExpired removes codes past their expiry
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	n, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		return 0, storeError(err)
	}
	return n, nil
}
