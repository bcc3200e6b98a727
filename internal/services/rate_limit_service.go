package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/warden/internal/models"
)

// AttemptCounter counts verification rows of one type created for a user
// after a point in time
type AttemptCounter interface {
	CountSince(ctx context.Context, userID string, vType models.VerificationType, since time.Time) (int, error)
}

// Policy allows at most MaxAttempts requests of Type per subject within
// the trailing Window
type Policy struct {
	Type        models.VerificationType
	Window      time.Duration
	MaxAttempts int
}

// RateLimitService throttles flows by counting the rows they already
// created. It never writes; the caller creates the row after Check passes,
// so concurrent callers may overshoot MaxAttempts slightly.
type RateLimitService struct {
	counter      AttemptCounter
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func NewRateLimitService(counter AttemptCounter, storeTimeout time.Duration, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		counter:      counter,
		storeTimeout: storeTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// CountRecent returns how many requests of vType subject made within window
func (s *RateLimitService) CountRecent(ctx context.Context, subject string, vType models.VerificationType, window time.Duration) (int, error) {
	ctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	count, err := s.counter.CountSince(ctx, subject, vType, s.now().Add(-window))
	if err != nil {
		s.logger.Error("failed to count recent requests",
			slog.String("user_id", subject),
			slog.String("type", string(vType)),
			slog.Any("error", err))
		return 0, storeError(err)
	}

	return count, nil
}

// Check returns models.ErrTooManyRequests once subject has used up policy
func (s *RateLimitService) Check(ctx context.Context, subject string, policy Policy) error {
	count, err := s.CountRecent(ctx, subject, policy.Type, policy.Window)
	if err != nil {
		return err
	}

	if count >= policy.MaxAttempts {
		s.logger.Warn("request throttled",
			slog.String("user_id", subject),
			slog.String("type", string(policy.Type)),
			slog.Int("recent", count),
			slog.Int("max", policy.MaxAttempts))
		return models.ErrTooManyRequests
	}

	return nil
}
