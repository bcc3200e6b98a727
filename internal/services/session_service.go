package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BradenHooton/warden/internal/models"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
	"github.com/google/uuid"
)

// maxUserAgentLen caps what is stored from the User-Agent header
const maxUserAgentLen = 512

// SessionRepository is the storage behind login sessions
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]models.Session, error)
	GetActiveWithOwner(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error)
	Delete(ctx context.Context, sessionID, userID string) error
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type SessionConfig struct {
	TTL          time.Duration
	StoreTimeout time.Duration
}

// SessionService manages per-device sessions. Deleting a session is the
// only way to revoke it.
type SessionService struct {
	repo        SessionRepository
	config      SessionConfig
	now         func() time.Time
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewSessionService(repo SessionRepository, config SessionConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *SessionService {
	return &SessionService{
		repo:        repo,
		config:      config,
		now:         time.Now,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Create opens a session for userID that lasts the configured TTL
func (s *SessionService) Create(ctx context.Context, userID, userAgent string) (*models.Session, error) {
	userAgent = cleanUserAgent(userAgent)

	now := s.now().UTC()

	ctx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	session, err := s.repo.Create(ctx, &models.Session{
		UserID:    userID,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	})
	if err != nil {
		s.logger.Error("failed to create session", slog.String("user_id", userID), slog.Any("error", err))
		return nil, storeError(err)
	}

	return session, nil
}

// cleanUserAgent makes a raw header storable as TEXT: valid UTF-8, no NUL,
// at most maxUserAgentLen bytes cut on a rune boundary
func cleanUserAgent(ua string) string {
	ua = strings.ReplaceAll(strings.ToValidUTF8(ua, ""), "\x00", "")
	if len(ua) <= maxUserAgentLen {
		return ua
	}

	n := maxUserAgentLen
	for n > 0 && !utf8.RuneStart(ua[n]) {
		n--
	}
	return ua[:n]
}

// ListActive returns the user's unexpired sessions, newest first
func (s *SessionService) ListActive(ctx context.Context, userID string) ([]models.Session, error) {
	ctx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	sessions, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list sessions", slog.String("user_id", userID), slog.Any("error", err))
		return nil, storeError(err)
	}
	return sessions, nil
}

// ListForPrincipal lists the caller's sessions and flags the one its token
// is bound to
func (s *SessionService) ListForPrincipal(ctx context.Context, p *models.Principal) ([]models.SessionResponse, error) {
	sessions, err := s.ListActive(ctx, p.Subject)
	if err != nil {
		return nil, err
	}

	out := make([]models.SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessions[i].ToResponse(p.SessionID))
	}
	return out, nil
}

// GetWithOwner loads a live session and its owner. Unknown, malformed and
// expired ids all yield models.ErrNotFound.
func (s *SessionService) GetWithOwner(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, nil, nil, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	session, owner, prefs, err := s.repo.GetActiveWithOwner(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load session", slog.String("session_id", sessionID), slog.Any("error", err))
		}
		return nil, nil, nil, storeError(err)
	}

	// The query filters on the database clock; hold it to ours as well
	if session.IsExpiredAt(s.now()) {
		return nil, nil, nil, models.ErrNotFound
	}

	return session, owner, prefs, nil
}

// Current returns the session the principal's token is bound to
func (s *SessionService) Current(ctx context.Context, p *models.Principal) (*models.Session, *models.User, error) {
	session, owner, _, err := s.GetWithOwner(ctx, p.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if owner.ID != p.Subject {
		return nil, nil, models.ErrNotFound
	}
	return session, owner, nil
}

// Delete removes sessionID if ownerID owns it, else models.ErrNotFound
func (s *SessionService) Delete(ctx context.Context, sessionID, ownerID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	if err := s.repo.Delete(ctx, sessionID, ownerID); err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to delete session", slog.String("session_id", sessionID), slog.Any("error", err))
		}
		return storeError(err)
	}

	s.auditLogger.LogAccountAction("session_deleted", ownerID, map[string]string{"session_id": sessionID})
	return nil
}

// DeleteAllForUser revokes every session of userID
func (s *SessionService) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	n, err := s.repo.DeleteAllByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to delete user sessions", slog.String("user_id", userID), slog.Any("error", err))
		return 0, storeError(err)
	}
	return n, nil
}

// PurgeExpired removes sessions past their expiry
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	n, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		return 0, storeError(err)
	}
	return n, nil
}
