package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, user_id, user_agent, created_at, expires_at`

// SessionRepository persists login sessions. Every read excludes rows whose
// expires_at has passed, so an expired session behaves as a missing one.
type SessionRepository struct {
	db database.DBTX
}

func NewSessionRepository(db database.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var s models.Session
	if err := scanner.Scan(&s.ID, &s.UserID, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func scanSessionRows(rows pgx.Rows) ([]models.Session, error) {
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", database.MapPostgresError(err))
	}

	return sessions, nil
}

// Create inserts a session. ID is assigned here; CreatedAt and ExpiresAt
// must be set by the caller.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	session.ID = uuid.New().String()

	return scanSessionRow(r.db.QueryRow(ctx, `
		INSERT INTO sessions (id, user_id, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+sessionColumns,
		session.ID, session.UserID, session.UserAgent, session.CreatedAt, session.ExpiresAt,
	))
}

// ListActiveByUser returns unexpired sessions, newest first
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return scanSessionRows(rows)
}

// GetActiveWithOwner loads an unexpired session with its owner and the
// owner's preferences in one round trip
func (r *SessionRepository) GetActiveWithOwner(ctx context.Context, sessionID string) (*models.Session, *models.User, *models.UserPreferences, error) {
	var (
		s      models.Session
		u      models.User
		p      models.UserPreferences
		secret *string
	)

	err := r.db.QueryRow(ctx, `
		SELECT s.id, s.user_id, s.user_agent, s.created_at, s.expires_at,
		       u.id, u.email, u.name, u.password_hash, u.email_verified, u.role, u.created_at, u.updated_at,
		       p.user_id, p.mfa_enabled, p.totp_secret, p.email_notifications, p.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		JOIN user_preferences p ON p.user_id = u.id
		WHERE s.id = $1 AND s.expires_at > NOW()`,
		sessionID,
	).Scan(
		&s.ID, &s.UserID, &s.UserAgent, &s.CreatedAt, &s.ExpiresAt,
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.EmailVerified, &u.Role, &u.CreatedAt, &u.UpdatedAt,
		&p.UserID, &p.MFAEnabled, &secret, &p.EmailNotifications, &p.UpdatedAt,
	)
	if err != nil {
		return nil, nil, nil, database.MapPostgresError(err)
	}

	if secret != nil {
		p.TOTPSecret = *secret
	}

	return &s, &u, &p, nil
}

// Delete removes a session only if it belongs to userID
func (r *SessionRepository) Delete(ctx context.Context, sessionID, userID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1 AND user_id = $2`, sessionID, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// DeleteAllByUser revokes every session of a user
func (r *SessionRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired purges sessions past their expiry
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
