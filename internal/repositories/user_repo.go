package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, name, password_hash, email_verified, role, created_at, updated_at`

const preferencesColumns = `user_id, mfa_enabled, totp_secret, email_notifications, updated_at`

type UserRepository struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.EmailVerified, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func scanPreferencesRow(scanner rowScanner) (*models.UserPreferences, error) {
	var prefs models.UserPreferences
	var secret *string

	err := scanner.Scan(&prefs.UserID, &prefs.MFAEnabled, &secret, &prefs.EmailNotifications, &prefs.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if secret != nil {
		prefs.TOTPSecret = *secret
	}

	return &prefs, nil
}

// CreateHook runs inside the creating transaction once the user exists.
// Returning an error rolls the user back.
type CreateHook func(ctx context.Context, tx database.DBTX, user *models.User) error

// Create inserts the user and a default preferences row in one transaction,
// then runs then (if non-nil) in it. A duplicate email surfaces as
// models.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *models.User, then CreateHook) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = "user"
	}

	var created *models.User
	err := database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		created, err = scanUserRow(tx.QueryRow(ctx, `
			INSERT INTO users (id, email, name, password_hash, email_verified, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+userColumns,
			user.ID, user.Email, user.Name, user.PasswordHash,
			user.EmailVerified, user.Role, user.CreatedAt, user.UpdatedAt,
		))
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO user_preferences (user_id, mfa_enabled, email_notifications, updated_at)
			VALUES ($1, FALSE, TRUE, $2)`,
			user.ID, now,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}

		if then == nil {
			return nil
		}
		return then(ctx, tx, created)
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return scanUserRow(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUserRow(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepository) GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	return scanPreferencesRow(r.db.QueryRow(ctx,
		`SELECT `+preferencesColumns+` FROM user_preferences WHERE user_id = $1`, userID))
}

// UpdatePreferences writes only the fields set in upd and returns the new row
func (r *UserRepository) UpdatePreferences(ctx context.Context, userID string, upd models.PreferencesUpdate) (*models.UserPreferences, error) {
	if upd.IsEmpty() {
		return r.GetPreferences(ctx, userID)
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.MFAEnabled != nil {
		add("mfa_enabled", *upd.MFAEnabled)
	}
	if upd.TOTPSecret != nil {
		// empty string clears the column
		var secret *string
		if *upd.TOTPSecret != "" {
			secret = upd.TOTPSecret
		}
		add("totp_secret", secret)
	}
	if upd.EmailNotifications != nil {
		add("email_notifications", *upd.EmailNotifications)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, userID)
	query := fmt.Sprintf(`UPDATE user_preferences SET %s WHERE user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), preferencesColumns)

	return scanPreferencesRow(r.db.QueryRow(ctx, query, args...))
}

// MarkEmailVerified runs on q so callers can bind it to a code consumption
func (r *UserRepository) MarkEmailVerified(ctx context.Context, q database.DBTX, userID string) error {
	return r.execOne(ctx, q,
		`UPDATE users SET email_verified = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), userID)
}

// UpdatePassword runs on q so callers can bind it to a code consumption
func (r *UserRepository) UpdatePassword(ctx context.Context, q database.DBTX, userID, passwordHash string) error {
	return r.execOne(ctx, q,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now().UTC(), userID)
}

func (r *UserRepository) execOne(ctx context.Context, q database.DBTX, query string, args ...any) error {
	if q == nil {
		q = r.db
	}

	result, err := q.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
