package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const verificationColumns = `id, user_id, code, type, expires_at, created_at`

// ApplyFunc is the side effect bound to a code consumption. It runs inside
// the consuming transaction; returning an error rolls the consumption back.
type ApplyFunc func(ctx context.Context, tx database.DBTX, req *models.VerificationRequest) error

// VerificationRepository stores single-use verification codes
type VerificationRepository struct {
	db database.DBTX
}

func NewVerificationRepository(db database.DBTX) *VerificationRepository {
	return &VerificationRepository{db: db}
}

func scanVerificationRow(scanner rowScanner) (*models.VerificationRequest, error) {
	var (
		v     models.VerificationRequest
		vType string
	)

	if err := scanner.Scan(&v.ID, &v.UserID, &v.Code, &vType, &v.ExpiresAt, &v.CreatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	v.Type = models.VerificationType(vType)

	return &v, nil
}

// Create stores a code. Code, Type, UserID and ExpiresAt come from the caller.
func (r *VerificationRepository) Create(ctx context.Context, req *models.VerificationRequest) (*models.VerificationRequest, error) {
	return r.CreateWith(ctx, r.db, req)
}

// CreateWith stores a code through q, typically a caller's transaction
func (r *VerificationRepository) CreateWith(ctx context.Context, q database.DBTX, req *models.VerificationRequest) (*models.VerificationRequest, error) {
	req.ID = uuid.New().String()
	req.CreatedAt = time.Now().UTC()

	return scanVerificationRow(q.QueryRow(ctx, `
		INSERT INTO verification_requests (id, user_id, code, type, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+verificationColumns,
		req.ID, req.UserID, req.Code, string(req.Type), req.ExpiresAt, req.CreatedAt,
	))
}

// CountSince counts codes of one type issued to userID after since
func (r *VerificationRepository) CountSince(ctx context.Context, userID string, vType models.VerificationType, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM verification_requests
		WHERE user_id = $1 AND type = $2 AND created_at > $3`,
		userID, string(vType), since,
	).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// Consume deletes an unexpired code of the given type and runs apply in the
// same transaction. Of any number of concurrent callers presenting the same
// code, at most one gets past the DELETE; the others see no row.
func (r *VerificationRepository) Consume(ctx context.Context, code string, vType models.VerificationType, apply ApplyFunc) (*models.VerificationRequest, error) {
	var consumed *models.VerificationRequest

	err := database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		req, err := scanVerificationRow(tx.QueryRow(ctx, `
			DELETE FROM verification_requests
			WHERE code = $1 AND type = $2 AND expires_at >= NOW()
			RETURNING `+verificationColumns,
			code, string(vType),
		))
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrInvalidOrExpiredCode
			}
			return err
		}

		if apply != nil {
			if err := apply(ctx, tx, req); err != nil {
				return err
			}
		}

		consumed = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	return consumed, nil
}

// DeleteExpired purges codes past their expiry
func (r *VerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM verification_requests WHERE expires_at < NOW()`)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
