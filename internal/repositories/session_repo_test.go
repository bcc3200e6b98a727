package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/models"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionCols = []string{"id", "user_id", "user_agent", "created_at", "expires_at"}

func TestSessionRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	in := &models.Session{UserID: "user-1", UserAgent: "curl/8", CreatedAt: now, ExpiresAt: now.Add(30 * 24 * time.Hour)}

	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(pgxmock.AnyArg(), "user-1", "curl/8", in.CreatedAt, in.ExpiresAt).
		WillReturnRows(pgxmock.NewRows(sessionCols).AddRow("sess-1", "user-1", "curl/8", in.CreatedAt, in.ExpiresAt))

	s, err := repo.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, in.ExpiresAt, s.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_ListActiveByUser_NewestFirst(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM sessions\s+WHERE user_id = \$1 AND expires_at > NOW\(\)\s+ORDER BY created_at DESC`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(sessionCols).
			AddRow("sess-2", "user-1", "firefox", now, now.Add(time.Hour)).
			AddRow("sess-1", "user-1", "chrome", now.Add(-time.Hour), now.Add(time.Hour)))

	sessions, err := repo.ListActiveByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-2", sessions[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_ListActiveByUser_Empty(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM sessions").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(sessionCols))

	sessions, err := repo.ListActiveByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestSessionRepository_GetActiveWithOwner(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	u := sampleUser()
	mock.ExpectQuery(`FROM sessions s\s+JOIN users u`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"s.id", "s.user_id", "s.user_agent", "s.created_at", "s.expires_at",
			"u.id", "u.email", "u.name", "u.password_hash", "u.email_verified", "u.role", "u.created_at", "u.updated_at",
			"p.user_id", "p.mfa_enabled", "p.totp_secret", "p.email_notifications", "p.updated_at",
		}).AddRow(
			"sess-1", u.ID, "curl", now, now.Add(time.Hour),
			u.ID, u.Email, u.Name, u.PasswordHash, true, u.Role, u.CreatedAt, u.UpdatedAt,
			u.ID, true, strPtr("JBSWY3DPEHPK3PXP"), true, now,
		))

	s, owner, prefs, err := repo.GetActiveWithOwner(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, u.Email, owner.Email)
	assert.True(t, prefs.MFAEnabled)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", prefs.TOTPSecret)
}

func TestSessionRepository_GetActiveWithOwner_ExpiredOrMissing(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	mock.ExpectQuery("FROM sessions s").
		WithArgs("sess-old").
		WillReturnError(pgx.ErrNoRows)

	_, _, _, err := repo.GetActiveWithOwner(context.Background(), "sess-old")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSessionRepository_Delete(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"owned session", 1, nil},
		{"foreign or missing session", 0, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockPool(t)
			repo := NewSessionRepository(mock)

			mock.ExpectExec(`DELETE FROM sessions WHERE id = \$1 AND user_id = \$2`).
				WithArgs("sess-1", "user-1").
				WillReturnResult(pgxmock.NewResult("DELETE", tt.affected))

			err := repo.Delete(context.Background(), "sess-1", "user-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionRepository_DeleteAllByUser(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := repo.DeleteAllByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	mock := newMockPool(t)
	repo := NewSessionRepository(mock)

	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at <= NOW\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
