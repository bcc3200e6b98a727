package services

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(code)
		require.NoError(t, err)
		assert.Len(t, raw, codeBytes)
		assert.GreaterOrEqual(t, len(raw)*8, 122)

		assert.False(t, seen[code], "duplicate code")
		seen[code] = true
	}
}

func TestVerificationService_Issue(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var stored *models.VerificationRequest
	repo := &MockVerificationRepository{
		CreateFunc: func(ctx context.Context, req *models.VerificationRequest) (*models.VerificationRequest, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			stored = req
			req.ID = "verification_1"
			return req, nil
		},
	}
	svc := NewVerificationService(repo, time.Second, newTestLogger())
	svc.now = func() time.Time { return now }

	req, err := svc.Issue(context.Background(), "user_123", models.VerificationPasswordReset, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "verification_1", req.ID)
	assert.Equal(t, now.Add(time.Hour), stored.ExpiresAt)
	assert.Equal(t, models.VerificationPasswordReset, stored.Type)
	assert.NotEmpty(t, stored.Code)
}

// stubTx stands in for a caller's transaction; its methods are never called
type stubTx struct{ database.DBTX }

func TestVerificationService_IssueWith_UsesCallerTransaction(t *testing.T) {
	tx := &stubTx{}
	repo := &MockVerificationRepository{
		CreateFunc: func(ctx context.Context, req *models.VerificationRequest) (*models.VerificationRequest, error) {
			t.Fatal("IssueWith must not write outside the transaction")
			return nil, nil
		},
		CreateWithFunc: func(ctx context.Context, q database.DBTX, req *models.VerificationRequest) (*models.VerificationRequest, error) {
			assert.Same(t, tx, q)
			return req, nil
		},
	}
	svc := NewVerificationService(repo, time.Second, newTestLogger())

	req, err := svc.IssueWith(context.Background(), tx, "user_123", models.VerificationEmail, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationEmail, req.Type)
}

func TestVerificationService_Issue_UnknownType(t *testing.T) {
	svc := NewVerificationService(&MockVerificationRepository{}, time.Second, newTestLogger())

	_, err := svc.Issue(context.Background(), "user_123", models.VerificationType("MAGIC_LINK"), time.Hour)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestVerificationService_Consume(t *testing.T) {
	applied := false
	repo := &MockVerificationRepository{
		ConsumeFunc: func(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error) {
			req := &models.VerificationRequest{UserID: "user_123", Code: code, Type: vType}
			return req, apply(ctx, nil, req)
		},
	}
	svc := NewVerificationService(repo, time.Second, newTestLogger())

	req, err := svc.Consume(context.Background(), "code", models.VerificationEmail,
		func(ctx context.Context, tx database.DBTX, req *models.VerificationRequest) error {
			applied = true
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "user_123", req.UserID)
	assert.True(t, applied)
}

func TestVerificationService_Consume_Errors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		repoErr error
		wantErr error
	}{
		{"empty code", "", nil, models.ErrInvalidOrExpiredCode},
		{"unknown or expired", "code", models.ErrInvalidOrExpiredCode, models.ErrInvalidOrExpiredCode},
		{"side effect target missing", "code", models.ErrNotFound, models.ErrNotFound},
		{"driver failure hidden", "code", errors.New("conn reset"), models.ErrInternalServer},
		{"timeout", "code", models.ErrTransient, models.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockVerificationRepository{
				ConsumeFunc: func(ctx context.Context, code string, vType models.VerificationType, apply repositories.ApplyFunc) (*models.VerificationRequest, error) {
					return nil, tt.repoErr
				},
			}
			svc := NewVerificationService(repo, time.Second, newTestLogger())

			req, err := svc.Consume(context.Background(), tt.code, models.VerificationEmail, nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, req)
		})
	}
}
