package services

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/warden/internal/models"
)

var passthroughErrors = []error{
	models.ErrNotFound,
	models.ErrConflict,
	models.ErrUnauthorized,
	models.ErrBadRequest,
	models.ErrInvalidToken,
	models.ErrTransient,
	models.ErrInternalServer,
}

// storeError keeps model sentinels and hides anything else behind
// ErrInternalServer. The caller is expected to have logged err already.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range passthroughErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrTransient
	}
	return models.ErrInternalServer
}

// withTimeout bounds ctx by d; a non-positive d only adds cancellation
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
