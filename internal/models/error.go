package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrTransient      = errors.New("dependency temporarily unavailable")
	ErrInternalServer = errors.New("internal server error")
)

// Refinements of the base kinds. errors.Is against the base still matches.
var (
	ErrTooManyRequests      = fmt.Errorf("%w: too many requests", ErrUnauthorized)
	ErrInvalidOrExpiredCode = fmt.Errorf("%w: invalid or expired verification code", ErrUnauthorized)
	ErrMFAInvalidCode       = fmt.Errorf("%w: invalid MFA code", ErrUnauthorized)
	ErrMFANotEnrolled       = fmt.Errorf("%w: MFA enrollment not started", ErrUnauthorized)
	ErrMFAAlreadyEnabled    = fmt.Errorf("%w: MFA already enabled", ErrConflict)
)
