package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrLocked              = errors.New("account locked")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidOtp          = errors.New("invalid otp")
	ErrOtpExpired          = errors.New("otp expired")
	ErrInvalidCode         = errors.New("invalid verification code")
	ErrCannotRevokeCurrent = errors.New("cannot revoke current session")
	ErrValidationFailed    = errors.New("validation failed")

	ErrSessionNotFound   = errors.New("session not found")
	ErrAlreadyVerified   = errors.New("account already verified")
	ErrMfaNotSetup       = errors.New("mfa not set up")
	ErrMfaAlreadyEnabled = errors.New("mfa already enabled")
	ErrMfaNotEnabled     = errors.New("mfa not enabled")
	ErrProviderUnknown   = errors.New("unknown oauth provider")
	ErrConflict          = errors.New("concurrent update")
)

// LockedError reports a login rejected by the lockout guard.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// ValidationError names the offending request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }
