package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid username or password")

	ErrTokenMalformed = errors.New("auth: token malformed")
	ErrTokenSignature = errors.New("auth: token signature invalid")
	ErrTokenExpired   = errors.New("auth: token expired")

	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
)

// RateLimitedError carries the limiter decision so the transport layer can
// surface Remaining/Reset as response metadata.
type RateLimitedError struct {
	Limit        int
	Remaining    int
	ResetSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("auth: rate limited, retry in %ds", e.ResetSeconds)
}

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("auth: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
