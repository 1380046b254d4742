// Package common defines shared constants and sentinel errors used across
// the vault service. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Payload does not match the secret type's schema.
	ErrValidation = errors.New("validation error")

	// AEAD tag verification failed on decrypt. A read that hits this
	// must fail rather than surface ciphertext or stale plaintext.
	ErrIntegrity = errors.New("integrity check failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Two-factor errors.
	ErrCodeInvalid     = errors.New("invalid one-time code")
	ErrAlreadyEnrolled = errors.New("two-factor already enabled")
)
