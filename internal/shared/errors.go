package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique-name or unique-pair violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInactive indicates the referenced record exists but is disabled.
	ErrInactive = errors.New("record inactive")
	// ErrValidation indicates a malformed or incomplete request payload.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTooManyAttempts indicates the login throttle kicked in.
	ErrTooManyAttempts = errors.New("too many login attempts")
	// ErrUnauthorized indicates a missing or unverifiable bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the token lacks a required permission.
	ErrForbidden = errors.New("forbidden")
)
