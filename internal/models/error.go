package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login flow errors
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidCode          = errors.New("invalid code")
	ErrCodeMalformed        = errors.New("code must be exactly 6 digits")
	ErrResendNotReady       = errors.New("resend cooldown has not elapsed")
	ErrAttemptNotFound      = errors.New("login attempt not found or expired")
	ErrTransitionInProgress = errors.New("a transition is already in progress")
	ErrInvalidTransition    = errors.New("operation not valid in current step")
	ErrProviderUnavailable  = errors.New("identity provider unavailable")
)
