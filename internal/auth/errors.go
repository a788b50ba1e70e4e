package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrEmailTaken   = errors.New("auth: email already registered")

	// ErrInvalidCredentials covers both unknown email and wrong password
	// so responses cannot be used as an email-existence oracle.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrAccountLocked   = errors.New("auth: account temporarily locked")
	ErrAccountPending  = errors.New("auth: account pending approval")
	ErrAccountDisabled = errors.New("auth: account disabled")

	ErrTwoFactorRequired = errors.New("auth: two-factor code required")
	ErrTwoFactorInvalid  = errors.New("auth: two-factor code invalid")

	ErrSessionExpired = errors.New("auth: session expired")
	ErrInvalidToken   = errors.New("auth: invalid token")
)
