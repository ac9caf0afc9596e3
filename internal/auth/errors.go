package auth

import "errors"

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidOperator    = errors.New("invalid operator")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrNoSecret           = errors.New("jwt secret is empty")
	ErrWeakPassword       = errors.New("password too short")
	ErrInvalidHash        = errors.New("invalid password hash")
)
