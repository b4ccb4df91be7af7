package errs

import (
	"errors"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyExists     = errors.New("record already exists")
	ErrDSNNotConfigured  = errors.New("mysql: DSN not configured (set WORKOS_AUTH_MYSQL_DSN or WORKOS_AUTH_MYSQL_HOST)")
	ErrSecretRequired    = errors.New("auth: framework secret is required")
	ErrInvalidSession    = errors.New("auth: invalid or missing session")
	ErrAuthDisabled      = errors.New("Collection does not have auth enabled")
	ErrSignUpDisabled    = errors.New("Sign-up is not allowed")
	ErrMissingCode       = errors.New("Missing authorization code")
	ErrInvalidState      = errors.New("Invalid state parameter - possible CSRF attack")
	ErrNoSelector        = errors.New("WorkOS requires either provider, connection, or organization to be specified in the configuration")
	ErrClientIDRequired  = errors.New("WorkOS client_id is required")
	ErrClientSecret      = errors.New("WorkOS client_secret is required")
	ErrCookiePassword    = errors.New("WorkOS cookie_password must be at least 32 characters long")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrForbidden         = errors.New("forbidden")
)
