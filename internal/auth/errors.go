package auth

import "errors"

var (
	// ErrTokenInvalid is returned when a token fails signature, expiry or
	// structural validation.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenMissing is returned when no token was supplied.
	ErrTokenMissing = errors.New("auth: token missing")
)
