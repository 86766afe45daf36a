package token

import "errors"

var (
	// Issuance errors.
	ErrUnknownClient   = errors.New("token: client is not registered")
	ErrScopeNotGranted = errors.New("token: requested scope not granted to client")
	ErrRefreshDisabled = errors.New("token: refresh tokens are not enabled")
	ErrRefreshInvalid  = errors.New("token: refresh token is invalid")

	// Validation errors. Each malformed or rejected token maps to exactly
	// one of these so callers can log and count by cause.
	ErrExpired       = errors.New("token: expired")
	ErrBadSignature  = errors.New("token: bad signature")
	ErrWrongAudience = errors.New("token: wrong audience")
	ErrMalformed     = errors.New("token: malformed")
)
