package identity

import "errors"

var (
	ErrNotFound      = errors.New("identity: not found")
	ErrAlreadyExists = errors.New("identity: already exists")
	ErrWeakPassword  = errors.New("identity: password does not meet requirements")

	// ErrInvalidCredentials deliberately covers both an unknown username and
	// a wrong password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrAccountLocked is returned once the failed-access threshold is hit.
	ErrAccountLocked = errors.New("identity: account locked")
)
