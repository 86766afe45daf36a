// Package identity owns accounts, roles and the claims derived from them.
// It is the system of record the token issuer snapshots at issuance time.
package identity

import "time"

// Account represents a registered principal. The username is stored twice:
// as entered, and normalized for case-insensitive uniqueness.
type Account struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	NormalizedUsername string    `json:"-"`
	GivenName          string    `json:"given_name"`
	FamilyName         string    `json:"family_name"`
	PasswordHash       string    `json:"-"`
	LockoutEnabled     bool      `json:"lockout_enabled"`
	AccessFailedCount  int       `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Role is a centrally defined grouping; accounts hold zero or more.
// Roles are not user-creatable at runtime.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ClaimKind enumerates the claim types this service emits. Claims are
// statically typed; there is no runtime claim-type registry.
type ClaimKind string

const (
	ClaimRole       ClaimKind = "role"
	ClaimGivenName  ClaimKind = "given_name"
	ClaimFamilyName ClaimKind = "family_name"
)

// Claim is a typed fact about a principal, embedded into issued tokens.
type Claim struct {
	Kind  ClaimKind `json:"kind"`
	Value string    `json:"value"`
}
