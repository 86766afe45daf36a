package identity

import "context"

// Store describes the persistence operations the identity service needs.
// Implementations must serialize writes touching the same account so
// concurrent role assignments cannot lose updates.
type Store interface {
	Accounts() AccountStore
	Roles() RoleStore
}

// AccountStore manages account records. Lookups take the normalized
// (lower-cased) username.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByUsername(ctx context.Context, normalized string) (*Account, error)
	// Update persists mutable fields (lockout counter, profile).
	Update(ctx context.Context, a *Account) error
	// Delete returns ErrNotFound when no such account exists; a delete that
	// removed nothing is never reported as success.
	Delete(ctx context.Context, normalized string) error
}

// RoleStore manages roles and role membership.
type RoleStore interface {
	// Ensure creates the role when absent and reports whether it did.
	Ensure(ctx context.Context, r *Role) (created bool, err error)
	FindByName(ctx context.Context, name string) (*Role, error)
	// Assign is a no-op when the account already holds the role.
	Assign(ctx context.Context, accountID, roleID string) error
	Unassign(ctx context.Context, accountID, roleID string) error
	RolesFor(ctx context.Context, accountID string) ([]Role, error)
	// AccountsInRole returns members ordered by account identifier.
	AccountsInRole(ctx context.Context, roleID string) ([]*Account, error)
}
