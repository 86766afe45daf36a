package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultLockoutThreshold = 5

// Service provides account lifecycle, role membership and claim derivation.
type Service struct {
	store            Store
	now              func() time.Time
	lockoutThreshold int
	defaultRole      string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLockoutThreshold sets how many failed credential checks lock an account.
func WithLockoutThreshold(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.lockoutThreshold = n
		}
	}
}

// WithDefaultRole sets the role granted to newly registered accounts.
func WithDefaultRole(name string) ServiceOption {
	return func(s *Service) {
		if name != "" {
			s.defaultRole = name
		}
	}
}

// NewService constructs a Service over the given store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	svc := &Service{
		store:            store,
		now:              time.Now,
		lockoutThreshold: defaultLockoutThreshold,
		defaultRole:      "user",
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// NormalizeUsername produces the canonical case-insensitive form used for
// uniqueness checks and lookups.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// CreateAccount registers a new account, enforces the password policy,
// grants the default role and returns the stored record. Two usernames
// differing only by case are the same account.
func (s *Service) CreateAccount(ctx context.Context, username, password, givenName, familyName string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidCredentials)
	}
	if err := CheckPasswordPolicy(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		Username:           username,
		NormalizedUsername: NormalizeUsername(username),
		GivenName:          strings.TrimSpace(givenName),
		FamilyName:         strings.TrimSpace(familyName),
		PasswordHash:       hash,
		LockoutEnabled:     true,
	}
	if err := s.store.Accounts().Create(ctx, account); err != nil {
		return nil, err
	}

	if s.defaultRole != "" {
		if err := s.AssignRole(ctx, account.Username, s.defaultRole); err != nil {
			return nil, fmt.Errorf("grant default role: %w", err)
		}
	}
	return account, nil
}

// FindByUsername looks up an account case-insensitively.
func (s *Service) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return s.store.Accounts().FindByUsername(ctx, NormalizeUsername(username))
}

// DeleteAccount removes the account record. Already-issued tokens stay valid
// until they expire; deletion only stops future issuance.
func (s *Service) DeleteAccount(ctx context.Context, username string) error {
	return s.store.Accounts().Delete(ctx, NormalizeUsername(username))
}

// EnsureRole creates the named role when absent and reports whether it did.
func (s *Service) EnsureRole(ctx context.Context, name string) (bool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false, errors.New("role name is required")
	}
	return s.store.Roles().Ensure(ctx, &Role{Name: name})
}

// AssignRole adds the account to the role. Assigning a held role is a no-op.
// The role must already exist; roles are not created on demand.
func (s *Service) AssignRole(ctx context.Context, username, roleName string) error {
	role, err := s.store.Roles().FindByName(ctx, strings.ToLower(strings.TrimSpace(roleName)))
	if err != nil {
		return fmt.Errorf("role %q: %w", roleName, err)
	}
	account, err := s.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("account %q: %w", username, err)
	}
	return s.store.Roles().Assign(ctx, account.ID, role.ID)
}

// RemoveRole drops the account's membership in the role. The claim derived
// from it disappears on the next ClaimsFor computation.
func (s *Service) RemoveRole(ctx context.Context, username, roleName string) error {
	role, err := s.store.Roles().FindByName(ctx, strings.ToLower(strings.TrimSpace(roleName)))
	if err != nil {
		return fmt.Errorf("role %q: %w", roleName, err)
	}
	account, err := s.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("account %q: %w", username, err)
	}
	return s.store.Roles().Unassign(ctx, account.ID, role.ID)
}

// ClaimsFor computes the account's claims fresh from current roles and
// profile fields. Nothing is cached between calls.
func (s *Service) ClaimsFor(ctx context.Context, username string) ([]Claim, error) {
	account, err := s.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.claimsForAccount(ctx, account)
}

func (s *Service) claimsForAccount(ctx context.Context, account *Account) ([]Claim, error) {
	roles, err := s.store.Roles().RolesFor(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return DeriveClaims(account, roles), nil
}

// ClaimsForID is ClaimsFor keyed by account identifier; the token refresh
// path uses it to re-derive claims for a token subject.
func (s *Service) ClaimsForID(ctx context.Context, accountID string) (*Account, []Claim, error) {
	account, err := s.store.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	claims, err := s.claimsForAccount(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return account, claims, nil
}

// ListAccountsInRole returns the members of a role ordered by account
// identifier so repeated listings are deterministic.
func (s *Service) ListAccountsInRole(ctx context.Context, roleName string) ([]*Account, error) {
	role, err := s.store.Roles().FindByName(ctx, strings.ToLower(strings.TrimSpace(roleName)))
	if err != nil {
		return nil, fmt.Errorf("role %q: %w", roleName, err)
	}
	return s.store.Roles().AccountsInRole(ctx, role.ID)
}

// VerifyCredentials checks a username/password pair. Unknown usernames and
// wrong passwords both map to ErrInvalidCredentials; the distinction must
// not leak to callers. Failed checks count toward lockout.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (*Account, error) {
	account, err := s.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if account.LockoutEnabled && account.AccessFailedCount >= s.lockoutThreshold {
		return nil, ErrAccountLocked
	}
	if err := VerifyPassword(account.PasswordHash, password); err != nil {
		account.AccessFailedCount++
		if uerr := s.store.Accounts().Update(ctx, account); uerr != nil {
			return nil, uerr
		}
		return nil, ErrInvalidCredentials
	}
	if account.AccessFailedCount > 0 {
		account.AccessFailedCount = 0
		if err := s.store.Accounts().Update(ctx, account); err != nil {
			return nil, err
		}
	}
	return account, nil
}
