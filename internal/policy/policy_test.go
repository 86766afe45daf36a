package policy

import (
	"errors"
	"testing"

	"plainsmart.org/internal/identity"
)

func TestRequireClaim(t *testing.T) {
	manage := RequireClaim("Manage Accounts", identity.ClaimRole, "administrator")

	userClaims := []identity.Claim{{Kind: identity.ClaimRole, Value: "user"}}
	adminClaims := []identity.Claim{{Kind: identity.ClaimRole, Value: "administrator"}}

	if manage.Allows(userClaims) {
		t.Fatalf("user claims must not satisfy administrator policy")
	}
	if !manage.Allows(adminClaims) {
		t.Fatalf("administrator claims must satisfy administrator policy")
	}
}

func TestRequireClaimIn(t *testing.T) {
	access := RequireClaimIn("Access Resources", identity.ClaimRole, "user", "administrator")

	cases := []struct {
		name   string
		claims []identity.Claim
		want   bool
	}{
		{"user allowed", []identity.Claim{{Kind: identity.ClaimRole, Value: "user"}}, true},
		{"administrator allowed", []identity.Claim{{Kind: identity.ClaimRole, Value: "administrator"}}, true},
		{"other role denied", []identity.Claim{{Kind: identity.ClaimRole, Value: "guest"}}, false},
		{"wrong kind denied", []identity.Claim{{Kind: identity.ClaimGivenName, Value: "user"}}, false},
		{"empty set denied", nil, false},
	}
	for _, tc := range cases {
		if got := access.Allows(tc.claims); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRegistryValidation(t *testing.T) {
	reg, err := NewRegistry(
		RequireClaim("Manage Accounts", identity.ClaimRole, "administrator"),
		RequireClaimIn("Access Resources", identity.ClaimRole, "user", "administrator"),
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, err := reg.Lookup("Manage Accounts"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := reg.Lookup("Operate Dashboards"); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	if _, err := NewRegistry(RequireClaim("Bad Kind", identity.ClaimKind("shoe_size"), "47")); !errors.Is(err, ErrUnknownClaimKind) {
		t.Fatalf("expected ErrUnknownClaimKind, got %v", err)
	}
	if _, err := NewRegistry(
		RequireClaim("Twice", identity.ClaimRole, "user"),
		RequireClaim("Twice", identity.ClaimRole, "administrator"),
	); !errors.Is(err, ErrDuplicatePolicy) {
		t.Fatalf("expected ErrDuplicatePolicy, got %v", err)
	}
}
