package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"plainsmart.org/internal/config"
	"plainsmart.org/internal/identity"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testPrivateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate test key: %v", err)
		}
	})
	return testKey
}

func testClients(t *testing.T) *ClientRegistry {
	t.Helper()
	reg, err := NewClientRegistry([]config.Client{
		{
			ID:            "AngularSPA",
			AllowedScopes: []string{"openid", "profile", "roles", "WebAPI"},
			OfflineAccess: true,
		},
		{
			ID:            "BackendDaemon",
			AllowedScopes: []string{"WebAPI"},
		},
	})
	if err != nil {
		t.Fatalf("NewClientRegistry: %v", err)
	}
	return reg
}

func testIssuer(t *testing.T, opts ...IssuerOption) *Issuer {
	t.Helper()
	keyring, err := NewKeyring(testPrivateKey(t))
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	base := []IssuerOption{
		WithIssuerName("identity-api-test"),
		WithAudience([]string{"WebAPI"}),
		WithAccessTTL(900 * time.Second),
	}
	iss, err := NewIssuer(keyring, testClients(t), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

func testAccount() *identity.Account {
	return &identity.Account{ID: "01TESTACCOUNT", Username: "alice@x.com", NormalizedUsername: "alice@x.com"}
}

func testClaims() []identity.Claim {
	return []identity.Claim{
		{Kind: identity.ClaimRole, Value: "user"},
		{Kind: identity.ClaimGivenName, Value: "Alice"},
	}
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	current := time.Now()
	iss := testIssuer(t, WithClock(func() time.Time { return current }))

	grant, err := iss.Issue(context.Background(), testAccount(), testClaims(), []string{"WebAPI"}, "AngularSPA")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if grant.TokenType != "Bearer" {
		t.Fatalf("unexpected token type: %s", grant.TokenType)
	}
	if !grant.ExpiresAt.Equal(current.UTC().Add(900 * time.Second)) {
		t.Fatalf("unexpected expiry: %v", grant.ExpiresAt)
	}

	claims, err := iss.Validate(grant.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "01TESTACCOUNT" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if !identity.HasClaim(claims.ClaimSet(), identity.ClaimRole, "user") {
		t.Fatalf("claim snapshot lost: %v", claims.ClaimSet())
	}
	if !identity.HasClaim(claims.ClaimSet(), identity.ClaimGivenName, "Alice") {
		t.Fatalf("profile claim lost: %v", claims.ClaimSet())
	}
	if !claims.HasScope("WebAPI") {
		t.Fatalf("scope lost: %v", claims.Scopes)
	}
}

func TestValidateAfterExpiry(t *testing.T) {
	current := time.Now()
	iss := testIssuer(t, WithClock(func() time.Time { return current }))

	grant, err := iss.Issue(context.Background(), testAccount(), testClaims(), []string{"WebAPI"}, "AngularSPA")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = current.Add(901 * time.Second)
	if _, err := iss.Validate(grant.AccessToken); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestIssueScopeContainment(t *testing.T) {
	iss := testIssuer(t)

	_, err := iss.Issue(context.Background(), testAccount(), testClaims(), []string{"WebAPI", "ledger.admin"}, "AngularSPA")
	if !errors.Is(err, ErrScopeNotGranted) {
		t.Fatalf("expected ErrScopeNotGranted, got %v", err)
	}

	// BackendDaemon may request WebAPI but not profile.
	if _, err := iss.Issue(context.Background(), testAccount(), testClaims(), []string{"profile"}, "BackendDaemon"); !errors.Is(err, ErrScopeNotGranted) {
		t.Fatalf("expected ErrScopeNotGranted, got %v", err)
	}
	if _, err := iss.Issue(context.Background(), testAccount(), testClaims(), []string{"WebAPI"}, "BackendDaemon"); err != nil {
		t.Fatalf("allowed scope rejected: %v", err)
	}
}

func TestIssueUnknownClient(t *testing.T) {
	iss := testIssuer(t)
	_, err := iss.Issue(context.Background(), testAccount(), testClaims(), []string{"WebAPI"}, "EvilSPA")
	if !errors.Is(err, ErrUnknownClient) {
		t.Fatalf("expected ErrUnknownClient, got %v", err)
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	iss := testIssuer(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	otherKeyring, err := NewKeyring(otherKey)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	other, err := NewIssuer(otherKeyring, testClients(t),
		WithIssuerName("identity-api-test"),
		WithAudience([]string{"WebAPI"}),
	)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	grant, err := other.Issue(context.Background(), testAccount(), testClaims(), []string{"WebAPI"}, "AngularSPA")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := iss.Validate(grant.AccessToken); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestValidateWrongAudience(t *testing.T) {
	keyring, err := NewKeyring(testPrivateKey(t))
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	minting, err := NewIssuer(keyring, testClients(t),
		WithIssuerName("identity-api-test"),
		WithAudience([]string{"ReportingAPI"}),
	)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	validating, err := NewIssuer(keyring, testClients(t),
		WithIssuerName("identity-api-test"),
		WithAudience([]string{"WebAPI"}),
	)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	grant, err := minting.Issue(context.Background(), testAccount(), testClaims(), []string{"WebAPI"}, "AngularSPA")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := validating.Validate(grant.AccessToken); !errors.Is(err, ErrWrongAudience) {
		t.Fatalf("expected ErrWrongAudience, got %v", err)
	}
}

func TestValidateMalformed(t *testing.T) {
	iss := testIssuer(t)
	if _, err := iss.Validate("not-a-jwt"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	account := testAccount()
	claims := testClaims()
	source := func(ctx context.Context, accountID string) (*identity.Account, []identity.Claim, error) {
		if accountID != account.ID {
			return nil, nil, identity.ErrNotFound
		}
		return account, claims, nil
	}

	iss := testIssuer(t,
		WithRefreshStore(NewMemoryRefreshStore()),
		WithClaimsSource(source),
	)

	grant, err := iss.Issue(context.Background(), account, claims, []string{"WebAPI"}, "AngularSPA")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if grant.RefreshToken == "" {
		t.Fatalf("offline-access client should receive a refresh token")
	}
	if !strings.Contains(grant.RefreshToken, ".") {
		t.Fatalf("unexpected refresh token shape")
	}

	next, err := iss.Refresh(context.Background(), grant.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken == "" || next.RefreshToken == "" {
		t.Fatalf("refresh should mint a full grant")
	}
	if next.RefreshToken == grant.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}

	// Single use: the redeemed token is dead.
	if _, err := iss.Refresh(context.Background(), grant.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid on reuse, got %v", err)
	}
}

func TestRefreshRejectsTamperedSecret(t *testing.T) {
	account := testAccount()
	iss := testIssuer(t,
		WithRefreshStore(NewMemoryRefreshStore()),
		WithClaimsSource(func(ctx context.Context, id string) (*identity.Account, []identity.Claim, error) {
			return account, testClaims(), nil
		}),
	)

	grant, err := iss.Issue(context.Background(), account, testClaims(), []string{"WebAPI"}, "AngularSPA")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, _, err := splitRefreshToken(grant.RefreshToken)
	if err != nil {
		t.Fatalf("splitRefreshToken: %v", err)
	}
	if _, err := iss.Refresh(context.Background(), id+".forged-secret"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
	// The record was burned; even the genuine token no longer works.
	if _, err := iss.Refresh(context.Background(), grant.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected record revoked after forgery attempt, got %v", err)
	}
}

func TestRefreshExpires(t *testing.T) {
	current := time.Now()
	account := testAccount()
	iss := testIssuer(t,
		WithClock(func() time.Time { return current }),
		WithRefreshTTL(time.Hour),
		WithRefreshStore(NewMemoryRefreshStore()),
		WithClaimsSource(func(ctx context.Context, id string) (*identity.Account, []identity.Claim, error) {
			return account, testClaims(), nil
		}),
	)

	grant, err := iss.Issue(context.Background(), account, testClaims(), []string{"WebAPI"}, "AngularSPA")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	current = current.Add(2 * time.Hour)
	if _, err := iss.Refresh(context.Background(), grant.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected expired refresh token to be rejected, got %v", err)
	}
}

func TestNoRefreshTokenWithoutOfflineAccess(t *testing.T) {
	iss := testIssuer(t, WithRefreshStore(NewMemoryRefreshStore()))
	grant, err := iss.Issue(context.Background(), testAccount(), testClaims(), []string{"WebAPI"}, "BackendDaemon")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if grant.RefreshToken != "" {
		t.Fatalf("client without offline access received a refresh token")
	}
}

func TestClientRegistryRejectsUndefinedScope(t *testing.T) {
	_, err := NewClientRegistry([]config.Client{
		{ID: "Rogue", AllowedScopes: []string{"WebAPI", "not-a-scope"}},
	})
	if err == nil {
		t.Fatalf("expected configuration error for undefined scope")
	}
}
