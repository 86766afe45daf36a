package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"plainsmart.org/internal/config"
	"plainsmart.org/internal/identity"
	"plainsmart.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
)

// AccessClaims is the signed payload of an access token: the registered
// claims plus a snapshot of the subject's identity claims, the granted
// scopes and the requesting client.
type AccessClaims struct {
	jwt.RegisteredClaims
	Claims   []identity.Claim `json:"claims,omitempty"`
	Scopes   []string         `json:"scope,omitempty"`
	ClientID string           `json:"client_id,omitempty"`
}

// ClaimSet returns the identity claims snapshotted at issuance.
func (c *AccessClaims) ClaimSet() []identity.Claim { return c.Claims }

// HasScope reports whether the token grants the named scope.
func (c *AccessClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Grant is the result of a successful issuance.
type Grant struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scope,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// ClaimsSource re-derives the current claim set for a token subject. The
// refresh path uses it so a rotated token reflects role changes instead of
// copying the stale snapshot.
type ClaimsSource func(ctx context.Context, accountID string) (*identity.Account, []identity.Claim, error)

// Issuer exchanges verified credentials for signed access tokens and
// validates presented tokens. Issuance and validation are pure once the
// keyring is loaded; only refresh tokens touch storage.
type Issuer struct {
	keyring  *Keyring
	clients  *ClientRegistry
	refresh  RefreshStore
	claims   ClaimsSource
	now      func() time.Time
	issuer   string
	audience []string

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// IssuerOption configures the Issuer.
type IssuerOption func(*Issuer)

// WithIssuerName sets the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		if name != "" {
			i.issuer = name
		}
	}
}

// WithAudience sets the aud claim and the audience accepted at validation.
func WithAudience(audience []string) IssuerOption {
	return func(i *Issuer) { i.audience = audience }
}

// WithAccessTTL sets the default access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
	}
}

// WithRefreshStore enables refresh tokens for offline-access clients.
func WithRefreshStore(store RefreshStore) IssuerOption {
	return func(i *Issuer) { i.refresh = store }
}

// WithClaimsSource wires the identity lookup used when refreshing.
func WithClaimsSource(src ClaimsSource) IssuerOption {
	return func(i *Issuer) { i.claims = src }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer. The keyring and client registry must
// already be loaded and validated.
func NewIssuer(keyring *Keyring, clients *ClientRegistry, opts ...IssuerOption) (*Issuer, error) {
	if keyring == nil {
		return nil, errors.New("keyring is required")
	}
	if clients == nil {
		return nil, errors.New("client registry is required")
	}
	iss := &Issuer{
		keyring:    keyring,
		clients:    clients,
		now:        time.Now,
		issuer:     "identity-api",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// Issue mints an access token for an already-verified account. The claim
// set is snapshotted into the token; later role changes do not affect it.
// Requested scopes must all be granted to the client, otherwise no token is
// issued at all.
func (i *Issuer) Issue(ctx context.Context, account *identity.Account, claims []identity.Claim, scopes []string, clientID string) (*Grant, error) {
	client, err := i.clients.Lookup(clientID)
	if err != nil {
		return nil, err
	}
	for _, scope := range scopes {
		if !client.AllowsScope(scope) {
			return nil, fmt.Errorf("%w: %q", ErrScopeNotGranted, scope)
		}
	}

	grant, err := i.mintAccessToken(account.ID, claims, scopes, client)
	if err != nil {
		return nil, err
	}

	if client.OfflineAccess && i.refresh != nil {
		refreshToken, err := i.mintRefreshToken(ctx, account.ID, client.ID, scopes)
		if err != nil {
			return nil, err
		}
		grant.RefreshToken = refreshToken
	}
	return grant, nil
}

// Refresh redeems a refresh token for a new grant without re-presenting the
// password. The presented token is revoked and replaced (rotation); claims
// are re-derived so the new access token reflects current role membership.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	if i.refresh == nil || i.claims == nil {
		return nil, ErrRefreshDisabled
	}
	id, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrRefreshInvalid
	}
	record, err := i.refresh.Find(ctx, id)
	if err != nil {
		return nil, ErrRefreshInvalid
	}
	if record.Revoked || i.now().After(record.ExpiresAt) {
		return nil, ErrRefreshInvalid
	}
	if !refreshHashMatches(record.TokenHash, secret) {
		// A bad secret against a live record suggests token theft; burn it.
		_ = i.refresh.MarkRevoked(ctx, record.ID)
		return nil, ErrRefreshInvalid
	}

	account, claims, err := i.claims(ctx, record.AccountID)
	if err != nil {
		return nil, ErrRefreshInvalid
	}
	client, err := i.clients.Lookup(record.ClientID)
	if err != nil {
		return nil, err
	}

	if err := i.refresh.MarkRevoked(ctx, record.ID); err != nil {
		return nil, err
	}

	grant, err := i.mintAccessToken(account.ID, claims, record.Scopes, client)
	if err != nil {
		return nil, err
	}
	next, err := i.mintRefreshToken(ctx, account.ID, client.ID, record.Scopes)
	if err != nil {
		return nil, err
	}
	grant.RefreshToken = next
	return grant, nil
}

func (i *Issuer) mintAccessToken(subject string, claims []identity.Claim, scopes []string, client config.Client) (*Grant, error) {
	now := i.now().UTC()
	ttl := i.accessTTL
	if client.AccessTTL > 0 {
		ttl = client.AccessTTL
	}
	expiresAt := now.Add(ttl)

	payload := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(i.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Claims:   claims,
		Scopes:   scopes,
		ClientID: client.ID,
	}

	kid, private := i.keyring.Active()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, payload)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(private)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Grant{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		Scopes:      scopes,
	}, nil
}

func (i *Issuer) mintRefreshToken(ctx context.Context, accountID, clientID string, scopes []string) (string, error) {
	secret, hash, err := newRefreshSecret()
	if err != nil {
		return "", err
	}
	now := i.now().UTC()
	record := &RefreshToken{
		ID:        ids.New(),
		AccountID: accountID,
		ClientID:  clientID,
		Scopes:    append([]string(nil), scopes...),
		TokenHash: hash,
		ExpiresAt: now.Add(i.refreshTTL),
		CreatedAt: now,
	}
	if err := i.refresh.Create(ctx, record); err != nil {
		return "", err
	}
	return record.ID + "." + secret, nil
}

// PublishedKeys returns the JWKS document resource servers use to validate
// tokens without calling back.
func (i *Issuer) PublishedKeys() ([]byte, error) {
	return i.keyring.JWKS()
}

// Validate checks signature, expiry and audience against the keyring and
// clock alone. It performs no account lookup, so deletions and role changes
// after issuance are invisible until the token expires.
func (i *Issuer) Validate(tokenString string) (*AccessClaims, error) {
	return validateSigned(tokenString, i.verificationKeyfunc, i.issuer, i.audience, i.now)
}

func (i *Issuer) verificationKeyfunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing key id")
	}
	return i.keyring.VerificationKey(kid)
}

// validateSigned is shared by the issuer-side and the JWKS-based validator.
func validateSigned(tokenString string, keyfn jwt.Keyfunc, issuer string, audience []string, now func() time.Time) (*AccessClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, keyfn,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrBadSignature
		}
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if issuer != "" && claims.Issuer != issuer {
		return nil, ErrMalformed
	}
	if len(audience) > 0 && !audienceMatches(claims.Audience, audience) {
		return nil, ErrWrongAudience
	}
	return claims, nil
}

func audienceMatches(got jwt.ClaimStrings, want []string) bool {
	for _, w := range want {
		for _, g := range got {
			if g == w {
				return true
			}
		}
	}
	return false
}
