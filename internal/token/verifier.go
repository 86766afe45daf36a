package token

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
)

// Verifier validates access tokens from published JWKS material alone. It is
// what an independently deployed resource server embeds: no signing key, no
// call back to the identity service on each request.
type Verifier struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience []string
	now      func() time.Time
}

// NewVerifier parses a JWKS document (as served at /.well-known/jwks.json)
// into a standalone validator.
func NewVerifier(jwksJSON json.RawMessage, issuer string, audience []string) (*Verifier, error) {
	jwks, err := keyfunc.NewJSON(jwksJSON)
	if err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}
	return &Verifier{jwks: jwks, issuer: issuer, audience: audience, now: time.Now}, nil
}

// Validate checks a bearer token against the published keys.
func (v *Verifier) Validate(tokenString string) (*AccessClaims, error) {
	return validateSigned(tokenString, v.jwks.Keyfunc, v.issuer, v.audience, v.now)
}
