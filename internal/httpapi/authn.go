package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"plainsmart.org/internal/obs"
	"plainsmart.org/internal/policy"
	"plainsmart.org/internal/token"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// Paths reachable without a bearer token. Registration and the token
// endpoints are anonymous by design; everything else under the mux needs a
// validated token.
var publicPaths = map[string]struct{}{
	"/token":                 {},
	"/token/refresh":         {},
	"/.well-known/jwks.json": {},
	"/healthz":               {},
	"/readyz":                {},
	"/metrics":               {},
}

func isPublic(r *http.Request) bool {
	if _, ok := publicPaths[r.URL.Path]; ok {
		return true
	}
	// Account registration is open; other account operations are not.
	return r.URL.Path == "/accounts" && r.Method == http.MethodPost
}

// withAuth validates the bearer token on protected paths and attaches the
// decoded claims to the request context. Validation is signature+expiry
// only; it never consults the account store.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublic(r) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, err.Error())
			return
		}

		claims, err := a.issuer.Validate(raw)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpired):
				obs.TokenFailure("expired")
				unauthorized(w, "token expired")
			case errors.Is(err, token.ErrWrongAudience):
				obs.TokenFailure("audience")
				unauthorized(w, "token not valid for this audience")
			default:
				obs.TokenFailure("signature")
				unauthorized(w, "invalid token")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(token.ContextWithClaims(r.Context(), claims)))
	})
}

// requirePolicy evaluates the resolved policy against the claims embedded in
// the presented token. Policy denial is 403; a missing token on a guarded
// route is 401.
func (a *API) requirePolicy(w http.ResponseWriter, r *http.Request, p *policy.Policy) bool {
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		unauthorized(w, "authentication required")
		return false
	}
	if !p.Allows(claims.ClaimSet()) {
		writeError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="identity-api"`)
	writeError(w, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
		return "", errors.New("invalid authorization scheme")
	}
	raw := strings.TrimSpace(header[len(bearerPrefix):])
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	return raw, nil
}
