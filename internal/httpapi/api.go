// Package httpapi is the HTTP surface of the identity service. Handlers stay
// thin: decode, call the identity/token services, map typed errors to status
// codes.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"plainsmart.org/internal/identity"
	"plainsmart.org/internal/obs"
	"plainsmart.org/internal/policy"
	"plainsmart.org/internal/token"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API wires handlers, middleware and the resolved policies.
type API struct {
	mux        *http.ServeMux
	identity   *identity.Service
	issuer     *token.Issuer
	readyProbe ReadyProbe
	version    string

	// Policies are resolved from the registry at construction, so an
	// unregistered policy name fails here, never during a request.
	manageAccounts *policy.Policy
}

// New builds the API. The policy registry must contain every policy the
// routes reference.
func New(svc *identity.Service, issuer *token.Issuer, policies *policy.Registry, rp ReadyProbe, version string) (*API, error) {
	manageAccounts, err := policies.Lookup("Manage Accounts")
	if err != nil {
		return nil, fmt.Errorf("resolve route policy: %w", err)
	}

	a := &API{
		mux:            http.NewServeMux(),
		identity:       svc,
		issuer:         issuer,
		readyProbe:     rp,
		version:        version,
		manageAccounts: manageAccounts,
	}

	a.mux.HandleFunc("/accounts", a.handleAccounts)
	a.mux.HandleFunc("/accounts/", a.handleAccountByUsername)
	a.mux.HandleFunc("/token", a.handleToken)
	a.mux.HandleFunc("/token/refresh", a.handleTokenRefresh)
	a.mux.HandleFunc("/.well-known/jwks.json", a.handleJWKS)

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, 20, 10)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "identity-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	jwks, err := a.issuer.PublishedKeys()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "key material unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "max-age=300")
	_, _ = w.Write(jwks)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// handleIdentityError maps typed identity errors onto HTTP responses.
// Credential failures stay deliberately vague.
func handleIdentityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, identity.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, identity.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrAccountLocked):
		writeError(w, http.StatusUnauthorized, "account locked")
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		obs.Error("internal error", map[string]any{"err": err.Error()})
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
