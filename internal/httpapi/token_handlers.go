package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"plainsmart.org/internal/audit"
	"plainsmart.org/internal/obs"
	"plainsmart.org/internal/token"
)

type tokenRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Scopes   []string `json:"scopes"`
	ClientID string   `json:"clientId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type grantResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scope,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// handleToken implements the password exchange: verify credentials, derive
// the current claim set, mint a grant bound to it.
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	account, err := a.identity.VerifyCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.TokenFailure("credentials")
		handleIdentityError(w, err)
		return
	}
	claims, err := a.identity.ClaimsFor(r.Context(), account.Username)
	if err != nil {
		handleIdentityError(w, err)
		return
	}

	grant, err := a.issuer.Issue(r.Context(), account, claims, req.Scopes, req.ClientID)
	if err != nil {
		a.handleTokenError(w, err)
		return
	}

	obs.TokenIssued(req.ClientID, "password")
	_ = audit.LogEvent(r.Context(), "token.issued", map[string]any{
		"subject":   account.ID,
		"client_id": req.ClientID,
		"scopes":    grant.Scopes,
	})
	writeJSON(w, http.StatusOK, grantResponse(*grant))
}

// handleTokenRefresh rotates a refresh token into a fresh grant.
func (a *API) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	grant, err := a.issuer.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.handleTokenError(w, err)
		return
	}

	obs.TokenIssued("", "refresh")
	_ = audit.LogEvent(r.Context(), "token.refreshed", nil)
	writeJSON(w, http.StatusOK, grantResponse(*grant))
}

func (a *API) handleTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrUnknownClient):
		obs.TokenFailure("unknown_client")
		writeError(w, http.StatusBadRequest, "unknown client")
	case errors.Is(err, token.ErrScopeNotGranted):
		obs.TokenFailure("scope")
		writeError(w, http.StatusBadRequest, "requested scope not granted")
	case errors.Is(err, token.ErrRefreshInvalid), errors.Is(err, token.ErrRefreshDisabled):
		obs.TokenFailure("refresh")
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
	default:
		obs.Error("token issuance failed", map[string]any{"err": err.Error()})
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
