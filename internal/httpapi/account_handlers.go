package httpapi

import (
	"net/http"
	"strings"

	"plainsmart.org/internal/audit"
)

type createAccountRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleCreateAccount(w, r)
	case http.MethodGet:
		a.handleListAccounts(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

// handleCreateAccount registers a new account. Registration is anonymous;
// the new account receives the default role.
func (a *API) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	account, err := a.identity.CreateAccount(r.Context(), req.Username, req.Password, req.GivenName, req.FamilyName)
	if err != nil {
		handleIdentityError(w, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "account.created", map[string]any{
		"username": account.Username,
	})
	w.Header().Set("Location", "/accounts/"+account.Username)
	writeJSON(w, http.StatusCreated, account)
}

// handleListAccounts returns the members of a role, ordered by account
// identifier. Guarded by the "Manage Accounts" policy.
func (a *API) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	if !a.requirePolicy(w, r, a.manageAccounts) {
		return
	}
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if role == "" {
		writeError(w, http.StatusBadRequest, "role query parameter is required")
		return
	}
	accounts, err := a.identity.ListAccountsInRole(r.Context(), role)
	if err != nil {
		handleIdentityError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// handleAccountByUsername serves DELETE /accounts/{username}. Guarded by the
// "Manage Accounts" policy. A missing account is 404, never a silent 204,
// so deletion audits stay unambiguous.
func (a *API) handleAccountByUsername(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	if !a.requirePolicy(w, r, a.manageAccounts) {
		return
	}
	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/accounts/"), "/")
	if username == "" || strings.Contains(username, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := a.identity.DeleteAccount(r.Context(), username); err != nil {
		handleIdentityError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.deleted", map[string]any{
		"username": username,
	})
	w.WriteHeader(http.StatusNoContent)
}
