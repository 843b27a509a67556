package handlers

import (
	"net/http"
)

// CredentialStatus exposes the rotation state of the credential pool for
// operators. The pool masks secrets before they reach this handler.
func (a *App) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	if a.Pool == nil || a.Pool.Size() == 0 {
		a.error(w, http.StatusServiceUnavailable, "no_credentials", "no credentials configured")
		return
	}
	a.json(w, http.StatusOK, a.Pool.Status())
}
