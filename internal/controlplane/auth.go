package controlplane

import "net/http"

// requireToken wraps next with bearer-token auth: the Authorization header
// is compared literally against token. An empty token disables auth
// entirely (§4.12).
func requireToken(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != token {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}
