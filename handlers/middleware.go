package handlers

import (
	"crypto/subtle"
	"net/http"
)

// AdminTokenMiddleware gates the admin surface behind the shared operator
// token carried in X-Admin-Token.
func AdminTokenMiddleware(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Admin-Token")
			if provided == "" {
				WriteAPIError(w, http.StatusUnauthorized, "missing_token", "X-Admin-Token header required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(adminToken)) != 1 {
				WriteAPIError(w, http.StatusForbidden, "invalid_token", "admin token rejected")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
