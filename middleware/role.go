package middleware

import (
	"net/http"

	"github.com/alebarre/credauth/credential"
)

// RequireRole answers 403 unless the claims stored by Guard carry role.
// Labels are normalized, so "admin" and "ROLE_ADMIN" are equivalent.
func RequireRole(role string) func(http.Handler) http.Handler {
	want, err := credential.NormalizeRole(role)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				unauthorized(w, "unauthorized")
				return
			}
			if err != nil || !hasRole(claims.RoleList(), want) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasRole(labels []string, want credential.Role) bool {
	for _, label := range labels {
		if credential.Role(label) == want {
			return true
		}
	}
	return false
}
