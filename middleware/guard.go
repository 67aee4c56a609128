package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/alebarre/credauth"
	"github.com/alebarre/credauth/jwt"
)

// TokenValidator verifies session tokens. *credauth.Engine satisfies it.
type TokenValidator interface {
	ValidateSessionToken(ctx context.Context, token string) (*jwt.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by Guard.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return claims, ok
}

// Guard rejects requests without a valid bearer session token with 401.
func Guard(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w, "unauthorized")
				return
			}
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "unauthorized")
				return
			}

			claims, err := v.ValidateSessionToken(r.Context(), token)
			if err != nil {
				if credauth.KindOf(err) == credauth.KindInternal {
					http.Error(w, credauth.PublicMessage(err), http.StatusInternalServerError)
					return
				}
				unauthorized(w, credauth.PublicMessage(err))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	http.Error(w, msg, http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, credauth.TokenTypeBearer) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
