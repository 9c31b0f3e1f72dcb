package handlers

import (
	"net/http"

	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

// RequireRole lets the request through only when the token's role claim is
// one of roles. It must run after jwtauth.Authenticator.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			role, _ := claims["role"].(string)
			if !allowed[role] {
				log.WithFields(log.Fields{
					"role": role,
					"path": r.URL.Path,
				}).Warn("request rejected for role")
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
