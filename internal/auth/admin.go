package auth

import (
	"net/http"

	"github.com/edvart/strike-inhouse/internal/permission"
)

// RequirePermission creates middleware that requires the logged-in player to
// hold path. It must run after the session middleware.
func RequirePermission(checker permission.Checker, path string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			player := PlayerFromContext(r.Context())
			if player == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ok, err := checker.HasPermission(r.Context(), player.ID, path)
			if err != nil {
				http.Error(w, "Failed to check permission", http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, "Forbidden: missing permission "+path, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
