package middleware

import (
	"net/http"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/pkg/logger"
)

// UserContext tags the request logger with the authenticated user. It must run after
// Authenticate; anonymous requests pass through untouched.
func UserContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := errs.IdentityFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := logger.With(r.Context(), "user_id", identity.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
