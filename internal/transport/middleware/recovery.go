package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/transport"
	"github.com/frahmantamala/access-management/pkg/logger"
)

// RecoveryMiddleware turns a panic into the standard 500 envelope. The panic value and stack
// only reach the log.
func RecoveryMiddleware(base *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil || rec == http.ErrAbortHandler {
					if rec != nil {
						panic(rec)
					}
					return
				}

				logger.From(r.Context()).Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"url", r.URL.String(),
					"stack", string(debug.Stack()))

				base.WriteAppError(w, errs.NewInternalError("panic recovered", fmt.Errorf("%v", rec)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
