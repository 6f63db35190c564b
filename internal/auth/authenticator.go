package auth

import (
	"context"
	"net/http"

	errs "github.com/frahmantamala/access-management/internal"
	"github.com/frahmantamala/access-management/internal/transport"
)

type SessionValidator interface {
	Validate(ctx context.Context, token string) (*errs.Identity, error)
}

type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int64, resource, action string) (bool, error)
}

// DenialRecorder is notified whenever a permission gate refuses a request.
type DenialRecorder interface {
	RecordDenial(resource, action string)
}

// Authenticator resolves the bearer token on every request and gates routes on permissions.
type Authenticator struct {
	*transport.BaseHandler
	sessions    SessionValidator
	permissions PermissionChecker
	denials     DenialRecorder
}

func NewAuthenticator(base *transport.BaseHandler, sessions SessionValidator, permissions PermissionChecker, denials DenialRecorder) *Authenticator {
	return &Authenticator{
		BaseHandler: base,
		sessions:    sessions,
		permissions: permissions,
		denials:     denials,
	}
}

// Authenticate rejects requests without a valid session and puts the caller's Identity in the
// request context for everything downstream.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.ExtractTokenFromHeader(r)
		if token == "" {
			a.WriteAppError(w, errs.ErrMissingToken)
			return
		}

		identity, err := a.sessions.Validate(r.Context(), token)
		if err != nil {
			a.WriteAppError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(errs.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequirePermission must run after Authenticate.
func (a *Authenticator) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := a.HasPermission(r.Context(), resource, action)
			if err != nil {
				a.WriteAppError(w, err)
				return
			}

			if !allowed {
				a.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"resource", resource,
					"action", action)
				if a.denials != nil {
					a.denials.RecordDenial(resource, action)
				}
				a.WriteAppError(w, errs.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HasPermission checks the identity carried by ctx. Without an identity it reports
// ErrMissingToken.
func (a *Authenticator) HasPermission(ctx context.Context, resource, action string) (bool, error) {
	identity, ok := errs.IdentityFromContext(ctx)
	if !ok {
		return false, errs.ErrMissingToken
	}
	return a.permissions.HasPermission(ctx, identity.UserID, resource, action)
}
