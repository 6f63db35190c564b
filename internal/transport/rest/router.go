package rest

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/frahmantamala/access-management/internal/auth"
	"github.com/frahmantamala/access-management/internal/loginlog"
	"github.com/frahmantamala/access-management/internal/role"
	"github.com/frahmantamala/access-management/internal/transport"
	"github.com/frahmantamala/access-management/internal/transport/metrics"
	"github.com/frahmantamala/access-management/internal/transport/middleware"
	"github.com/frahmantamala/access-management/internal/transport/swagger"
	"github.com/frahmantamala/access-management/internal/user"
	"github.com/go-chi/chi"
	"github.com/unrolled/secure"
)

// Routes bundles everything the HTTP surface needs. Nil handlers leave their routes unmounted.
type Routes struct {
	Logger         *slog.Logger
	Base           *transport.BaseHandler
	Health         *HealthHandler
	Auth           *auth.Handler
	Authenticator  *auth.Authenticator
	Users          *user.Handler
	LoginLogs      *loginlog.Handler
	Roles          *role.Handler
	Metrics        *metrics.Metrics
	MetricsPath    string
	OpenAPISpec    []byte
	AllowedHosts   []string
	Production     bool
	TrustedProxies []netip.Prefix
}

func RegisterAllRoutes(router *chi.Mux, routes Routes) {
	secureMiddleware := secure.New(secure.Options{
		AllowedHosts:       routes.AllowedHosts,
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        routes.Production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	// Apply global middleware
	router.Use(middleware.RealIP(routes.TrustedProxies))
	router.Use(middleware.ContextLogger(routes.Logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(routes.Base))
	router.Use(secureMiddleware.Handler)
	router.Use(routes.Metrics.Middleware)
	router.Use(middleware.LoggingMiddleware(routes.MetricsPath, "/swagger/"))

	if routes.Metrics != nil && routes.MetricsPath != "" {
		router.Handle(routes.MetricsPath, routes.Metrics.Handler())
	}

	// Serve OpenAPI spec at root (outside API prefix)
	if len(routes.OpenAPISpec) > 0 {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(routes.OpenAPISpec)
		})
		router.Handle("/swagger/*", swagger.Handler("/openapi.yml"))
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		if routes.Health != nil {
			r.Get("/health", routes.Health.Health)
			r.Get("/ping", routes.Health.Ping)
		}

		if routes.Auth != nil {
			r.Post("/auth/register", routes.Auth.Register)
			r.Post("/auth/login", routes.Auth.Login)
		}

		if routes.Authenticator == nil {
			return
		}

		gate := routes.Authenticator.RequirePermission

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(routes.Authenticator.Authenticate)
			pr.Use(middleware.UserContext)

			if routes.Auth != nil {
				pr.Post("/auth/logout", routes.Auth.Logout)
			}

			if routes.Users != nil {
				pr.Route("/users", func(ur chi.Router) {
					ur.Get("/me", routes.Users.GetCurrentUser)
					ur.With(gate("users", "read")).Get("/", routes.Users.ListUsers)
					ur.With(gate("users", "write")).Put("/{id}", routes.Users.UpdateUser)
					ur.With(gate("users", "delete")).Delete("/{id}", routes.Users.DeleteUser)
					ur.Get("/{id}/permissions", routes.Users.GetUserPermissions)
				})
			}

			if routes.Roles != nil {
				pr.With(gate("users", "read")).Get("/roles", routes.Roles.GetRoles)
			}

			if routes.LoginLogs != nil {
				pr.With(gate("audit", "read")).Get("/audit/logins", routes.LoginLogs.ListLogins)
			}
		})
	})
}
