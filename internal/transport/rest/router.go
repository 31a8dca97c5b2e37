package rest

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/formulapm/access-management/internal/approval"
	"github.com/formulapm/access-management/internal/auth"
	"github.com/formulapm/access-management/internal/authz"
	"github.com/formulapm/access-management/internal/identity"
	"github.com/formulapm/access-management/internal/transport/middleware"
	"github.com/formulapm/access-management/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
)

// splitOrigins turns the comma-separated allowed_origins config value into
// the origin list go-chi/cors expects. Empty means allow any origin.
func splitOrigins(allowedOrigins string) []string {
	if strings.TrimSpace(allowedOrigins) == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		origins = append(origins, strings.TrimSpace(o))
	}
	return origins
}

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth     *auth.Handler
	Authz    *authz.Handler
	Approval *approval.Handler
	Identity *identity.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, resolver *authz.Resolver, h Handlers, allowedOrigins string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: splitOrigins(allowedOrigins),
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Trace-ID"},
		MaxAge:         300,
	}))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if h.Auth != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/login", h.Auth.Login)
				sr.Post("/refresh", h.Auth.RefreshToken)
				sr.Post("/logout", h.Auth.Logout)
			})
		}

		if h.Auth == nil {
			return
		}

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Get("/users/me", h.Auth.Me)

			if h.Authz != nil {
				pr.Post("/authz/check", h.Authz.Check)
			}

			if h.Approval != nil {
				pr.Route("/approvals", func(ar chi.Router) {
					ar.Post("/evaluate", h.Approval.Evaluate)
					ar.Get("/", h.Approval.ListRequests)
					ar.Get("/{id}", h.Approval.GetRequest)

					// Deciding is additionally gated by the rule table;
					// the service re-checks the decider's limit.
					ar.Group(func(dr chi.Router) {
						dr.Use(middleware.RequireAuthorization(resolver, "approval_requests", authz.ActionApprove))
						dr.Patch("/{id}/approve", h.Approval.ApproveRequest)
						dr.Patch("/{id}/reject", h.Approval.RejectRequest)
					})
				})
			}

			if h.Identity != nil {
				pr.Route("/identities", func(ir chi.Router) {
					ir.Group(func(rr chi.Router) {
						rr.Use(middleware.RequireAuthorization(resolver, "identities", authz.ActionRead))
						rr.Get("/{id}", h.Identity.GetIdentity)
						rr.Get("/{id}/audit", h.Identity.GetAuditTrail)
					})

					ir.Group(func(ur chi.Router) {
						ur.Use(middleware.RequireAuthorization(resolver, "identities", authz.ActionUpdate))
						ur.Patch("/{id}/role", h.Identity.ChangeRole)
						ur.Post("/{id}/deactivate", h.Identity.Deactivate)
					})
				})
			}
		})
	})
}
