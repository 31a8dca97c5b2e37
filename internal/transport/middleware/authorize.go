package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/formulapm/access-management/internal/auth"
	"github.com/formulapm/access-management/internal/authz"
)

type decisionCtxKey struct{}

// DecisionFromContext returns the authorization decision placed by
// RequireAuthorization, so handlers can apply its row filter to queries.
func DecisionFromContext(ctx context.Context) (authz.Decision, bool) {
	d, ok := ctx.Value(decisionCtxKey{}).(authz.Decision)
	return d, ok
}

// RequireAuthorization gates a route on the permission resolver. A
// denied caller always gets the same generic forbidden response; the
// deny reason goes to the log only, so responses never reveal which
// rule was consulted.
func RequireAuthorization(resolver *authz.Resolver, resource string, action authz.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok || user == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			decision, err := resolver.Authorize(user.Identity, resource, string(action))
			if err != nil {
				slog.Error("authorization check failed",
					"user_id", user.Identity.ID,
					"resource", resource,
					"action", action,
					"error", err)
				http.Error(w, "Bad Request", http.StatusBadRequest)
				return
			}

			if !decision.Allowed {
				slog.Warn("access denied",
					"user_id", user.Identity.ID,
					"role", user.Identity.Role,
					"resource", resource,
					"action", action,
					"reason", decision.Reason)
				http.Error(w, "not authorized", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), decisionCtxKey{}, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
