package authz

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/formulapm/access-management/internal/transport"
	"github.com/formulapm/access-management/pkg/logger"
)

// CheckDTO asks whether the caller may perform an action on a resource.
type CheckDTO struct {
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
}

// IdentityProvider decouples the handler from the auth package; the
// router adapts the authenticated user into an Identity.
type IdentityProvider func(r *http.Request) (Identity, bool)

type Handler struct {
	*transport.BaseHandler
	resolver *Resolver
	identity IdentityProvider
}

func NewHandler(resolver *Resolver, identity IdentityProvider) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		resolver:    resolver,
		identity:    identity,
	}
}

// Check lets an authenticated caller ask about their own access. The
// response carries the decision and row filter but, on deny, never the
// rule that produced it.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	user, ok := h.identity(r)
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var dto CheckDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, err := h.resolver.Authorize(user, dto.Resource, dto.Action)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if !decision.Allowed {
		// strip the internal reason before it leaves the process
		h.WriteJSON(w, http.StatusOK, Decision{Allowed: false})
		return
	}
	h.WriteJSON(w, http.StatusOK, decision)
}
