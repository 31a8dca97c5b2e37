package identity

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/formulapm/access-management/internal/auth"
	"github.com/formulapm/access-management/internal/authz"
	"github.com/formulapm/access-management/internal/transport"
	"github.com/formulapm/access-management/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	ChangeRole(ctx context.Context, subjectID string, dto ChangeRoleDTO, changedBy authz.Identity) (*Identity, *AuditRecord, error)
	Deactivate(ctx context.Context, subjectID string, changedBy authz.Identity) error
	GetByID(ctx context.Context, subjectID string) (*Identity, error)
	GetAuditTrail(ctx context.Context, subjectID string, limit, offset int) ([]*AuditRecord, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("ChangeRole: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto ChangeRoleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("ChangeRole: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	subjectID := chi.URLParam(r, "id")
	updated, record, err := h.Service.ChangeRole(r.Context(), subjectID, dto, user.Identity)
	if err != nil {
		h.Logger.Error("ChangeRole: service error", "error", err, "subject_user_id", subjectID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"identity": updated,
		"audit":    record,
	})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	subjectID := chi.URLParam(r, "id")
	if err := h.Service.Deactivate(r.Context(), subjectID, user.Identity); err != nil {
		h.Logger.Error("Deactivate: service error", "error", err, "subject_user_id", subjectID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "id")
	ident, err := h.Service.GetByID(r.Context(), subjectID)
	if err != nil {
		h.Logger.Error("GetIdentity: service error", "error", err, "subject_user_id", subjectID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ident)
}

func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	subjectID := chi.URLParam(r, "id")
	records, err := h.Service.GetAuditTrail(r.Context(), subjectID, limit, offset)
	if err != nil {
		h.Logger.Error("GetAuditTrail: service error", "error", err, "subject_user_id", subjectID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"limit":   limit,
		"offset":  offset,
	})
}
