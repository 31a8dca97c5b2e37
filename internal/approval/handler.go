package approval

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
	Evaluate(ctx context.Context, requester authz.Identity, dto EvaluateDTO) (*Outcome, error)
	Approve(ctx context.Context, requestID string, decider authz.Identity) (*Request, error)
	Reject(ctx context.Context, requestID string, decider authz.Identity, reason string) (*Request, error)
	GetByID(ctx context.Context, requestID string, caller authz.Identity) (*Request, error)
	List(ctx context.Context, caller authz.Identity, limit, offset int) ([]*Request, error)
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

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("Evaluate: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto EvaluateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("Evaluate: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.Service.Evaluate(r.Context(), user.Identity, dto)
	if err != nil {
		h.Logger.Error("Evaluate: service error", "error", err, "user_id", user.Identity.ID)
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Request != nil {
		status = http.StatusCreated
	}
	h.WriteJSON(w, status, outcome)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID := chi.URLParam(r, "id")
	req, err := h.Service.GetByID(r.Context(), requestID, user.Identity)
	if err != nil {
		h.Logger.Error("GetRequest: service error", "error", err, "request_id", requestID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 20
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	requests, err := h.Service.List(r.Context(), user.Identity, limit, offset)
	if err != nil {
		h.Logger.Error("ListRequests: service error", "error", err, "user_id", user.Identity.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID := chi.URLParam(r, "id")
	req, err := h.Service.Approve(r.Context(), requestID, user.Identity)
	if err != nil {
		h.Logger.Error("ApproveRequest: service error", "error", err, "request_id", requestID, "user_id", user.Identity.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("ApproveRequest: request approved",
		"request_id", requestID,
		"decider_id", user.Identity.ID)

	h.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto RejectDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RejectRequest: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	requestID := chi.URLParam(r, "id")
	req, err := h.Service.Reject(r.Context(), requestID, user.Identity, dto.Reason)
	if err != nil {
		h.Logger.Error("RejectRequest: service error", "error", err, "request_id", requestID, "user_id", user.Identity.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("RejectRequest: request rejected",
		"request_id", requestID,
		"decider_id", user.Identity.ID)

	h.WriteJSON(w, http.StatusOK, req)
}
