package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/formulapm/access-management/internal"
	"github.com/formulapm/access-management/internal/authz"
	"github.com/formulapm/access-management/internal/core/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the data access methods for approval requests
type Repository interface {
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	FindOpen(ctx context.Context, requesterID, resource string, amount decimal.Decimal) (*Request, error)
	GetByRequester(ctx context.Context, requesterID string, limit, offset int) ([]*Request, error)
	GetAll(ctx context.Context, limit, offset int) ([]*Request, error)
	Update(ctx context.Context, req *Request) error
}

// ApproverDirectory resolves an approval level to a concrete active identity.
type ApproverDirectory interface {
	FindApprover(ctx context.Context, role authz.Role, seniority authz.Seniority) (*authz.Identity, error)
}

// Outcome is the result of evaluating an amount against the requester's
// limit: either a direct approval (no request row) or the open request that
// now carries the escalated approval.
type Outcome struct {
	Approved bool     `json:"approved"`
	Request  *Request `json:"request,omitempty"`
}

// Service decides whether an identity may approve an amount unilaterally and
// drives the escalation chain when it may not. Evaluation itself is pure over
// the limit table; only escalations touch storage.
type Service struct {
	repo      Repository
	directory ApproverDirectory
	limits    *LimitTable
	eventBus  *events.EventBus
	logger    *slog.Logger
}

func NewService(repo Repository, directory ApproverDirectory, limits *LimitTable, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		limits:    limits,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// Evaluate applies the requester's limit to amount. Within limit the outcome
// is a direct approval and nothing is stored; above it the request escalates
// up the chain. Re-evaluating while an identical request is still open
// returns the existing request untouched.
func (s *Service) Evaluate(ctx context.Context, requester authz.Identity, dto EvaluateDTO) (*Outcome, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("evaluate validation failed", "error", err, "user_id", requester.ID)
		return nil, err
	}

	level := LevelFor(requester)
	if s.limits.Covers(level, dto.Amount) {
		s.logger.Info("amount within approval limit, approved directly",
			"user_id", requester.ID,
			"role", requester.Role,
			"seniority", level.Seniority,
			"amount", dto.Amount)
		return &Outcome{Approved: true}, nil
	}

	existing, err := s.repo.FindOpen(ctx, requester.ID, dto.Resource, dto.Amount)
	if err != nil && err != ErrRequestNotFound {
		s.logger.Error("failed to look up open approval request", "error", err, "user_id", requester.ID)
		return nil, err
	}
	if existing != nil {
		// Idempotent re-evaluation: nothing new, so the approver chain and
		// the stored row stay exactly as they are.
		return &Outcome{Approved: false, Request: existing}, nil
	}

	req := &Request{
		ID:          uuid.NewString(),
		RequesterID: requester.ID,
		Resource:    dto.Resource,
		Amount:      dto.Amount,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	s.escalate(ctx, req, level)

	if err := s.repo.Create(ctx, req); err != nil {
		s.logger.Error("failed to create approval request", "error", err, "user_id", requester.ID)
		return nil, err
	}

	s.logger.Info("approval request escalated",
		"request_id", req.ID,
		"user_id", requester.ID,
		"amount", dto.Amount,
		"approver_role", req.ApproverRole,
		"approver_seniority", req.ApproverSeniority)

	if s.eventBus != nil {
		event := events.NewApprovalEscalatedEvent(req.ID, requester.ID, dto.Amount.String(), string(req.ApproverRole))
		if err := s.eventBus.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish escalation event", "error", err, "request_id", req.ID)
		}
	}

	return &Outcome{Approved: false, Request: req}, nil
}

// escalate walks the chain above from and pins the request to the first
// sufficient level, or to the top-level role when the chain is exhausted.
func (s *Service) escalate(ctx context.Context, req *Request, from Level) {
	target, found := s.limits.NextSufficient(from, req.Amount)
	if !found {
		target = s.limits.TopLevel()
	}

	var approverID *string
	if s.directory != nil {
		approver, err := s.directory.FindApprover(ctx, target.Role, target.Seniority)
		if err != nil {
			s.logger.Warn("no concrete approver available for level",
				"request_id", req.ID,
				"approver_role", target.Role,
				"approver_seniority", target.Seniority)
		} else {
			approverID = &approver.ID
		}
	}

	req.Escalate(target, approverID)
}

// Approve transitions an open request to approved. The decider's own limit
// must cover the amount; decided requests are terminal.
func (s *Service) Approve(ctx context.Context, requestID string, decider authz.Identity) (*Request, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, internal.ErrApprovalNotFound
	}

	if !req.CanBeDecided() {
		s.logger.Warn("cannot approve request in current status",
			"request_id", requestID,
			"status", req.Status)
		return nil, internal.ErrInvalidApproval
	}

	if !s.limits.Covers(LevelFor(decider), req.Amount) {
		s.logger.Warn("approver limit does not cover amount",
			"request_id", requestID,
			"decider_id", decider.ID,
			"amount", req.Amount)
		return nil, internal.ErrNotAuthorized
	}

	req.Approve(decider.ID)
	if err := s.repo.Update(ctx, req); err != nil {
		s.logger.Error("failed to persist approval", "error", err, "request_id", requestID)
		return nil, err
	}

	s.logger.Info("approval request approved",
		"request_id", requestID,
		"decider_id", decider.ID,
		"amount", req.Amount)

	return req, nil
}

// Reject transitions an open request to rejected with a reason.
func (s *Service) Reject(ctx context.Context, requestID string, decider authz.Identity, reason string) (*Request, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, internal.ErrApprovalNotFound
	}

	if !req.CanBeDecided() {
		s.logger.Warn("cannot reject request in current status",
			"request_id", requestID,
			"status", req.Status)
		return nil, internal.ErrInvalidApproval
	}

	req.Reject(decider.ID, reason)
	if err := s.repo.Update(ctx, req); err != nil {
		s.logger.Error("failed to persist rejection", "error", err, "request_id", requestID)
		return nil, err
	}

	s.logger.Info("approval request rejected",
		"request_id", requestID,
		"decider_id", decider.ID,
		"reason", reason)

	return req, nil
}

// GetByID retrieves a request; callers only see their own requests unless
// they sit at an approving level.
func (s *Service) GetByID(ctx context.Context, requestID string, caller authz.Identity) (*Request, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, internal.ErrApprovalNotFound
	}

	if req.RequesterID != caller.ID && !s.isApproverLevel(caller) {
		s.logger.Warn("unauthorized access to approval request",
			"request_id", requestID,
			"caller_id", caller.ID)
		return nil, internal.ErrNotAuthorized
	}

	return req, nil
}

// List returns the caller's own requests, or all requests for approver-level
// callers.
func (s *Service) List(ctx context.Context, caller authz.Identity, limit, offset int) ([]*Request, error) {
	if s.isApproverLevel(caller) {
		return s.repo.GetAll(ctx, limit, offset)
	}
	return s.repo.GetByRequester(ctx, caller.ID, limit, offset)
}

func (s *Service) isApproverLevel(identity authz.Identity) bool {
	switch identity.Role {
	case authz.RoleManagement, authz.RoleAdmin:
		return true
	case authz.RoleProjectManager:
		return identity.Seniority == authz.SenioritySenior || identity.Seniority == authz.SeniorityExecutive
	default:
		return false
	}
}
