package approval

import (
	"errors"
	"time"

	"github.com/formulapm/access-management/internal/authz"
	approvalDatamodel "github.com/formulapm/access-management/internal/core/datamodel/approval"
	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusEscalated = "escalated"
)

// Request is a monetary approval that exceeded the requester's own limit and
// is waiting on someone higher in the chain.
type Request struct {
	ID                string          `json:"id"`
	RequesterID       string          `json:"requester_id"`
	Resource          string          `json:"resource"`
	Amount            decimal.Decimal `json:"amount"`
	CurrentApproverID *string         `json:"current_approver_id,omitempty"`
	ApproverRole      authz.Role      `json:"approver_role,omitempty"`
	ApproverSeniority authz.Seniority `json:"approver_seniority,omitempty"`
	Status            string          `json:"status"`
	DecisionReason    string          `json:"decision_reason,omitempty"`
	DecidedBy         *string         `json:"decided_by,omitempty"`
	DecidedAt         *time.Time      `json:"decided_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Transitions are one-way: pending and escalated requests can be decided,
// decided requests are terminal. There is no path back to pending, so an
// approval can never be silently revoked here.

func (r *Request) IsOpen() bool {
	return r.Status == StatusPending || r.Status == StatusEscalated
}

func (r *Request) CanBeDecided() bool {
	return r.IsOpen()
}

func (r *Request) Escalate(approverLevel Level, approverID *string) {
	r.Status = StatusEscalated
	r.ApproverRole = approverLevel.Role
	r.ApproverSeniority = approverLevel.Seniority
	r.CurrentApproverID = approverID
	r.UpdatedAt = time.Now()
}

func (r *Request) Approve(deciderID string) {
	now := time.Now()
	r.Status = StatusApproved
	r.DecidedBy = &deciderID
	r.DecidedAt = &now
	r.UpdatedAt = now
}

func (r *Request) Reject(deciderID, reason string) {
	now := time.Now()
	r.Status = StatusRejected
	r.DecisionReason = reason
	r.DecidedBy = &deciderID
	r.DecidedAt = &now
	r.UpdatedAt = now
}

// Domain errors
var (
	ErrRequestNotFound   = errors.New("approval request not found")
	ErrAlreadyDecided    = errors.New("approval request already decided")
	ErrInsufficientLimit = errors.New("approver limit does not cover the amount")
)

func ToDataModel(r *Request) *approvalDatamodel.ApprovalRequest {
	return &approvalDatamodel.ApprovalRequest{
		ID:                r.ID,
		RequesterID:       r.RequesterID,
		Resource:          r.Resource,
		Amount:            r.Amount,
		CurrentApproverID: r.CurrentApproverID,
		ApproverRole:      string(r.ApproverRole),
		ApproverSeniority: string(r.ApproverSeniority),
		Status:            r.Status,
		DecisionReason:    r.DecisionReason,
		DecidedBy:         r.DecidedBy,
		DecidedAt:         r.DecidedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func FromDataModel(m *approvalDatamodel.ApprovalRequest) *Request {
	return &Request{
		ID:                m.ID,
		RequesterID:       m.RequesterID,
		Resource:          m.Resource,
		Amount:            m.Amount,
		CurrentApproverID: m.CurrentApproverID,
		ApproverRole:      authz.Role(m.ApproverRole),
		ApproverSeniority: authz.Seniority(m.ApproverSeniority),
		Status:            m.Status,
		DecisionReason:    m.DecisionReason,
		DecidedBy:         m.DecidedBy,
		DecidedAt:         m.DecidedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func FromDataModelSlice(models []*approvalDatamodel.ApprovalRequest) []*Request {
	result := make([]*Request, len(models))
	for i, m := range models {
		result[i] = FromDataModel(m)
	}
	return result
}
