package approval

import (
	"time"

	"github.com/shopspring/decimal"
)

type ApprovalRequest struct {
	ID                 string          `gorm:"primaryKey"`
	RequesterID        string          `gorm:"column:requester_id;not null;index"`
	Resource           string          `gorm:"column:resource;not null"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	CurrentApproverID  *string         `gorm:"column:current_approver_id;index"`
	ApproverRole       string          `gorm:"column:approver_role"`
	ApproverSeniority  string          `gorm:"column:approver_seniority"`
	Status             string          `gorm:"column:status;not null;default:pending;index"`
	DecisionReason     string          `gorm:"column:decision_reason"`
	DecidedBy          *string         `gorm:"column:decided_by"`
	DecidedAt          *time.Time      `gorm:"column:decided_at"`
	CreatedAt          time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;default:now()"`
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}
