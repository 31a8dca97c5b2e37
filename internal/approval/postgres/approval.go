package postgres

import (
	"context"
	"time"

	"github.com/formulapm/access-management/internal/approval"
	approvalDatamodel "github.com/formulapm/access-management/internal/core/datamodel/approval"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ApprovalRepository implements the approval.Repository interface using GORM
type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) approval.Repository {
	return &ApprovalRepository{db: db}
}

func (r *ApprovalRepository) Create(ctx context.Context, req *approval.Request) error {
	return r.db.WithContext(ctx).Create(approval.ToDataModel(req)).Error
}

func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*approval.Request, error) {
	var model approvalDatamodel.ApprovalRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, approval.ErrRequestNotFound
		}
		return nil, err
	}
	return approval.FromDataModel(&model), nil
}

// FindOpen returns the still-undecided request matching (requester, resource,
// amount), if any. Evaluation uses it to stay idempotent.
func (r *ApprovalRepository) FindOpen(ctx context.Context, requesterID, resource string, amount decimal.Decimal) (*approval.Request, error) {
	var model approvalDatamodel.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("requester_id = ? AND resource = ? AND amount = ? AND status IN ?",
			requesterID, resource, amount, []string{approval.StatusPending, approval.StatusEscalated}).
		Order("created_at ASC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, approval.ErrRequestNotFound
		}
		return nil, err
	}
	return approval.FromDataModel(&model), nil
}

func (r *ApprovalRepository) GetByRequester(ctx context.Context, requesterID string, limit, offset int) ([]*approval.Request, error) {
	var models []*approvalDatamodel.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return approval.FromDataModelSlice(models), nil
}

func (r *ApprovalRepository) GetAll(ctx context.Context, limit, offset int) ([]*approval.Request, error) {
	var models []*approvalDatamodel.ApprovalRequest
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return approval.FromDataModelSlice(models), nil
}

func (r *ApprovalRepository) Update(ctx context.Context, req *approval.Request) error {
	req.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(approval.ToDataModel(req)).Error
}
