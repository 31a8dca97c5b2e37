package postgres

import (
	"context"
	"time"

	"github.com/formulapm/access-management/internal"
	"github.com/formulapm/access-management/internal/authz"
	auditDatamodel "github.com/formulapm/access-management/internal/core/datamodel/audit"
	identityDatamodel "github.com/formulapm/access-management/internal/core/datamodel/identity"
	"github.com/formulapm/access-management/internal/identity"
	"gorm.io/gorm"
)

// IdentityRepository implements the identity.Repository interface using GORM
type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) identity.Repository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*identity.Identity, error) {
	var model identityDatamodel.UserIdentity
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, identity.ErrIdentityNotFound
		}
		return nil, err
	}
	return identity.FromDataModel(&model), nil
}

// ChangeRole updates the identity row and appends the audit record in one
// transaction. The UPDATE is guarded by the expected pre-change values; zero
// affected rows means another migration got there first, and the whole
// transaction rolls back with MIGRATION_CONFLICT.
func (r *IdentityRepository) ChangeRole(ctx context.Context, subjectID string, expected, next identity.RoleChange, changedBy string) (*identity.Identity, *identity.AuditRecord, error) {
	var updated identityDatamodel.UserIdentity
	var record auditDatamodel.RoleAuditRecord

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&identityDatamodel.UserIdentity{}).
			Where("id = ? AND role = ? AND seniority = ?", subjectID, string(expected.Role), string(expected.Seniority)).
			Updates(map[string]interface{}{
				"role":       string(next.Role),
				"seniority":  string(next.Seniority),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.ErrMigrationConflict
		}

		record = auditDatamodel.RoleAuditRecord{
			SubjectUserID:     subjectID,
			PreviousRole:      string(expected.Role),
			NewRole:           string(next.Role),
			PreviousSeniority: string(expected.Seniority),
			NewSeniority:      string(next.Seniority),
			ChangedBy:         changedBy,
			CreatedAt:         time.Now(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", subjectID).First(&updated).Error
	})
	if err != nil {
		return nil, nil, err
	}

	return identity.FromDataModel(&updated), identity.AuditFromDataModel(&record), nil
}

func (r *IdentityRepository) SetActive(ctx context.Context, subjectID string, active bool) error {
	res := r.db.WithContext(ctx).Model(&identityDatamodel.UserIdentity{}).
		Where("id = ?", subjectID).
		Updates(map[string]interface{}{
			"active":     active,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return identity.ErrIdentityNotFound
	}
	return nil
}

func (r *IdentityRepository) GetAuditTrail(ctx context.Context, subjectID string, limit, offset int) ([]*identity.AuditRecord, error) {
	var models []*auditDatamodel.RoleAuditRecord
	err := r.db.WithContext(ctx).
		Where("subject_user_id = ?", subjectID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return identity.AuditFromDataModelSlice(models), nil
}

// FindApprover picks the longest-provisioned active identity at the level,
// so the approver assignment is stable across re-evaluations.
func (r *IdentityRepository) FindApprover(ctx context.Context, role authz.Role, seniority authz.Seniority) (*authz.Identity, error) {
	var model identityDatamodel.UserIdentity
	q := r.db.WithContext(ctx).Where("role = ? AND active = ?", string(role), true)
	if role == authz.RoleProjectManager {
		q = q.Where("seniority = ?", string(seniority))
	}
	err := q.Order("created_at ASC").First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, identity.ErrNoApprover
		}
		return nil, err
	}

	ident := identity.FromDataModel(&model).AuthzIdentity()
	return &ident, nil
}
