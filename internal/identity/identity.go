package identity

import (
	"errors"
	"time"

	"github.com/formulapm/access-management/internal/authz"
	auditDatamodel "github.com/formulapm/access-management/internal/core/datamodel/audit"
	identityDatamodel "github.com/formulapm/access-management/internal/core/datamodel/identity"
)

// Identity is a provisioned account. Identities are never deleted, only
// deactivated, so historical records referencing them stay valid.
type Identity struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Role      authz.Role      `json:"role"`
	Seniority authz.Seniority `json:"seniority"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AuthzIdentity projects the account onto the authorization subject shape.
func (i *Identity) AuthzIdentity() authz.Identity {
	return authz.Identity{
		ID:        i.ID,
		Role:      i.Role,
		Seniority: i.Seniority,
		Active:    i.Active,
	}
}

// AuditRecord captures one role/seniority change. Records are append-only.
type AuditRecord struct {
	ID                int64           `json:"id"`
	SubjectUserID     string          `json:"subject_user_id"`
	PreviousRole      authz.Role      `json:"previous_role"`
	NewRole           authz.Role      `json:"new_role"`
	PreviousSeniority authz.Seniority `json:"previous_seniority"`
	NewSeniority      authz.Seniority `json:"new_seniority"`
	ChangedBy         string          `json:"changed_by"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Domain errors
var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrNoApprover       = errors.New("no active approver at requested level")
)

func ToDataModel(i *Identity) *identityDatamodel.UserIdentity {
	return &identityDatamodel.UserIdentity{
		ID:        i.ID,
		Email:     i.Email,
		Name:      i.Name,
		Role:      string(i.Role),
		Seniority: string(i.Seniority),
		Active:    i.Active,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

func FromDataModel(m *identityDatamodel.UserIdentity) *Identity {
	return &Identity{
		ID:        m.ID,
		Email:     m.Email,
		Name:      m.Name,
		Role:      authz.Role(m.Role),
		Seniority: authz.Seniority(m.Seniority),
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func AuditFromDataModel(m *auditDatamodel.RoleAuditRecord) *AuditRecord {
	return &AuditRecord{
		ID:                m.ID,
		SubjectUserID:     m.SubjectUserID,
		PreviousRole:      authz.Role(m.PreviousRole),
		NewRole:           authz.Role(m.NewRole),
		PreviousSeniority: authz.Seniority(m.PreviousSeniority),
		NewSeniority:      authz.Seniority(m.NewSeniority),
		ChangedBy:         m.ChangedBy,
		CreatedAt:         m.CreatedAt,
	}
}

func AuditFromDataModelSlice(models []*auditDatamodel.RoleAuditRecord) []*AuditRecord {
	result := make([]*AuditRecord, len(models))
	for i, m := range models {
		result[i] = AuditFromDataModel(m)
	}
	return result
}
