package audit

import "time"

// RoleAuditRecord rows are append-only: created when a role or seniority
// changes, never updated or deleted.
type RoleAuditRecord struct {
	ID                int64     `gorm:"primaryKey"`
	SubjectUserID     string    `gorm:"column:subject_user_id;not null;index"`
	PreviousRole      string    `gorm:"column:previous_role;not null"`
	NewRole           string    `gorm:"column:new_role;not null"`
	PreviousSeniority string    `gorm:"column:previous_seniority;not null"`
	NewSeniority      string    `gorm:"column:new_seniority;not null"`
	ChangedBy         string    `gorm:"column:changed_by;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;default:now()"`
}

func (RoleAuditRecord) TableName() string {
	return "role_audit_records"
}
