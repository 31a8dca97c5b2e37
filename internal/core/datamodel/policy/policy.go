package policy

import "time"

// StoredPolicyRecord is one database-side policy predicate captured at
// snapshot time. Rows for the same capture share a snapshot id.
type StoredPolicyRecord struct {
	ID         int64     `gorm:"primaryKey"`
	SnapshotID string    `gorm:"column:snapshot_id;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	Role       string    `gorm:"column:role;not null"`
	Resource   string    `gorm:"column:resource;not null"`
	Action     string    `gorm:"column:action;not null"`
	Predicate  string    `gorm:"column:predicate;not null"`
	CapturedAt time.Time `gorm:"column:captured_at;default:now()"`
}

func (StoredPolicyRecord) TableName() string {
	return "policy_snapshots"
}
