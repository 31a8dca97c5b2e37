package postgres

import (
	"context"
	"time"

	"github.com/formulapm/access-management/internal/core/datamodel/policy"
	policydomain "github.com/formulapm/access-management/internal/policy"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Capture stores a set of policies as a new snapshot and returns its id.
func (r *SnapshotRepository) Capture(ctx context.Context, policies []policydomain.StoredPolicy) (string, error) {
	snapshotID := uuid.New().String()
	now := time.Now()

	records := make([]policy.StoredPolicyRecord, 0, len(policies))
	for _, p := range policies {
		records = append(records, policy.StoredPolicyRecord{
			SnapshotID: snapshotID,
			Name:       p.Name,
			Role:       p.Role,
			Resource:   p.Resource,
			Action:     p.Action,
			Predicate:  p.Predicate,
			CapturedAt: now,
		})
	}

	if err := r.db.WithContext(ctx).Create(&records).Error; err != nil {
		return "", err
	}
	return snapshotID, nil
}

// GetSnapshot loads all policies captured under one snapshot id.
func (r *SnapshotRepository) GetSnapshot(ctx context.Context, snapshotID string) ([]policydomain.StoredPolicy, error) {
	var records []policy.StoredPolicyRecord
	if err := r.db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("name ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return toDomain(records), nil
}

// GetLatest loads the most recently captured snapshot.
func (r *SnapshotRepository) GetLatest(ctx context.Context) ([]policydomain.StoredPolicy, error) {
	var latest policy.StoredPolicyRecord
	err := r.db.WithContext(ctx).
		Order("captured_at DESC").
		First(&latest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return r.GetSnapshot(ctx, latest.SnapshotID)
}

func toDomain(records []policy.StoredPolicyRecord) []policydomain.StoredPolicy {
	out := make([]policydomain.StoredPolicy, 0, len(records))
	for _, rec := range records {
		out = append(out, policydomain.StoredPolicy{
			Name:      rec.Name,
			Role:      rec.Role,
			Resource:  rec.Resource,
			Action:    rec.Action,
			Predicate: rec.Predicate,
		})
	}
	return out
}
