package identity

import (
	"context"
	"log/slog"

	"github.com/formulapm/access-management/internal"
	"github.com/formulapm/access-management/internal/authz"
	"github.com/formulapm/access-management/internal/core/events"
)

// RoleChange is the validated (role, seniority) pair a migration moves to.
type RoleChange struct {
	Role      authz.Role
	Seniority authz.Seniority
}

// Repository defines the data access methods for identities. ChangeRole must
// perform the identity update and the audit append in one atomic transaction:
// both writes land or neither does. The expected pre-change values act as a
// compare-and-swap guard; a mismatch means a concurrent migration won and the
// call fails with a conflict instead of merging partial state.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Identity, error)
	ChangeRole(ctx context.Context, subjectID string, expected, next RoleChange, changedBy string) (*Identity, *AuditRecord, error)
	SetActive(ctx context.Context, subjectID string, active bool) error
	GetAuditTrail(ctx context.Context, subjectID string, limit, offset int) ([]*AuditRecord, error)
	FindApprover(ctx context.Context, role authz.Role, seniority authz.Seniority) (*authz.Identity, error)
}

// Service guards role and seniority migrations: every change is validated
// against the closed role set, paired with exactly one audit record, and
// rejected wholesale when anything is off.
type Service struct {
	repo     Repository
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewService(repo Repository, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// ChangeRole migrates an identity to a new role/seniority. Legacy role names
// abort before any read or write; the update and its audit record commit
// together or not at all.
func (s *Service) ChangeRole(ctx context.Context, subjectID string, dto ChangeRoleDTO, changedBy authz.Identity) (*Identity, *AuditRecord, error) {
	newRole, err := authz.ParseRole(dto.Role)
	if err != nil {
		s.logger.Warn("role change rejected: unknown role",
			"subject_user_id", subjectID,
			"new_role", dto.Role,
			"changed_by", changedBy.ID)
		return nil, nil, err
	}

	newSeniority, err := authz.ParseSeniority(dto.Seniority)
	if err != nil {
		s.logger.Warn("role change rejected: unknown seniority",
			"subject_user_id", subjectID,
			"new_seniority", dto.Seniority,
			"changed_by", changedBy.ID)
		return nil, nil, err
	}
	// Seniority only means something for project managers; everyone else
	// stores the neutral default.
	if newRole != authz.RoleProjectManager {
		newSeniority = authz.SeniorityDefault
	}

	current, err := s.repo.GetByID(ctx, subjectID)
	if err != nil {
		return nil, nil, internal.ErrIdentityNotFound
	}

	expected := RoleChange{Role: current.Role, Seniority: current.Seniority}
	next := RoleChange{Role: newRole, Seniority: newSeniority}

	updated, record, err := s.repo.ChangeRole(ctx, subjectID, expected, next, changedBy.ID)
	if err != nil {
		s.logger.Error("role change failed",
			"error", err,
			"subject_user_id", subjectID,
			"changed_by", changedBy.ID)
		return nil, nil, err
	}

	s.logger.Info("role changed",
		"subject_user_id", subjectID,
		"previous_role", record.PreviousRole,
		"new_role", record.NewRole,
		"previous_seniority", record.PreviousSeniority,
		"new_seniority", record.NewSeniority,
		"changed_by", changedBy.ID)

	if s.eventBus != nil {
		event := events.NewRoleChangedEvent(subjectID,
			string(record.PreviousRole), string(record.NewRole),
			string(record.PreviousSeniority), string(record.NewSeniority),
			changedBy.ID)
		if err := s.eventBus.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish role change event", "error", err, "subject_user_id", subjectID)
		}
	}

	return updated, record, nil
}

// Deactivate turns an identity off without deleting it.
func (s *Service) Deactivate(ctx context.Context, subjectID string, changedBy authz.Identity) error {
	if _, err := s.repo.GetByID(ctx, subjectID); err != nil {
		return internal.ErrIdentityNotFound
	}

	if err := s.repo.SetActive(ctx, subjectID, false); err != nil {
		s.logger.Error("failed to deactivate identity", "error", err, "subject_user_id", subjectID)
		return err
	}

	s.logger.Info("identity deactivated",
		"subject_user_id", subjectID,
		"changed_by", changedBy.ID)

	if s.eventBus != nil {
		event := events.NewIdentityDeactivatedEvent(subjectID, changedBy.ID)
		if err := s.eventBus.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish deactivation event", "error", err, "subject_user_id", subjectID)
		}
	}

	return nil
}

func (s *Service) GetByID(ctx context.Context, subjectID string) (*Identity, error) {
	ident, err := s.repo.GetByID(ctx, subjectID)
	if err != nil {
		return nil, internal.ErrIdentityNotFound
	}
	return ident, nil
}

// GetAuditTrail returns the append-only change history for an identity,
// newest first.
func (s *Service) GetAuditTrail(ctx context.Context, subjectID string, limit, offset int) ([]*AuditRecord, error) {
	if _, err := s.repo.GetByID(ctx, subjectID); err != nil {
		return nil, internal.ErrIdentityNotFound
	}
	return s.repo.GetAuditTrail(ctx, subjectID, limit, offset)
}

// FindApprover resolves an approval level to a concrete active identity,
// satisfying approval.ApproverDirectory.
func (s *Service) FindApprover(ctx context.Context, role authz.Role, seniority authz.Seniority) (*authz.Identity, error) {
	return s.repo.FindApprover(ctx, role, seniority)
}
