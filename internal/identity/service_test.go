package identity_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/formulapm/access-management/internal"
	"github.com/formulapm/access-management/internal/authz"
	"github.com/formulapm/access-management/internal/identity"
)

func TestIdentity(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Identity Suite")
}

// Mock repository for testing
type mockIdentityRepository struct {
	identities map[string]*identity.Identity
	audits     map[string][]*identity.AuditRecord
	changeErr  error
	nextAudit  int64
	calls      int
}

func newMockIdentityRepository() *mockIdentityRepository {
	return &mockIdentityRepository{
		identities: make(map[string]*identity.Identity),
		audits:     make(map[string][]*identity.AuditRecord),
		nextAudit:  1,
	}
}

func (m *mockIdentityRepository) GetByID(ctx context.Context, id string) (*identity.Identity, error) {
	ident, ok := m.identities[id]
	if !ok {
		return nil, identity.ErrIdentityNotFound
	}
	return ident, nil
}

func (m *mockIdentityRepository) ChangeRole(ctx context.Context, subjectID string, expected, next identity.RoleChange, changedBy string) (*identity.Identity, *identity.AuditRecord, error) {
	m.calls++
	if m.changeErr != nil {
		return nil, nil, m.changeErr
	}
	ident, ok := m.identities[subjectID]
	if !ok {
		return nil, nil, identity.ErrIdentityNotFound
	}
	if ident.Role != expected.Role || ident.Seniority != expected.Seniority {
		return nil, nil, internal.ErrMigrationConflict
	}

	record := &identity.AuditRecord{
		ID:                m.nextAudit,
		SubjectUserID:     subjectID,
		PreviousRole:      ident.Role,
		NewRole:           next.Role,
		PreviousSeniority: ident.Seniority,
		NewSeniority:      next.Seniority,
		ChangedBy:         changedBy,
		CreatedAt:         time.Now(),
	}
	m.nextAudit++

	ident.Role = next.Role
	ident.Seniority = next.Seniority
	m.audits[subjectID] = append(m.audits[subjectID], record)

	return ident, record, nil
}

func (m *mockIdentityRepository) SetActive(ctx context.Context, subjectID string, active bool) error {
	ident, ok := m.identities[subjectID]
	if !ok {
		return identity.ErrIdentityNotFound
	}
	ident.Active = active
	return nil
}

func (m *mockIdentityRepository) GetAuditTrail(ctx context.Context, subjectID string, limit, offset int) ([]*identity.AuditRecord, error) {
	return m.audits[subjectID], nil
}

func (m *mockIdentityRepository) FindApprover(ctx context.Context, role authz.Role, seniority authz.Seniority) (*authz.Identity, error) {
	for _, ident := range m.identities {
		if ident.Role == role && ident.Active {
			subject := ident.AuthzIdentity()
			return &subject, nil
		}
	}
	return nil, identity.ErrNoApprover
}

var _ = Describe("IdentityService", func() {
	var (
		service  *identity.Service
		mockRepo *mockIdentityRepository
		ctx      context.Context
	)

	admin := authz.Identity{ID: "admin-1", Role: authz.RoleAdmin, Active: true}

	BeforeEach(func() {
		ctx = context.Background()
		mockRepo = newMockIdentityRepository()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = identity.NewService(mockRepo, nil, logger)

		mockRepo.identities["u-1"] = &identity.Identity{
			ID: "u-1", Email: "pm@example.com", Name: "PM",
			Role: authz.RoleProjectManager, Seniority: authz.SeniorityRegular, Active: true,
		}
	})

	Describe("ChangeRole", func() {
		Context("when migrating to a valid role", func() {
			It("should update the identity and produce exactly one audit record", func() {
				dto := identity.ChangeRoleDTO{Role: "project_manager", Seniority: "senior"}

				updated, record, err := service.ChangeRole(ctx, "u-1", dto, admin)

				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Seniority).To(Equal(authz.SenioritySenior))
				Expect(record).NotTo(BeNil())
				Expect(record.PreviousSeniority).To(Equal(authz.SeniorityRegular))
				Expect(record.NewSeniority).To(Equal(authz.SenioritySenior))
				Expect(record.ChangedBy).To(Equal(admin.ID))
				Expect(mockRepo.audits["u-1"]).To(HaveLen(1))
			})

			It("should force the neutral seniority for non project manager roles", func() {
				dto := identity.ChangeRoleDTO{Role: "technical_lead", Seniority: "senior"}

				updated, record, err := service.ChangeRole(ctx, "u-1", dto, admin)

				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Role).To(Equal(authz.RoleTechnicalLead))
				Expect(updated.Seniority).To(Equal(authz.SeniorityDefault))
				Expect(record.NewSeniority).To(Equal(authz.SeniorityDefault))
			})
		})

		Context("when the new role is not in the canonical set", func() {
			It("should abort before touching the repository", func() {
				dto := identity.ChangeRoleDTO{Role: "field_worker"}

				_, _, err := service.ChangeRole(ctx, "u-1", dto, admin)

				Expect(err).To(HaveOccurred())
				Expect(mockRepo.calls).To(BeZero())
				Expect(mockRepo.identities["u-1"].Role).To(Equal(authz.RoleProjectManager))
				Expect(mockRepo.audits["u-1"]).To(BeEmpty())
			})
		})

		Context("when a concurrent migration already changed the identity", func() {
			It("should surface the conflict without partial state", func() {
				mockRepo.changeErr = internal.ErrMigrationConflict
				dto := identity.ChangeRoleDTO{Role: "management"}

				_, _, err := service.ChangeRole(ctx, "u-1", dto, admin)

				Expect(err).To(Equal(internal.ErrMigrationConflict))
				Expect(mockRepo.audits["u-1"]).To(BeEmpty())
			})
		})

		Context("when the subject does not exist", func() {
			It("should return identity not found", func() {
				dto := identity.ChangeRoleDTO{Role: "management"}

				_, _, err := service.ChangeRole(ctx, "ghost", dto, admin)

				Expect(err).To(Equal(internal.ErrIdentityNotFound))
			})
		})
	})

	Describe("Deactivate", func() {
		It("should flip the identity inactive", func() {
			err := service.Deactivate(ctx, "u-1", admin)

			Expect(err).NotTo(HaveOccurred())
			Expect(mockRepo.identities["u-1"].Active).To(BeFalse())
		})

		It("should return not found for unknown identities", func() {
			err := service.Deactivate(ctx, "ghost", admin)

			Expect(err).To(Equal(internal.ErrIdentityNotFound))
		})
	})

	Describe("GetAuditTrail", func() {
		It("should return every change in order", func() {
			_, _, err := service.ChangeRole(ctx, "u-1", identity.ChangeRoleDTO{Role: "project_manager", Seniority: "senior"}, admin)
			Expect(err).NotTo(HaveOccurred())
			_, _, err = service.ChangeRole(ctx, "u-1", identity.ChangeRoleDTO{Role: "management"}, admin)
			Expect(err).NotTo(HaveOccurred())

			trail, err := service.GetAuditTrail(ctx, "u-1", 50, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(trail).To(HaveLen(2))
		})
	})
})
