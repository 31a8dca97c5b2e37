package postgres

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/formulapm/access-management/internal"
	"github.com/formulapm/access-management/internal/authz"
	auditDatamodel "github.com/formulapm/access-management/internal/core/datamodel/audit"
	identityDatamodel "github.com/formulapm/access-management/internal/core/datamodel/identity"
	"github.com/formulapm/access-management/internal/identity"
)

func TestIdentityRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "IdentityRepository Suite")
}

var _ = Describe("IdentityRepository", func() {
	var (
		db   *gorm.DB
		repo identity.Repository
		ctx  context.Context
	)

	seed := func(id string, role authz.Role, seniority authz.Seniority, active bool, createdAt time.Time) {
		err := db.Create(&identityDatamodel.UserIdentity{
			ID:           id,
			Email:        id + "@example.com",
			Name:         id,
			PasswordHash: "x",
			Role:         string(role),
			Seniority:    string(seniority),
			Active:       active,
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		}).Error
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&identityDatamodel.UserIdentity{}, &auditDatamodel.RoleAuditRecord{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewIdentityRepository(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("ChangeRole", func() {
		BeforeEach(func() {
			seed("u-1", authz.RoleProjectManager, authz.SeniorityRegular, true, time.Now())
		})

		It("should update the row and append exactly one audit record", func() {
			expected := identity.RoleChange{Role: authz.RoleProjectManager, Seniority: authz.SeniorityRegular}
			next := identity.RoleChange{Role: authz.RoleProjectManager, Seniority: authz.SenioritySenior}

			updated, record, err := repo.ChangeRole(ctx, "u-1", expected, next, "admin-1")

			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Seniority).To(Equal(authz.SenioritySenior))
			Expect(record.ID).NotTo(BeZero())
			Expect(record.PreviousSeniority).To(Equal(authz.SeniorityRegular))

			var count int64
			Expect(db.Model(&auditDatamodel.RoleAuditRecord{}).Count(&count).Error).To(Succeed())
			Expect(count).To(Equal(int64(1)))
		})

		It("should conflict when the expected pre-change values no longer match", func() {
			// simulate a concurrent migration that already landed
			stale := identity.RoleChange{Role: authz.RoleProjectManager, Seniority: authz.SeniorityRegular}
			first := identity.RoleChange{Role: authz.RoleManagement, Seniority: authz.SeniorityDefault}
			_, _, err := repo.ChangeRole(ctx, "u-1", stale, first, "admin-1")
			Expect(err).NotTo(HaveOccurred())

			_, _, err = repo.ChangeRole(ctx, "u-1", stale, identity.RoleChange{Role: authz.RoleAdmin, Seniority: authz.SeniorityDefault}, "admin-2")

			Expect(err).To(Equal(internal.ErrMigrationConflict))

			// the losing attempt must not leave an audit record behind
			var count int64
			Expect(db.Model(&auditDatamodel.RoleAuditRecord{}).Count(&count).Error).To(Succeed())
			Expect(count).To(Equal(int64(1)))
		})

		It("should conflict for an unknown subject", func() {
			expected := identity.RoleChange{Role: authz.RoleProjectManager, Seniority: authz.SeniorityRegular}
			next := identity.RoleChange{Role: authz.RoleManagement, Seniority: authz.SeniorityDefault}

			_, _, err := repo.ChangeRole(ctx, "ghost", expected, next, "admin-1")

			Expect(err).To(Equal(internal.ErrMigrationConflict))
		})
	})

	Describe("SetActive", func() {
		It("should deactivate an existing identity", func() {
			seed("u-1", authz.RoleClient, authz.SeniorityDefault, true, time.Now())

			Expect(repo.SetActive(ctx, "u-1", false)).To(Succeed())

			ident, err := repo.GetByID(ctx, "u-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ident.Active).To(BeFalse())
		})

		It("should return not found for unknown identities", func() {
			err := repo.SetActive(ctx, "ghost", false)

			Expect(err).To(Equal(identity.ErrIdentityNotFound))
		})
	})

	Describe("GetAuditTrail", func() {
		It("should return records newest first", func() {
			seed("u-1", authz.RoleProjectManager, authz.SeniorityRegular, true, time.Now())

			_, _, err := repo.ChangeRole(ctx, "u-1",
				identity.RoleChange{Role: authz.RoleProjectManager, Seniority: authz.SeniorityRegular},
				identity.RoleChange{Role: authz.RoleProjectManager, Seniority: authz.SenioritySenior}, "admin-1")
			Expect(err).NotTo(HaveOccurred())

			_, _, err = repo.ChangeRole(ctx, "u-1",
				identity.RoleChange{Role: authz.RoleProjectManager, Seniority: authz.SenioritySenior},
				identity.RoleChange{Role: authz.RoleManagement, Seniority: authz.SeniorityDefault}, "admin-1")
			Expect(err).NotTo(HaveOccurred())

			trail, err := repo.GetAuditTrail(ctx, "u-1", 10, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(trail).To(HaveLen(2))
		})
	})

	Describe("FindApprover", func() {
		It("should prefer the longest-provisioned active identity", func() {
			older := time.Now().Add(-24 * time.Hour)
			seed("mgmt-old", authz.RoleManagement, authz.SeniorityDefault, true, older)
			seed("mgmt-new", authz.RoleManagement, authz.SeniorityDefault, true, time.Now())

			approver, err := repo.FindApprover(ctx, authz.RoleManagement, authz.SeniorityDefault)

			Expect(err).NotTo(HaveOccurred())
			Expect(approver.ID).To(Equal("mgmt-old"))
		})

		It("should filter project managers by seniority", func() {
			seed("pm-reg", authz.RoleProjectManager, authz.SeniorityRegular, true, time.Now())
			seed("pm-sen", authz.RoleProjectManager, authz.SenioritySenior, true, time.Now())

			approver, err := repo.FindApprover(ctx, authz.RoleProjectManager, authz.SenioritySenior)

			Expect(err).NotTo(HaveOccurred())
			Expect(approver.ID).To(Equal("pm-sen"))
		})

		It("should skip inactive identities", func() {
			seed("mgmt-off", authz.RoleManagement, authz.SeniorityDefault, false, time.Now())

			_, err := repo.FindApprover(ctx, authz.RoleManagement, authz.SeniorityDefault)

			Expect(err).To(Equal(identity.ErrNoApprover))
		})
	})
})
