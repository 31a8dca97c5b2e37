package postgres

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/formulapm/access-management/internal/approval"
	"github.com/formulapm/access-management/internal/authz"
	approvalDatamodel "github.com/formulapm/access-management/internal/core/datamodel/approval"
)

func TestApprovalRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ApprovalRepository Suite")
}

var _ = Describe("ApprovalRepository", func() {
	var (
		db   *gorm.DB
		repo approval.Repository
		ctx  context.Context
	)

	newRequest := func(id, requester string, amount int64, status string) *approval.Request {
		return &approval.Request{
			ID:          id,
			RequesterID: requester,
			Resource:    "purchase_orders",
			Amount:      decimal.NewFromInt(amount),
			Status:      status,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&approvalDatamodel.ApprovalRequest{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewApprovalRepository(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("Create and GetByID", func() {
		It("should round-trip a request including the approver level", func() {
			req := newRequest("req-1", "pm-1", 15000, approval.StatusPending)
			req.Escalate(approval.Level{Role: authz.RoleProjectManager, Seniority: authz.SenioritySenior}, nil)

			Expect(repo.Create(ctx, req)).To(Succeed())

			loaded, err := repo.GetByID(ctx, "req-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Status).To(Equal(approval.StatusEscalated))
			Expect(loaded.ApproverRole).To(Equal(authz.RoleProjectManager))
			Expect(loaded.ApproverSeniority).To(Equal(authz.SenioritySenior))
			Expect(loaded.Amount.Equal(decimal.NewFromInt(15000))).To(BeTrue())
		})

		It("should return not found for unknown ids", func() {
			_, err := repo.GetByID(ctx, "ghost")

			Expect(err).To(Equal(approval.ErrRequestNotFound))
		})
	})

	Describe("FindOpen", func() {
		It("should find an undecided request matching the tuple", func() {
			Expect(repo.Create(ctx, newRequest("req-1", "pm-1", 15000, approval.StatusEscalated))).To(Succeed())

			found, err := repo.FindOpen(ctx, "pm-1", "purchase_orders", decimal.NewFromInt(15000))

			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal("req-1"))
		})

		It("should ignore decided requests", func() {
			Expect(repo.Create(ctx, newRequest("req-1", "pm-1", 15000, approval.StatusApproved))).To(Succeed())

			_, err := repo.FindOpen(ctx, "pm-1", "purchase_orders", decimal.NewFromInt(15000))

			Expect(err).To(Equal(approval.ErrRequestNotFound))
		})

		It("should not match a different amount", func() {
			Expect(repo.Create(ctx, newRequest("req-1", "pm-1", 15000, approval.StatusEscalated))).To(Succeed())

			_, err := repo.FindOpen(ctx, "pm-1", "purchase_orders", decimal.NewFromInt(16000))

			Expect(err).To(Equal(approval.ErrRequestNotFound))
		})
	})

	Describe("Update", func() {
		It("should persist a decision", func() {
			req := newRequest("req-1", "pm-1", 15000, approval.StatusEscalated)
			Expect(repo.Create(ctx, req)).To(Succeed())

			req.Approve("mgmt-1")
			Expect(repo.Update(ctx, req)).To(Succeed())

			loaded, err := repo.GetByID(ctx, "req-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Status).To(Equal(approval.StatusApproved))
			Expect(loaded.DecidedBy).NotTo(BeNil())
			Expect(*loaded.DecidedBy).To(Equal("mgmt-1"))
		})
	})

	Describe("listing", func() {
		BeforeEach(func() {
			Expect(repo.Create(ctx, newRequest("req-1", "pm-1", 15000, approval.StatusEscalated))).To(Succeed())
			Expect(repo.Create(ctx, newRequest("req-2", "pm-1", 20000, approval.StatusEscalated))).To(Succeed())
			Expect(repo.Create(ctx, newRequest("req-3", "pm-2", 30000, approval.StatusEscalated))).To(Succeed())
		})

		It("should scope GetByRequester to the requester", func() {
			reqs, err := repo.GetByRequester(ctx, "pm-1", 10, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(reqs).To(HaveLen(2))
		})

		It("should return everything from GetAll", func() {
			reqs, err := repo.GetAll(ctx, 10, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(reqs).To(HaveLen(3))
		})
	})
})
