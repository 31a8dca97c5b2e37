package approval_test

import (
	"context"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/formulapm/access-management/internal"
	"github.com/formulapm/access-management/internal/approval"
	"github.com/formulapm/access-management/internal/authz"
)

// Mock repository for testing
type mockApprovalRepository struct {
	requests    map[string]*approval.Request
	createError error
	getError    error
	updateError error
}

func newMockApprovalRepository() *mockApprovalRepository {
	return &mockApprovalRepository{requests: make(map[string]*approval.Request)}
}

func (m *mockApprovalRepository) Create(ctx context.Context, req *approval.Request) error {
	if m.createError != nil {
		return m.createError
	}
	m.requests[req.ID] = req
	return nil
}

func (m *mockApprovalRepository) GetByID(ctx context.Context, id string) (*approval.Request, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	req, ok := m.requests[id]
	if !ok {
		return nil, approval.ErrRequestNotFound
	}
	return req, nil
}

func (m *mockApprovalRepository) FindOpen(ctx context.Context, requesterID, resource string, amount decimal.Decimal) (*approval.Request, error) {
	for _, req := range m.requests {
		if req.RequesterID == requesterID && req.Resource == resource && req.Amount.Equal(amount) && req.IsOpen() {
			return req, nil
		}
	}
	return nil, approval.ErrRequestNotFound
}

func (m *mockApprovalRepository) GetByRequester(ctx context.Context, requesterID string, limit, offset int) ([]*approval.Request, error) {
	var out []*approval.Request
	for _, req := range m.requests {
		if req.RequesterID == requesterID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *mockApprovalRepository) GetAll(ctx context.Context, limit, offset int) ([]*approval.Request, error) {
	var out []*approval.Request
	for _, req := range m.requests {
		out = append(out, req)
	}
	return out, nil
}

func (m *mockApprovalRepository) Update(ctx context.Context, req *approval.Request) error {
	if m.updateError != nil {
		return m.updateError
	}
	m.requests[req.ID] = req
	return nil
}

// Mock approver directory for testing
type mockApproverDirectory struct {
	approvers map[approval.Level]*authz.Identity
	lookups   []approval.Level
}

func newMockApproverDirectory() *mockApproverDirectory {
	return &mockApproverDirectory{approvers: make(map[approval.Level]*authz.Identity)}
}

func (m *mockApproverDirectory) FindApprover(ctx context.Context, role authz.Role, seniority authz.Seniority) (*authz.Identity, error) {
	level := approval.Level{Role: role, Seniority: seniority}
	m.lookups = append(m.lookups, level)
	if approver, ok := m.approvers[level]; ok {
		return approver, nil
	}
	return nil, internal.ErrIdentityNotFound
}

var _ = Describe("ApprovalService", func() {
	var (
		service   *approval.Service
		mockRepo  *mockApprovalRepository
		directory *mockApproverDirectory
		logger    *slog.Logger
		ctx       context.Context
	)

	regularPM := authz.Identity{ID: "pm-1", Role: authz.RoleProjectManager, Seniority: authz.SeniorityRegular, Active: true}
	seniorPM := authz.Identity{ID: "pm-2", Role: authz.RoleProjectManager, Seniority: authz.SenioritySenior, Active: true}
	management := authz.Identity{ID: "mgmt-1", Role: authz.RoleManagement, Active: true}
	client := authz.Identity{ID: "client-1", Role: authz.RoleClient, Active: true}

	BeforeEach(func() {
		ctx = context.Background()
		mockRepo = newMockApprovalRepository()
		directory = newMockApproverDirectory()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = approval.NewService(mockRepo, directory, approval.DefaultLimitTable(), nil, logger)
	})

	Describe("Evaluate", func() {
		Context("when the amount is within the requester's limit", func() {
			It("should approve directly without storing a request", func() {
				dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(9999)}

				outcome, err := service.Evaluate(ctx, regularPM, dto)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Approved).To(BeTrue())
				Expect(outcome.Request).To(BeNil())
				Expect(mockRepo.requests).To(BeEmpty())
			})

			It("should treat an amount exactly at the limit as within it", func() {
				dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(10000)}

				outcome, err := service.Evaluate(ctx, regularPM, dto)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Approved).To(BeTrue())
			})
		})

		Context("when the amount exceeds the requester's limit", func() {
			It("should escalate to the first sufficient level in the chain", func() {
				approverID := "pm-2"
				directory.approvers[approval.Level{Role: authz.RoleProjectManager, Seniority: authz.SenioritySenior}] =
					&authz.Identity{ID: approverID, Role: authz.RoleProjectManager, Seniority: authz.SenioritySenior, Active: true}

				dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(15000)}

				outcome, err := service.Evaluate(ctx, regularPM, dto)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Approved).To(BeFalse())
				Expect(outcome.Request).NotTo(BeNil())
				Expect(outcome.Request.Status).To(Equal(approval.StatusEscalated))
				Expect(outcome.Request.ApproverRole).To(Equal(authz.RoleProjectManager))
				Expect(outcome.Request.ApproverSeniority).To(Equal(authz.SenioritySenior))
				Expect(outcome.Request.CurrentApproverID).NotTo(BeNil())
				Expect(*outcome.Request.CurrentApproverID).To(Equal(approverID))
			})

			It("should escalate past senior when the amount exceeds its ceiling", func() {
				dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(500000)}

				outcome, err := service.Evaluate(ctx, regularPM, dto)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Request.ApproverSeniority).To(Equal(authz.SeniorityExecutive))
			})

			It("should escalate non-chain roles straight to management", func() {
				lead := authz.Identity{ID: "tl-1", Role: authz.RoleTechnicalLead, Active: true}
				dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(60000)}

				outcome, err := service.Evaluate(ctx, lead, dto)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Request.ApproverRole).To(Equal(authz.RoleManagement))
			})

			It("should still escalate when no concrete approver exists for the level", func() {
				dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(15000)}

				outcome, err := service.Evaluate(ctx, regularPM, dto)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Request.Status).To(Equal(approval.StatusEscalated))
				Expect(outcome.Request.CurrentApproverID).To(BeNil())
			})
		})

		Context("when re-evaluating an identical open request", func() {
			It("should return the existing request untouched", func() {
				dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(15000)}

				first, err := service.Evaluate(ctx, regularPM, dto)
				Expect(err).NotTo(HaveOccurred())

				second, err := service.Evaluate(ctx, regularPM, dto)
				Expect(err).NotTo(HaveOccurred())

				Expect(second.Request.ID).To(Equal(first.Request.ID))
				Expect(mockRepo.requests).To(HaveLen(1))
			})
		})

		Context("when the request is invalid", func() {
			It("should reject a zero amount", func() {
				dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.Zero}

				_, err := service.Evaluate(ctx, regularPM, dto)

				Expect(err).To(HaveOccurred())
			})

			It("should reject a malformed resource name", func() {
				dto := approval.EvaluateDTO{Resource: "Purchase Orders", Amount: decimal.NewFromInt(100)}

				_, err := service.Evaluate(ctx, regularPM, dto)

				Expect(err).To(HaveOccurred())
			})
		})

		Context("when the requester is a client", func() {
			It("should escalate even the smallest amount", func() {
				dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(1)}

				outcome, err := service.Evaluate(ctx, client, dto)

				Expect(err).NotTo(HaveOccurred())
				Expect(outcome.Approved).To(BeFalse())
				Expect(outcome.Request.ApproverRole).To(Equal(authz.RoleManagement))
			})
		})
	})

	Describe("Approve", func() {
		var open *approval.Request

		BeforeEach(func() {
			dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(15000)}
			outcome, err := service.Evaluate(ctx, regularPM, dto)
			Expect(err).NotTo(HaveOccurred())
			open = outcome.Request
		})

		Context("when the decider's limit covers the amount", func() {
			It("should approve and record the decider", func() {
				req, err := service.Approve(ctx, open.ID, seniorPM)

				Expect(err).NotTo(HaveOccurred())
				Expect(req.Status).To(Equal(approval.StatusApproved))
				Expect(req.DecidedBy).NotTo(BeNil())
				Expect(*req.DecidedBy).To(Equal(seniorPM.ID))
				Expect(req.DecidedAt).NotTo(BeNil())
			})
		})

		Context("when the decider's limit does not cover the amount", func() {
			It("should refuse with the generic authorization error", func() {
				_, err := service.Approve(ctx, open.ID, regularPM)

				Expect(err).To(Equal(internal.ErrNotAuthorized))
			})
		})

		Context("when the request is already decided", func() {
			It("should refuse a second decision", func() {
				_, err := service.Approve(ctx, open.ID, management)
				Expect(err).NotTo(HaveOccurred())

				_, err = service.Approve(ctx, open.ID, management)
				Expect(err).To(Equal(internal.ErrInvalidApproval))
			})

			It("should not allow rejecting an approved request", func() {
				_, err := service.Approve(ctx, open.ID, management)
				Expect(err).NotTo(HaveOccurred())

				_, err = service.Reject(ctx, open.ID, management, "changed my mind")
				Expect(err).To(Equal(internal.ErrInvalidApproval))
			})
		})

		Context("when the request does not exist", func() {
			It("should return not found", func() {
				_, err := service.Approve(ctx, "no-such-id", management)

				Expect(err).To(Equal(internal.ErrApprovalNotFound))
			})
		})
	})

	Describe("Reject", func() {
		It("should reject an open request with a reason", func() {
			dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(15000)}
			outcome, err := service.Evaluate(ctx, regularPM, dto)
			Expect(err).NotTo(HaveOccurred())

			req, err := service.Reject(ctx, outcome.Request.ID, management, "budget freeze")

			Expect(err).NotTo(HaveOccurred())
			Expect(req.Status).To(Equal(approval.StatusRejected))
			Expect(req.DecisionReason).To(Equal("budget freeze"))
		})
	})

	Describe("GetByID", func() {
		var open *approval.Request

		BeforeEach(func() {
			dto := approval.EvaluateDTO{Resource: "purchase_orders", Amount: decimal.NewFromInt(15000)}
			outcome, err := service.Evaluate(ctx, regularPM, dto)
			Expect(err).NotTo(HaveOccurred())
			open = outcome.Request
		})

		It("should let the requester read their own request", func() {
			req, err := service.GetByID(ctx, open.ID, regularPM)

			Expect(err).NotTo(HaveOccurred())
			Expect(req.ID).To(Equal(open.ID))
		})

		It("should let approver-level callers read any request", func() {
			_, err := service.GetByID(ctx, open.ID, seniorPM)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.GetByID(ctx, open.ID, management)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should hide other users' requests behind the generic error", func() {
			_, err := service.GetByID(ctx, open.ID, client)

			Expect(err).To(Equal(internal.ErrNotAuthorized))
		})
	})
})
