package authz_test

import (
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/formulapm/access-management/internal"
	"github.com/formulapm/access-management/internal/authz"
)

func TestAuthz(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Authz Suite")
}

func testRules() []authz.Rule {
	return []authz.Rule{
		{Role: authz.RoleManagement, Resource: "projects", Action: authz.ActionRead, Allowed: true},
		{Role: authz.RoleProjectManager, Resource: "projects", Action: authz.ActionRead, Allowed: true,
			Filter: &authz.RowFilter{OwnerColumns: []string{"assigned_to", "created_by"}}},
		{Role: authz.RoleClient, Resource: "tasks", Action: authz.ActionRead, Allowed: false},
		{Role: authz.RoleClient, Resource: "projects", Action: authz.ActionRead, Allowed: true,
			Filter: &authz.RowFilter{OwnerColumns: []string{"client_id"}}},
	}
}

var _ = Describe("Resolver", func() {
	var (
		resolver *authz.Resolver
		logger   *slog.Logger
	)

	BeforeEach(func() {
		table, err := authz.NewRuleTable(testRules())
		Expect(err).NotTo(HaveOccurred())
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		resolver = authz.NewResolver(table, logger)
	})

	activePM := authz.Identity{ID: "u-1", Role: authz.RoleProjectManager, Seniority: authz.SeniorityRegular, Active: true}

	Describe("Authorize", func() {
		Context("when the identity is inactive", func() {
			It("should deny with the inactive account reason regardless of rules", func() {
				inactive := authz.Identity{ID: "u-2", Role: authz.RoleManagement, Active: false}

				decision, err := resolver.Authorize(inactive, "projects", "read")

				Expect(err).NotTo(HaveOccurred())
				Expect(decision.Allowed).To(BeFalse())
				Expect(decision.Reason).To(Equal(internal.ErrCodeInactiveAccount))
			})
		})

		Context("when no rule covers the tuple", func() {
			It("should fail closed with the no-rule reason", func() {
				decision, err := resolver.Authorize(activePM, "purchase_orders", "delete")

				Expect(err).NotTo(HaveOccurred())
				Expect(decision.Allowed).To(BeFalse())
				Expect(decision.Reason).To(Equal(internal.ErrCodeNoRule))
			})
		})

		Context("when a rule explicitly disallows", func() {
			It("should deny without exposing which rule matched", func() {
				client := authz.Identity{ID: "u-3", Role: authz.RoleClient, Active: true}

				decision, err := resolver.Authorize(client, "tasks", "read")

				Expect(err).NotTo(HaveOccurred())
				Expect(decision.Allowed).To(BeFalse())
				Expect(decision.Reason).To(Equal(internal.ErrCodeNotAuthorized))
				Expect(decision.RowFilter).To(BeNil())
			})
		})

		Context("when a rule allows with a row filter", func() {
			It("should return the filter for the data layer to apply", func() {
				decision, err := resolver.Authorize(activePM, "projects", "read")

				Expect(err).NotTo(HaveOccurred())
				Expect(decision.Allowed).To(BeTrue())
				Expect(decision.RowFilter).NotTo(BeNil())
				Expect(decision.RowFilter.OwnerColumns).To(Equal([]string{"assigned_to", "created_by"}))
			})
		})

		Context("when a rule allows without a filter", func() {
			It("should return an unrestricted allow", func() {
				mgmt := authz.Identity{ID: "u-4", Role: authz.RoleManagement, Active: true}

				decision, err := resolver.Authorize(mgmt, "projects", "read")

				Expect(err).NotTo(HaveOccurred())
				Expect(decision.Allowed).To(BeTrue())
				Expect(decision.RowFilter).To(BeNil())
			})
		})

		Context("when the input is malformed", func() {
			It("should reject a bad resource name with an error, not a deny", func() {
				_, err := resolver.Authorize(activePM, "Projects; DROP TABLE", "read")

				Expect(err).To(HaveOccurred())
				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidRequest))
			})

			It("should reject an unknown action", func() {
				_, err := resolver.Authorize(activePM, "projects", "transmogrify")

				Expect(err).To(HaveOccurred())
			})

			It("should reject an unknown role", func() {
				legacy := authz.Identity{ID: "u-5", Role: authz.Role("field_worker"), Active: true}

				_, err := resolver.Authorize(legacy, "projects", "read")

				Expect(err).To(HaveOccurred())
				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidRequest))
			})
		})

		Context("when called repeatedly with the same input", func() {
			It("should return the identical decision every time", func() {
				first, err := resolver.Authorize(activePM, "projects", "read")
				Expect(err).NotTo(HaveOccurred())

				for i := 0; i < 50; i++ {
					again, err := resolver.Authorize(activePM, "projects", "read")
					Expect(err).NotTo(HaveOccurred())
					Expect(again).To(Equal(first))
				}
			})
		})
	})
})

var _ = Describe("RuleTable", func() {
	It("should reject duplicate rules for the same tuple", func() {
		rules := []authz.Rule{
			{Role: authz.RoleManagement, Resource: "projects", Action: authz.ActionRead, Allowed: true},
			{Role: authz.RoleManagement, Resource: "projects", Action: authz.ActionRead, Allowed: false},
		}

		_, err := authz.NewRuleTable(rules)

		Expect(err).To(HaveOccurred())
	})

	It("should reject rules naming unknown roles", func() {
		rules := []authz.Rule{
			{Role: authz.Role("supervisor"), Resource: "projects", Action: authz.ActionRead, Allowed: true},
		}

		_, err := authz.NewRuleTable(rules)

		Expect(err).To(HaveOccurred())
	})

	It("should reject rules with malformed resource names", func() {
		rules := []authz.Rule{
			{Role: authz.RoleAdmin, Resource: "Projects!", Action: authz.ActionRead, Allowed: true},
		}

		_, err := authz.NewRuleTable(rules)

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ParseSeniority", func() {
	It("should default an empty seniority to regular", func() {
		s, err := authz.ParseSeniority("")

		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(authz.SeniorityRegular))
	})

	It("should reject unknown seniority values", func() {
		_, err := authz.ParseSeniority("principal")

		Expect(err).To(HaveOccurred())
	})
})
