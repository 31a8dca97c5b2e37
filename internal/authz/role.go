package authz

import (
	"github.com/formulapm/access-management/internal"
)

// Role is the closed set of application roles. The set is immutable at
// runtime; extending it requires a coordinated migration of application code
// and every stored row-level predicate that names roles literally.
type Role string

const (
	RoleManagement      Role = "management"
	RolePurchaseManager Role = "purchase_manager"
	RoleTechnicalLead   Role = "technical_lead"
	RoleProjectManager  Role = "project_manager"
	RoleClient          Role = "client"
	RoleAdmin           Role = "admin"
)

// Seniority is a sub-level within the project_manager role that scales the
// monetary approval ceiling. Every identity stores a seniority value, but it
// is only interpreted when the role is project_manager; other roles carry the
// neutral default.
type Seniority string

const (
	SeniorityExecutive Seniority = "executive"
	SenioritySenior    Seniority = "senior"
	SeniorityRegular   Seniority = "regular"
)

// SeniorityDefault is stored for roles where seniority has no meaning.
const SeniorityDefault = SeniorityRegular

var validRoles = map[Role]struct{}{
	RoleManagement:      {},
	RolePurchaseManager: {},
	RoleTechnicalLead:   {},
	RoleProjectManager:  {},
	RoleClient:          {},
	RoleAdmin:           {},
}

var validSeniorities = map[Seniority]struct{}{
	SeniorityExecutive: {},
	SenioritySenior:    {},
	SeniorityRegular:   {},
}

func (r Role) Valid() bool {
	_, ok := validRoles[r]
	return ok
}

func (s Seniority) Valid() bool {
	_, ok := validSeniorities[s]
	return ok
}

// ParseRole converts a raw role string into a Role. Legacy or retired role
// names are rejected here so they can never reach a rule lookup or a stored
// row.
func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	if !r.Valid() {
		return "", internal.NewValidationError("unknown role: "+raw, internal.ErrCodeInvalidRole)
	}
	return r, nil
}

// ParseSeniority converts a raw seniority string, treating empty input as the
// neutral default.
func ParseSeniority(raw string) (Seniority, error) {
	if raw == "" {
		return SeniorityDefault, nil
	}
	s := Seniority(raw)
	if !s.Valid() {
		return "", internal.NewValidationError("unknown seniority: "+raw, internal.ErrCodeInvalidSeniority)
	}
	return s, nil
}

// Roles returns the canonical role set in a stable order, for seeding and
// validation messages.
func Roles() []Role {
	return []Role{
		RoleManagement,
		RolePurchaseManager,
		RoleTechnicalLead,
		RoleProjectManager,
		RoleClient,
		RoleAdmin,
	}
}
