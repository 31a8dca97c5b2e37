package authz

import (
	"regexp"

	"github.com/formulapm/access-management/internal"
)

// Action is the closed set of operations a rule can grant on a resource.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
)

var validActions = map[Action]struct{}{
	ActionRead:    {},
	ActionCreate:  {},
	ActionUpdate:  {},
	ActionDelete:  {},
	ActionApprove: {},
}

func (a Action) Valid() bool {
	_, ok := validActions[a]
	return ok
}

func ParseAction(raw string) (Action, error) {
	a := Action(raw)
	if !a.Valid() {
		return "", internal.NewValidationError("unknown action: "+raw, internal.ErrCodeInvalidRequest)
	}
	return a, nil
}

// resourceNamePattern keeps resources to lowercase snake_case identifiers so a
// typo cannot silently fall through to a default deny with the wrong reason.
var resourceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func ValidResource(resource string) bool {
	return resourceNamePattern.MatchString(resource)
}

// Identity is the resolved caller: the output of token/session resolution and
// the sole subject input to authorization decisions.
type Identity struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Seniority Seniority `json:"seniority"`
	Active    bool      `json:"active"`
}

// EffectiveSeniority returns the seniority used for limit lookups: only
// project managers carry a meaningful sub-level.
func (i Identity) EffectiveSeniority() Seniority {
	if i.Role == RoleProjectManager {
		return i.Seniority
	}
	return SeniorityDefault
}

// RowFilter is the abstract row predicate attached to an allow decision:
// the caller may only touch rows where one of OwnerColumns equals their own
// identity id. A nil RowFilter on an allowed decision means unrestricted
// access to the resource.
type RowFilter struct {
	OwnerColumns []string `json:"owner_columns" mapstructure:"owner_columns"`
}

// Rule is one static (role, resource, action) entry of the rule table.
type Rule struct {
	Role     Role       `mapstructure:"role"`
	Resource string     `mapstructure:"resource"`
	Action   Action     `mapstructure:"action"`
	Allowed  bool       `mapstructure:"allowed"`
	Filter   *RowFilter `mapstructure:"row_filter"`
}

// Decision is the resolver output. Deny is a normal value, not an error;
// Reason explains the denial for logs and the database-side mirror, never for
// the end-user response.
type Decision struct {
	Allowed   bool               `json:"allowed"`
	Reason    internal.ErrorCode `json:"reason,omitempty"`
	RowFilter *RowFilter         `json:"row_filter,omitempty"`
}

func Allow(filter *RowFilter) Decision {
	return Decision{Allowed: true, RowFilter: filter}
}

func Deny(reason internal.ErrorCode) Decision {
	return Decision{Allowed: false, Reason: reason}
}
