package authz

import (
	"log/slog"

	"github.com/formulapm/access-management/internal"
)

// Resolver is the single authorization decision point consulted by every API
// route before any work happens. It is a pure function over the static rule
// table and the passed-in identity: no clock, no randomness, no shared
// mutable state, so concurrent callers need no locking.
type Resolver struct {
	table  *RuleTable
	logger *slog.Logger
}

func NewResolver(table *RuleTable, logger *slog.Logger) *Resolver {
	return &Resolver{
		table:  table,
		logger: logger,
	}
}

// Authorize decides whether identity may perform action on resource.
//
// Malformed resource or action strings are rejected with an error before any
// rule lookup; otherwise the outcome is always a Decision. Deny reasons:
// INACTIVE_ACCOUNT for deactivated callers, NO_RULE when no rule covers the
// tuple (fail closed), NOT_AUTHORIZED when a rule explicitly disallows it.
func (r *Resolver) Authorize(identity Identity, resource string, action string) (Decision, error) {
	if !ValidResource(resource) {
		return Decision{}, internal.NewValidationError("malformed resource name: "+resource, internal.ErrCodeInvalidRequest)
	}

	act, err := ParseAction(action)
	if err != nil {
		return Decision{}, err
	}

	if !identity.Role.Valid() {
		return Decision{}, internal.NewValidationError("unknown role: "+string(identity.Role), internal.ErrCodeInvalidRequest)
	}

	if !identity.Active {
		r.logger.Warn("authorization denied: inactive account",
			"user_id", identity.ID,
			"resource", resource,
			"action", act)
		return Deny(internal.ErrCodeInactiveAccount), nil
	}

	rule, found := r.table.Lookup(identity.Role, resource, act)
	if !found {
		r.logger.Warn("authorization denied: no rule",
			"user_id", identity.ID,
			"role", identity.Role,
			"resource", resource,
			"action", act)
		return Deny(internal.ErrCodeNoRule), nil
	}

	if !rule.Allowed {
		r.logger.Warn("authorization denied: rule disallows",
			"user_id", identity.ID,
			"role", identity.Role,
			"resource", resource,
			"action", act)
		return Deny(internal.ErrCodeNotAuthorized), nil
	}

	return Allow(rule.Filter), nil
}
