package approval

import (
	"fmt"

	"github.com/formulapm/access-management/internal/authz"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Level is one rung of the approval hierarchy. Seniority only differentiates
// levels within project_manager.
type Level struct {
	Role      authz.Role
	Seniority authz.Seniority
}

// LimitTable maps each level to its approval ceiling. A nil ceiling means
// unlimited. The table is immutable once built; like the rule table it is
// loaded at process start and replaced only by a new process generation.
type LimitTable struct {
	ceilings map[Level]*decimal.Decimal
	chain    []Level
}

// escalationChain is the fixed walk order for requests exceeding a limit:
// regular -> senior -> executive -> management. Management is the designated
// top-level role, so the chain can only be "exhausted" if management itself
// carries a ceiling in a non-default table.
var escalationChain = []Level{
	{Role: authz.RoleProjectManager, Seniority: authz.SeniorityRegular},
	{Role: authz.RoleProjectManager, Seniority: authz.SenioritySenior},
	{Role: authz.RoleProjectManager, Seniority: authz.SeniorityExecutive},
	{Role: authz.RoleManagement, Seniority: authz.SeniorityDefault},
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

// DefaultLimitTable returns the built-in ceilings. Clients can never approve;
// management, admin, and executive project managers are unlimited.
func DefaultLimitTable() *LimitTable {
	return &LimitTable{
		ceilings: map[Level]*decimal.Decimal{
			{Role: authz.RoleManagement, Seniority: authz.SeniorityDefault}:       nil,
			{Role: authz.RoleAdmin, Seniority: authz.SeniorityDefault}:            nil,
			{Role: authz.RolePurchaseManager, Seniority: authz.SeniorityDefault}:  ptr(decimal.NewFromInt(50000)),
			{Role: authz.RoleTechnicalLead, Seniority: authz.SeniorityDefault}:    ptr(decimal.NewFromInt(25000)),
			{Role: authz.RoleClient, Seniority: authz.SeniorityDefault}:           ptr(decimal.Zero),
			{Role: authz.RoleProjectManager, Seniority: authz.SeniorityRegular}:   ptr(decimal.NewFromInt(10000)),
			{Role: authz.RoleProjectManager, Seniority: authz.SenioritySenior}:    ptr(decimal.NewFromInt(100000)),
			{Role: authz.RoleProjectManager, Seniority: authz.SeniorityExecutive}: nil,
		},
		chain: escalationChain,
	}
}

// LevelFor normalizes an identity to its limit-table level. Seniority is only
// honored for project managers; every other role uses its role-level ceiling.
func LevelFor(identity authz.Identity) Level {
	return Level{Role: identity.Role, Seniority: identity.EffectiveSeniority()}
}

// Ceiling returns the approval limit for a level; nil means unlimited.
func (t *LimitTable) Ceiling(level Level) *decimal.Decimal {
	return t.ceilings[level]
}

// Covers reports whether the level may approve amount unilaterally. An amount
// exactly equal to the ceiling is covered; one unit above is not.
func (t *LimitTable) Covers(level Level, amount decimal.Decimal) bool {
	ceiling, known := t.ceilings[level]
	if !known {
		// Levels absent from the table cannot approve anything: fail closed.
		return false
	}
	if ceiling == nil {
		return true
	}
	return amount.LessThanOrEqual(*ceiling)
}

// NextSufficient walks the escalation chain strictly above from and returns
// the first level whose ceiling covers amount. The second return is false
// when the chain is exhausted.
func (t *LimitTable) NextSufficient(from Level, amount decimal.Decimal) (Level, bool) {
	start := 0
	for i, level := range t.chain {
		if level == from {
			start = i + 1
			break
		}
	}
	// Levels outside the chain (purchase_manager, technical_lead, client,
	// admin) escalate straight to the top-level role.
	if start == 0 && from.Role != t.chain[0].Role {
		start = len(t.chain) - 1
	}

	for _, level := range t.chain[start:] {
		if t.Covers(level, amount) {
			return level, true
		}
	}
	return Level{}, false
}

// TopLevel is the designated escalation target when the chain is exhausted.
func (t *LimitTable) TopLevel() Level {
	return t.chain[len(t.chain)-1]
}

type limitEntry struct {
	Role      string `mapstructure:"role"`
	Seniority string `mapstructure:"seniority"`
	Ceiling   string `mapstructure:"ceiling"`
	Unlimited bool   `mapstructure:"unlimited"`
}

type limitFile struct {
	Limits []limitEntry `mapstructure:"approval_limits"`
}

// LoadLimitTable reads ceilings from the same YAML artifact format as the
// rule table. Entries override the defaults; unknown roles are rejected.
func LoadLimitTable(path string) (*LimitTable, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading limit table: %w", err)
	}

	var file limitFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("error unmarshaling limit table: %w", err)
	}

	table := DefaultLimitTable()
	for i, entry := range file.Limits {
		role, err := authz.ParseRole(entry.Role)
		if err != nil {
			return nil, fmt.Errorf("limit %d: %w", i, err)
		}
		seniority, err := authz.ParseSeniority(entry.Seniority)
		if err != nil {
			return nil, fmt.Errorf("limit %d: %w", i, err)
		}

		level := Level{Role: role, Seniority: seniority}
		if entry.Unlimited {
			table.ceilings[level] = nil
			continue
		}
		ceiling, err := decimal.NewFromString(entry.Ceiling)
		if err != nil {
			return nil, fmt.Errorf("limit %d: invalid ceiling %q: %w", i, entry.Ceiling, err)
		}
		table.ceilings[level] = &ceiling
	}

	return table, nil
}
