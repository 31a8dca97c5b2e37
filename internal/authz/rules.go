package authz

import (
	"fmt"

	"github.com/spf13/viper"
)

// RuleTable is the immutable (role, resource, action) -> Rule mapping. It is
// built once at process start and passed explicitly into the resolver; rule
// changes require a new process generation, never in-place mutation.
type RuleTable struct {
	rules     map[ruleKey]Rule
	resources map[string]struct{}
}

type ruleKey struct {
	role     Role
	resource string
	action   Action
}

// NewRuleTable validates and indexes a rule list. Rules naming unknown roles,
// actions, or malformed resource names are rejected outright so the table can
// never contain an entry the resolver would refuse to look up.
func NewRuleTable(rules []Rule) (*RuleTable, error) {
	t := &RuleTable{
		rules:     make(map[ruleKey]Rule, len(rules)),
		resources: make(map[string]struct{}),
	}

	for i, rule := range rules {
		if !rule.Role.Valid() {
			return nil, fmt.Errorf("rule %d: unknown role %q", i, rule.Role)
		}
		if !rule.Action.Valid() {
			return nil, fmt.Errorf("rule %d: unknown action %q", i, rule.Action)
		}
		if !ValidResource(rule.Resource) {
			return nil, fmt.Errorf("rule %d: malformed resource name %q", i, rule.Resource)
		}
		if rule.Filter != nil && len(rule.Filter.OwnerColumns) == 0 {
			return nil, fmt.Errorf("rule %d: row_filter requires at least one owner column", i)
		}

		key := ruleKey{role: rule.Role, resource: rule.Resource, action: rule.Action}
		if _, exists := t.rules[key]; exists {
			return nil, fmt.Errorf("rule %d: duplicate rule for (%s, %s, %s)", i, rule.Role, rule.Resource, rule.Action)
		}

		t.rules[key] = rule
		t.resources[rule.Resource] = struct{}{}
	}

	return t, nil
}

// Lookup returns the rule for (role, resource, action), if one exists.
func (t *RuleTable) Lookup(role Role, resource string, action Action) (Rule, bool) {
	rule, ok := t.rules[ruleKey{role: role, resource: resource, action: action}]
	return rule, ok
}

// HasResource reports whether any rule mentions the resource.
func (t *RuleTable) HasResource(resource string) bool {
	_, ok := t.resources[resource]
	return ok
}

// Len returns the number of rules in the table.
func (t *RuleTable) Len() int {
	return len(t.rules)
}

// Rules returns a copy of all entries, for the database-side policy mirror
// and for seeding.
func (t *RuleTable) Rules() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, rule := range t.rules {
		out = append(out, rule)
	}
	return out
}

type ruleFile struct {
	Rules []Rule `mapstructure:"rules"`
}

// LoadRuleTable reads the rule table artifact from a YAML file. Adding a new
// resource is a config change, not a code change.
func LoadRuleTable(path string) (*RuleTable, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading rule table: %w", err)
	}

	var file ruleFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("error unmarshaling rule table: %w", err)
	}

	return NewRuleTable(file.Rules)
}
