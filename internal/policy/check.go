package policy

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/formulapm/access-management/internal"
	"github.com/formulapm/access-management/internal/authz"
)

// CurrentUserFn is the identity function every owner-column filter
// compiles to.
const CurrentUserFn = "CURRENT_USER"

// sampleDomain is the value space each free variable ranges over.
// Predicates in this grammar only test (in)equality, so three distinct
// values are enough to separate any two inequivalent trees over the
// sampled assignments.
var sampleDomain = []string{"v1", "v2", "v3"}

const (
	maxExhaustiveVars = 8
	sampledChecks     = 2048
	samplingSeed      = 1
)

// Const is a constant predicate. The parser never produces it; it is
// the canonical form of a rule with no row filter.
type Const struct {
	Val bool
}

func (c Const) Eval(Assignment) bool          { return c.Val }
func (c Const) Variables(map[string]struct{}) {}
func (c Const) String() string {
	if c.Val {
		return "TRUE"
	}
	return "FALSE"
}

// Counterexample is an assignment on which two predicates disagree.
type Counterexample struct {
	Assignment Assignment `json:"assignment"`
	Original   bool       `json:"original"`
	Candidate  bool       `json:"candidate"`
}

func (c Counterexample) String() string {
	return fmt.Sprintf("assignment %v: original=%v candidate=%v", map[string]string(c.Assignment), c.Original, c.Candidate)
}

// Equivalent compares two predicates over the joint space of their free
// variables. Small spaces are enumerated exhaustively; larger ones are
// sampled with a fixed seed so results are reproducible. A nil return
// means no disagreeing assignment was found.
func Equivalent(original, candidate Expr) *Counterexample {
	set := make(map[string]struct{})
	original.Variables(set)
	candidate.Variables(set)
	vars := make([]string, 0, len(set))
	for v := range set {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	if len(vars) <= maxExhaustiveVars {
		return enumerate(original, candidate, vars)
	}
	return sample(original, candidate, vars)
}

func enumerate(original, candidate Expr, vars []string) *Counterexample {
	env := make(Assignment, len(vars))
	indices := make([]int, len(vars))
	for {
		for i, v := range vars {
			env[v] = sampleDomain[indices[i]]
		}
		if ce := compareOn(original, candidate, env); ce != nil {
			return ce
		}
		// odometer increment over the domain
		i := 0
		for i < len(indices) {
			indices[i]++
			if indices[i] < len(sampleDomain) {
				break
			}
			indices[i] = 0
			i++
		}
		if i == len(indices) {
			return nil
		}
	}
}

func sample(original, candidate Expr, vars []string) *Counterexample {
	rng := rand.New(rand.NewSource(samplingSeed))
	for n := 0; n < sampledChecks; n++ {
		env := make(Assignment, len(vars))
		for _, v := range vars {
			env[v] = sampleDomain[rng.Intn(len(sampleDomain))]
		}
		if ce := compareOn(original, candidate, env); ce != nil {
			return ce
		}
	}
	return nil
}

func compareOn(original, candidate Expr, env Assignment) *Counterexample {
	got, want := candidate.Eval(env), original.Eval(env)
	if got == want {
		return nil
	}
	frozen := make(Assignment, len(env))
	for k, v := range env {
		frozen[k] = v
	}
	return &Counterexample{Assignment: frozen, Original: want, Candidate: got}
}

// ExprForFilter compiles a rule's abstract row filter into its
// canonical predicate: each owner column must equal the hoisted
// current-user value, any column matching grants the row.
func ExprForFilter(f *authz.RowFilter) Expr {
	if f == nil || len(f.OwnerColumns) == 0 {
		return Const{Val: true}
	}
	var expr Expr
	for _, col := range f.OwnerColumns {
		cmp := Compare{Left: Attr{Name: col}, Op: "=", Right: Hoisted{Fn: CurrentUserFn}}
		if expr == nil {
			expr = cmp
		} else {
			expr = Or{Left: expr, Right: cmp}
		}
	}
	return expr
}

// StoredPolicy is one database-side policy captured in a snapshot.
type StoredPolicy struct {
	Name      string `json:"name" mapstructure:"name"`
	Role      string `json:"role" mapstructure:"role"`
	Resource  string `json:"resource" mapstructure:"resource"`
	Action    string `json:"action" mapstructure:"action"`
	Predicate string `json:"predicate" mapstructure:"predicate"`
}

// PredicateResult is the verdict for a single stored policy.
type PredicateResult struct {
	Policy         StoredPolicy    `json:"policy"`
	Equivalent     bool            `json:"equivalent"`
	Counterexample *Counterexample `json:"counterexample,omitempty"`
	Shape          ShapeReport     `json:"shape"`
	Err            error           `json:"error,omitempty"`
}

// Report collects the verdicts of a snapshot run.
type Report struct {
	Results []PredicateResult `json:"results"`
}

// Diverged returns the results whose predicate disagreed with the rule
// table, or failed to parse at all.
func (r Report) Diverged() []PredicateResult {
	var out []PredicateResult
	for _, res := range r.Results {
		if !res.Equivalent || res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// NonPerformant returns the results whose predicate still evaluates an
// identity function per row.
func (r Report) NonPerformant() []PredicateResult {
	var out []PredicateResult
	for _, res := range r.Results {
		if res.Err == nil && !res.Shape.Performant() {
			out = append(out, res)
		}
	}
	return out
}

// Checker verifies stored policies against the in-process rule table.
type Checker struct {
	rules  *authz.RuleTable
	logger *slog.Logger
}

func NewChecker(rules *authz.RuleTable, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{rules: rules, logger: logger}
}

// CheckRewrite verifies one proposed rewrite of a predicate. It reports
// the first disagreeing assignment if the rewrite changed the meaning,
// and the shape issues remaining in the rewritten form. The rewrite is
// never adjusted on failure; the caller decides what to do with it.
func (c *Checker) CheckRewrite(original, rewritten Expr) (*Counterexample, ShapeReport) {
	return Equivalent(original, rewritten), CheckShape(rewritten)
}

// Run checks every stored policy in the snapshot against the canonical
// predicate of its rule. Each policy is independent; the context is
// consulted between policies so a long run can be interrupted.
func (c *Checker) Run(ctx context.Context, policies []StoredPolicy) (Report, error) {
	var report Report
	for _, p := range policies {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Results = append(report.Results, c.checkOne(p))
	}
	return report, nil
}

func (c *Checker) checkOne(p StoredPolicy) PredicateResult {
	result := PredicateResult{Policy: p}

	role, err := authz.ParseRole(p.Role)
	if err != nil {
		result.Err = err
		return result
	}
	action, err := authz.ParseAction(p.Action)
	if err != nil {
		result.Err = err
		return result
	}

	rule, ok := c.rules.Lookup(role, p.Resource, action)
	if !ok || !rule.Allowed {
		msg := fmt.Sprintf("no allowing rule for policy %q (%s/%s/%s)", p.Name, p.Role, p.Resource, p.Action)
		if !c.rules.HasResource(p.Resource) {
			msg = fmt.Sprintf("policy %q references a resource no rule covers: %q", p.Name, p.Resource)
		}
		result.Err = internal.NewValidationFieldError("policy", msg, internal.ErrCodeNoRule)
		return result
	}

	parsed, err := Parse(p.Predicate)
	if err != nil {
		result.Err = err
		return result
	}

	canonical := ExprForFilter(rule.Filter)
	result.Shape = CheckShape(parsed)
	if ce := Equivalent(canonical, parsed); ce != nil {
		result.Counterexample = ce
		c.logger.Error("stored policy diverges from rule table",
			"policy", p.Name,
			"resource", p.Resource,
			"action", p.Action,
			"counterexample", ce.String())
		return result
	}

	result.Equivalent = true
	if !result.Shape.Performant() {
		c.logger.Warn("stored policy is equivalent but not performant",
			"policy", p.Name,
			"issues", result.Shape.Issues)
	}
	return result
}

// DivergenceError wraps a diverged result in the error taxonomy for
// callers that want a hard failure instead of a report.
func DivergenceError(res PredicateResult) *internal.AppError {
	msg := fmt.Sprintf("policy %q diverges from the rule table", res.Policy.Name)
	if res.Counterexample != nil {
		msg = fmt.Sprintf("%s: %s", msg, res.Counterexample.String())
	}
	return internal.NewConflictError(msg, internal.ErrCodePolicyDivergence)
}
