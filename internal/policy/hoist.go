package policy

import "sort"

// Hoist rewrites every bare identity-function call in the tree into its
// hoisted form, so each identity function is evaluated once per
// statement instead of once per row. The rewrite is purely structural;
// Check verifies afterwards that it preserved the predicate's meaning.
func Hoist(e Expr) Expr {
	switch n := e.(type) {
	case Compare:
		return Compare{Left: hoistValue(n.Left), Op: n.Op, Right: hoistValue(n.Right)}
	case Not:
		return Not{Inner: Hoist(n.Inner)}
	case And:
		return And{Left: Hoist(n.Left), Right: Hoist(n.Right)}
	case Or:
		return Or{Left: Hoist(n.Left), Right: Hoist(n.Right)}
	default:
		return e
	}
}

func hoistValue(v ValueExpr) ValueExpr {
	if call, ok := v.(IdentCall); ok {
		return Hoisted{Fn: call.Fn}
	}
	return v
}

// ShapeIssue reports an identity function that a stored predicate still
// evaluates per row.
type ShapeIssue struct {
	Fn          string `json:"fn"`
	Occurrences int    `json:"occurrences"`
}

// ShapeReport is the result of the performance-shape validation of a
// single predicate.
type ShapeReport struct {
	Issues []ShapeIssue `json:"issues,omitempty"`
}

func (r ShapeReport) Performant() bool { return len(r.Issues) == 0 }

// CheckShape flags every bare (un-hoisted) identity call in a stored
// predicate. Equivalence is unaffected by the call form, so this is a
// separate verdict from divergence.
func CheckShape(e Expr) ShapeReport {
	counts := make(map[string]int)
	countBareCalls(e, counts)

	fns := make([]string, 0, len(counts))
	for fn := range counts {
		fns = append(fns, fn)
	}
	sort.Strings(fns)

	var report ShapeReport
	for _, fn := range fns {
		report.Issues = append(report.Issues, ShapeIssue{Fn: fn, Occurrences: counts[fn]})
	}
	return report
}

func countBareCalls(e Expr, counts map[string]int) {
	switch n := e.(type) {
	case Compare:
		countBareValueCalls(n.Left, counts)
		countBareValueCalls(n.Right, counts)
	case Not:
		countBareCalls(n.Inner, counts)
	case And:
		countBareCalls(n.Left, counts)
		countBareCalls(n.Right, counts)
	case Or:
		countBareCalls(n.Left, counts)
		countBareCalls(n.Right, counts)
	}
}

func countBareValueCalls(v ValueExpr, counts map[string]int) {
	if call, ok := v.(IdentCall); ok {
		counts[call.Fn]++
	}
}
