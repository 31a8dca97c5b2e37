package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Assignment binds every free variable of a predicate to a concrete
// value: row attributes by column name, identity functions by call name.
// Identity functions are bound once per assignment, which models the
// once-per-statement evaluation the optimized policy form relies on.
type Assignment map[string]string

// Expr is a boolean predicate node.
type Expr interface {
	Eval(env Assignment) bool
	// Variables appends the free variable names of the subtree.
	Variables(set map[string]struct{})
	String() string
}

// ValueExpr is a scalar-valued node usable inside a comparison.
type ValueExpr interface {
	Value(env Assignment) string
	Variables(set map[string]struct{})
	String() string
}

// Literal is a constant scalar value.
type Literal struct {
	Val string
}

func (l Literal) Value(Assignment) string       { return l.Val }
func (l Literal) Variables(map[string]struct{}) {}
func (l Literal) String() string                { return fmt.Sprintf("'%s'", l.Val) }

// Attr references a row attribute such as assigned_to or status.
type Attr struct {
	Name string
}

func (a Attr) Value(env Assignment) string { return env[a.Name] }
func (a Attr) Variables(set map[string]struct{}) {
	set[a.Name] = struct{}{}
}
func (a Attr) String() string { return a.Name }

// IdentCall is an identity-resolution function call, e.g. CURRENT_USER().
// In a stored policy this form is re-evaluated per row.
type IdentCall struct {
	Fn string
}

func (c IdentCall) Value(env Assignment) string { return env[identVar(c.Fn)] }
func (c IdentCall) Variables(set map[string]struct{}) {
	set[identVar(c.Fn)] = struct{}{}
}
func (c IdentCall) String() string { return c.Fn + "()" }

// Hoisted is a let-bound identity call, the once-per-statement form a
// stored policy writes as a scalar subquery: (SELECT CURRENT_USER()).
// It evaluates to the same value as the bare call, only its cost model
// differs, so equivalence checking treats the two forms identically.
type Hoisted struct {
	Fn string
}

func (h Hoisted) Value(env Assignment) string { return env[identVar(h.Fn)] }
func (h Hoisted) Variables(set map[string]struct{}) {
	set[identVar(h.Fn)] = struct{}{}
}
func (h Hoisted) String() string { return fmt.Sprintf("(SELECT %s())", h.Fn) }

func identVar(fn string) string { return "fn:" + strings.ToUpper(fn) }

// Compare is an equality or inequality between two scalar expressions.
type Compare struct {
	Left  ValueExpr
	Op    string // "=" or "<>"
	Right ValueExpr
}

func (c Compare) Eval(env Assignment) bool {
	eq := c.Left.Value(env) == c.Right.Value(env)
	if c.Op == "<>" {
		return !eq
	}
	return eq
}

func (c Compare) Variables(set map[string]struct{}) {
	c.Left.Variables(set)
	c.Right.Variables(set)
}

func (c Compare) String() string {
	return fmt.Sprintf("%s %s %s", c.Left.String(), c.Op, c.Right.String())
}

// Not negates a predicate.
type Not struct {
	Inner Expr
}

func (n Not) Eval(env Assignment) bool          { return !n.Inner.Eval(env) }
func (n Not) Variables(set map[string]struct{}) { n.Inner.Variables(set) }
func (n Not) String() string                    { return "NOT (" + n.Inner.String() + ")" }

// And is a conjunction of two predicates.
type And struct {
	Left, Right Expr
}

func (a And) Eval(env Assignment) bool { return a.Left.Eval(env) && a.Right.Eval(env) }
func (a And) Variables(set map[string]struct{}) {
	a.Left.Variables(set)
	a.Right.Variables(set)
}
func (a And) String() string {
	return fmt.Sprintf("(%s AND %s)", a.Left.String(), a.Right.String())
}

// Or is a disjunction of two predicates.
type Or struct {
	Left, Right Expr
}

func (o Or) Eval(env Assignment) bool { return o.Left.Eval(env) || o.Right.Eval(env) }
func (o Or) Variables(set map[string]struct{}) {
	o.Left.Variables(set)
	o.Right.Variables(set)
}
func (o Or) String() string {
	return fmt.Sprintf("(%s OR %s)", o.Left.String(), o.Right.String())
}

// FreeVariables returns the sorted free variable names of a predicate.
func FreeVariables(e Expr) []string {
	set := make(map[string]struct{})
	e.Variables(set)
	vars := make([]string, 0, len(set))
	for v := range set {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}
