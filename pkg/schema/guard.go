package schema

import (
	"fmt"
	"strings"
)

// GuardKind separates control-flow path labels from instruction outcomes.
type GuardKind int

const (
	NoGuard GuardKind = iota
	PathGuard
	OutcomeGuard
)

// Path labels appended by the control-flow handlers.
var (
	BranchTrue  = Guard{Kind: PathGuard, Label: "branch-true"}
	BranchFalse = Guard{Kind: PathGuard, Label: "branch-false"}
	LoopBody    = Guard{Kind: PathGuard, Label: "loop-body"}
	LoopExit    = Guard{Kind: PathGuard, Label: "loop-exit"}
)

// CondOp compares a discriminant against a set of values.
type CondOp string

const (
	OpEq    CondOp = "=="
	OpNotIn CondOp = "not in"
)

// Cond is a single test on a named discriminant, e.g. "status == -1".
type Cond struct {
	Name   string
	Op     CondOp
	Values []int
}

func (c Cond) String() string {
	if c.Op == OpEq && len(c.Values) == 1 {
		return fmt.Sprintf("%s == %d", c.Name, c.Values[0])
	}
	vals := make([]string, len(c.Values))
	for i, v := range c.Values {
		vals[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("%s %s {%s}", c.Name, c.Op, strings.Join(vals, ", "))
}

// Term is a conjunction of conditions.
type Term []Cond

func (t Term) String() string {
	parts := make([]string, len(t))
	for i, c := range t {
		parts[i] = c.String()
	}
	return strings.Join(parts, " && ")
}

// Guard labels a path or outcome choice. Outcome guards are either a
// disjunction of Terms or a free-text Label such as "overflow".
type Guard struct {
	Kind  GuardKind
	Label string
	Terms []Term
}

// When returns an outcome guard holding a single conjunction.
func When(conds ...Cond) Guard {
	return Guard{Kind: OutcomeGuard, Terms: []Term{conds}}
}

// Outcome returns a free-text outcome guard.
func Outcome(label string) Guard {
	return Guard{Kind: OutcomeGuard, Label: label}
}

// IsZero reports whether g is the absent guard.
func (g Guard) IsZero() bool {
	return g.Kind == NoGuard
}

// And conjoins two guards. An absent guard on either side yields the other.
func And(a, b Guard) Guard {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a.Label != "" || b.Label != "" || a.Kind != OutcomeGuard || b.Kind != OutcomeGuard:
		return Guard{Kind: OutcomeGuard, Label: fmt.Sprintf("%s && %s", a, b)}
	}
	terms := make([]Term, 0, len(a.Terms)*len(b.Terms))
	for _, at := range a.Terms {
		for _, bt := range b.Terms {
			t := make(Term, 0, len(at)+len(bt))
			t = append(t, at...)
			t = append(t, bt...)
			terms = append(terms, t)
		}
	}
	return Guard{Kind: OutcomeGuard, Terms: terms}
}

// Or combines two guards into a disjunction. When one side is absent the
// other side's guard is kept.
func Or(a, b Guard) Guard {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	}
	if a.Kind == OutcomeGuard && b.Kind == OutcomeGuard && a.Label == "" && b.Label == "" {
		terms := make([]Term, 0, len(a.Terms)+len(b.Terms))
		terms = append(terms, a.Terms...)
		terms = append(terms, b.Terms...)
		return Guard{Kind: OutcomeGuard, Terms: terms}
	}
	return Guard{Kind: OutcomeGuard, Label: fmt.Sprintf("(%s) || (%s)", a, b)}
}

func (g Guard) String() string {
	switch {
	case g.IsZero():
		return ""
	case g.Label != "":
		return g.Label
	case len(g.Terms) == 1:
		return g.Terms[0].String()
	}
	parts := make([]string, len(g.Terms))
	for i, t := range g.Terms {
		parts[i] = "(" + t.String() + ")"
	}
	return strings.Join(parts, " || ")
}

// Equal compares guards by their rendering.
func (g Guard) Equal(other Guard) bool {
	return g.Kind == other.Kind && g.String() == other.String()
}

// Guards is an ordered guard path.
type Guards []Guard

// Strings renders each guard.
func (gs Guards) Strings() []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.String()
	}
	return out
}

func (gs Guards) String() string {
	return strings.Join(gs.Strings(), ",")
}

// With returns a copy of gs with g appended. Absent guards are skipped.
func (gs Guards) With(g ...Guard) Guards {
	out := make(Guards, len(gs), len(gs)+len(g))
	copy(out, gs)
	for _, x := range g {
		if !x.IsZero() {
			out = append(out, x)
		}
	}
	return out
}
