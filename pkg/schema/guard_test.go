package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardRendering(t *testing.T) {
	eq := func(name string, v int) Guard {
		return When(Cond{Name: name, Op: OpEq, Values: []int{v}})
	}

	assert.Equal(t, "status == -1", eq("status", -1).String())
	assert.Equal(t, "status not in {0, -1}",
		When(Cond{Name: "status", Op: OpNotIn, Values: []int{0, -1}}).String())
	assert.Equal(t, "(f == 0) || (f == 1)", Or(eq("f", 0), eq("f", 1)).String())
	assert.Equal(t, "(f == 0) || (f == 1) || (f == 2)",
		Or(Or(eq("f", 0), eq("f", 1)), eq("f", 2)).String())
	assert.Equal(t, "x == 0 && y == 1", And(eq("x", 0), eq("y", 1)).String())
	assert.Equal(t, "(x == 0 && y == 1) || (x == 1 && y == 1)",
		And(Or(eq("x", 0), eq("x", 1)), eq("y", 1)).String())

	assert.Equal(t, "(overflow) || (ok)", Or(Outcome("overflow"), Outcome("ok")).String())
	assert.Equal(t, "overflow && f == 0", And(Outcome("overflow"), eq("f", 0)).String())
	assert.Equal(t, "branch-true", BranchTrue.String())
}

func TestGuardAbsent(t *testing.T) {
	g := Outcome("ok")
	assert.True(t, Guard{}.IsZero())
	assert.Equal(t, g, And(Guard{}, g))
	assert.Equal(t, g, And(g, Guard{}))
	assert.Equal(t, g, Or(Guard{}, g))
	assert.Equal(t, g, Or(g, Guard{}))
	assert.True(t, Or(Guard{}, Guard{}).IsZero())
	assert.Equal(t, "", Guard{}.String())
}

func TestGuardsWith(t *testing.T) {
	base := Guards{BranchTrue}
	next := base.With(Guard{}, LoopBody)

	assert.Equal(t, Guards{BranchTrue}, base, "original path is untouched")
	assert.Equal(t, []string{"branch-true", "loop-body"}, next.Strings())
	assert.Equal(t, "branch-true,loop-body", next.String())
	assert.True(t, LoopExit.Equal(Guard{Kind: PathGuard, Label: "loop-exit"}))
	assert.False(t, LoopExit.Equal(Outcome("loop-exit")))
}
