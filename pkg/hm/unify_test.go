package hm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vito/tvmcheck/pkg/asm"
)

func TestUnifyBindsVariables(t *testing.T) {
	var fresh Fresh
	s := NewSubs()
	a := fresh.Next("α")

	require.NoError(t, Unify(a, NewBase(Int), s))
	assert.Equal(t, NewBase(Int), s.Deref(a))

	// self-bind is a no-op
	b := fresh.Next("β")
	require.NoError(t, Unify(b, b, s))
	_, bound := s.Get(b.ID)
	assert.False(t, bound)
}

func TestUnifyTransitive(t *testing.T) {
	var fresh Fresh
	s := NewSubs()
	vs := fresh.NextN(3, "τ")

	require.NoError(t, Unify(vs[0], vs[1], s))
	require.NoError(t, Unify(vs[1], vs[2], s))

	rep := s.Deref(vs[0])
	assert.Equal(t, rep, s.Deref(vs[1]))
	assert.Equal(t, rep, s.Deref(vs[2]))

	require.NoError(t, Unify(vs[2], NewBase(Cell), s))
	for _, v := range vs {
		assert.Equal(t, NewBase(Cell), s.Deref(v))
	}
}

func TestUnifySymmetric(t *testing.T) {
	for _, order := range []string{"var-first", "base-first"} {
		t.Run(order, func(t *testing.T) {
			var fresh Fresh
			s := NewSubs()
			v := fresh.Next("")
			var err error
			if order == "var-first" {
				err = Unify(v, NewBase(Slice), s)
			} else {
				err = Unify(NewBase(Slice), v, s)
			}
			require.NoError(t, err)
			assert.Equal(t, NewBase(Slice), s.Deref(v))
		})
	}
}

func TestUnifyWildcard(t *testing.T) {
	s := NewSubs()
	for _, k := range []Kind{Int, Slice, Cell, Builder, Tuple, ContK, Null, Any} {
		require.NoError(t, Unify(NewBase(Any), NewBase(k), s))
		require.NoError(t, Unify(NewBase(k), NewBase(Any), s))
	}
	assert.Empty(t, s, "wildcard must not create bindings")

	concrete, err := AsBase(NewBase(Int), s)
	require.NoError(t, err)
	assert.Equal(t, Int, concrete.Kind)
}

func TestUnifyContinuations(t *testing.T) {
	s := NewSubs()
	a := Cont{Body: asm.Program{{Op: "DUP"}}}
	b := Cont{Body: asm.Program{{Op: "DROP"}, {Op: "DROP"}}}
	require.NoError(t, Unify(a, b, s))

	err := Unify(a, NewBase(Int), s)
	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "type mismatch: cont vs int", err.Error())
}

func TestUnifyMismatch(t *testing.T) {
	var fresh Fresh
	s := NewSubs()
	v := fresh.Next("α")
	require.NoError(t, Unify(v, NewBase(Int), s))

	err := Unify(NewBase(Cell), v, s)
	require.EqualError(t, err, "type mismatch: cell vs int")
}

func TestDerefCycleGuard(t *testing.T) {
	s := Subs{
		1: Var{ID: 2},
		2: Var{ID: 1},
	}
	// must terminate
	got := s.Deref(Var{ID: 1})
	_, isVar := got.(Var)
	assert.True(t, isVar)
}

func TestAsBase(t *testing.T) {
	var fresh Fresh
	s := NewSubs()
	v := fresh.Next("α")

	_, err := AsBase(v, s)
	var nc *NotConcreteError
	require.ErrorAs(t, err, &nc)

	_, err = AsBase(Cont{}, s)
	require.ErrorAs(t, err, &nc)

	require.NoError(t, Unify(v, NewBase(Builder), s))
	b, err := AsBase(v, s)
	require.NoError(t, err)
	assert.Equal(t, Builder, b.Kind)
}

func TestUnifyStacks(t *testing.T) {
	var fresh Fresh
	s := NewSubs()
	vs := fresh.NextN(2, "χ")

	err := UnifyStacks([]Type{vs[0]}, []Type{NewBase(Int), NewBase(Int)}, s)
	var lerr *LengthError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 1, lerr.Got)
	assert.Equal(t, 2, lerr.Expected)

	require.NoError(t, UnifyStacks([]Type{vs[0], vs[1]}, []Type{NewBase(Int), NewBase(Cell)}, s))
	assert.Equal(t, "int cell", ShowStack([]Type{vs[0], vs[1]}, s))
	assert.Equal(t, "∅", ShowStack(nil, s))
}

func TestFreshIsPerInstance(t *testing.T) {
	var a, b Fresh
	assert.Equal(t, VarID(1), a.Next("").ID)
	assert.Equal(t, VarID(2), a.Next("").ID)
	assert.Equal(t, VarID(1), b.Next("").ID)
	assert.Equal(t, 2, a.Issued())
	assert.Equal(t, "τ03", a.NextN(1, "τ")[0].String())
}
