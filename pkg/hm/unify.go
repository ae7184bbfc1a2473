package hm

import (
	"fmt"
)

// MismatchError reports two types that cannot be unified.
type MismatchError struct {
	Left  Type
	Right Type
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("type mismatch: %s vs %s", e.Left, e.Right)
}

// NotConcreteError reports a type that was required to be a Base.
type NotConcreteError struct {
	Type Type
}

func (e *NotConcreteError) Error() string {
	return fmt.Sprintf("type must be concrete, got %s", e.Type)
}

// LengthError reports stacks of different depth passed to UnifyStacks.
type LengthError struct {
	Got      int
	Expected int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("stack length mismatch: got %d, expected %d", e.Got, e.Expected)
}

// Unify makes a and b equal under s, recording new bindings in s.
func Unify(a, b Type, s Subs) error {
	aa := s.Deref(a)
	bb := s.Deref(b)

	if v, ok := aa.(Var); ok {
		bindVar(v, bb, s)
		return nil
	}
	if v, ok := bb.(Var); ok {
		bindVar(v, aa, s)
		return nil
	}

	switch at := aa.(type) {
	case Cont:
		// bodies are checked where they are invoked, not here
		if _, ok := bb.(Cont); ok {
			return nil
		}
	case Base:
		if bt, ok := bb.(Base); ok {
			if at.Kind == Any || bt.Kind == Any || at.Kind == bt.Kind {
				return nil
			}
		}
	}

	return &MismatchError{Left: aa, Right: bb}
}

// bindVar binds v to an already dereferenced t.
func bindVar(v Var, t Type, s Subs) {
	if tv, ok := t.(Var); ok && tv.ID == v.ID {
		return
	}
	s[v.ID] = t
}

// UnifyStacks unifies two stacks slot by slot. Both must have the same depth.
func UnifyStacks(a, b []Type, s Subs) error {
	if len(a) != len(b) {
		return &LengthError{Got: len(a), Expected: len(b)}
	}
	for i := range a {
		if err := Unify(a[i], b[i], s); err != nil {
			return err
		}
	}
	return nil
}

// AsBase requires t to resolve to a Base under s.
func AsBase(t Type, s Subs) (Base, error) {
	tt := s.Deref(t)
	b, ok := tt.(Base)
	if !ok {
		return Base{}, &NotConcreteError{Type: tt}
	}
	return b, nil
}
