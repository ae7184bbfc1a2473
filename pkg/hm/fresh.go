package hm

import "fmt"

// Fresh hands out type variables. Each check run owns its own Fresh, so
// identities are unique within a run and independent runs never share
// state.
type Fresh struct {
	last VarID
}

// Next returns a new variable with the given display hint.
func (f *Fresh) Next(hint string) Var {
	f.last++
	return Var{ID: f.last, Hint: hint}
}

// NextN returns n new variables hinted prefix0..prefixN-1.
func (f *Fresh) NextN(n int, prefix string) []Var {
	vs := make([]Var, n)
	for i := range vs {
		vs[i] = f.Next(fmt.Sprintf("%s%d", prefix, i))
	}
	return vs
}

// Issued returns how many variables have been handed out.
func (f *Fresh) Issued() int {
	return int(f.last)
}
