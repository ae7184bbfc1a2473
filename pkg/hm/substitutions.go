package hm

import "strings"

// Subs maps variables to the types they are bound to. A binding is written
// once; branches fork their own copy with Clone before diverging.
type Subs map[VarID]Type

// NewSubs creates an empty substitution
func NewSubs() Subs {
	return make(Subs)
}

// Clone creates a shallow copy of the substitution
func (s Subs) Clone() Subs {
	result := make(Subs, len(s))
	for id, t := range s {
		result[id] = t
	}
	return result
}

// Get gets the type bound to a variable
func (s Subs) Get(id VarID) (Type, bool) {
	t, exists := s[id]
	return t, exists
}

// Deref follows variable bindings until it reaches a non-variable or an
// unbound variable. It never mutates s.
func (s Subs) Deref(t Type) Type {
	v, ok := t.(Var)
	if !ok {
		return t
	}
	seen := map[VarID]bool{}
	var cur Type = v
	for {
		cv, ok := cur.(Var)
		if !ok {
			return cur
		}
		if seen[cv.ID] {
			// cycle; bindings are write-once so this should not happen
			return cur
		}
		seen[cv.ID] = true
		next, bound := s[cv.ID]
		if !bound {
			return cur
		}
		cur = next
	}
}

// Apply resolves t to its most specific known form.
func (s Subs) Apply(t Type) Type {
	return s.Deref(t)
}

// ApplyAll applies the substitution to every type in a stack.
func (s Subs) ApplyAll(ts []Type) []Type {
	out := make([]Type, len(ts))
	for i, t := range ts {
		out[i] = s.Apply(t)
	}
	return out
}

// ShowStack renders a stack bottom to top with the substitution applied.
func ShowStack(stack []Type, s Subs) string {
	if len(stack) == 0 {
		return "∅"
	}
	parts := make([]string, len(stack))
	for i, t := range stack {
		parts[i] = s.Apply(t).String()
	}
	return strings.Join(parts, " ")
}
