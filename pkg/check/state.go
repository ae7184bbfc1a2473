package check

import (
	"strings"

	"github.com/vito/tvmcheck/pkg/hm"
	"github.com/vito/tvmcheck/pkg/schema"
)

// State is one point of the symbolic execution: a stack (bottom to top), the
// substitution it is read under, and the guards taken to reach it. States
// are never mutated once built.
type State struct {
	Stack  []hm.Type
	Subs   hm.Subs
	Guards schema.Guards
}

// Types returns the stack with the substitution applied.
func (s State) Types() []hm.Type {
	return s.Subs.ApplyAll(s.Stack)
}

// Show renders the stack, optionally followed by the guard path.
func (s State) Show(guards bool) string {
	str := hm.ShowStack(s.Stack, s.Subs)
	if guards {
		str += "  guards=[" + s.Guards.String() + "]"
	}
	return str
}

func (s State) String() string {
	return s.Show(true)
}

// stackKey identifies a state by its resolved stack alone.
func (s State) stackKey() string {
	parts := make([]string, len(s.Stack))
	for i, t := range s.Stack {
		parts[i] = s.Subs.Apply(t).String()
	}
	return strings.Join(parts, "|")
}

// key identifies a state by stack and guard path.
func (s State) key() string {
	return s.stackKey() + " :: " + strings.Join(s.Guards.Strings(), ">")
}

// pushed returns a copy of the state with ts on top.
func (s State) pushed(ts ...hm.Type) State {
	stack := make([]hm.Type, 0, len(s.Stack)+len(ts))
	stack = append(stack, s.Stack...)
	stack = append(stack, ts...)
	return State{Stack: stack, Subs: s.Subs, Guards: s.Guards}
}

// below returns the stack under the top n slots.
func (s State) below(n int) []hm.Type {
	return s.Stack[: len(s.Stack)-n : len(s.Stack)-n]
}

// top returns the top n slots, bottom to top.
func (s State) top(n int) []hm.Type {
	return s.Stack[len(s.Stack)-n:]
}

// fork starts a nested run on stack with a cloned substitution.
func (s State) fork(stack []hm.Type, g ...schema.Guard) State {
	return State{
		Stack:  stack,
		Subs:   s.Subs.Clone(),
		Guards: s.Guards.With(g...),
	}
}

func dedupe(states []State) []State {
	seen := map[string]bool{}
	out := make([]State, 0, len(states))
	for _, st := range states {
		k := st.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, st)
	}
	return out
}

// mergeByStack collapses states with the same resolved stack, concatenating
// their guard paths. The first state's substitution is kept.
func mergeByStack(states []State) []State {
	var order []string
	groups := map[string][]State{}
	for _, st := range states {
		k := st.stackKey()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], st)
	}

	out := make([]State, 0, len(order))
	for _, k := range order {
		group := groups[k]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		var guards schema.Guards
		for _, st := range group {
			guards = append(guards, st.Guards...)
		}
		out = append(out, State{
			Stack:  group[0].Stack,
			Subs:   group[0].Subs,
			Guards: guards,
		})
	}
	return out
}

// commonPrefixLen is the number of bottom slots out shares with base under s.
func commonPrefixLen(base, out []hm.Type, s hm.Subs) int {
	n := min(len(base), len(out))
	for i := range n {
		if s.Apply(base[i]).String() != s.Apply(out[i]).String() {
			return i
		}
	}
	return n
}

// summarizeEffects describes what a continuation body did relative to the
// stack it started on, e.g. "σ → σ • int  |  σ → σ".
func summarizeEffects(base []hm.Type, outs []State) string {
	seen := map[string]bool{}
	var parts []string
	for _, st := range outs {
		p := commonPrefixLen(base, st.Stack, st.Subs)
		effect := "σ → σ"
		if suffix := st.Stack[p:]; len(suffix) > 0 {
			effect += " • " + hm.ShowStack(suffix, st.Subs)
		}
		if !seen[effect] {
			seen[effect] = true
			parts = append(parts, effect)
		}
	}
	return strings.Join(parts, "  |  ")
}
