package check

import (
	"strings"

	"github.com/vito/tvmcheck/pkg/asm"
	"github.com/vito/tvmcheck/pkg/hm"
	"github.com/vito/tvmcheck/pkg/schema"
)

// refBodies returns the first n literal bodies carried by the instruction.
func (r *run) refBodies(in asm.Instr, i, n, depth int) ([]asm.Program, error) {
	bodies := make([]asm.Program, n)
	for k := range bodies {
		body, err := in.Body(k)
		if err != nil {
			return nil, r.fail(in.Op, i, -1, nil, in, depth, err)
		}
		bodies[k] = body
	}
	return bodies, nil
}

// operands checks that st has n slots for in and returns a writable copy of
// its substitution.
func (r *run) operands(st State, si, n, i int, in asm.Instr, depth int) (hm.Subs, error) {
	if len(st.Stack) < n {
		return nil, r.fail(in.Op, i, si, st.Guards, in, depth, &StackUnderflowError{
			Need:  n,
			Have:  len(st.Stack),
			At:    i,
			Instr: in.Op,
		})
	}
	return st.Subs.Clone(), nil
}

func requireInt(what string, t hm.Type, subs hm.Subs) error {
	if err := hm.Unify(hm.NewBase(hm.Int), t, subs); err != nil {
		return &ConditionError{What: what, Got: subs.Apply(t).String(), Inner: err}
	}
	return nil
}

// requireConts resolves stack operands to literal continuation bodies.
func requireConts(want []string, ts []hm.Type, subs hm.Subs) ([]asm.Program, error) {
	bodies := make([]asm.Program, len(ts))
	got := make([]string, len(ts))
	ok := true
	for k, t := range ts {
		tt := subs.Apply(t)
		got[k] = tt.String()
		if c, isCont := tt.(hm.Cont); isCont {
			bodies[k] = c.Body
		} else {
			ok = false
		}
	}
	if !ok {
		return nil, &BranchOperandError{Want: want, Got: got}
	}
	return bodies, nil
}

func (r *run) pushCont(states []State, i int, in asm.Instr, depth int) ([]State, error) {
	bodies, err := r.refBodies(in, i, 1, depth)
	if err != nil {
		return nil, err
	}
	cont := hm.Cont{Body: bodies[0]}
	next := make([]State, 0, len(states))
	for _, st := range states {
		next = append(next, st.pushed(cont))
	}
	return next, nil
}

// ifElse handles two-way dispatch. Bodies come from the stack or from the
// instruction depending on the variant:
//
//	IFELSE        cond cont_true cont_else
//	IFELSEREF     cond cont_true            else by ref
//	IFREFELSE     cond cont_else            true by ref
//	IFREFELSEREF  cond                      both by ref
func (r *run) ifElse(states []State, i int, in asm.Instr, depth int) ([]State, error) {
	var want []string
	switch in.Op {
	case "IFELSE":
		want = []string{"cont_true", "cont_else"}
	case "IFELSEREF":
		want = []string{"cont_true"}
	case "IFREFELSE":
		want = []string{"cont_else"}
	}
	refs, err := r.refBodies(in, i, 2-len(want), depth)
	if err != nil {
		return nil, err
	}
	need := 1 + len(want)

	var next []State
	for si, st := range states {
		subs, err := r.operands(st, si, need, i, in, depth)
		if err != nil {
			return nil, err
		}
		args := st.top(need)
		if err := requireInt("", args[0], subs); err != nil {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, err)
		}
		ops, err := requireConts(want, args[1:], subs)
		if err != nil {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, err)
		}

		var onTrue, onElse asm.Program
		switch in.Op {
		case "IFELSE":
			onTrue, onElse = ops[0], ops[1]
		case "IFELSEREF":
			onTrue, onElse = ops[0], refs[0]
		case "IFREFELSE":
			onTrue, onElse = refs[0], ops[0]
		default:
			onTrue, onElse = refs[0], refs[1]
		}

		base := st.below(need)
		branch := State{Stack: base, Subs: subs, Guards: st.Guards}

		trueOut, err := r.sequence([]State{branch.fork(base, schema.BranchTrue)}, onTrue, depth+1)
		if err != nil {
			return nil, err
		}
		r.effect(in, "true", base, trueOut)

		elseOut, err := r.sequence([]State{branch.fork(base, schema.BranchFalse)}, onElse, depth+1)
		if err != nil {
			return nil, err
		}
		r.effect(in, "else", base, elseOut)

		next = append(next, trueOut...)
		next = append(next, elseOut...)
	}
	return next, nil
}

// ifThen handles single-branch conditionals. The skip path comes first. The
// JMP variants never return to the enclosing sequence from the body, so only
// the skip path continues; the body is still checked.
//
// Guards name the value of the condition, not the path: for the IFNOT
// variants the body runs under branch-false and the skip path is tagged
// branch-true.
func (r *run) ifThen(states []State, i int, in asm.Instr, depth int) ([]State, error) {
	byRef := strings.HasSuffix(in.Op, "REF")
	jump := strings.Contains(in.Op, "JMP")
	runGuard, skipGuard := schema.BranchTrue, schema.BranchFalse
	if strings.HasPrefix(in.Op, "IFNOT") {
		runGuard, skipGuard = skipGuard, runGuard
	}

	need := 2
	var refBody asm.Program
	if byRef {
		refs, err := r.refBodies(in, i, 1, depth)
		if err != nil {
			return nil, err
		}
		need, refBody = 1, refs[0]
	}

	var next []State
	for si, st := range states {
		subs, err := r.operands(st, si, need, i, in, depth)
		if err != nil {
			return nil, err
		}
		args := st.top(need)
		if err := requireInt("", args[0], subs); err != nil {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, err)
		}
		body := refBody
		if !byRef {
			ops, err := requireConts(nil, args[1:], subs)
			if err != nil {
				return nil, r.fail(in.Op, i, si, st.Guards, in, depth, err)
			}
			body = ops[0]
		}

		base := st.below(need)
		next = append(next, State{
			Stack:  base,
			Subs:   subs,
			Guards: st.Guards.With(skipGuard),
		})

		branch := State{Stack: base, Subs: subs, Guards: st.Guards}
		out, err := r.sequence([]State{branch.fork(base, runGuard)}, body, depth+1)
		if err != nil {
			return nil, err
		}
		r.effect(in, "body", base, out)

		if !jump {
			next = append(next, out...)
		}
	}
	return next, nil
}

// callRef runs a referenced body on the whole current stack.
func (r *run) callRef(states []State, i int, in asm.Instr, depth int) ([]State, error) {
	refs, err := r.refBodies(in, i, 1, depth)
	if err != nil {
		return nil, err
	}
	var next []State
	for _, st := range states {
		out, err := r.sequence([]State{st.fork(st.Stack)}, refs[0], depth+1)
		if err != nil {
			return nil, err
		}
		r.effect(in, "body", st.Stack, out)
		next = append(next, out...)
	}
	return next, nil
}

// execute pops a continuation and runs it on the rest of the stack.
func (r *run) execute(states []State, i int, in asm.Instr, depth int) ([]State, error) {
	var next []State
	for si, st := range states {
		subs, err := r.operands(st, si, 1, i, in, depth)
		if err != nil {
			return nil, err
		}
		ops, err := requireConts(nil, st.top(1), subs)
		if err != nil {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, err)
		}
		base := st.below(1)
		branch := State{Stack: base, Subs: subs, Guards: st.Guards}
		out, err := r.sequence([]State{branch.fork(base)}, ops[0], depth+1)
		if err != nil {
			return nil, err
		}
		r.effect(in, "body", base, out)
		next = append(next, out...)
	}
	return next, nil
}

// exitFlag pops the int flag a loop body leaves on top, unifying it under
// subs.
func exitFlag(out State, subs hm.Subs) ([]hm.Type, error) {
	if len(out.Stack) == 0 {
		return nil, &LoopFlagError{}
	}
	flag := out.Stack[len(out.Stack)-1]
	if err := hm.Unify(hm.NewBase(hm.Int), flag, subs); err != nil {
		return nil, &LoopFlagError{Got: subs.Apply(flag).String(), Inner: err}
	}
	return out.Stack[: len(out.Stack)-1 : len(out.Stack)-1], nil
}

// preserve requires one iteration to end on the stack it started from.
func preserve(after, before []hm.Type, subs hm.Subs, popped bool) error {
	if err := hm.UnifyStacks(after, before, subs); err != nil {
		return &LoopShapeError{
			Before: hm.ShowStack(before, subs),
			After:  hm.ShowStack(after, subs),
			Popped: popped,
			Inner:  err,
		}
	}
	return nil
}

// until runs the body once: it must leave an int flag on top of a stack that
// unifies with the one it started from. That stack is also the exit state.
func (r *run) until(states []State, i int, in asm.Instr, depth int) ([]State, error) {
	var next []State
	for si, st := range states {
		subs, err := r.operands(st, si, 1, i, in, depth)
		if err != nil {
			return nil, err
		}
		ops, err := requireConts(nil, st.top(1), subs)
		if err != nil {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, err)
		}

		base := st.below(1)
		loop := State{Stack: base, Subs: subs, Guards: st.Guards}
		outs, err := r.sequence([]State{loop.fork(base, schema.LoopBody)}, ops[0], depth+1)
		if err != nil {
			return nil, err
		}
		if len(outs) == 0 {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, ErrNoStates)
		}
		r.effect(in, "body", base, outs)

		for _, out := range outs {
			s := out.Subs.Clone()
			post, err := exitFlag(out, s)
			if err != nil {
				return nil, r.fail(in.Op, i, si, out.Guards, in, depth, err)
			}
			if err := preserve(post, base, s, true); err != nil {
				return nil, r.fail(in.Op, i, si, out.Guards, in, depth, err)
			}
			next = append(next, State{
				Stack:  s.ApplyAll(post),
				Subs:   s,
				Guards: out.Guards.With(schema.LoopExit),
			})
		}
	}
	return next, nil
}

// repeat takes a count and a body. The body must preserve the stack exactly;
// running it zero times yields the same stack.
func (r *run) repeat(states []State, i int, in asm.Instr, depth int) ([]State, error) {
	var next []State
	for si, st := range states {
		subs, err := r.operands(st, si, 2, i, in, depth)
		if err != nil {
			return nil, err
		}
		args := st.top(2)
		if err := requireInt("repeat count", args[0], subs); err != nil {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, err)
		}
		ops, err := requireConts(nil, args[1:], subs)
		if err != nil {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, err)
		}

		base := st.below(2)
		loop := State{Stack: base, Subs: subs, Guards: st.Guards}
		outs, err := r.sequence([]State{loop.fork(base, schema.LoopBody)}, ops[0], depth+1)
		if err != nil {
			return nil, err
		}
		if len(outs) == 0 {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, ErrNoStates)
		}
		r.effect(in, "body", base, outs)

		for _, out := range outs {
			s := out.Subs.Clone()
			if err := preserve(out.Stack, base, s, false); err != nil {
				return nil, r.fail(in.Op, i, si, out.Guards, in, depth, err)
			}
			next = append(next, State{
				Stack:  s.ApplyAll(out.Stack),
				Subs:   s,
				Guards: out.Guards.With(schema.LoopExit),
			})
		}
	}
	return next, nil
}

// while takes a condition and a body. The condition must leave an int flag
// on the stack it started from; the body runs on that stack and must
// preserve it. The loop exits after the condition.
func (r *run) while(states []State, i int, in asm.Instr, depth int) ([]State, error) {
	want := []string{"cont_cond", "cont_body"}
	var next []State
	for si, st := range states {
		subs, err := r.operands(st, si, 2, i, in, depth)
		if err != nil {
			return nil, err
		}
		ops, err := requireConts(want, st.top(2), subs)
		if err != nil {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, err)
		}

		base := st.below(2)
		loop := State{Stack: base, Subs: subs, Guards: st.Guards}
		conds, err := r.sequence([]State{loop.fork(base, schema.LoopBody)}, ops[0], depth+1)
		if err != nil {
			return nil, err
		}
		if len(conds) == 0 {
			return nil, r.fail(in.Op, i, si, st.Guards, in, depth, ErrNoStates)
		}
		r.effect(in, "cond", base, conds)

		for _, cond := range conds {
			s := cond.Subs.Clone()
			post, err := exitFlag(cond, s)
			if err != nil {
				return nil, r.fail(in.Op, i, si, cond.Guards, in, depth, err)
			}
			if err := preserve(post, base, s, true); err != nil {
				return nil, r.fail(in.Op, i, si, cond.Guards, in, depth, err)
			}

			body := State{Stack: post, Subs: s, Guards: cond.Guards}
			outs, err := r.sequence([]State{body.fork(post)}, ops[1], depth+1)
			if err != nil {
				return nil, err
			}
			if len(outs) == 0 {
				return nil, r.fail(in.Op, i, si, cond.Guards, in, depth, ErrNoStates)
			}
			r.effect(in, "body", post, outs)
			for _, out := range outs {
				if err := preserve(out.Stack, base, out.Subs.Clone(), false); err != nil {
					return nil, r.fail(in.Op, i, si, out.Guards, in, depth, err)
				}
			}

			next = append(next, State{
				Stack:  s.ApplyAll(post),
				Subs:   s,
				Guards: cond.Guards.With(schema.LoopExit),
			})
		}
	}
	return next, nil
}
