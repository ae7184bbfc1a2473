package schema

import (
	"github.com/vito/tvmcheck/pkg/hm"
	"github.com/vito/tvmcheck/pkg/tvmspec"
)

// fromSignature translates a signature table entry into a schema.
func fromSignature(f *hm.Fresh, op string, info *tvmspec.Instruction) (*Schema, error) {
	inputs, outputs := info.InputStack(), info.OutputStack()
	if len(inputs) == 0 && len(outputs) == 0 && info.IsStack() {
		return nil, &SignatureError{Op: op, Category: info.Category}
	}

	t := &translator{
		fresh:  f,
		op:     op,
		shared: map[string]bool{},
		vars:   map[string]hm.Var{},
	}

	// untyped values passed through under the same name keep their type
	outNames := map[string]bool{}
	collectNames(outputs, outNames)
	for _, e := range inputs {
		if e.Type == tvmspec.EntrySimple && kindOf(e.ValueTypes) == hm.Any && outNames[e.Name] {
			t.shared[e.Name] = true
		}
	}

	in := make([]hm.Type, 0, len(inputs))
	for _, e := range inputs {
		switch e.Type {
		case tvmspec.EntryConditional, tvmspec.EntryArray:
			return nil, &UnsupportedEntryError{Op: op, Entry: string(e.Type), Where: "inputs"}
		}
		ty, err := t.entry(e, true)
		if err != nil {
			return nil, err
		}
		in = append(in, ty)
	}

	alts, err := t.expand(outputs)
	if err != nil {
		return nil, err
	}

	return &Schema{
		Name: op,
		In:   in,
		Alts: mergeAlts(alts),
	}, nil
}

type translator struct {
	fresh  *hm.Fresh
	op     string
	shared map[string]bool
	vars   map[string]hm.Var
}

// expand turns an output stack description into alternatives. Each
// conditional entry multiplies the alternatives by its arms; plain entries
// are appended to every alternative.
func (t *translator) expand(entries []tvmspec.StackEntry) ([]Alt, error) {
	alts := []Alt{{}}
	for _, e := range entries {
		switch e.Type {
		case tvmspec.EntryConditional:
			arms, err := t.arms(e)
			if err != nil {
				return nil, err
			}
			if len(arms) == 0 {
				return nil, &UnsupportedEntryError{Op: t.op, Entry: "empty conditional", Where: "outputs"}
			}
			next := make([]Alt, 0, len(alts)*len(arms))
			for _, prev := range alts {
				for _, arm := range arms {
					out := make([]hm.Type, 0, len(prev.Out)+len(arm.Out))
					out = append(out, prev.Out...)
					out = append(out, arm.Out...)
					next = append(next, Alt{
						Out:   out,
						Guard: And(prev.Guard, arm.Guard),
					})
				}
			}
			alts = next
		case tvmspec.EntryArray:
			return nil, &UnsupportedEntryError{Op: t.op, Entry: string(e.Type), Where: "outputs"}
		default:
			ty, err := t.entry(e, false)
			if err != nil {
				return nil, err
			}
			for i := range alts {
				alts[i].Out = append(alts[i].Out, ty)
			}
		}
	}
	return alts, nil
}

func (t *translator) arms(e tvmspec.StackEntry) ([]Alt, error) {
	var alts []Alt
	values := make([]int, 0, len(e.Match))
	for _, arm := range e.Match {
		values = append(values, arm.Value)
		sub, err := t.expand(arm.Stack)
		if err != nil {
			return nil, err
		}
		cond := When(Cond{Name: e.Name, Op: OpEq, Values: []int{arm.Value}})
		for _, alt := range sub {
			alts = append(alts, Alt{Out: alt.Out, Guard: And(cond, alt.Guard)})
		}
	}
	if e.Else != nil {
		sub, err := t.expand(e.Else)
		if err != nil {
			return nil, err
		}
		cond := When(Cond{Name: e.Name, Op: OpNotIn, Values: values})
		for _, alt := range sub {
			alts = append(alts, Alt{Out: alt.Out, Guard: And(cond, alt.Guard)})
		}
	}
	return alts, nil
}

func (t *translator) entry(e tvmspec.StackEntry, input bool) (hm.Type, error) {
	switch e.Type {
	case tvmspec.EntryConst:
		switch e.ValueType {
		case tvmspec.TypeNull:
			return hm.NewBase(hm.Null), nil
		case tvmspec.TypeInt:
			return hm.NewBase(hm.Int), nil
		}
		return nil, &UnsupportedEntryError{Op: t.op, Entry: "const " + string(e.ValueType), Where: where(input)}
	case tvmspec.EntrySimple, "":
	default:
		return nil, &UnsupportedEntryError{Op: t.op, Entry: string(e.Type), Where: where(input)}
	}

	if t.shared[e.Name] {
		v, ok := t.vars[e.Name]
		if !ok {
			v = t.fresh.Next(e.Name)
			t.vars[e.Name] = v
		}
		return v, nil
	}

	k := kindOf(e.ValueTypes)
	if k == hm.ContK && input {
		// literal continuations are Cont, not the opaque base kind
		return t.fresh.Next("κ"), nil
	}
	return hm.NewBase(k), nil
}

func where(input bool) string {
	if input {
		return "inputs"
	}
	return "outputs"
}

// kindOf maps declared value classes to a base kind. Anything that does not
// narrow to a single kind is the wildcard.
func kindOf(vts []tvmspec.ValueType) hm.Kind {
	kind := hm.Kind("")
	for _, vt := range vts {
		k := valueKind(vt)
		if kind != "" && k != kind {
			return hm.Any
		}
		kind = k
	}
	if kind == "" {
		return hm.Any
	}
	return kind
}

func valueKind(vt tvmspec.ValueType) hm.Kind {
	switch vt {
	case tvmspec.TypeInt, tvmspec.TypeBool:
		return hm.Int
	case tvmspec.TypeCell:
		return hm.Cell
	case tvmspec.TypeSlice:
		return hm.Slice
	case tvmspec.TypeBuilder:
		return hm.Builder
	case tvmspec.TypeTuple:
		return hm.Tuple
	case tvmspec.TypeContinuation:
		return hm.ContK
	case tvmspec.TypeNull:
		return hm.Null
	}
	return hm.Any
}

func collectNames(entries []tvmspec.StackEntry, into map[string]bool) {
	for _, e := range entries {
		switch e.Type {
		case tvmspec.EntryConditional:
			for _, arm := range e.Match {
				collectNames(arm.Stack, into)
			}
			collectNames(e.Else, into)
		default:
			if e.Name != "" {
				into[e.Name] = true
			}
		}
	}
}
