package schema

import (
	"fmt"

	"github.com/vito/tvmcheck/pkg/asm"
	"github.com/vito/tvmcheck/pkg/hm"
)

type builder func(*hm.Fresh, asm.Instr) (*Schema, error)

// builtins are structural schemas whose effect depends on operands encoded
// in the instruction. Each names exactly the slots it touches.
var builtins = map[string]builder{
	"PUSHINT_4":    pushInt,
	"PUSHINT_8":    pushInt,
	"PUSHINT_16":   pushInt,
	"PUSHINT_LONG": pushInt,

	"PUSH":    push,
	"POP":     pop,
	"XCHG_0I": xchg0i,
	"XCHG_1I": xchg1i,
	"XCHG_IJ": xchgIJ,
	"XCHG2":   xchg2,
	"XCHG3":   xchg3,
	"XCPU":    xcpu,
	"BLKDROP": blkdrop,

	"DUP":    shuffle("DUP", 1, 0, 0),
	"DROP":   shuffle("DROP", 1),
	"DROP2":  shuffle("DROP2", 2),
	"NIP":    shuffle("NIP", 2, 1),
	"SWAP":   shuffle("SWAP", 2, 1, 0),
	"OVER":   shuffle("OVER", 2, 0, 1, 0),
	"TUCK":   shuffle("TUCK", 2, 1, 0, 1),
	"ROT":    shuffle("ROT", 3, 1, 2, 0),
	"ROTREV": shuffle("ROTREV", 3, 2, 0, 1),
	"DUP2":   shuffle("DUP2", 2, 0, 1, 0, 1),
	"SWAP2":  shuffle("SWAP2", 4, 2, 3, 0, 1),
	"OVER2":  shuffle("OVER2", 4, 0, 1, 2, 3, 0, 1),

	"ADD": add,
}

var shuffleHints = []string{"α", "β", "γ", "δ"}

// shuffle builds a fixed-arity permutation. out lists input positions,
// bottom to top.
func shuffle(name string, arity int, out ...int) builder {
	return func(f *hm.Fresh, _ asm.Instr) (*Schema, error) {
		in := make([]hm.Type, arity)
		for i := range in {
			in[i] = f.Next(shuffleHints[i])
		}
		res := make([]hm.Type, len(out))
		for i, p := range out {
			res[i] = in[p]
		}
		return Single(name, in, res), nil
	}
}

func pushInt(_ *hm.Fresh, in asm.Instr) (*Schema, error) {
	return Single(in.Op, nil, []hm.Type{hm.NewBase(hm.Int)}), nil
}

func add(f *hm.Fresh, _ asm.Instr) (*Schema, error) {
	a := f.Next("α")
	s := Single("ADD", []hm.Type{a, a}, []hm.Type{a})
	s.Check = func(subs hm.Subs) error {
		b, err := hm.AsBase(a, subs)
		if err != nil {
			return err
		}
		if !b.IsNumeric() {
			return fmt.Errorf("ADD expects numeric types, got %s", b)
		}
		return nil
	}
	return s, nil
}

// index reads operand i as a stack index.
// Largest stack register each encoding can name. The long PUSH, POP and
// XCHG0 forms take an 8-bit index; the rest pack indices into nibbles.
const (
	longRegister  = 255
	shortRegister = 15
)

// index reads operand i as a stack index in 0..limit.
func index(in asm.Instr, i, limit int) (int, error) {
	v, err := in.Arg(i)
	if err != nil {
		return 0, &OperandError{Op: in.Op, Msg: err.Error()}
	}
	if v < 0 {
		return 0, &OperandError{Op: in.Op, Msg: fmt.Sprintf("index must be non-negative, got %d", v)}
	}
	if v > limit {
		return 0, &OperandError{Op: in.Op, Msg: fmt.Sprintf("index %d out of range 0..%d", v, limit)}
	}
	return v, nil
}

func indices(in asm.Instr, n, limit int) ([]int, error) {
	out := make([]int, n)
	for i := range out {
		v, err := index(in, i, limit)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// lastIndex reads the final operand. Exchanges with a fixed first register
// are written either with just the variable index or with both registers.
func lastIndex(in asm.Instr, limit int) (int, error) {
	return index(in, max(len(in.Args)-1, 0), limit)
}

// slots simulates exchanges over m fresh variables. Positions are given as
// stack depths (s0 is the top).
type slots struct {
	vs  []hm.Type
	out []hm.Type
}

func newSlots(f *hm.Fresh, m int, prefix string) *slots {
	vs := f.NextN(m, prefix)
	in := make([]hm.Type, m)
	for i, v := range vs {
		in[i] = v
	}
	return &slots{vs: in, out: append([]hm.Type{}, in...)}
}

func (s *slots) pos(depth int) int {
	return len(s.vs) - 1 - depth
}

func (s *slots) xchg(i, j int) {
	pi, pj := s.pos(i), s.pos(j)
	s.out[pi], s.out[pj] = s.out[pj], s.out[pi]
}

func (s *slots) schema(name string) *Schema {
	return Single(name, s.vs, s.out)
}

func push(f *hm.Fresh, in asm.Instr) (*Schema, error) {
	i, err := index(in, 0, longRegister)
	if err != nil {
		return nil, err
	}
	s := newSlots(f, i+1, "τ")
	s.out = append(s.out, s.vs[s.pos(i)])
	return s.schema(fmt.Sprintf("PUSH s%d", i)), nil
}

func pop(f *hm.Fresh, in asm.Instr) (*Schema, error) {
	i, err := index(in, 0, longRegister)
	if err != nil {
		return nil, err
	}
	s := newSlots(f, i+1, "π")
	top := s.vs[len(s.vs)-1]
	s.out = s.out[:len(s.out)-1]
	if i > 0 {
		s.out[len(s.out)-i] = top
	}
	return s.schema(fmt.Sprintf("POP s%d", i)), nil
}

func xchg0i(f *hm.Fresh, in asm.Instr) (*Schema, error) {
	i, err := lastIndex(in, longRegister)
	if err != nil {
		return nil, err
	}
	s := newSlots(f, i+1, "χ")
	s.xchg(0, i)
	return s.schema(fmt.Sprintf("XCHG_0I s%d", i)), nil
}

func xchg1i(f *hm.Fresh, in asm.Instr) (*Schema, error) {
	i, err := lastIndex(in, shortRegister)
	if err != nil {
		return nil, err
	}
	s := newSlots(f, max(i, 1)+1, "χ")
	s.xchg(1, i)
	return s.schema(fmt.Sprintf("XCHG_1I s%d", i)), nil
}

func xchgIJ(f *hm.Fresh, in asm.Instr) (*Schema, error) {
	ix, err := indices(in, 2, shortRegister)
	if err != nil {
		return nil, err
	}
	i, j := ix[0], ix[1]
	s := newSlots(f, max(i, j)+1, "χ")
	s.xchg(i, j)
	return s.schema(fmt.Sprintf("XCHG_IJ(%d,%d)", i, j)), nil
}

// XCHG2 is s1 s(i) XCHG; s(j) XCHG0.
func xchg2(f *hm.Fresh, in asm.Instr) (*Schema, error) {
	ix, err := indices(in, 2, shortRegister)
	if err != nil {
		return nil, err
	}
	i, j := ix[0], ix[1]
	s := newSlots(f, max(i, j, 1)+1, "χ")
	s.xchg(1, i)
	s.xchg(0, j)
	return s.schema(fmt.Sprintf("XCHG2 s%d s%d", i, j)), nil
}

// XCHG3 is s2 s(i) XCHG; s1 s(j) XCHG; s(k) XCHG0.
func xchg3(f *hm.Fresh, in asm.Instr) (*Schema, error) {
	ix, err := indices(in, 3, shortRegister)
	if err != nil {
		return nil, err
	}
	i, j, k := ix[0], ix[1], ix[2]
	s := newSlots(f, max(i, j, k, 2)+1, "χ")
	s.xchg(2, i)
	s.xchg(1, j)
	s.xchg(0, k)
	return s.schema(fmt.Sprintf("XCHG3 s%d s%d s%d", i, j, k)), nil
}

// XCPU is s(i) XCHG0; s(j) PUSH.
func xcpu(f *hm.Fresh, in asm.Instr) (*Schema, error) {
	ix, err := indices(in, 2, shortRegister)
	if err != nil {
		return nil, err
	}
	i, j := ix[0], ix[1]
	s := newSlots(f, max(i, j)+1, "χ")
	s.xchg(0, i)
	s.out = append(s.out, s.out[s.pos(j)])
	return s.schema(fmt.Sprintf("XCPU s%d s%d", i, j)), nil
}

func blkdrop(f *hm.Fresh, in asm.Instr) (*Schema, error) {
	n, err := index(in, 0, shortRegister)
	if err != nil {
		return nil, err
	}
	vs := f.NextN(n, "δ")
	ins := make([]hm.Type, n)
	for i, v := range vs {
		ins[i] = v
	}
	return Single(fmt.Sprintf("BLKDROP %d", n), ins, nil), nil
}
