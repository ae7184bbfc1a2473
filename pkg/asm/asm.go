package asm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Program is an ordered sequence of instructions. Nested programs appear as
// the bodies of continuation-carrying instructions.
type Program []Instr

// Instr is a single instruction node.
type Instr struct {
	// Op is the instruction mnemonic, e.g. PUSHCONT or XCHG_0I.
	Op string `json:"op"`

	// Args holds numeric operands in source order. Stack and control
	// registers (s3, c4) are stored by index.
	Args []int `json:"args,omitempty"`

	// Literals holds operands that carry no numeric meaning for checking,
	// such as slice constants.
	Literals []string `json:"literals,omitempty"`

	// Bodies holds literal continuation bodies, inline or by reference.
	Bodies []Program `json:"bodies,omitempty"`

	Loc *Location `json:"loc,omitempty"`
}

// Location points at the line an instruction was parsed from.
type Location struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

func (l *Location) String() string {
	if l == nil {
		return "unknown"
	}
	file := l.File
	if file == "" {
		file = "unknown"
	}
	return fmt.Sprintf("%s:%d", file, l.Line)
}

// Arg returns the i-th numeric operand.
func (in Instr) Arg(i int) (int, error) {
	if i < 0 || i >= len(in.Args) {
		return 0, fmt.Errorf("%s: missing operand #%d", in.Op, i)
	}
	return in.Args[i], nil
}

// Body returns the i-th continuation body.
func (in Instr) Body(i int) (Program, error) {
	if i < 0 || i >= len(in.Bodies) {
		return nil, fmt.Errorf("%s: missing continuation body #%d", in.Op, i)
	}
	return in.Bodies[i], nil
}

func (in Instr) String() string {
	var b strings.Builder
	b.WriteString(in.Op)
	for _, a := range in.Args {
		fmt.Fprintf(&b, " %d", a)
	}
	for _, l := range in.Literals {
		b.WriteString(" ")
		b.WriteString(l)
	}
	for range in.Bodies {
		b.WriteString(" {...}")
	}
	return b.String()
}

// Len returns the number of instructions including nested bodies.
func (p Program) Len() int {
	n := 0
	for _, in := range p {
		n++
		for _, body := range in.Bodies {
			n += body.Len()
		}
	}
	return n
}

// ParseJSON decodes the JSON form of a program: an array of instruction
// objects.
func ParseJSON(data []byte) (Program, error) {
	var prog Program
	if err := json.Unmarshal(data, &prog); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	return prog, nil
}
