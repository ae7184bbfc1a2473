package hm

import (
	"fmt"

	"github.com/vito/tvmcheck/pkg/asm"
)

// Type is a term of the stack type lattice: a Base kind, a Var, or a Cont
// carrying a continuation body.
type Type interface {
	fmt.Stringer
	isType()
}

// Kind names a primitive value class.
type Kind string

const (
	Int     Kind = "int"
	Slice   Kind = "slice"
	Cell    Kind = "cell"
	Builder Kind = "builder"
	Tuple   Kind = "tuple"
	ContK   Kind = "cont" // opaque continuation, as declared by signatures
	Null    Kind = "null"
	Any     Kind = "any" // wildcard
)

// Base is a primitive type. It carries only its kind.
type Base struct {
	Kind Kind
}

// NewBase returns the base type of the given kind.
func NewBase(k Kind) Base {
	return Base{Kind: k}
}

func (Base) isType() {}

func (b Base) String() string {
	return string(b.Kind)
}

// IsNumeric reports whether the kind supports arithmetic.
func (b Base) IsNumeric() bool {
	return b.Kind == Int
}

// VarID identifies a type variable within one check run.
type VarID int

// Var is an as-yet-unconstrained type.
type Var struct {
	ID   VarID
	Hint string
}

func (Var) isType() {}

func (v Var) String() string {
	if v.Hint != "" {
		return fmt.Sprintf("%s%d", v.Hint, v.ID)
	}
	return fmt.Sprintf("α%d", v.ID)
}

// Cont is a literal continuation. The body is shared, never copied.
type Cont struct {
	Body asm.Program
}

func (Cont) isType() {}

func (Cont) String() string {
	return "cont"
}
