package check

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vito/tvmcheck/pkg/asm"
)

// ErrNoStates is returned when a loop body yields no states at all.
var ErrNoStates = errors.New("loop body produced no states")

// StackUnderflowError reports an instruction run against too shallow a
// stack.
type StackUnderflowError struct {
	Need  int
	Have  int
	At    int
	Instr string
}

func (e *StackUnderflowError) Error() string {
	return fmt.Sprintf("%s: needs %d stack item(s), but only %d available (at #%d)",
		e.Instr, e.Need, e.Have, e.At)
}

// ConditionError reports a branch condition or loop count that is not an
// int.
type ConditionError struct {
	// What names the operand; empty means "condition".
	What  string
	Got   string
	Inner error
}

func (e *ConditionError) Error() string {
	what := e.What
	if what == "" {
		what = "condition"
	}
	return fmt.Sprintf("%s must be int, got %s", what, e.Got)
}

func (e *ConditionError) Unwrap() error {
	return e.Inner
}

// BranchOperandError reports a stack operand that should have been a literal
// continuation.
type BranchOperandError struct {
	// Want names each operand, e.g. cont_true and cont_else.
	Want []string
	Got  []string
}

func (e *BranchOperandError) Error() string {
	if len(e.Got) == 1 {
		return fmt.Sprintf("expected continuation on top of stack, got %s", e.Got[0])
	}
	return fmt.Sprintf("expected (%s) on top of stack, got (%s)",
		strings.Join(e.Want, ", "), strings.Join(e.Got, ", "))
}

// LoopFlagError reports a loop body that does not leave an int flag on top.
// Got is empty when the body left nothing at all.
type LoopFlagError struct {
	Got   string
	Inner error
}

func (e *LoopFlagError) Error() string {
	if e.Got == "" {
		return "loop body must leave an int flag on top (got empty stack)"
	}
	return fmt.Sprintf("loop body must leave int flag, got %s", e.Got)
}

func (e *LoopFlagError) Unwrap() error {
	return e.Inner
}

// LoopShapeError reports a loop iteration that changes the stack it started
// from.
type LoopShapeError struct {
	Before string
	After  string
	// Popped is set when the body's exit flag was removed before comparing.
	Popped bool
	Inner  error
}

func (e *LoopShapeError) Error() string {
	after := ""
	if e.Popped {
		after = " after popping flag"
	}
	return fmt.Sprintf("loop body must preserve stack shape%s.\n  before: %s\n  after : %s",
		after, e.Before, e.After)
}

func (e *LoopShapeError) Unwrap() error {
	return e.Inner
}

// EffectTypeError locates a failure: the instruction, its position in the
// enclosing sequence, and the state it failed in.
type EffectTypeError struct {
	Instr string
	Index int
	// StateIndex is the position of the failing state among the live
	// states, or -1 when the failure does not depend on a state.
	StateIndex int
	Guards     []string
	Loc        *asm.Location
	// Depth is the continuation nesting level of the instruction.
	Depth int
	Inner error
}

func (e *EffectTypeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at %s @ #%d", e.Instr, e.Loc, e.Index)
	if e.StateIndex >= 0 {
		fmt.Fprintf(&b, " (state %d", e.StateIndex)
		if len(e.Guards) > 0 {
			fmt.Fprintf(&b, "; guards=[%s]", strings.Join(e.Guards, ","))
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, ": %s", e.Inner)
	return b.String()
}

func (e *EffectTypeError) Unwrap() error {
	return e.Inner
}

// Highlight renders the error with the offending source line. The source is
// read from the location's file when not given. Without a usable location it
// falls back to Error.
func (e *EffectTypeError) Highlight(source string, color bool) string {
	if e.Loc == nil || e.Loc.Line < 1 {
		return e.Error()
	}
	if source == "" && e.Loc.File != "" {
		contents, err := os.ReadFile(e.Loc.File)
		if err == nil {
			source = string(contents)
		}
	}
	lines := strings.Split(strings.TrimRight(source, "\n"), "\n")
	if e.Loc.Line > len(lines) {
		return e.Error()
	}

	red, blue, bold, dim, reset := "\033[31m", "\033[34m", "\033[1m", "\033[2m", "\033[0m"
	if !color {
		red, blue, bold, dim, reset = "", "", "", "", ""
	}

	var out strings.Builder
	fmt.Fprintf(&out, "%s%sError:%s %s: %s\n", bold, red, reset, e.Instr, e.Inner)
	fmt.Fprintf(&out, "  %s%s--> %s:%d:%d%s\n", dim, blue, e.Loc.File, e.Loc.Line, e.Loc.Column, reset)
	if e.StateIndex >= 0 {
		fmt.Fprintf(&out, "  %sstate %d", dim, e.StateIndex)
		if len(e.Guards) > 0 {
			fmt.Fprintf(&out, " via %s", strings.Join(e.Guards, " > "))
		}
		fmt.Fprintf(&out, "%s\n", reset)
	}
	fmt.Fprintf(&out, " %s%s |%s\n", dim, padLeft("", 3), reset)

	start := max(1, e.Loc.Line-2)
	end := min(len(lines), e.Loc.Line+2)
	for i := start; i <= end; i++ {
		num := padLeft(fmt.Sprint(i), 3)
		if i == e.Loc.Line {
			fmt.Fprintf(&out, " %s%s%s%s | %s%s\n", dim, blue, bold, num, reset, lines[i-1])
			pad := strings.Repeat(" ", 1+3+3+max(e.Loc.Column, 1)-1)
			fmt.Fprintf(&out, "%s%s%s%s%s\n", dim, pad, red, strings.Repeat("^", opWidth(e.Instr)), reset)
		} else {
			fmt.Fprintf(&out, " %s%s | %s%s\n", dim, num, lines[i-1], reset)
		}
	}
	fmt.Fprintf(&out, " %s%s |%s\n", dim, padLeft("", 3), reset)
	return out.String()
}

// opWidth is the length of the mnemonic in a schema name like "PUSH s2".
func opWidth(name string) int {
	if f := strings.Fields(name); len(f) > 0 {
		return len(f[0])
	}
	return 1
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
