// Package tvmspec models the published TVM instruction specification. Only
// the parts needed for stack-effect checking are decoded in detail; the rest
// of each instruction entry is kept as raw JSON.
package tvmspec

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Specification is the root of tvm-specification.json.
type Specification struct {
	Schema       string       `json:"$schema,omitempty"`
	Version      string       `json:"version,omitempty"`
	Instructions Instructions `json:"instructions"`
}

// Instructions is keyed by instruction name. In JSON it may be either an
// array of instruction objects or an object keyed by name.
type Instructions map[string]*Instruction

func (is *Instructions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	out := Instructions{}
	if len(data) > 0 && data[0] == '[' {
		var list []*Instruction
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		for _, in := range list {
			out[in.Name] = in
		}
	} else {
		var byName map[string]*Instruction
		if err := json.Unmarshal(data, &byName); err != nil {
			return err
		}
		for name, in := range byName {
			if in.Name == "" {
				in.Name = name
			}
			out[name] = in
		}
	}
	*is = out
	return nil
}

// Instruction is a single TVM instruction.
type Instruction struct {
	// The unique name of the instruction
	Name string `json:"name"`
	// Main category of the instruction (e.g. stack_basic, cont_loops, dict_get)
	Category string `json:"category"`
	// Sub-category for more specific grouping of instructions
	SubCategory string `json:"sub_category,omitempty"`

	Signature *InstructionSignature `json:"signature,omitempty"`

	Description json.RawMessage `json:"description,omitempty"`
	Layout      json.RawMessage `json:"layout,omitempty"`
	ControlFlow json.RawMessage `json:"control_flow,omitempty"`
}

// IsStack reports whether the instruction belongs to a stack manipulation
// category. Such instructions must always declare a signature.
func (in *Instruction) IsStack() bool {
	return in.Category == "stack" || strings.HasPrefix(in.Category, "stack_")
}

// InputStack returns the declared input stack, bottom to top.
func (in *Instruction) InputStack() []StackEntry {
	if in.Signature == nil || in.Signature.Inputs == nil {
		return nil
	}
	return in.Signature.Inputs.Stack
}

// OutputStack returns the declared output stack, bottom to top.
func (in *Instruction) OutputStack() []StackEntry {
	if in.Signature == nil || in.Signature.Outputs == nil {
		return nil
	}
	return in.Signature.Outputs.Stack
}

// Information related to usage of stack and registers by instruction.
type InstructionSignature struct {
	StackString string      `json:"stack_string,omitempty"`
	Inputs      *StackUsage `json:"inputs,omitempty"`
	Outputs     *StackUsage `json:"outputs,omitempty"`
}

// StackUsage holds stack constraints. Top of stack is the last value.
type StackUsage struct {
	Stack     []StackEntry    `json:"stack,omitempty"`
	Registers json.RawMessage `json:"registers,omitempty"`
}

// EntryType discriminates StackEntry variants.
type EntryType string

const (
	EntrySimple      EntryType = "simple"
	EntryConst       EntryType = "const"
	EntryConditional EntryType = "conditional"
	EntryArray       EntryType = "array"
)

// ValueType is a declared value class.
type ValueType string

const (
	TypeInt          ValueType = "Int"
	TypeBool         ValueType = "Bool"
	TypeCell         ValueType = "Cell"
	TypeBuilder      ValueType = "Builder"
	TypeSlice        ValueType = "Slice"
	TypeTuple        ValueType = "Tuple"
	TypeContinuation ValueType = "Continuation"
	TypeNull         ValueType = "Null"
	TypeAny          ValueType = "Any"
)

// StackEntry is one stack entry or group of entries. Fields are populated
// according to Type.
type StackEntry struct {
	Type EntryType `json:"type"`

	// simple, conditional, array
	Name string `json:"name,omitempty"`

	// simple
	ValueTypes   []ValueType `json:"value_types,omitempty"`
	Range        *ValueRange `json:"range,omitempty"`
	Presentation string      `json:"presentation,omitempty"`

	// const
	ValueType ValueType       `json:"value_type,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`

	// conditional
	Match []MatchArm   `json:"match,omitempty"`
	Else  []StackEntry `json:"else,omitempty"`

	// array
	LengthVar  string       `json:"length_var,omitempty"`
	ArrayEntry []StackEntry `json:"array_entry,omitempty"`
}

// ValueRange is an inclusive bound on a simple value.
type ValueRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MatchArm is one arm of a conditional entry.
type MatchArm struct {
	Value int          `json:"value"`
	Stack []StackEntry `json:"stack"`
}

// Parse decodes a specification document.
func Parse(data []byte) (*Specification, error) {
	var spec Specification
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, errors.Wrap(err, "decode specification")
	}
	if spec.Instructions == nil {
		spec.Instructions = Instructions{}
	}
	return &spec, nil
}

// Load reads a specification from a JSON file.
func Load(path string) (*Specification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read specification")
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return spec, nil
}

// Lookup finds an instruction by the name used in assembly listings. The
// specification spells some names differently: '#' where assembly uses '_'
// (PUSHINT_4 vs PUSHINT#4), and a leading digit where assembly puts it last
// (2DUP vs DUP2).
func (s *Specification) Lookup(name string) (*Instruction, bool) {
	if s == nil {
		return nil, false
	}
	for _, candidate := range spellings(name) {
		if in, ok := s.Instructions[candidate]; ok {
			return in, true
		}
	}
	return nil, false
}

func spellings(name string) []string {
	names := []string{name}
	if strings.Contains(name, "_") {
		names = append(names, strings.Replace(name, "_", "#", 1))
	}
	if n := len(name); n > 1 && name[n-1] >= '2' && name[n-1] <= '9' {
		names = append(names, name[n-1:]+name[:n-1])
	}
	return names
}

// Missing returns the names from the given list that have no entry. Pseudo
// instructions (PSEUDO_*) are exempt.
func (s *Specification) Missing(names []string) []string {
	var missing []string
	for _, name := range names {
		if strings.HasPrefix(name, "PSEUDO_") {
			continue
		}
		if _, ok := s.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
