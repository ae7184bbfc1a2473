// Package schema resolves instructions to stack-effect schemas.
package schema

import (
	"fmt"

	"github.com/vito/tvmcheck/pkg/asm"
	"github.com/vito/tvmcheck/pkg/hm"
	"github.com/vito/tvmcheck/pkg/tvmspec"
)

// Schema is the stack effect of one instruction occurrence. All stacks are
// bottom to top.
type Schema struct {
	Name  string
	In    []hm.Type
	Alts  []Alt
	Check func(hm.Subs) error
}

// Alt is one possible output stack, realized when Guard holds.
type Alt struct {
	Out   []hm.Type
	Guard Guard
}

// Single builds a schema with one unguarded alternative.
func Single(name string, in, out []hm.Type) *Schema {
	return &Schema{Name: name, In: in, Alts: []Alt{{Out: out}}}
}

// NoSchemaError reports an instruction with neither a built-in schema nor a
// signature entry.
type NoSchemaError struct {
	Op string
}

func (e *NoSchemaError) Error() string {
	return fmt.Sprintf("no schema for op %s", e.Op)
}

// SignatureError reports an inconsistent signature table entry.
type SignatureError struct {
	Op       string
	Category string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s instruction %s with no signature", e.Category, e.Op)
}

// UnsupportedEntryError reports a signature entry the resolver cannot
// translate.
type UnsupportedEntryError struct {
	Op    string
	Entry string
	Where string
}

func (e *UnsupportedEntryError) Error() string {
	return fmt.Sprintf("%s: %s entry in %s not supported", e.Op, e.Entry, e.Where)
}

// OperandError reports an instruction built with invalid operands.
type OperandError struct {
	Op  string
	Msg string
}

func (e *OperandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Resolver maps instructions to schemas using the built-in structural
// schemas first and the signature table second.
type Resolver struct {
	Table *tvmspec.Specification
}

// NewResolver creates a resolver backed by the given table, which may be nil
// when only built-in instructions are checked.
func NewResolver(table *tvmspec.Specification) *Resolver {
	return &Resolver{Table: table}
}

// Resolve builds a fresh schema for in. Every call allocates new variables
// from fresh.
func (r *Resolver) Resolve(fresh *hm.Fresh, in asm.Instr) (*Schema, error) {
	if build, ok := builtins[in.Op]; ok {
		return build(fresh, in)
	}
	info, ok := r.Table.Lookup(in.Op)
	if !ok {
		return nil, &NoSchemaError{Op: in.Op}
	}
	return fromSignature(fresh, in.Op, info)
}

// Has reports whether op can be resolved without building a schema.
func (r *Resolver) Has(op string) bool {
	return len(r.Missing([]string{op})) == 0
}

// Missing returns the ops that are neither built in nor in the table.
func (r *Resolver) Missing(ops []string) []string {
	var rest []string
	for _, op := range ops {
		if _, ok := builtins[op]; !ok {
			rest = append(rest, op)
		}
	}
	return r.Table.Missing(rest)
}

// mergeAlts collapses alternatives whose outputs are structurally identical,
// combining their guards with Or. Order of first appearance is kept.
func mergeAlts(alts []Alt) []Alt {
	var merged []Alt
	for _, alt := range alts {
		found := false
		for i := range merged {
			if sameTypes(merged[i].Out, alt.Out) {
				merged[i].Guard = Or(merged[i].Guard, alt.Guard)
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, alt)
		}
	}
	return merged
}

func sameTypes(a, b []hm.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		switch at := a[i].(type) {
		case hm.Base:
			bt, ok := b[i].(hm.Base)
			if !ok || at.Kind != bt.Kind {
				return false
			}
		case hm.Var:
			bt, ok := b[i].(hm.Var)
			if !ok || at.ID != bt.ID {
				return false
			}
		case hm.Cont:
			if _, ok := b[i].(hm.Cont); !ok {
				return false
			}
		}
	}
	return true
}
