// Package check type-checks TVM programs by symbolic execution over stack
// types.
//
// A run keeps a set of states, one per reachable combination of branch and
// outcome choices, and feeds each instruction every live state. Branching
// instructions recurse into their continuation bodies; loops are checked by
// running the body once and unifying the result with the stack it started
// from.
package check

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vito/tvmcheck/pkg/asm"
	"github.com/vito/tvmcheck/pkg/hm"
	"github.com/vito/tvmcheck/pkg/ioctx"
	"github.com/vito/tvmcheck/pkg/schema"
)

// Options are independent toggles for a check run.
type Options struct {
	// Dedupe collapses states with the same stack and guard path.
	Dedupe bool `toml:"dedupe" json:"dedupe"`
	// MergeStacks collapses states with the same stack, joining guard paths.
	MergeStacks bool `toml:"merge_stacks" json:"merge_stacks"`
	// LogContEffects logs the effect of each branch body at info level.
	LogContEffects bool `toml:"log_cont_effects" json:"log_cont_effects"`
	// ShowGuards includes guard paths in the per-instruction trace.
	ShowGuards bool `toml:"show_guards" json:"show_guards"`
}

// DefaultOptions are used when nothing is configured.
func DefaultOptions() Options {
	return Options{ShowGuards: true}
}

// Result holds the states reachable at the end of the program.
type Result struct {
	FinalStates []State
	// Vars is the number of type variables the run allocated.
	Vars int
}

// Checker checks programs against a resolver's schemas. A Checker holds no
// per-run state and may be shared between goroutines.
type Checker struct {
	Resolver *schema.Resolver
	Options  Options
	// Logger receives the trace. When nil, the logger from the context is
	// used.
	Logger *slog.Logger
}

// New creates a checker.
func New(resolver *schema.Resolver, opts Options) *Checker {
	return &Checker{Resolver: resolver, Options: opts}
}

// Check runs prog from an empty stack. The first failure aborts the run and
// is returned; there are no partial results.
func (c *Checker) Check(ctx context.Context, prog asm.Program) (*Result, error) {
	logger := c.Logger
	if logger == nil {
		logger = ioctx.LoggerFromContext(ctx)
	}
	r := &run{
		ctx:      ctx,
		opts:     c.Options,
		resolver: c.Resolver,
		fresh:    &hm.Fresh{},
		log:      logger,
	}
	if r.resolver == nil {
		r.resolver = schema.NewResolver(nil)
	}

	start := State{Subs: hm.NewSubs()}
	states, err := r.sequence([]State{start}, prog, 0)
	if err != nil {
		return nil, err
	}
	return &Result{
		FinalStates: states,
		Vars:        r.fresh.Issued(),
	}, nil
}

// controlOps are dispatched by sequence rather than resolved to schemas.
var controlOps = map[string]bool{
	"PUSHCONT":       true,
	"PUSHCONT_SHORT": true,
	"PUSHREFCONT":    true,
	"IFELSE":         true,
	"IFELSEREF":      true,
	"IFREFELSE":      true,
	"IFREFELSEREF":   true,
	"IF":             true,
	"IFNOT":          true,
	"IFJMP":          true,
	"IFNOTJMP":       true,
	"IFREF":          true,
	"IFNOTREF":       true,
	"IFJMPREF":       true,
	"IFNOTJMPREF":    true,
	"CALLREF":        true,
	"PSEUDO_PUSHREF": true,
	"EXECUTE":        true,
	"CALLX":          true,
	"UNTIL":          true,
	"REPEAT":         true,
	"WHILE":          true,
}

// IsControl reports whether op is interpreted by the checker directly rather
// than through a schema.
func IsControl(op string) bool {
	return controlOps[op]
}

// run is the state of one Check call.
type run struct {
	ctx      context.Context
	opts     Options
	resolver *schema.Resolver
	fresh    *hm.Fresh
	log      *slog.Logger
}

// sequence runs prog over the given states. depth is the continuation
// nesting level.
func (r *run) sequence(states []State, prog asm.Program, depth int) ([]State, error) {
	for i, in := range prog {
		if err := r.ctx.Err(); err != nil {
			return nil, err
		}

		var (
			next []State
			err  error
		)
		switch in.Op {
		case "PUSHCONT", "PUSHCONT_SHORT", "PUSHREFCONT":
			next, err = r.pushCont(states, i, in, depth)
		case "IFELSE", "IFELSEREF", "IFREFELSE", "IFREFELSEREF":
			next, err = r.ifElse(states, i, in, depth)
		case "IF", "IFNOT", "IFJMP", "IFNOTJMP",
			"IFREF", "IFNOTREF", "IFJMPREF", "IFNOTJMPREF":
			next, err = r.ifThen(states, i, in, depth)
		case "CALLREF", "PSEUDO_PUSHREF":
			next, err = r.callRef(states, i, in, depth)
		case "EXECUTE", "CALLX":
			next, err = r.execute(states, i, in, depth)
		case "UNTIL":
			next, err = r.until(states, i, in, depth)
		case "REPEAT":
			next, err = r.repeat(states, i, in, depth)
		case "WHILE":
			next, err = r.while(states, i, in, depth)
		default:
			next, err = r.apply(states, i, in, depth)
		}
		if err != nil {
			return nil, err
		}

		states = r.process(next)
		r.trace(states, i, in, depth)
	}
	return states, nil
}

// process merges and then dedupes, as enabled.
func (r *run) process(states []State) []State {
	if r.opts.MergeStacks {
		states = mergeByStack(states)
	}
	if r.opts.Dedupe {
		states = dedupe(states)
	}
	return states
}

// apply runs an ordinary instruction through its schema.
func (r *run) apply(states []State, i int, in asm.Instr, depth int) ([]State, error) {
	sch, err := r.resolver.Resolve(r.fresh, in)
	if err != nil {
		return nil, r.fail(in.Op, i, -1, nil, in, depth, err)
	}

	need := len(sch.In)
	var next []State
	for si, st := range states {
		if len(st.Stack) < need {
			return nil, r.fail(sch.Name, i, si, st.Guards, in, depth, &StackUnderflowError{
				Need:  need,
				Have:  len(st.Stack),
				At:    i,
				Instr: sch.Name,
			})
		}

		subs := st.Subs.Clone()
		args := st.top(need)
		for j := range need {
			if err := hm.Unify(sch.In[j], args[j], subs); err != nil {
				return nil, r.fail(sch.Name, i, si, st.Guards, in, depth, err)
			}
		}
		if sch.Check != nil {
			if err := sch.Check(subs); err != nil {
				return nil, r.fail(sch.Name, i, si, st.Guards, in, depth, err)
			}
		}

		base := st.below(need)
		for _, alt := range sch.Alts {
			altSubs := subs.Clone()
			stack := make([]hm.Type, 0, len(base)+len(alt.Out))
			stack = append(stack, base...)
			stack = append(stack, altSubs.ApplyAll(alt.Out)...)
			next = append(next, State{
				Stack:  stack,
				Subs:   altSubs,
				Guards: st.Guards.With(alt.Guard),
			})
		}
	}
	return next, nil
}

func (r *run) fail(name string, i, si int, guards schema.Guards, in asm.Instr, depth int, cause error) error {
	return &EffectTypeError{
		Instr:      name,
		Index:      i,
		StateIndex: si,
		Guards:     guards.Strings(),
		Loc:        in.Loc,
		Depth:      depth,
		Inner:      cause,
	}
}

func (r *run) trace(states []State, i int, in asm.Instr, depth int) {
	if !r.log.Enabled(r.ctx, slog.LevelDebug) {
		return
	}
	indent := strings.Repeat("  ", depth)
	r.log.Debug(fmt.Sprintf("%s#%d %s", indent, i, in.Op),
		"loc", in.Loc.String(),
		"states", len(states))
	for k, st := range states {
		r.log.Debug(fmt.Sprintf("%s  [%d] %s", indent, k, st.Show(r.opts.ShowGuards)))
	}
}

// effect logs what a continuation body did to the stack it started on.
func (r *run) effect(in asm.Instr, branch string, base []hm.Type, outs []State) {
	if !r.opts.LogContEffects {
		return
	}
	r.log.Info("continuation effect",
		"op", in.Op,
		"branch", branch,
		"effect", summarizeEffects(base, outs))
}
