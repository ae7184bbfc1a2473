// Package rpc exposes the checker over JSON-RPC 2.0.
package rpc

import (
	"context"
	"errors"
	"io"
	"slices"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"

	"github.com/vito/tvmcheck/pkg/asm"
	"github.com/vito/tvmcheck/pkg/check"
	"github.com/vito/tvmcheck/pkg/hm"
	"github.com/vito/tvmcheck/pkg/ioctx"
	"github.com/vito/tvmcheck/pkg/schema"
)

// Service answers check requests against a fixed resolver. Requests are
// independent and may run concurrently.
type Service struct {
	Resolver *schema.Resolver
	Options  check.Options
}

// CheckParams are the parameters of the check method. Exactly one of Source
// and Program is set.
type CheckParams struct {
	Filename string         `json:"filename,omitempty"`
	Source   string         `json:"source,omitempty"`
	Program  asm.Program    `json:"program,omitempty"`
	Options  *check.Options `json:"options,omitempty"`
}

// CheckResult is either the final states or the diagnostic that stopped the
// run.
type CheckResult struct {
	OK         bool        `json:"ok"`
	States     []StateView `json:"states,omitempty"`
	Vars       int         `json:"vars,omitempty"`
	Diagnostic *Diagnostic `json:"diagnostic,omitempty"`
}

type StateView struct {
	Stack  []string `json:"stack"`
	Guards []string `json:"guards,omitempty"`
}

// Diagnostic describes a failed check. Instruction fields are omitted for
// syntax errors.
type Diagnostic struct {
	Message  string        `json:"message"`
	Instr    string        `json:"instr,omitempty"`
	Index    int           `json:"index"`
	State    int           `json:"state"`
	Guards   []string      `json:"guards,omitempty"`
	Depth    int           `json:"depth"`
	Location *asm.Location `json:"location,omitempty"`
}

type SchemaParams struct {
	Op   string `json:"op"`
	Args []int  `json:"args,omitempty"`
}

type SchemaView struct {
	Name string    `json:"name"`
	In   []string  `json:"in"`
	Alts []AltView `json:"alts"`
}

type AltView struct {
	Out   []string `json:"out"`
	Guard string   `json:"guard,omitempty"`
}

type CoverageParams struct {
	Source  string      `json:"source,omitempty"`
	Program asm.Program `json:"program,omitempty"`
}

type CoverageResult struct {
	Missing []string `json:"missing"`
}

// Handlers returns the method table.
func (s *Service) Handlers() handler.Map {
	return handler.Map{
		"check":    handler.New(s.Check),
		"schema":   handler.New(s.Schema),
		"coverage": handler.New(s.Coverage),
	}
}

func (s *Service) Check(ctx context.Context, params CheckParams) (*CheckResult, error) {
	prog, err := program(params.Filename, params.Source, params.Program)
	if err != nil {
		return NewResult(nil, err)
	}

	opts := s.Options
	if params.Options != nil {
		opts = *params.Options
	}
	res, err := check.New(s.Resolver, opts).Check(ctx, prog)
	if err != nil {
		ioctx.LoggerFromContext(ctx).Debug("check failed", "error", err)
	}
	return NewResult(res, err)
}

// NewResult converts the outcome of parsing and checking a program. Errors
// other than syntax and type errors are returned as is.
func NewResult(res *check.Result, err error) (*CheckResult, error) {
	var perr *asm.ParseError
	if errors.As(err, &perr) {
		loc := perr.Loc
		return &CheckResult{Diagnostic: &Diagnostic{
			Message:  perr.Msg,
			State:    -1,
			Location: &loc,
		}}, nil
	}
	if err != nil {
		var ete *check.EffectTypeError
		if !errors.As(err, &ete) {
			return nil, err
		}
		return &CheckResult{Diagnostic: &Diagnostic{
			Message:  ete.Inner.Error(),
			Instr:    ete.Instr,
			Index:    ete.Index,
			State:    ete.StateIndex,
			Guards:   ete.Guards,
			Depth:    ete.Depth,
			Location: ete.Loc,
		}}, nil
	}

	result := &CheckResult{OK: true, Vars: res.Vars}
	for _, st := range res.FinalStates {
		result.States = append(result.States, StateView{
			Stack:  showTypes(st.Types()),
			Guards: st.Guards.Strings(),
		})
	}
	return result, nil
}

// Schema resolves a single instruction, as the checker would.
func (s *Service) Schema(ctx context.Context, params SchemaParams) (*SchemaView, error) {
	if params.Op == "" {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing op")
	}
	sch, err := s.resolver().Resolve(&hm.Fresh{}, asm.Instr{Op: params.Op, Args: params.Args})
	if err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "%v", err)
	}
	view := &SchemaView{Name: sch.Name, In: showTypes(sch.In)}
	for _, alt := range sch.Alts {
		view.Alts = append(view.Alts, AltView{Out: showTypes(alt.Out), Guard: alt.Guard.String()})
	}
	return view, nil
}

// Coverage lists the mnemonics in a program that have no schema, sorted.
func (s *Service) Coverage(ctx context.Context, params CoverageParams) (*CoverageResult, error) {
	prog, err := program("", params.Source, params.Program)
	if err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "%v", err)
	}
	return &CoverageResult{Missing: Uncovered(s.resolver(), prog)}, nil
}

func (s *Service) resolver() *schema.Resolver {
	if s.Resolver == nil {
		return schema.NewResolver(nil)
	}
	return s.Resolver
}

// Uncovered returns the ops in prog, including nested bodies, that the
// resolver cannot type, sorted. Control-flow ops are handled by the checker
// itself and never reported.
func Uncovered(r *schema.Resolver, prog asm.Program) []string {
	seen := map[string]bool{}
	var ops []string
	var walk func(asm.Program)
	walk = func(p asm.Program) {
		for _, in := range p {
			if !check.IsControl(in.Op) && !seen[in.Op] {
				seen[in.Op] = true
				ops = append(ops, in.Op)
			}
			for _, body := range in.Bodies {
				walk(body)
			}
		}
	}
	walk(prog)

	missing := r.Missing(ops)
	slices.Sort(missing)
	if missing == nil {
		missing = []string{}
	}
	return missing
}

func program(filename, source string, prog asm.Program) (asm.Program, error) {
	switch {
	case source != "" && prog != nil:
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "source and program are mutually exclusive")
	case prog != nil:
		return prog, nil
	case source != "":
		if filename == "" {
			filename = "<rpc>"
		}
		return asm.Parse(filename, []byte(source))
	default:
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing source")
	}
}

func showTypes(ts []hm.Type) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

// Serve runs the service over newline-delimited JSON until the peer hangs
// up or ctx is canceled.
func Serve(ctx context.Context, svc *Service, r io.Reader, w io.WriteCloser) error {
	logger := ioctx.LoggerFromContext(ctx)
	srv := jrpc2.NewServer(svc.Handlers(), &jrpc2.ServerOptions{
		Logger:     func(text string) { logger.Debug(text) },
		NewContext: func() context.Context { return ctx },
	})
	stop := context.AfterFunc(ctx, srv.Stop)
	defer stop()

	logger.InfoContext(ctx, "serving", "methods", len(svc.Handlers()))
	srv.Start(channel.Line(r, w))
	err := srv.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
