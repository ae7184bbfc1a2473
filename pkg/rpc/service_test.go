package rpc

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/server"
	"github.com/dagger/testctx"
	"github.com/dagger/testctx/oteltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vito/tvmcheck/pkg/asm"
	"github.com/vito/tvmcheck/pkg/check"
	"github.com/vito/tvmcheck/pkg/schema"
	"github.com/vito/tvmcheck/pkg/tvmspec"
)

func TestMain(m *testing.M) {
	os.Exit(oteltest.Main(m))
}

type ServiceSuite struct{}

func TestService(tT *testing.T) {
	testctx.New(tT,
		oteltest.WithTracing[*testing.T](),
		oteltest.WithLogging[*testing.T](),
	).RunTests(ServiceSuite{})
}

func newService(t *testctx.T) *Service {
	spec, err := tvmspec.Load("../check/testdata/table.json")
	require.NoError(t, err)
	return &Service{Resolver: schema.NewResolver(spec), Options: check.DefaultOptions()}
}

func local(t *testctx.T, svc *Service) *jrpc2.Client {
	loc := server.NewLocal(svc.Handlers(), nil)
	t.Cleanup(func() { loc.Close() })
	return loc.Client
}

func (ServiceSuite) TestCheckStates(ctx context.Context, t *testctx.T) {
	cli := local(t, newService(t))

	var res CheckResult
	require.NoError(t, cli.CallResult(ctx, "check", CheckParams{
		Filename: "branch.tasm",
		Source:   "PUSHINT_4 0\nPUSHCONT { NEWC }\nIF\n",
	}, &res))

	require.True(t, res.OK)
	require.Nil(t, res.Diagnostic)
	require.Len(t, res.States, 2)
	assert.Empty(t, res.States[0].Stack)
	assert.Equal(t, []string{"branch-false"}, res.States[0].Guards)
	assert.Equal(t, []string{"builder"}, res.States[1].Stack)
	assert.Equal(t, []string{"branch-true"}, res.States[1].Guards)
}

func (ServiceSuite) TestCheckOptionsOverride(ctx context.Context, t *testctx.T) {
	cli := local(t, newService(t))

	var res CheckResult
	require.NoError(t, cli.CallResult(ctx, "check", CheckParams{
		Source:  "PUSHINT_4 0\nPUSHCONT { PUSHINT_4 1 }\nPUSHCONT { PUSHINT_4 2 }\nIFELSE\n",
		Options: &check.Options{MergeStacks: true},
	}, &res))
	require.Len(t, res.States, 1)
	assert.Equal(t, []string{"branch-true", "branch-false"}, res.States[0].Guards)
}

func (ServiceSuite) TestCheckProgramForm(ctx context.Context, t *testctx.T) {
	cli := local(t, newService(t))

	var res CheckResult
	require.NoError(t, cli.CallResult(ctx, "check", CheckParams{
		Program: asm.Program{
			{Op: "PUSHINT_4", Args: []int{1}},
			{Op: "DUP"},
		},
	}, &res))
	require.Len(t, res.States, 1)
	assert.Equal(t, []string{"int", "int"}, res.States[0].Stack)
}

func (ServiceSuite) TestCheckDiagnostic(ctx context.Context, t *testctx.T) {
	cli := local(t, newService(t))

	var res CheckResult
	require.NoError(t, cli.CallResult(ctx, "check", CheckParams{
		Filename: "bad.tasm",
		Source:   "NEWC\nCTOS\n",
	}, &res))

	require.False(t, res.OK)
	require.NotNil(t, res.Diagnostic)
	assert.Equal(t, "type mismatch: cell vs builder", res.Diagnostic.Message)
	assert.Equal(t, "CTOS", res.Diagnostic.Instr)
	assert.Equal(t, 1, res.Diagnostic.Index)
	assert.Equal(t, 0, res.Diagnostic.State)
	require.NotNil(t, res.Diagnostic.Location)
	assert.Equal(t, "bad.tasm", res.Diagnostic.Location.File)
	assert.Equal(t, 2, res.Diagnostic.Location.Line)
}

func (ServiceSuite) TestCheckSyntaxError(ctx context.Context, t *testctx.T) {
	cli := local(t, newService(t))

	var res CheckResult
	require.NoError(t, cli.CallResult(ctx, "check", CheckParams{Source: "PUSHCONT {\n"}, &res))
	require.NotNil(t, res.Diagnostic)
	assert.Equal(t, "unexpected end of input, expected }", res.Diagnostic.Message)
	assert.Equal(t, -1, res.Diagnostic.State)
	assert.Empty(t, res.Diagnostic.Instr)
}

func (ServiceSuite) TestInvalidParams(ctx context.Context, t *testctx.T) {
	cli := local(t, newService(t))

	for _, tc := range []struct {
		method string
		params any
	}{
		{"check", CheckParams{}},
		{"check", CheckParams{Source: "DUP", Program: asm.Program{{Op: "DUP"}}}},
		{"schema", SchemaParams{}},
		{"schema", SchemaParams{Op: "FROB"}},
		{"schema", SchemaParams{Op: "BLKDROP", Args: []int{1 << 62}}},
		{"coverage", CoverageParams{}},
	} {
		_, err := cli.Call(ctx, tc.method, tc.params)
		var jerr *jrpc2.Error
		require.True(t, errors.As(err, &jerr), "%s %+v: %v", tc.method, tc.params, err)
		assert.Equal(t, jrpc2.InvalidParams, jerr.Code)
	}
}

func (ServiceSuite) TestSchema(ctx context.Context, t *testctx.T) {
	cli := local(t, newService(t))

	var swap SchemaView
	require.NoError(t, cli.CallResult(ctx, "schema", SchemaParams{Op: "SWAP"}, &swap))
	assert.Equal(t, "SWAP", swap.Name)
	require.Len(t, swap.In, 2)
	require.Len(t, swap.Alts, 1)
	assert.Equal(t, []string{swap.In[1], swap.In[0]}, swap.Alts[0].Out)
	assert.Empty(t, swap.Alts[0].Guard)

	var dict SchemaView
	require.NoError(t, cli.CallResult(ctx, "schema", SchemaParams{Op: "LDDICT"}, &dict))
	assert.Equal(t, []string{"slice"}, dict.In)
	assert.Equal(t, []AltView{{
		Out:   []string{"any", "slice"},
		Guard: "(f == 0) || (f == -1)",
	}}, dict.Alts)

	var push SchemaView
	require.NoError(t, cli.CallResult(ctx, "schema", SchemaParams{Op: "PUSH", Args: []int{2}}, &push))
	assert.Equal(t, "PUSH s2", push.Name)
}

func (ServiceSuite) TestCoverage(ctx context.Context, t *testctx.T) {
	cli := local(t, newService(t))

	var res CoverageResult
	require.NoError(t, cli.CallResult(ctx, "coverage", CoverageParams{
		Source: "PUSHINT_4 0\nPUSHCONT { FROB; NEWC }\nIF\nZAP\nFROB\n",
	}, &res))
	assert.Equal(t, []string{"FROB", "ZAP"}, res.Missing)
}

func (ServiceSuite) TestServeLines(ctx context.Context, t *testctx.T) {
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	errs := make(chan error, 1)
	go func() {
		errs <- Serve(ctx, newService(t), serverR, serverW)
	}()

	cli := jrpc2.NewClient(channel.Line(clientR, clientW), nil)
	var res CoverageResult
	require.NoError(t, cli.CallResult(ctx, "coverage", CoverageParams{Source: "FROB\nDUP\n"}, &res))
	assert.Equal(t, []string{"FROB"}, res.Missing)

	require.NoError(t, cli.Close())
	require.NoError(t, <-errs)
}
