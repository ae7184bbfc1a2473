package check

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"

	"github.com/vito/tvmcheck/pkg/asm"
)

func parseFixture(t *testing.T, name string) (asm.Program, string) {
	t.Helper()
	path := filepath.Join("testdata", name+".tasm")
	src, err := os.ReadFile(path)
	require.NoError(t, err)
	prog, err := asm.Parse(path, src)
	require.NoError(t, err)
	return prog, string(src)
}

func TestTraceGolden(t *testing.T) {
	prog, _ := parseFixture(t, "branch")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))

	c := New(tableResolver(t), Options{ShowGuards: true, LogContEffects: true})
	c.Logger = logger
	_, err := c.Check(context.Background(), prog)
	require.NoError(t, err)

	golden.Assert(t, buf.String(), "branch_trace.golden")
}

func TestHighlightGolden(t *testing.T) {
	for _, name := range []string{"loop_shape", "nested_mismatch"} {
		t.Run(name, func(t *testing.T) {
			prog, src := parseFixture(t, name)
			_, err := New(tableResolver(t), DefaultOptions()).Check(context.Background(), prog)

			var ete *EffectTypeError
			require.True(t, errors.As(err, &ete), "expected a located error, got %v", err)
			golden.Assert(t, ete.Highlight(src, false), name+".golden")
		})
	}
}

func TestHighlightReadsSourceFile(t *testing.T) {
	prog, src := parseFixture(t, "nested_mismatch")
	_, err := New(tableResolver(t), DefaultOptions()).Check(context.Background(), prog)

	var ete *EffectTypeError
	require.True(t, errors.As(err, &ete))
	require.Equal(t, ete.Highlight(src, false), ete.Highlight("", false))

	colored := ete.Highlight(src, true)
	require.True(t, strings.Contains(colored, "\033[31m"))
}

func TestHighlightWithoutLocation(t *testing.T) {
	ete := &EffectTypeError{Instr: "DROP", StateIndex: -1, Inner: errors.New("boom")}
	require.Equal(t, "DROP at unknown @ #0: boom", ete.Highlight("", false))
}
