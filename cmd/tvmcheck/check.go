package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/kr/pretty"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vito/tvmcheck/pkg/asm"
	"github.com/vito/tvmcheck/pkg/check"
	"github.com/vito/tvmcheck/pkg/ioctx"
	"github.com/vito/tvmcheck/pkg/rpc"
)

type checkFlags struct {
	Dedupe         bool
	MergeStacks    bool
	LogContEffects bool
	ShowGuards     bool
	JSON           bool
	Dump           bool
	Color          string
}

func checkCmd(cfg *Config) *cobra.Command {
	var flags checkFlags

	cmd := &cobra.Command{
		Use:   "check [flags] FILE...",
		Short: "Type-check TVM assembly files",
		Long: `Check runs each file from an empty stack and prints the stack types
reachable at the end, one line per path. Files ending in .json are read as
instruction trees; anything else is parsed as assembly text.`,
		Example: `  # Check a contract with the default built-in instructions
  tvmcheck check wallet.tasm

  # Use a signature table and collapse equivalent paths
  tvmcheck check --spec cp0.json --dedupe --merge-stacks wallet.tasm

  # Trace every instruction
  tvmcheck check -d wallet.tasm`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			opts := e.options
			fs := cmd.Flags()
			if fs.Changed("dedupe") {
				opts.Dedupe = flags.Dedupe
			}
			if fs.Changed("merge-stacks") {
				opts.MergeStacks = flags.MergeStacks
			}
			if fs.Changed("log-cont-effects") {
				opts.LogContEffects = flags.LogContEffects
			}
			if fs.Changed("show-guards") {
				opts.ShowGuards = flags.ShowGuards
			}
			checker := check.New(e.resolver, opts)
			return runCheck(e.ctx, checker, flags, args, cfg.Debug)
		},
	}

	cmd.Flags().BoolVar(&flags.Dedupe, "dedupe", false, "Collapse states with the same stack and path")
	cmd.Flags().BoolVar(&flags.MergeStacks, "merge-stacks", false, "Collapse states with the same stack, joining their paths")
	cmd.Flags().BoolVar(&flags.LogContEffects, "log-cont-effects", false, "Log the stack effect of each branch body")
	cmd.Flags().BoolVar(&flags.ShowGuards, "show-guards", true, "Include guard paths in the trace")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Print results as JSON")
	cmd.Flags().BoolVar(&flags.Dump, "dump", false, "Print the parsed program before checking")
	cmd.Flags().StringVar(&flags.Color, "color", "auto", "Colorize output: auto, always, never")
	return cmd
}

type fileResult struct {
	Path   string
	Source []byte
	Prog   asm.Program
	Res    *check.Result
	Err    error
}

func runCheck(ctx context.Context, checker *check.Checker, flags checkFlags, paths []string, sequential bool) error {
	color, err := useColor(ctx, flags.Color)
	if err != nil {
		return err
	}
	logger := ioctx.LoggerFromContext(ctx)

	results := make([]*fileResult, len(paths))
	eg, gctx := errgroup.WithContext(ctx)
	if sequential {
		// keep traces from different files apart
		eg.SetLimit(1)
	}
	for i, path := range paths {
		eg.Go(func() error {
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			r := &fileResult{Path: path, Source: src}
			results[i] = r

			if strings.EqualFold(filepath.Ext(path), ".json") {
				r.Prog, r.Err = asm.ParseJSON(src)
			} else {
				r.Prog, r.Err = asm.Parse(path, src)
			}
			if r.Err != nil {
				return nil
			}

			if missing := rpc.Uncovered(checker.Resolver, r.Prog); len(missing) > 0 {
				logger.Warn("instructions without a schema", "file", path, "ops", missing)
			}
			r.Res, r.Err = checker.Check(gctx, r.Prog)
			if errors.Is(r.Err, context.Canceled) {
				return r.Err
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	stdout := ioctx.StdoutFromContext(ctx)
	stderr := ioctx.StderrFromContext(ctx)

	if flags.JSON {
		return writeJSON(stdout, results)
	}

	failed := 0
	for _, r := range results {
		if flags.Dump && r.Prog != nil {
			_, _ = pretty.Fprintf(stdout, "%# v\n", r.Prog)
		}
		if r.Err != nil {
			failed++
			fmt.Fprint(stderr, paint(renderError(r, color), color))
			continue
		}
		fmt.Fprint(stdout, paint(renderStates(r), color))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed to check", failed, len(results))
	}
	return nil
}

type fileReport struct {
	File string `json:"file"`
	*rpc.CheckResult
}

func writeJSON(w io.Writer, results []*fileResult) error {
	var reports []fileReport
	failed := 0
	for _, r := range results {
		res, err := rpc.NewResult(r.Res, r.Err)
		if err != nil {
			return err
		}
		if !res.OK {
			failed++
		}
		reports = append(reports, fileReport{File: r.Path, CheckResult: res})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed to check", failed, len(results))
	}
	return nil
}

func useColor(ctx context.Context, mode string) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		f, ok := ioctx.StdoutFromContext(ctx).(*os.File)
		return ok && isatty.IsTerminal(f.Fd()), nil
	default:
		return false, fmt.Errorf("invalid --color %q: want auto, always or never", mode)
	}
}

var (
	fileStyle  = lipgloss.NewStyle().Bold(true)
	indexStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	stackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	guardStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

// renderStates lists the final states of one file with guard paths aligned
// in a column.
func renderStates(r *fileResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d state(s)\n", fileStyle.Render(r.Path), len(r.Res.FinalStates))

	stacks := make([]string, len(r.Res.FinalStates))
	width := 0
	for i, st := range r.Res.FinalStates {
		stacks[i] = st.Show(false)
		width = max(width, ansi.StringWidth(stacks[i]))
	}
	for i, st := range r.Res.FinalStates {
		line := fmt.Sprintf("  %s %s", indexStyle.Render(fmt.Sprintf("[%d]", i)), stackStyle.Render(stacks[i]))
		if len(st.Guards) > 0 {
			line += strings.Repeat(" ", width-ansi.StringWidth(stacks[i]))
			line += "  " + guardStyle.Render(strings.Join(st.Guards.Strings(), " > "))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func renderError(r *fileResult, color bool) string {
	var ete *check.EffectTypeError
	if errors.As(r.Err, &ete) {
		return ete.Highlight(string(r.Source), color)
	}
	return r.Err.Error() + "\n"
}

// paint strips styling when color is off.
func paint(s string, color bool) string {
	if color {
		return s
	}
	return ansi.Strip(s)
}
