package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/vito/tvmcheck/pkg/check"
	"github.com/vito/tvmcheck/pkg/ioctx"
	"github.com/vito/tvmcheck/pkg/rpc"
	"github.com/vito/tvmcheck/pkg/schema"
	"github.com/vito/tvmcheck/pkg/tvmspec"
)

// Config holds the flags shared by every command.
type Config struct {
	Debug  bool
	Spec   string
	Config string
}

func main() {
	ctx := context.Background()
	ctx = ioctx.StdoutToContext(ctx, os.Stdout)
	ctx = ioctx.StderrToContext(ctx, os.Stderr)
	if err := fang.Execute(ctx, newRootCmd(),
		fang.WithVersion("v0.1.0"),
		fang.WithCommit("dev"),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			_, _ = fmt.Fprintln(w, err.Error())
		}),
	); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg Config

	rootCmd := &cobra.Command{
		Use:   "tvmcheck",
		Short: "Stack type checker for TVM assembly",
		Long: `tvmcheck runs TVM assembly symbolically over stack types and reports
the first instruction that cannot type-check, along with the branch and
loop path that reached it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug logging (per-instruction trace)")
	rootCmd.PersistentFlags().StringVar(&cfg.Spec, "spec", "", "Instruction signature table (JSON)")
	rootCmd.PersistentFlags().StringVar(&cfg.Config, "config", "", "Path to "+check.ConfigFile+" (searched upward from the working directory if not set)")

	rootCmd.AddCommand(checkCmd(&cfg))
	rootCmd.AddCommand(schemaCmd(&cfg))
	rootCmd.AddCommand(serveCmd(&cfg))
	return rootCmd
}

// env is what every command needs after flags and project config are
// combined.
type env struct {
	ctx      context.Context
	resolver *schema.Resolver
	options  check.Options
}

func setup(ctx context.Context, cfg *Config) (*env, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := ioctx.StderrLogger(ctx, level)
	ctx = ioctx.LoggerToContext(ctx, logger)

	e := &env{ctx: ctx, options: check.DefaultOptions()}

	var (
		configPath string
		config     *check.ProjectConfig
		err        error
	)
	if cfg.Config != "" {
		configPath = cfg.Config
		config, err = check.LoadProjectConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
	} else {
		cwd, _ := os.Getwd()
		configPath, config, err = check.FindProjectConfig(cwd)
		if err != nil {
			logger.Warn("failed to load project config", "error", err)
		}
	}

	specPath := cfg.Spec
	if config != nil {
		logger.Debug("using project config", "path", configPath)
		e.options = config.Check
		if specPath == "" {
			specPath = config.Spec
		}
	}

	var table *tvmspec.Specification
	if specPath != "" {
		table, err = tvmspec.Load(specPath)
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded signature table",
			"path", specPath,
			"version", table.Version,
			"instructions", len(table.Instructions))
	}
	e.resolver = schema.NewResolver(table)
	return e, nil
}

func schemaCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "schema OP [ARG...]",
		Short: "Show the stack effect the checker uses for an instruction",
		Example: `  tvmcheck schema XCHG3 1 2 3
  tvmcheck --spec cp0.json schema LDDICT`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			params := rpc.SchemaParams{Op: args[0]}
			for _, a := range args[1:] {
				var n int
				if _, err := fmt.Sscan(a, &n); err != nil {
					return fmt.Errorf("operand %q: %w", a, err)
				}
				params.Args = append(params.Args, n)
			}

			svc := &rpc.Service{Resolver: e.resolver, Options: e.options}
			view, err := svc.Schema(e.ctx, params)
			if err != nil {
				return err
			}

			w := ioctx.StdoutFromContext(e.ctx)
			for _, alt := range view.Alts {
				line := fmt.Sprintf("%s: %s → %s", view.Name, side(view.In), side(alt.Out))
				if alt.Guard != "" {
					line += "  when " + alt.Guard
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
}

func serveCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve check requests as line-delimited JSON-RPC on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			svc := &rpc.Service{Resolver: e.resolver, Options: e.options}
			return rpc.Serve(e.ctx, svc, os.Stdin, os.Stdout)
		},
	}
}

func side(ts []string) string {
	if len(ts) == 0 {
		return "∅"
	}
	return strings.Join(ts, " ")
}
