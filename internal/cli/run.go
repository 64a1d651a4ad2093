package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/synarere/internal/config"
	"github.com/roach88/synarere/internal/engine"
	"github.com/roach88/synarere/internal/metric"
	"github.com/roach88/synarere/internal/modules"
	"github.com/roach88/synarere/internal/session"
	"github.com/roach88/synarere/internal/store"
)

// shutdownTimeout bounds Shutdown after the loop has returned.
const shutdownTimeout = 10 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config    string
	AllowRoot bool

	// Dialer overrides how networks are reached (for testing).
	Dialer session.Dialer

	// EUID reports the effective user id. Defaults to os.Geteuid.
	EUID func() int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the configured networks",
		Long: `Start the bot with the given configuration file.

The bot loads its modules, connects to every configured network and runs
until interrupted. SIGHUP reloads the configuration; SIGINT and SIGTERM quit
every network and exit.

Example:
  synarere run --config synarere.yaml
  synarere run --config synarere.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to the configuration file (required)")
	cmd.Flags().BoolVar(&opts.AllowRoot, "allow-root", false, "allow running with root privileges")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runBot(opts *RunOptions, cmd *cobra.Command) error {
	euid := opts.EUID
	if euid == nil {
		euid = os.Geteuid
	}
	if euid() == 0 && !opts.AllowRoot {
		return NewExitError(ExitCommandError, "refusing to run with root privileges (use --allow-root to override)")
	}

	catalog := modules.Catalog()
	cfg, err := loadConfig(opts.Config, catalog)
	if err != nil {
		return WrapExitError(ExitConfig, "invalid configuration", err)
	}

	level := cfg.Logger.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	metrics := metric.New()
	engineOpts := []engine.Option{
		engine.WithCatalog(catalog),
		engine.WithMetrics(metrics),
		engine.WithVersion(Version),
	}
	if opts.Dialer != nil {
		engineOpts = append(engineOpts, engine.WithDialer(opts.Dialer))
	}

	if path := cfg.Options.Database; path != "" {
		slog.Info("opening database", "path", path)
		st, err := store.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		engineOpts = append(engineOpts, engine.WithStore(st))
	}

	if addr := cfg.Options.MetricsAddr; addr != "" {
		srv := metric.NewServer(metrics)
		if err := srv.Start(addr); err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Stop(ctx)
		}()
	}

	eng := engine.New(cfg, engineOpts...)
	file := config.NewFile(opts.Config, cfg, eng.Bus())

	// Use command's context if available (for testing), otherwise create one.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	go func() {
		for {
			select {
			case <-hup:
				slog.Info("received SIGHUP, reloading configuration", "file", file.Path())
				eng.Call(func(ctx context.Context) {
					_ = eng.Rehash(ctx, file, true)
				})
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := eng.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "synarere %s started with %d network(s).\n", Version, len(cfg.Networks))

	runErr := eng.Run(ctx)

	reason := "Shutting down"
	if engine.IsFatal(runErr) {
		reason = "Internal I/O failure"
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := eng.Shutdown(shutdownCtx, reason); err != nil {
		slog.Warn("unclean shutdown", "error", err)
	}

	switch {
	case engine.IsFatal(runErr):
		return WrapExitError(ExitSoftware, "internal I/O failure", runErr)
	case runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded):
		return WrapExitError(ExitFailure, "engine error", runErr)
	}

	slog.Info("bot stopped gracefully")
	return nil
}
