package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pyrstest/internal/config"
	"pyrstest/internal/dispatch"
	"pyrstest/internal/history"
	"pyrstest/internal/runner"
	"pyrstest/internal/scenario"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	workspace   string
	profileName string

	// Resolved by initHarness before any command runs
	cfg    *config.Config
	prof   *scenario.Profile
	logger *zap.Logger

	// exitCode mirrors the dispatched child's status. main passes it to
	// os.Exit after cobra unwinds.
	exitCode int
)

// rootCmd dispatches a scenario token directly, preserving the calling
// convention of the original shell harness: pyrstest <token>.
var rootCmd = &cobra.Command{
	Use:   "pyrstest [token] [args...]",
	Short: "Build the PyRS package and dispatch HB2B reduction test scenarios",
	Long: `pyrstest is the test dispatcher for the PyRS reduction package.

Given a scenario token it builds the package with python setup.py build,
assembles PYTHONPATH from the build output and the Mantid install
locations, and hands the scenario script to the interpreter. The child's
exit status becomes pyrstest's exit status.

A token that matches no scenario is ignored and exits zero, exactly like
the retired shell harness. Use 'pyrstest run' for a loud variant.

Run without arguments to list the scenarios of the active profile.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initHarness(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			// No token: print the scenario menu and do nothing else.
			fmt.Fprint(cmd.OutOrStdout(), prof.HelpMenu())
			return nil
		}
		ctx, cancel := signalContext()
		defer cancel()
		return dispatchToken(ctx, args[0], args[1:], dispatch.Options{})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/"+config.DefaultConfigName+")")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "PyRS repository root (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "Scenario profile: next or legacy (default: from config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(uiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pyrstest:", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

// initHarness resolves the workspace, loads configuration and the scenario
// profile, and builds the logger. Shared by every command.
func initHarness(cmd *cobra.Command) error {
	if workspace == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
		workspace = cwd
	}

	path := configPath
	if path == "" {
		path = filepath.Join(workspace, config.DefaultConfigName)
	}
	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	name := profileName
	if name == "" {
		name = cfg.Profile
	}
	prof, err = scenario.ProfileByName(name)
	if err != nil {
		return err
	}

	logger, err = buildLogger(cmd)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func buildLogger(cmd *cobra.Command) (*zap.Logger, error) {
	// The TUI owns the terminal; keep zap quiet there unless asked.
	if cmd.Name() == "ui" && !verbose {
		return zap.NewNop(), nil
	}
	zcfg := zap.NewProductionConfig()
	level := zapcore.InfoLevel
	if cfg.Logging.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
			level = parsed
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// harness bundles the pieces a dispatching command needs.
type harness struct {
	dispatcher *dispatch.Dispatcher
	history    *history.Store
}

func newHarness() (*harness, error) {
	r := runner.New(logger, runner.Config{
		DefaultTimeout: cfg.GetExecutionTimeout(),
		MaxOutputBytes: cfg.GetMaxOutputBytes(),
	})

	var hist *history.Store
	if cfg.History.Enabled {
		var err error
		hist, err = history.Open(cfg.GetHistoryPath(workspace), logger)
		if err != nil {
			// A broken database must never block a dispatch.
			logger.Warn("run history unavailable", zap.Error(err))
			hist = nil
		}
	}

	return &harness{
		dispatcher: dispatch.New(cfg, workspace, prof, r, hist, logger),
		history:    hist,
	}, nil
}

func (h *harness) Close() {
	if h.history != nil {
		_ = h.history.Close()
	}
}

// dispatchToken runs one scenario and records its exit status.
func dispatchToken(ctx context.Context, token string, extra []string, opts dispatch.Options) error {
	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.Close()

	if len(extra) > 0 {
		// Positional arguments after the token are accepted and unused.
		logger.Debug("ignoring extra arguments", zap.Strings("args", extra))
	}

	outcome, err := h.dispatcher.Dispatch(ctx, token, opts)
	if outcome != nil {
		exitCode = outcome.ExitCode
	}
	if err != nil {
		return err
	}
	if outcome.Run != nil && outcome.Run.Killed {
		fmt.Fprintf(os.Stderr, "scenario killed: %s\n", outcome.Run.KillReason)
	}
	return nil
}

// signalContext cancels the returned context on SIGINT or SIGTERM so a
// dispatched child is torn down instead of orphaned.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
