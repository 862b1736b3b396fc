package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pyrstest/cmd/pyrstest/ui"
	"pyrstest/internal/dispatch"
	"pyrstest/internal/watch"
)

var (
	watchNoBuild   bool
	watchNoHistory bool
	watchTimeout   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <token>",
	Short: "Rerun a scenario whenever the Python sources change",
	Long: `Runs the scenario once, then watches the configured source directories
and reruns it each time edits to .py files settle. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: watchScenario,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoBuild, "no-build", false, "Skip python setup.py build on every rerun")
	watchCmd.Flags().BoolVar(&watchNoHistory, "no-history", false, "Do not record reruns in the history database")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 0, "Per-scenario timeout (default: from config)")
}

func watchScenario(cmd *cobra.Command, args []string) error {
	token := args[0]
	if _, ok := prof.Resolve(token); !ok {
		fmt.Fprint(cmd.ErrOrStderr(), prof.HelpMenu())
		return fmt.Errorf("unknown scenario token %q", token)
	}

	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.Close()

	ctx, cancel := signalContext()
	defer cancel()

	styles := ui.DefaultStyles()
	out := cmd.OutOrStdout()
	opts := dispatch.Options{
		SkipBuild: watchNoBuild,
		NoHistory: watchNoHistory,
		Timeout:   watchTimeout,
	}

	runOnce := func(runCtx context.Context) {
		outcome, derr := h.dispatcher.Dispatch(runCtx, token, opts)
		switch {
		case derr != nil:
			fmt.Fprintln(out, styles.Error.Render(fmt.Sprintf("harness error: %v", derr)))
		case outcome.Build != nil && !outcome.Build.Passed() && outcome.Run == nil:
			fmt.Fprintln(out, styles.Error.Render(
				fmt.Sprintf("build failed (exit %d)", outcome.Build.ExitCode)))
		case outcome.Scenario != nil && outcome.Scenario.NoOp:
			fmt.Fprintln(out, styles.Muted.Render("token is reserved, nothing to run"))
		case outcome.Run != nil && outcome.Run.Killed:
			fmt.Fprintln(out, styles.Error.Render("killed: "+outcome.Run.KillReason))
		case outcome.ExitCode == 0:
			fmt.Fprintln(out, styles.Success.Render(
				fmt.Sprintf("passed in %s", outcome.Run.Duration.Round(time.Millisecond))))
		default:
			fmt.Fprintln(out, styles.Error.Render(
				fmt.Sprintf("failed (exit %d) in %s", outcome.ExitCode, outcome.Run.Duration.Round(time.Millisecond))))
		}
	}

	runOnce(ctx)
	if ctx.Err() != nil {
		return nil
	}

	w, err := watch.New(workspace, cfg.Watch.Dirs, cfg.GetWatchDebounce(), func(wctx context.Context, paths []string) {
		fmt.Fprintf(out, "\n%s\n", styles.Muted.Render(
			fmt.Sprintf("%d files changed, rerunning %s", len(paths), token)))
		runOnce(wctx)
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s\n", styles.Muted.Render(
		fmt.Sprintf("watching %v, Ctrl+C to stop", cfg.Watch.Dirs)))

	<-ctx.Done()
	w.Stop()

	stats := w.GetStats()
	fmt.Fprintf(out, "\nwatched %d edits in %d batches\n",
		stats.FilesCreated+stats.FilesModified+stats.FilesDeleted, stats.Batches)
	return nil
}
