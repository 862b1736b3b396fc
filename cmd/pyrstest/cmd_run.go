package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pyrstest/internal/dispatch"
)

var (
	runNoBuild   bool
	runDryRun    bool
	runNoHistory bool
	runTimeout   time.Duration
)

// runCmd is the loud counterpart to the bare-token invocation: unknown
// tokens are an error and the scenario menu lands on stderr.
var runCmd = &cobra.Command{
	Use:   "run <token> [args...]",
	Short: "Build the package and run one test scenario",
	Long: `Runs a single scenario by token or alias.

Unlike the bare form (pyrstest <token>), an unknown token is reported as
an error instead of being silently ignored.

Examples:
  pyrstest run 4
  pyrstest run reduction-all --no-build
  pyrstest run 21 --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScenario,
}

func init() {
	runCmd.Flags().BoolVar(&runNoBuild, "no-build", false, "Skip python setup.py build")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the command plan without executing anything")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Do not record this run in the history database")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-scenario timeout (default: from config)")
}

func runScenario(cmd *cobra.Command, args []string) error {
	token := args[0]
	if _, ok := prof.Resolve(token); !ok {
		fmt.Fprint(cmd.ErrOrStderr(), prof.HelpMenu())
		return fmt.Errorf("unknown scenario token %q", token)
	}

	ctx, cancel := signalContext()
	defer cancel()

	return dispatchToken(ctx, token, args[1:], dispatch.Options{
		SkipBuild: runNoBuild,
		DryRun:    runDryRun,
		NoHistory: runNoHistory,
		Timeout:   runTimeout,
	})
}
