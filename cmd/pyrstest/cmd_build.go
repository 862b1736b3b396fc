package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pyrstest/internal/dispatch"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run python setup.py build without dispatching a scenario",
	RunE:  runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.Close()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := h.dispatcher.Build(ctx)
	if err != nil {
		exitCode = 1
		return err
	}
	if !res.Passed() {
		exitCode = dispatch.ExitCodeFor(res)
		if res.Killed {
			return fmt.Errorf("build killed: %s", res.KillReason)
		}
		return fmt.Errorf("build failed with exit status %d", res.ExitCode)
	}
	return nil
}
