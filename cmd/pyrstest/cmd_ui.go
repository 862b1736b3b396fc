package main

import (
	"io"

	"github.com/spf13/cobra"

	"pyrstest/cmd/pyrstest/ui"
)

var uiSkipBuild bool

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Browse and run scenarios interactively",
	RunE:  launchUI,
}

func init() {
	uiCmd.Flags().BoolVar(&uiSkipBuild, "no-build", false, "Start with the build step toggled off")
}

func launchUI(cmd *cobra.Command, args []string) error {
	h, err := newHarness()
	if err != nil {
		return err
	}
	defer h.Close()

	// The TUI renders results itself; the dispatcher must not write to the
	// terminal underneath it.
	h.dispatcher.Out = io.Discard
	h.dispatcher.ErrOut = io.Discard

	return ui.Run(ui.Options{
		Dispatcher: h.dispatcher,
		Profile:    prof,
		History:    h.history,
		SkipBuild:  uiSkipBuild,
	})
}
