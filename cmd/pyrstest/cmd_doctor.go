package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pyrstest/cmd/pyrstest/ui"
	"pyrstest/internal/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the workspace can build and dispatch scenarios",
	Long: `Checks the interpreter, the build script, the scenario scripts and data
files, the Mantid install locations and the history database.

Failures mean a dispatch cannot work; warnings are conditions the Python
side reports on its own terms.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	styles := ui.DefaultStyles()
	results, healthy := doctor.New(cfg, workspace, prof, logger).Run(cmd.Context())

	out := cmd.OutOrStdout()
	for _, res := range results {
		var glyph string
		switch res.Status {
		case doctor.StatusOK:
			glyph = styles.Success.Render("✓")
		case doctor.StatusWarn:
			glyph = styles.Warning.Render("!")
		default:
			glyph = styles.Error.Render("✗")
		}
		fmt.Fprintf(out, "%s %-22s %s\n", glyph, res.Name, res.Detail)
	}

	if !healthy {
		exitCode = 1
		return fmt.Errorf("workspace is not ready, fix the failed checks above")
	}
	return nil
}
