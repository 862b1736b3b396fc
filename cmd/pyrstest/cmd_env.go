package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pyrstest/internal/pyenv"
)

var envShell bool

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the environment a scenario would run with",
	Long: `Prints the PYTHONPATH assembled from the build output directory, the
Mantid install locations and any inherited PYTHONPATH, in the order the
interpreter will search them.

With --sh the output is eval-able:

  eval "$(pyrstest env --sh)"`,
	RunE: printEnv,
}

func init() {
	envCmd.Flags().BoolVar(&envShell, "sh", false, "Emit shell export lines")
}

func printEnv(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if envShell {
		for _, kv := range pyenv.Environ(cfg) {
			key, value, _ := strings.Cut(kv, "=")
			fmt.Fprintf(out, "export %s=%q\n", key, value)
		}
		return nil
	}

	sp := pyenv.NewSearchPath(cfg)
	fmt.Fprintln(out, "PYTHONPATH entries (in search order):")
	for i, seg := range sp.Segments() {
		fmt.Fprintf(out, "  %d. %s\n", i+1, seg)
	}
	fmt.Fprintf(out, "\nPYTHONPATH=%s\n", sp.String())
	return nil
}
