package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pyrstest/cmd/pyrstest/ui"
)

var listLong bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the scenarios of the active profile",
	RunE:  listScenarios,
}

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "Show the script and fixed arguments per scenario")
}

func listScenarios(cmd *cobra.Command, args []string) error {
	styles := ui.DefaultStyles()
	title := fmt.Sprintf("HB2B test scenarios · profile %s", prof.Name)

	var table *ui.Table
	if listLong {
		table = ui.NewTable(title, "TOKENS", "SUMMARY", "COMMAND")
	} else {
		table = ui.NewTable(title, "TOKENS", "SUMMARY")
	}

	for _, sc := range prof.Scenarios {
		tokens := strings.Join(sc.Tokens(), " ")
		if !listLong {
			table.AddRow(tokens, sc.Summary)
			continue
		}
		command := "(none)"
		if !sc.NoOp {
			command = strings.Join(append([]string{sc.Script}, sc.Args...), " ")
		}
		table.AddRow(tokens, sc.Summary, command)
	}

	fmt.Fprint(cmd.OutOrStdout(), table.View(styles))
	return nil
}
