package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"pyrstest/internal/history"
	"pyrstest/internal/pyenv"
)

var infoCmd = &cobra.Command{
	Use:   "info <token>",
	Short: "Show the command, data files and recent runs for one scenario",
	Args:  cobra.ExactArgs(1),
	RunE:  showScenarioInfo,
}

func showScenarioInfo(cmd *cobra.Command, args []string) error {
	sc, ok := prof.Resolve(args[0])
	if !ok {
		return fmt.Errorf("unknown scenario token %q", args[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n", strings.Join(sc.Tokens(), " / "), sc.Summary)

	if sc.NoOp {
		b.WriteString("This token is reserved: the dispatcher builds the package and runs nothing.\n\n")
	} else {
		fmt.Fprintf(&b, "## Command\n\n```\n%s %s\n```\n\n",
			cfg.Python.Binary,
			strings.Join(append([]string{sc.Script}, sc.Args...), " "))

		if files := sc.DataFiles(); len(files) > 0 {
			b.WriteString("## Data files\n\n")
			for _, f := range files {
				marker := ""
				if _, err := os.Stat(filepath.Join(workspace, f)); err != nil {
					marker = " *(missing)*"
				}
				fmt.Fprintf(&b, "- `%s`%s\n", f, marker)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## PYTHONPATH\n\n")
	for _, seg := range pyenv.NewSearchPath(cfg).Segments() {
		fmt.Fprintf(&b, "1. `%s`\n", seg)
	}
	b.WriteString("\n")

	writeRecentRuns(&b, sc.Tokens())

	rendered := b.String()
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err == nil {
		if out, rerr := renderer.Render(rendered); rerr == nil {
			rendered = out
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}

// writeRecentRuns appends the last recorded runs for any of the scenario's
// tokens. History being unavailable is not an error here.
func writeRecentRuns(b *strings.Builder, tokens []string) {
	if !cfg.History.Enabled {
		return
	}
	store, err := history.Open(cfg.GetHistoryPath(workspace), logger)
	if err != nil {
		return
	}
	defer store.Close()

	var runs []history.Run
	for _, token := range tokens {
		got, err := store.RecentByToken(token, 5)
		if err == nil {
			runs = append(runs, got...)
		}
	}
	if len(runs) == 0 {
		return
	}
	if len(runs) > 5 {
		runs = runs[:5]
	}

	b.WriteString("## Recent runs\n\n")
	for _, r := range runs {
		verdict := fmt.Sprintf("exit %d", r.ExitCode)
		switch {
		case r.Error != "":
			verdict = "harness error"
		case r.Killed:
			verdict = "killed"
		case r.Passed():
			verdict = "passed"
		}
		fmt.Fprintf(b, "- %s · %s · %s\n",
			r.StartedAt.Format("2006-01-02 15:04"),
			verdict,
			(time.Duration(r.DurationMs) * time.Millisecond).Round(time.Millisecond))
	}
	b.WriteString("\n")
}
