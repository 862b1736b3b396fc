package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pyrstest/cmd/pyrstest/ui"
	"pyrstest/internal/history"
)

var (
	histLimit  int
	histFailed bool
	histToken  string
	histStats  bool
	histPrune  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded scenario runs",
	RunE:  showHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&histLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().BoolVar(&histFailed, "failed", false, "Show only failed runs")
	historyCmd.Flags().StringVar(&histToken, "token", "", "Show only runs of this token")
	historyCmd.Flags().BoolVar(&histStats, "stats", false, "Show aggregate statistics instead of runs")
	historyCmd.Flags().IntVar(&histPrune, "prune", 0, "Delete all but the most recent N runs")
}

func showHistory(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in the configuration")
	}
	store, err := history.Open(cfg.GetHistoryPath(workspace), logger)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	styles := ui.DefaultStyles()

	if histPrune > 0 {
		removed, err := store.Prune(histPrune)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		fmt.Fprintf(out, "removed %d runs, kept the most recent %d\n", removed, histPrune)
		return nil
	}

	if histStats {
		return printStats(cmd, store)
	}

	var runs []history.Run
	switch {
	case histFailed:
		runs, err = store.Failed(histLimit)
	case histToken != "":
		runs, err = store.RecentByToken(histToken, histLimit)
	default:
		runs, err = store.Recent(histLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no recorded runs")
		return nil
	}

	table := ui.NewTable("", "WHEN", "TOKEN", "RESULT", "DURATION", "COMMAND")
	for _, r := range runs {
		verdict := fmt.Sprintf("exit %d", r.ExitCode)
		styled := false
		switch {
		case r.Error != "":
			verdict = "error"
			styled = true
		case r.Killed:
			verdict = "killed"
			styled = true
		case r.NoOp:
			verdict = "no-op"
		case r.ExitCode != 0:
			styled = true
		}

		row := []string{
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Token,
			verdict,
			(time.Duration(r.DurationMs) * time.Millisecond).Round(time.Millisecond).String(),
			clipText(r.CommandLine, 60),
		}
		if styled {
			table.AddStyledRow(styles.Error, row...)
		} else {
			table.AddRow(row...)
		}
	}
	fmt.Fprint(out, table.View(styles))
	return nil
}

func printStats(cmd *cobra.Command, store *history.Store) error {
	stats, err := store.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	out := cmd.OutOrStdout()
	styles := ui.DefaultStyles()

	fmt.Fprintf(out, "total %d · passed %d · failed %d · killed %d\n\n",
		stats.TotalRuns, stats.Passed, stats.Failed, stats.Killed)

	if len(stats.ByToken) == 0 {
		return nil
	}
	table := ui.NewTable("", "TOKEN", "RUNS")
	for _, sc := range prof.Scenarios {
		for _, token := range sc.Tokens() {
			if count, ok := stats.ByToken[token]; ok {
				table.AddRow(token, fmt.Sprintf("%d", count))
			}
		}
	}
	fmt.Fprint(out, table.View(styles))
	return nil
}

func clipText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
