package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"skupair/internal/history"
)

var (
	historyLimit  int
	historyFailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history [runID]",
	Short: "Show past runs and their per-order outcomes",
	Long: `Without arguments, lists recent runs. With a run ID, lists that run's
per-order records; --failed narrows the listing to failures so their
artifacts can be pulled up quickly.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "Show only failed orders of the run")
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.NewStore(cfg.HistoryPath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		return printRuns(store)
	}
	return printRunTasks(store, args[0])
}

func printRuns(store *history.Store) error {
	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Printf("%-36s  %-8s  %-16s  %-20s  %s\n", "RUN", "KIND", "STARTED", "OK/SKIP/FAIL", "NOTES")
	for _, run := range runs {
		notes := ""
		if run.Degraded {
			notes = "degraded filter"
		}
		if run.Fatal != "" {
			if notes != "" {
				notes += "; "
			}
			notes += "fatal: " + run.Fatal
		}
		fmt.Printf("%-36s  %-8s  %-16s  %-20s  %s\n",
			run.ID, run.Kind, run.StartedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d/%d/%d", run.Succeeded, run.Skipped, run.Failed), notes)
	}
	return nil
}

func printRunTasks(store *history.Store, runID string) error {
	var (
		tasks []history.TaskRecord
		err   error
	)
	if historyFailed {
		tasks, err = store.FailedTasks(runID)
	} else {
		tasks, err = store.RunTasks(runID)
	}
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No matching orders for this run.")
		return nil
	}

	for _, task := range tasks {
		line := fmt.Sprintf("%-22s  %-10s", task.OrderNo, task.Status)
		if task.Reason != "" {
			line += "  " + task.Reason
		}
		if task.SKU != "" {
			line += "  " + task.SKU
		}
		fmt.Println(line)
		if task.ArtifactPNG != "" {
			fmt.Printf("    screenshot: %s\n", task.ArtifactPNG)
		}
		if task.ArtifactHTML != "" {
			fmt.Printf("    page:       %s\n", task.ArtifactHTML)
		}
	}
	return nil
}
