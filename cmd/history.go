package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/history"
)

var (
	historyLimit  int
	historyFailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse recorded question and query attempts",
	RunE:  runHistoryList,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate statistics over recorded attempts",
	RunE:  runHistoryStats,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum entries to show")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "Show only failed attempts")

	historyCmd.AddCommand(historyStatsCmd)

	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	recorder, err := newRecorder(activeConfig)
	if err != nil {
		return err
	}
	defer recorder.Close()

	filter := history.Filter{}
	if historyFailed {
		failed := false
		filter.Success = &failed
	}

	entries, err := recorder.Query(cmd.Context(), filter, historyLimit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No history recorded.")
		return nil
	}

	for _, entry := range entries {
		status := "ok"
		if !entry.Success {
			status = "failed"
		}

		fmt.Printf("[%s] %s  %s\n", entry.Timestamp.Format(time.RFC3339), status, entry.Question)

		if entry.SQL != "" {
			fmt.Printf("    %s\n", entry.SQL)
		}

		if entry.Error != "" {
			fmt.Printf("    error: %s\n", entry.Error)
		}

		fmt.Printf("    %d row(s), generation %dms, execution %dms\n",
			entry.RowCount, entry.GenerationTimeMs, entry.ExecutionTimeMs)
	}

	return nil
}

func runHistoryStats(cmd *cobra.Command, _ []string) error {
	recorder, err := newRecorder(activeConfig)
	if err != nil {
		return err
	}
	defer recorder.Close()

	stats, err := recorder.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Total attempts:   %d\n", stats.Total)
	fmt.Printf("Successful:       %d\n", stats.Successful)
	fmt.Printf("Failed:           %d\n", stats.Failed)
	fmt.Printf("Success rate:     %.1f%%\n", stats.SuccessRate*100)
	fmt.Printf("Avg generation:   %.0fms\n", stats.AvgGenerationTimeMs)
	fmt.Printf("Avg execution:    %.0fms\n", stats.AvgExecutionTimeMs)

	return nil
}
