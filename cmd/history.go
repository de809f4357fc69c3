package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pders01/clawkeep/internal/config"
	"github.com/pders01/clawkeep/internal/history"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent backup cycles",
	Long: `Show the most recent backup cycles recorded in the history database,
newest first.

Examples:
  clawkeep history
  clawkeep history -n 50
  clawkeep history --json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of cycles to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.HistoryEnabled {
		return fmt.Errorf("history is disabled (history.enabled = false)")
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(commandContext(cmd), historyLimit)
	if err != nil {
		return err
	}

	if historyJSON {
		output, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if len(runs) == 0 {
		fmt.Println("No backup cycles recorded")
		return nil
	}

	for _, run := range runs {
		var actions []string
		if run.Committed {
			actions = append(actions, "committed")
		}
		if run.Pushed {
			actions = append(actions, "pushed")
		}
		if run.Snapshot != "" {
			actions = append(actions, "snapshot "+run.Snapshot)
		}
		if run.Pruned > 0 {
			actions = append(actions, fmt.Sprintf("pruned %d", run.Pruned))
		}

		fmt.Printf("%s  %-8s  %6s  %s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Status,
			run.Duration().Round(100*time.Millisecond),
			strings.Join(actions, ", "))
		for _, issue := range run.Issues {
			fmt.Printf("    ! %s\n", issue)
		}
		if run.Error != "" {
			fmt.Printf("    ✗ %s\n", run.Error)
		}
	}

	return nil
}
