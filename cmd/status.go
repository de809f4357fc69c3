package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alpkeskin/gotoon"
	"github.com/dustin/go-humanize"
	"github.com/pders01/clawkeep/internal/history"
	"github.com/pders01/clawkeep/internal/models"
	"github.com/spf13/cobra"
)

var (
	statusJSON bool
	statusToon bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the backup state of the workspace",
	Long: `Display the state the next backup cycle will act on:
  - pending changes and a diff summary
  - whether the mainline has unpushed commits
  - snapshot count against the retention limit
  - the outcome of the last recorded cycle

Examples:
  clawkeep status
  clawkeep status --json
  clawkeep status --toon`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	statusCmd.Flags().BoolVar(&statusToon, "toon", false, "Output in LLM-friendly toon format")
}

type workspaceStatus struct {
	Workspace     string      `json:"workspace"`
	Branch        string      `json:"branch"`
	Mainline      string      `json:"mainline"`
	Changes       []string    `json:"changes"`
	DiffSummary   string      `json:"diff_summary,omitempty"`
	Unpushed      bool        `json:"unpushed"`
	Snapshots     int         `json:"snapshots"`
	Retention     int         `json:"retention"`
	SnapshotError string      `json:"snapshot_error,omitempty"`
	LastRun       *models.Run `json:"last_run,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	cfg, repo, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	status := workspaceStatus{
		Workspace: cfg.WorkspacePath,
		Mainline:  cfg.Mainline,
		Retention: cfg.Retention,
		Changes:   []string{},
	}

	if status.Branch, err = repo.CurrentBranch(ctx); err != nil {
		return err
	}
	changes, err := repo.Status(ctx)
	if err != nil {
		return err
	}
	if changes != nil {
		status.Changes = changes
	}
	if len(changes) > 0 {
		if status.DiffSummary, err = repo.DiffSummary(ctx); err != nil {
			return err
		}
	}
	if status.Unpushed, err = repo.AheadOfRemote(ctx, cfg.Remote, cfg.Mainline); err != nil {
		return err
	}

	rotator, err := newRotator(cfg, repo, nil)
	if err != nil {
		return err
	}
	// remote listing needs the network; report instead of failing
	if _, _, sorted, err := rotator.Snapshots(ctx); err != nil {
		status.SnapshotError = err.Error()
	} else {
		status.Snapshots = len(sorted)
	}

	if cfg.HistoryEnabled {
		if last, err := lastRun(cmd, cfg.HistoryPath); err == nil {
			status.LastRun = &last
		} else if !errors.Is(err, history.ErrNoRuns) {
			return err
		}
	}

	if statusJSON {
		output, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if statusToon {
		output, err := gotoon.Encode(status)
		if err != nil {
			return fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
		return nil
	}

	fmt.Println("Workspace Status")
	fmt.Println("━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Printf("Workspace: %s\n", status.Workspace)
	fmt.Printf("Branch:    %s", status.Branch)
	if status.Branch != status.Mainline {
		fmt.Printf("  (backups require %s)", status.Mainline)
	}
	fmt.Println()
	fmt.Println()

	if len(status.Changes) == 0 {
		fmt.Println("No pending changes")
	} else {
		fmt.Printf("Pending changes (%d):\n", len(status.Changes))
		for _, change := range status.Changes {
			fmt.Printf("  %s\n", change)
		}
		if status.DiffSummary != "" {
			fmt.Println()
			fmt.Println(status.DiffSummary)
		}
	}
	if status.Unpushed {
		fmt.Printf("Mainline has commits not yet pushed to %s\n", cfg.Remote)
	}
	fmt.Println()

	if status.SnapshotError != "" {
		fmt.Printf("Snapshots: unavailable (%s)\n", status.SnapshotError)
	} else {
		fmt.Printf("Snapshots: %d (retention %d)\n", status.Snapshots, status.Retention)
	}

	if status.LastRun != nil {
		run := status.LastRun
		fmt.Printf("Last run:  %s, %s (%s)\n", run.Status,
			humanize.Time(run.StartedAt), run.Duration().Round(time.Millisecond))
		if run.Error != "" {
			fmt.Printf("  Error: %s\n", run.Error)
		}
	}

	return nil
}

func lastRun(cmd *cobra.Command, path string) (models.Run, error) {
	store, err := history.Open(path)
	if err != nil {
		return models.Run{}, err
	}
	defer store.Close()
	return store.Last(commandContext(cmd))
}
