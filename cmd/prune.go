package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pders01/clawkeep/internal/backup"
	"github.com/pders01/clawkeep/internal/models"
	"github.com/spf13/cobra"
)

var (
	pruneDryRun bool
	pruneForce  bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove snapshots beyond the retention count",
	Long: `Remove the oldest snapshot branches so that at most backup.retention
remain. Snapshots are deleted from the remote and from the local
repository. A failed deletion does not stop the others.

The retention count is configured in ~/.config/clawkeep/config.toml:
  [backup]
  retention = 7

Example:
  clawkeep prune              # Show what would be pruned
  clawkeep prune --force      # Actually prune snapshots`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "Show what would be pruned without deleting")
	pruneCmd.Flags().BoolVar(&pruneForce, "force", false, "Actually delete snapshots")
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	cfg, repo, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	logger, err := newLoggerTo(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer logger.Close()

	rotator, err := newRotator(cfg, repo, logger.Logger)
	if err != nil {
		return err
	}

	fmt.Printf("Retention policy: keep %d snapshot(s)\n\n", cfg.Retention)

	plan, err := rotator.PlanPrune(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(plan.Snapshots) == 0 {
		fmt.Println("No snapshots found")
		return nil
	}
	if len(plan.Evicted) == 0 {
		fmt.Printf("No snapshots to prune (%d within retention)\n", len(plan.Snapshots))
		return nil
	}

	fmt.Printf("Snapshots to prune (%d):\n", len(plan.Evicted))
	for _, name := range plan.Evicted {
		fmt.Printf("  %s  %s\n", name, snapshotAge(cfg.Prefix, name))
	}
	fmt.Printf("\nSnapshots to keep (%d):\n", len(plan.Kept()))
	for _, name := range plan.Kept() {
		fmt.Printf("  %s  %s\n", name, snapshotAge(cfg.Prefix, name))
	}

	if !pruneForce || pruneDryRun {
		fmt.Println("\nThis is a dry run. Use --force to actually prune snapshots.")
		return nil
	}

	fmt.Println("\nPruning snapshots...")
	report, err := rotator.Prune(ctx)
	for _, name := range report.Deleted {
		fmt.Printf("  ✓ Deleted %s\n", name)
	}
	for _, line := range failureLines(report) {
		fmt.Printf("  ✗ %s\n", line)
	}
	if err != nil {
		return &ExitError{
			Code: ExitDegraded,
			Err:  fmt.Errorf("pruned %d of %d snapshot(s): %w", len(report.Deleted), len(report.Evicted), err),
		}
	}

	fmt.Printf("\n✓ Pruned %d snapshot(s)\n", len(report.Deleted))
	return nil
}

// snapshotAge renders how long ago a snapshot was taken
func snapshotAge(prefix, name string) string {
	created, err := models.ParseSnapshotName(prefix, name)
	if err != nil {
		return "(unknown age)"
	}
	return humanize.RelTime(created, time.Now(), "ago", "from now")
}

// failureLines lists failed deletions in eviction order, oldest first
func failureLines(report backup.PruneReport) []string {
	var lines []string
	for _, name := range report.Evicted {
		if failure, ok := report.Failed[name]; ok {
			lines = append(lines, fmt.Sprintf("%s: %v", name, failure))
		}
	}
	return lines
}
