package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pders01/clawkeep/internal/backup"
	"github.com/pders01/clawkeep/internal/config"
	"github.com/pders01/clawkeep/internal/history"
	"github.com/pders01/clawkeep/internal/models"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run one backup cycle of the workspace",
	Long: `Back up the workspace to its remote in one cycle:

  1. inspect   check the mainline branch for changes or unpushed commits
  2. snapshot  branch the pre-change state as backup-YYYY-MM-DD-HHMMSS
  3. commit    commit all changes as "backup: YYYY-MM-DD HH:MM"
  4. push      push the mainline branch
  5. prune     delete the oldest snapshots beyond backup.retention

A clean workspace that is in sync with the remote is left untouched.
A failed snapshot or prune is logged and the cycle continues; a failed
commit or push ends it. A failed push leaves the commit in place and the
next cycle pushes it.

Exit status: 0 success, 2 completed with issues, 1 failed.`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	// the log sink is configured here, so a config error can only go to stderr
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	started := time.Now()
	id := history.NewID(started)
	cycleLogger := logger.With("run", id)

	repo, err := openRepo(ctx, cfg)
	if err != nil {
		cycleLogger.Error("backup failed", "error", err)
		recordRun(ctx, cfg, cycleLogger, models.Run{
			ID:         id,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Status:     models.RunFailed,
			Error:      err.Error(),
		})
		return &ExitError{Code: ExitFailed, Err: fmt.Errorf("backup failed: %w", err)}
	}

	rotator, err := newRotator(cfg, repo, cycleLogger)
	if err != nil {
		return err
	}

	result, runErr := rotator.Run(ctx)
	recordRun(ctx, cfg, cycleLogger, result.Record(id))

	switch result.Status() {
	case backup.StatusFailed:
		return &ExitError{Code: ExitFailed, Err: fmt.Errorf("backup failed: %w", runErr)}
	case backup.StatusDegraded:
		return &ExitError{
			Code: ExitDegraded,
			Err:  fmt.Errorf("backup completed with %d issue(s): %w", len(result.Issues), errors.Join(result.Issues...)),
		}
	}
	return nil
}

// recordRun stores a cycle in the history database. History is
// informational, so failures are only logged.
func recordRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, run models.Run) {
	if !cfg.HistoryEnabled {
		return
	}
	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		logger.Warn("failed to open history", "error", err)
		return
	}
	defer store.Close()

	if _, err := store.Record(ctx, run); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}
