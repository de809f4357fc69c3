package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create and push a snapshot branch now",
	Long: `Create a snapshot branch at the current commit of the workspace and push
it to the remote, outside of a backup cycle.

The snapshot is named <prefix>YYYY-MM-DD-HHMMSS; a second snapshot within
the same second gets a -2, -3, ... suffix. Nothing is committed or pruned.`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
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

	snap, err := rotator.CreateSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	fmt.Printf("✓ Snapshot created: %s\n", snap.Name)
	fmt.Printf("  Commit: %s\n", snap.Commit[:min(8, len(snap.Commit))])
	fmt.Printf("  Pushed: %s\n", cfg.Remote)

	return nil
}
