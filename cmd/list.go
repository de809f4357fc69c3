package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alpkeskin/gotoon"
	"github.com/dustin/go-humanize"
	"github.com/pders01/clawkeep/internal/models"
	"github.com/spf13/cobra"
)

var (
	listJSON bool
	listToon bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backup snapshots",
	Long: `List snapshot branches known locally or on the remote, newest first.

Examples:
  clawkeep list
  clawkeep list --json
  clawkeep list --toon`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	listCmd.Flags().BoolVar(&listToon, "toon", false, "Output in LLM-friendly toon format")
}

type snapshotInfo struct {
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Age       string     `json:"age"`
	Local     bool       `json:"local"`
	Remote    bool       `json:"remote"`
	Retained  bool       `json:"retained"`
}

type snapshotList struct {
	Retention int            `json:"retention"`
	Snapshots []snapshotInfo `json:"snapshots"`
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	cfg, repo, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	rotator, err := newRotator(cfg, repo, nil)
	if err != nil {
		return err
	}

	remote, local, sorted, err := rotator.Snapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	list := buildSnapshotList(cfg.Prefix, cfg.Retention, sorted, remote, local, time.Now())

	if listJSON {
		output, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if listToon {
		output, err := gotoon.Encode(list)
		if err != nil {
			return fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
		return nil
	}

	if len(list.Snapshots) == 0 {
		fmt.Println("No snapshots found")
		return nil
	}

	fmt.Printf("Found %d snapshot(s), keeping %d:\n\n", len(list.Snapshots), list.Retention)
	for _, s := range list.Snapshots {
		marker := " "
		if !s.Retained {
			marker = "✗"
		}
		fmt.Printf("%s %-32s %-16s %s\n", marker, s.Name, s.Age, location(s))
	}

	return nil
}

// buildSnapshotList orders snapshots newest first and marks the ones the
// next prune keeps
func buildSnapshotList(prefix string, retention int, sorted []string, remote, local map[string]bool, now time.Time) snapshotList {
	list := snapshotList{Retention: retention, Snapshots: []snapshotInfo{}}
	for i := len(sorted) - 1; i >= 0; i-- {
		name := sorted[i]
		info := snapshotInfo{
			Name:     name,
			Age:      "unknown",
			Local:    local[name],
			Remote:   remote[name],
			Retained: len(sorted)-i <= retention,
		}
		if created, err := models.ParseSnapshotName(prefix, name); err == nil {
			info.CreatedAt = &created
			info.Age = humanize.RelTime(created, now, "ago", "from now")
		}
		list.Snapshots = append(list.Snapshots, info)
	}
	return list
}

func location(s snapshotInfo) string {
	switch {
	case s.Local && s.Remote:
		return "local+remote"
	case s.Remote:
		return "remote"
	default:
		return "local"
	}
}
