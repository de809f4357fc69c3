package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pders01/clawkeep/internal/config"
	"github.com/pders01/clawkeep/internal/history"
	"github.com/pders01/clawkeep/internal/models"
	"github.com/pders01/clawkeep/internal/testutil"
	"github.com/spf13/viper"
)

// setupWorkspace creates a workspace repository with a bare remote and
// points the global configuration at it
func setupWorkspace(t *testing.T) *testutil.TempGitRepo {
	t.Helper()

	repo := testutil.NewTempGitRepo(t)
	repo.AddRemote()

	state := t.TempDir()
	viper.Reset()
	config.SetDefaults(viper.GetViper())
	viper.Set("workspace.path", repo.Path)
	viper.Set("document.path", filepath.Join(state, "openclaw.json"))
	viper.Set("log.file", filepath.Join(state, "backup.log"))
	viper.Set("history.path", filepath.Join(state, "history.db"))
	t.Cleanup(viper.Reset)

	return repo
}

// rejectSnapshotPushes installs a remote hook that refuses snapshot branches
func rejectSnapshotPushes(t *testing.T, repo *testutil.TempGitRepo) {
	t.Helper()

	hook := `#!/bin/sh
while read old new ref; do
  case "$ref" in
    refs/heads/backup-*) echo "snapshots are not accepted here" >&2; exit 1 ;;
  esac
done
exit 0
`
	path := filepath.Join(repo.Remote, "hooks", "pre-receive")
	if err := os.WriteFile(path, []byte(hook), 0755); err != nil {
		t.Fatalf("failed to install hook: %v", err)
	}
}

func snapshotBranches(branches []string) []string {
	var out []string
	for _, b := range branches {
		if strings.HasPrefix(b, "backup-") {
			out = append(out, b)
		}
	}
	return out
}

func recordedRuns(t *testing.T) []models.Run {
	t.Helper()

	store, err := history.Open(viper.GetString("history.path"))
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	defer store.Close()

	runs, err := store.Recent(context.Background(), 100)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	return runs
}

func writeDocument(t *testing.T, content string) string {
	t.Helper()

	path := viper.GetString("document.path")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
	return path
}

func readDocument(t *testing.T) string {
	t.Helper()

	data, err := os.ReadFile(viper.GetString("document.path"))
	if err != nil {
		t.Fatalf("failed to read document: %v", err)
	}
	return string(data)
}
