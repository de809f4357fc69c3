package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Mainline is the branch temp repositories start on
const Mainline = "working"

// TempGitRepo is a throwaway workspace repository for tests
type TempGitRepo struct {
	Path   string
	Remote string // path of the bare remote, empty until AddRemote
	T      *testing.T
}

// NewTempGitRepo creates a repository on the mainline branch with one
// initial commit
func NewTempGitRepo(t *testing.T) *TempGitRepo {
	t.Helper()

	repo := &TempGitRepo{Path: t.TempDir(), T: t}

	repo.Git("init", "--quiet")
	repo.Git("symbolic-ref", "HEAD", "refs/heads/"+Mainline)
	repo.Git("config", "user.name", "Test User")
	repo.Git("config", "user.email", "test@example.com")
	repo.Git("config", "commit.gpgsign", "false")

	repo.CreateFile("README.md", "# Test Workspace\n")
	repo.Commit("Initial commit")

	return repo
}

// AddRemote creates a bare repository and registers it as origin
func (r *TempGitRepo) AddRemote() string {
	r.T.Helper()

	r.Remote = filepath.Join(r.T.TempDir(), "remote.git")
	cmd := exec.Command("git", "init", "--quiet", "--bare", r.Remote)
	if output, err := cmd.CombinedOutput(); err != nil {
		r.T.Fatalf("failed to init bare remote: %v: %s", err, output)
	}
	r.Git("remote", "add", "origin", r.Remote)
	return r.Remote
}

// Git runs a git command in the repository and returns its output
func (r *TempGitRepo) Git(args ...string) string {
	r.T.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = r.Path
	output, err := cmd.CombinedOutput()
	if err != nil {
		r.T.Fatalf("git %s failed: %v: %s", strings.Join(args, " "), err, output)
	}
	return string(output)
}

// RemoteGit runs a git command against the bare remote
func (r *TempGitRepo) RemoteGit(args ...string) string {
	r.T.Helper()

	if r.Remote == "" {
		r.T.Fatal("repository has no remote")
	}
	cmd := exec.Command("git", append([]string{"--git-dir", r.Remote}, args...)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		r.T.Fatalf("remote git %s failed: %v: %s", strings.Join(args, " "), err, output)
	}
	return string(output)
}

// CreateFile creates a file in the repository
func (r *TempGitRepo) CreateFile(name, content string) {
	r.T.Helper()
	path := filepath.Join(r.Path, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.T.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.T.Fatalf("failed to create file: %v", err)
	}
}

// Commit stages and commits all changes
func (r *TempGitRepo) Commit(message string) {
	r.T.Helper()
	r.Git("add", "-A")
	r.Git("commit", "--quiet", "-m", message)
}

// CommitCount returns the number of commits reachable from ref
func (r *TempGitRepo) CommitCount(ref string) int {
	r.T.Helper()
	return len(lines(r.Git("rev-list", ref)))
}

// HeadCommit returns the hash HEAD points to
func (r *TempGitRepo) HeadCommit() string {
	r.T.Helper()
	return strings.TrimSpace(r.Git("rev-parse", "HEAD"))
}

// GetBranches returns all local branches in the repository
func (r *TempGitRepo) GetBranches() []string {
	r.T.Helper()
	return lines(r.Git("for-each-ref", "--format=%(refname:short)", "refs/heads/"))
}

// GetRemoteBranches returns all branches in the bare remote
func (r *TempGitRepo) GetRemoteBranches() []string {
	r.T.Helper()
	return lines(r.RemoteGit("for-each-ref", "--format=%(refname:short)", "refs/heads/"))
}

// BranchExists checks if a branch exists
func (r *TempGitRepo) BranchExists(branch string) bool {
	r.T.Helper()

	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", branch)
	cmd.Dir = r.Path
	return cmd.Run() == nil
}

// GetFileContent retrieves file content from a specific ref
func (r *TempGitRepo) GetFileContent(ref, file string) string {
	r.T.Helper()
	return r.Git("show", ref+":"+file)
}

// lines splits output into trimmed non-empty lines
func lines(output string) []string {
	var out []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
