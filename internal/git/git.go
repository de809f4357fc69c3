package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every git invocation when no timeout is configured
const DefaultTimeout = 2 * time.Minute

// Repo runs git commands against a single working tree
type Repo struct {
	dir     string
	timeout time.Duration
	runner  Runner
}

// Open returns a Repo for the working tree at dir
func Open(dir string, timeout time.Duration) *Repo {
	return OpenWithRunner(dir, timeout, NewExecRunner())
}

// OpenWithRunner returns a Repo that executes commands through runner
func OpenWithRunner(dir string, timeout time.Duration, runner Runner) *Repo {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Repo{dir: dir, timeout: timeout, runner: runner}
}

// Dir returns the working tree path
func (r *Repo) Dir() string {
	return r.dir
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	full := append([]string{"-C", r.dir}, args...)
	return r.runner.Run(ctx, "git", full...)
}

// IsRepo checks if the directory is a git repository
func (r *Repo) IsRepo(ctx context.Context) bool {
	_, err := r.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// CurrentBranch returns the current branch name
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	output, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// CurrentCommit returns the current commit hash
func (r *Repo) CurrentCommit(ctx context.Context) (string, error) {
	output, err := r.run(ctx, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current commit: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// Status returns the porcelain status lines of the working tree. An empty
// result means there is nothing to commit.
func (r *Repo) Status(ctx context.Context) ([]string, error) {
	output, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to check git status: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// DiffSummary returns `git diff --stat` for tracked changes
func (r *Repo) DiffSummary(ctx context.Context) (string, error) {
	output, err := r.run(ctx, "diff", "--stat")
	if err != nil {
		return "", fmt.Errorf("failed to get diff summary: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// StageAll stages every change including deletions and untracked files
func (r *Repo) StageAll(ctx context.Context) error {
	if _, err := r.run(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("failed to add files: %w", err)
	}
	return nil
}

// Commit creates a commit with the given message
func (r *Repo) Commit(ctx context.Context, message string) error {
	if _, err := r.run(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Push pushes a local branch to the same name on remote
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	refspec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	if _, err := r.run(ctx, "push", remote, refspec); err != nil {
		return fmt.Errorf("failed to push %s to %s: %w", branch, remote, err)
	}
	return nil
}

// CreateBranch creates a new branch at base without checking it out
func (r *Repo) CreateBranch(ctx context.Context, name, base string) error {
	if _, err := r.run(ctx, "branch", name, base); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	return nil
}

// BranchExists checks if a local branch exists
func (r *Repo) BranchExists(ctx context.Context, name string) bool {
	_, err := r.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// ListBranches returns all local branches matching a pattern
func (r *Repo) ListBranches(ctx context.Context, pattern string) ([]string, error) {
	output, err := r.run(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads/"+pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return splitLines(output), nil
}

// ListRemoteBranches returns the branches on remote whose name starts with
// prefix
func (r *Repo) ListRemoteBranches(ctx context.Context, remote, prefix string) ([]string, error) {
	output, err := r.run(ctx, "ls-remote", "--heads", remote, "refs/heads/"+prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list remote branches: %w", err)
	}

	var branches []string
	for _, line := range splitLines(output) {
		// <sha>\trefs/heads/<name>
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		name := strings.TrimPrefix(fields[1], "refs/heads/")
		if strings.HasPrefix(name, prefix) {
			branches = append(branches, name)
		}
	}
	return branches, nil
}

// DeleteBranch force-deletes a local branch
func (r *Repo) DeleteBranch(ctx context.Context, name string) error {
	if _, err := r.run(ctx, "branch", "-D", name); err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", name, err)
	}
	return nil
}

// DeleteRemoteBranch deletes a branch on remote
func (r *Repo) DeleteRemoteBranch(ctx context.Context, remote, name string) error {
	if _, err := r.run(ctx, "push", remote, "--delete", name); err != nil {
		return fmt.Errorf("failed to delete remote branch %s: %w", name, err)
	}
	return nil
}

// AheadOfRemote reports whether branch has commits that the remote-tracking
// ref <remote>/<branch> does not. A branch that was never pushed is ahead.
func (r *Repo) AheadOfRemote(ctx context.Context, remote, branch string) (bool, error) {
	tracking := fmt.Sprintf("refs/remotes/%s/%s", remote, branch)
	if _, err := r.run(ctx, "rev-parse", "--verify", "--quiet", tracking); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && !cmdErr.TimedOut && cmdErr.ExitCode() == 1 {
			return true, nil
		}
		return false, fmt.Errorf("failed to resolve %s: %w", tracking, err)
	}

	output, err := r.run(ctx, "rev-list", "--count", tracking+"..refs/heads/"+branch)
	if err != nil {
		return false, fmt.Errorf("failed to compare with %s: %w", tracking, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return false, fmt.Errorf("unexpected rev-list output %q: %w", output, err)
	}
	return n > 0, nil
}

func splitLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// exitCode extracts the process exit code from an exec error, or -1
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
