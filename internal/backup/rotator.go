// Package backup runs the workspace backup cycle: snapshot the committed
// state into a retained branch, commit and push pending changes to the
// mainline, and prune snapshots beyond the retention count.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/pders01/clawkeep/internal/models"
)

// ErrNoChanges ends a cycle early when the workspace is clean and the
// mainline is in sync with the remote. It is not reported as a failure.
var ErrNoChanges = errors.New("no changes to back up")

// VCS is the version-control surface the rotator depends on
type VCS interface {
	CurrentBranch(ctx context.Context) (string, error)
	CurrentCommit(ctx context.Context) (string, error)
	Status(ctx context.Context) ([]string, error)
	DiffSummary(ctx context.Context) (string, error)
	StageAll(ctx context.Context) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, remote, branch string) error
	AheadOfRemote(ctx context.Context, remote, branch string) (bool, error)
	CreateBranch(ctx context.Context, name, base string) error
	BranchExists(ctx context.Context, name string) bool
	ListBranches(ctx context.Context, pattern string) ([]string, error)
	ListRemoteBranches(ctx context.Context, remote, prefix string) ([]string, error)
	DeleteBranch(ctx context.Context, name string) error
	DeleteRemoteBranch(ctx context.Context, remote, name string) error
}

// Options configures a Rotator
type Options struct {
	Remote    string
	Mainline  string
	Prefix    string
	Retention int
}

// Validate checks that the options describe a usable cycle
func (o Options) Validate() error {
	if o.Remote == "" {
		return fmt.Errorf("remote must not be empty")
	}
	if o.Mainline == "" {
		return fmt.Errorf("mainline branch must not be empty")
	}
	if o.Prefix == "" {
		return fmt.Errorf("snapshot prefix must not be empty")
	}
	if o.Retention < 1 {
		return fmt.Errorf("retention must be at least 1 (got %d)", o.Retention)
	}
	return nil
}

// Rotator performs backup cycles over one workspace
type Rotator struct {
	vcs    VCS
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewRotator creates a Rotator
func NewRotator(vcs VCS, opts Options, logger *slog.Logger) (*Rotator, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backup options: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Rotator{
		vcs:    vcs,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetClock replaces the time source used for snapshot names and commit
// messages
func (r *Rotator) SetClock(now func() time.Time) {
	r.now = now
}

// cycle is the state shared by the steps of one run
type cycle struct {
	result     *Result
	changes    []string
	pendingRef bool // mainline ahead of remote with a clean tree
}

// Run executes one backup cycle. The returned error is non-nil only when a
// fatal step failed; best-effort failures are reported in Result.Issues.
func (r *Rotator) Run(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: r.now()}
	c := &cycle{result: result}

	r.logger.Info("backup cycle started", "remote", r.opts.Remote, "mainline", r.opts.Mainline)

	var runErr error
	for _, step := range Steps() {
		err := r.runStep(ctx, step, c)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrNoChanges) {
			result.NoOp = true
			r.logger.Info("no changes, skipping backup")
			break
		}
		if step.Policy == BestEffort {
			r.logger.Warn("step failed, continuing", "step", step.Name, "error", err)
			result.Issues = append(result.Issues, &StepError{Step: step.Name, Err: err})
			continue
		}
		r.logger.Error("step failed, aborting cycle", "step", step.Name, "error", err)
		runErr = &StepError{Step: step.Name, Err: err}
		result.Err = runErr
		break
	}

	result.FinishedAt = r.now()
	r.logSummary(result)
	return result, runErr
}

// runStep runs one step, converting a panic into an error
func (r *Rotator) runStep(ctx context.Context, step Step, c *cycle) error {
	var err error
	if recovered := panics.Try(func() { err = step.run(r, ctx, c) }); recovered != nil {
		return recovered.AsError()
	}
	return err
}

func (r *Rotator) inspect(ctx context.Context, c *cycle) error {
	branch, err := r.vcs.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if branch != r.opts.Mainline {
		return fmt.Errorf("workspace is on branch %s, expected %s", branch, r.opts.Mainline)
	}

	changes, err := r.vcs.Status(ctx)
	if err != nil {
		return err
	}
	c.changes = changes

	if len(changes) == 0 {
		ahead, err := r.vcs.AheadOfRemote(ctx, r.opts.Remote, r.opts.Mainline)
		if err != nil {
			return err
		}
		if !ahead {
			return ErrNoChanges
		}
		c.pendingRef = true
		r.logger.Info("working tree clean but mainline has unpushed commits")
		return nil
	}

	r.logger.Info("changes detected", "files", len(changes))
	if summary, err := r.vcs.DiffSummary(ctx); err != nil {
		r.logger.Warn("failed to get diff summary", "error", err)
	} else if summary != "" {
		r.logger.Info("change summary: " + strings.ReplaceAll(summary, "\n", "; "))
	}
	return nil
}

func (r *Rotator) snapshot(ctx context.Context, c *cycle) error {
	snap, err := r.createSnapshot(ctx)
	if err != nil {
		return err
	}
	c.result.Snapshot = snap.Name
	return nil
}

// CreateSnapshot creates a snapshot branch at HEAD and pushes it
func (r *Rotator) CreateSnapshot(ctx context.Context) (models.Snapshot, error) {
	return r.createSnapshot(ctx)
}

func (r *Rotator) createSnapshot(ctx context.Context) (models.Snapshot, error) {
	commit, err := r.vcs.CurrentCommit(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}

	created := r.now()
	name := models.SnapshotName(r.opts.Prefix, created, func(name string) bool {
		return r.vcs.BranchExists(ctx, name)
	})

	if err := r.vcs.CreateBranch(ctx, name, commit); err != nil {
		return models.Snapshot{}, err
	}
	if err := r.vcs.Push(ctx, r.opts.Remote, name); err != nil {
		return models.Snapshot{}, err
	}

	r.logger.Info("snapshot created", "snapshot", name, "commit", shortHash(commit))
	return models.Snapshot{Name: name, Commit: commit, CreatedAt: created}, nil
}

func (r *Rotator) commit(ctx context.Context, c *cycle) error {
	if len(c.changes) == 0 {
		return nil
	}
	if err := r.vcs.StageAll(ctx); err != nil {
		return err
	}

	message := CommitMessage(r.now())
	if err := r.vcs.Commit(ctx, message); err != nil {
		return err
	}
	c.result.Committed = true
	c.result.CommitMessage = message
	r.logger.Info("commit created", "message", message)
	return nil
}

func (r *Rotator) push(ctx context.Context, c *cycle) error {
	c.result.PushAttempted = true
	if err := r.vcs.Push(ctx, r.opts.Remote, r.opts.Mainline); err != nil {
		if c.result.Committed {
			r.logger.Warn("local commit kept, push will be retried next cycle")
		}
		return err
	}
	c.result.Pushed = true
	r.logger.Info("pushed", "remote", r.opts.Remote, "branch", r.opts.Mainline)
	return nil
}

func (r *Rotator) prune(ctx context.Context, c *cycle) error {
	report, err := r.Prune(ctx)
	c.result.Pruned = report.Deleted
	if err != nil {
		return err
	}
	return nil
}

// CommitMessage is the message of a backup commit made at t
func CommitMessage(t time.Time) string {
	return "backup: " + t.Format("2006-01-02 15:04")
}

func (r *Rotator) logSummary(result *Result) {
	r.logger.Info("backup cycle finished",
		"status", result.Status(),
		"committed", result.Committed,
		"pushed", result.Pushed,
		"snapshot", result.Snapshot,
		"pruned", len(result.Pruned),
		"issues", len(result.Issues),
		"duration", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond),
	)
}

func shortHash(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
