package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/pders01/clawkeep/internal/models"
)

// PruneReport describes what a retention pass found and did
type PruneReport struct {
	Snapshots []string // all snapshots, oldest first
	Evicted   []string // snapshots selected for deletion
	Deleted   []string // snapshots actually deleted
	Failed    map[string]error
}

// Kept returns the snapshots that survive the pass
func (p PruneReport) Kept() []string {
	return p.Snapshots[len(p.Evicted):]
}

// Plan splits snapshot names into the ones to delete and the ones to keep.
// Names sort lexicographically, which is chronological for snapshot
// names, and the newest max are kept.
func Plan(prefix string, names []string, max int) (evict, keep []string) {
	sorted := models.SortSnapshotNames(prefix, names)
	if max < 0 {
		max = 0
	}
	if len(sorted) <= max {
		return nil, sorted
	}
	cut := len(sorted) - max
	return sorted[:cut], sorted[cut:]
}

// Snapshots lists snapshot names known locally or on the remote, oldest
// first
func (r *Rotator) Snapshots(ctx context.Context) (remote, local map[string]bool, sorted []string, err error) {
	remoteNames, err := r.vcs.ListRemoteBranches(ctx, r.opts.Remote, r.opts.Prefix)
	if err != nil {
		return nil, nil, nil, err
	}
	localNames, err := r.vcs.ListBranches(ctx, r.opts.Prefix+"*")
	if err != nil {
		return nil, nil, nil, err
	}

	remote = toSet(remoteNames)
	local = toSet(localNames)
	sorted = models.SortSnapshotNames(r.opts.Prefix, append(remoteNames, localNames...))
	return remote, local, sorted, nil
}

// PlanPrune computes the retention pass without deleting anything
func (r *Rotator) PlanPrune(ctx context.Context) (PruneReport, error) {
	_, _, sorted, err := r.Snapshots(ctx)
	if err != nil {
		return PruneReport{}, err
	}
	evict, _ := Plan(r.opts.Prefix, sorted, r.opts.Retention)
	return PruneReport{Snapshots: sorted, Evicted: evict}, nil
}

// Prune deletes the oldest snapshots beyond the retention count from the
// remote and from the local repository. Each deletion is independent: a
// failure is recorded and the remaining deletions still run.
func (r *Rotator) Prune(ctx context.Context) (PruneReport, error) {
	remote, local, sorted, err := r.Snapshots(ctx)
	if err != nil {
		return PruneReport{}, err
	}

	evict, _ := Plan(r.opts.Prefix, sorted, r.opts.Retention)
	report := PruneReport{
		Snapshots: sorted,
		Evicted:   evict,
		Failed:    map[string]error{},
	}
	if len(evict) == 0 {
		r.logger.Info("nothing to prune", "snapshots", len(sorted), "retention", r.opts.Retention)
		return report, nil
	}

	var errs []error
	for _, name := range evict {
		if err := r.deleteSnapshot(ctx, name, remote[name], local[name]); err != nil {
			r.logger.Warn("failed to delete snapshot", "snapshot", name, "error", err)
			report.Failed[name] = err
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		r.logger.Info("snapshot deleted", "snapshot", name)
		report.Deleted = append(report.Deleted, name)
	}

	return report, errors.Join(errs...)
}

func (r *Rotator) deleteSnapshot(ctx context.Context, name string, onRemote, onLocal bool) error {
	if onRemote {
		if err := r.vcs.DeleteRemoteBranch(ctx, r.opts.Remote, name); err != nil {
			return err
		}
	}
	if onLocal {
		if err := r.vcs.DeleteBranch(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
