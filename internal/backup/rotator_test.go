package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

var testOptions = Options{
	Remote:    "origin",
	Mainline:  "working",
	Prefix:    "backup-",
	Retention: 7,
}

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestRotator(t *testing.T, vcs VCS, opts Options) (*Rotator, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	r, err := NewRotator(vcs, opts, logger)
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	clock := &testClock{t: time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)}
	r.SetClock(clock.now)
	return r, &logs
}

func TestStepPolicies(t *testing.T) {
	want := map[string]Policy{
		StepInspect:  Fatal,
		StepSnapshot: BestEffort,
		StepCommit:   Fatal,
		StepPush:     Fatal,
		StepPrune:    BestEffort,
	}

	var order []string
	for _, step := range Steps() {
		order = append(order, step.Name)
		if step.Policy != want[step.Name] {
			t.Errorf("step %s: expected %s, got %s", step.Name, want[step.Name], step.Policy)
		}
	}

	wantOrder := []string{StepInspect, StepSnapshot, StepCommit, StepPush, StepPrune}
	if !reflect.DeepEqual(order, wantOrder) {
		t.Errorf("expected order %v, got %v", wantOrder, order)
	}
}

func TestRunNoChanges(t *testing.T) {
	vcs := newFakeVCS("working")
	vcs.seedSnapshots("backup-2024-01-01", "backup-2024-01-02")
	r, logs := newTestRotator(t, vcs, Options{Remote: "origin", Mainline: "working", Prefix: "backup-", Retention: 1})

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !result.NoOp {
		t.Error("expected no-op cycle")
	}
	if result.Status() != StatusOK {
		t.Errorf("expected ok, got %s", result.Status())
	}
	for _, call := range []string{"Commit", "Push", "CreateBranch", "DeleteRemoteBranch", "DeleteBranch"} {
		if n := vcs.count(call); n != 0 {
			t.Errorf("expected no %s calls, got %d", call, n)
		}
	}
	if !strings.Contains(logs.String(), "no changes") {
		t.Errorf("expected no changes to be logged, got:\n%s", logs.String())
	}
}

func TestRunCommitsAndPushes(t *testing.T) {
	vcs := newFakeVCS("working")
	vcs.dirty = []string{" M MEMORY.md", "?? notes/"}
	vcs.diffStats = " MEMORY.md | 2 +-\n 1 file changed"
	r, logs := newTestRotator(t, vcs, testOptions)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !result.Committed || !result.Pushed {
		t.Errorf("expected commit and push, got %+v", result)
	}
	if result.Status() != StatusOK {
		t.Errorf("expected ok, got %s (%v)", result.Status(), result.Issues)
	}
	if len(vcs.commits) != 1 || vcs.commits[0] != "backup: 2024-03-01 09:30" {
		t.Errorf("unexpected commits %v", vcs.commits)
	}
	if result.CommitMessage != vcs.commits[0] {
		t.Errorf("result message %q differs from commit %q", result.CommitMessage, vcs.commits[0])
	}

	// snapshot points at the pre-change commit and is on the remote
	if result.Snapshot == "" {
		t.Fatal("expected a snapshot")
	}
	if vcs.local[result.Snapshot] != 1 || vcs.pushed[result.Snapshot] != 1 {
		t.Errorf("snapshot should capture commit 1, local=%d remote=%d",
			vcs.local[result.Snapshot], vcs.pushed[result.Snapshot])
	}
	if vcs.pushed["working"] != 2 {
		t.Errorf("expected mainline pushed at commit 2, got %d", vcs.pushed["working"])
	}

	createIdx, commitIdx := indexOf(vcs.calls, "CreateBranch:"+result.Snapshot), indexOf(vcs.calls, "Commit")
	if createIdx < 0 || commitIdx < 0 || createIdx > commitIdx {
		t.Errorf("snapshot must be created before the commit, calls: %v", vcs.calls)
	}

	if !strings.Contains(logs.String(), "MEMORY.md | 2 +-") {
		t.Errorf("expected diff summary in log, got:\n%s", logs.String())
	}
}

func TestRunSnapshotFailureContinues(t *testing.T) {
	vcs := newFakeVCS("working")
	vcs.dirty = []string{" M a.txt"}
	vcs.failOn["CreateBranch"] = errors.New("cannot lock ref")
	r, _ := newTestRotator(t, vcs, testOptions)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("snapshot failure must not be fatal: %v", err)
	}

	if !result.Committed || !result.Pushed {
		t.Errorf("expected commit and push despite snapshot failure, got %+v", result)
	}
	if result.Status() != StatusDegraded {
		t.Errorf("expected degraded, got %s", result.Status())
	}
	if len(result.Issues) != 1 {
		t.Fatalf("expected one issue, got %v", result.Issues)
	}
	var stepErr *StepError
	if !errors.As(result.Issues[0], &stepErr) || stepErr.Step != StepSnapshot {
		t.Errorf("expected snapshot step error, got %v", result.Issues[0])
	}
}

func TestRunCommitFailureIsFatal(t *testing.T) {
	vcs := newFakeVCS("working")
	vcs.dirty = []string{" M a.txt"}
	vcs.failOn["Commit"] = errors.New("hook rejected commit")
	r, _ := newTestRotator(t, vcs, testOptions)

	result, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected commit failure to be fatal")
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepCommit {
		t.Errorf("expected commit step error, got %v", err)
	}
	if result.Status() != StatusFailed {
		t.Errorf("expected failed, got %s", result.Status())
	}
	if vcs.count("Push:working") != 0 {
		t.Error("push must not run after a failed commit")
	}
	if vcs.count("ListRemoteBranches") != 0 {
		t.Error("prune must not run after a failed commit")
	}
}

func TestRunPushFailureThenRetry(t *testing.T) {
	vcs := newFakeVCS("working")
	vcs.dirty = []string{" M a.txt"}
	vcs.failOn["Push:working"] = errors.New("could not resolve host")
	r, _ := newTestRotator(t, vcs, testOptions)

	result, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected push failure to be fatal")
	}
	if !result.Committed || result.Pushed {
		t.Errorf("expected local commit without push, got %+v", result)
	}
	if vcs.local["working"] != 2 {
		t.Errorf("local commit should persist, head=%d", vcs.local["working"])
	}
	if vcs.count("ListRemoteBranches") != 0 {
		t.Error("prune must not run after a failed push")
	}

	// network is back; nothing new in the working tree
	delete(vcs.failOn, "Push:working")
	result, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if result.NoOp {
		t.Error("unpushed commit must not be treated as a no-op")
	}
	if result.Committed {
		t.Error("retry must not create another commit")
	}
	if len(vcs.commits) != 1 {
		t.Errorf("expected exactly one commit, got %v", vcs.commits)
	}
	if !result.Pushed || vcs.pushed["working"] != 2 {
		t.Errorf("expected retry to push commit 2, got pushed=%v remote=%d", result.Pushed, vcs.pushed["working"])
	}

	// third run is a true no-op
	result, err = r.Run(context.Background())
	if err != nil || !result.NoOp {
		t.Errorf("expected no-op after successful retry, got %+v, %v", result, err)
	}
}

func TestRunPrunesToRetention(t *testing.T) {
	vcs := newFakeVCS("working")
	var seeded []string
	for day := 1; day <= 10; day++ {
		seeded = append(seeded, fmt.Sprintf("backup-2024-01-%02d", day))
	}
	vcs.seedSnapshots(seeded...)
	vcs.dirty = []string{" M a.txt"}
	r, _ := newTestRotator(t, vcs, testOptions)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	remaining := vcs.remoteSnapshots("backup-")
	if len(remaining) != testOptions.Retention {
		t.Fatalf("expected %d snapshots, got %d: %v", testOptions.Retention, len(remaining), remaining)
	}

	// the new snapshot is the most recent; the four oldest are gone
	want := append(append([]string(nil), seeded[4:]...), result.Snapshot)
	if !reflect.DeepEqual(remaining, want) {
		t.Errorf("expected %v, got %v", want, remaining)
	}
	if !reflect.DeepEqual(result.Pruned, seeded[:4]) {
		t.Errorf("expected pruned %v, got %v", seeded[:4], result.Pruned)
	}
	for _, name := range seeded[:4] {
		if _, ok := vcs.local[name]; ok {
			t.Errorf("local copy of %s not deleted", name)
		}
	}
}

func TestRunPruneFailureContinues(t *testing.T) {
	vcs := newFakeVCS("working")
	vcs.seedSnapshots("backup-a", "backup-b", "backup-c", "backup-d")
	vcs.dirty = []string{" M a.txt"}
	vcs.failOn["DeleteRemoteBranch:backup-a"] = errors.New("permission denied")
	opts := testOptions
	opts.Retention = 2
	r, _ := newTestRotator(t, vcs, opts)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("prune failures must not be fatal: %v", err)
	}
	if result.Status() != StatusDegraded {
		t.Errorf("expected degraded, got %s", result.Status())
	}

	// digits sort before letters, so this cycle's snapshot is the oldest
	wantPruned := []string{result.Snapshot, "backup-b"}
	if !reflect.DeepEqual(result.Pruned, wantPruned) {
		t.Errorf("expected %v deleted despite one failure, got %v", wantPruned, result.Pruned)
	}
	if _, ok := vcs.pushed["backup-a"]; !ok {
		t.Error("failed deletion should leave backup-a on the remote")
	}
	if vcs.count("DeleteRemoteBranch") != 3 {
		t.Errorf("expected all three deletions attempted, got %d", vcs.count("DeleteRemoteBranch"))
	}
}

func TestRunWrongBranchIsFatal(t *testing.T) {
	vcs := newFakeVCS("working")
	vcs.branch = "feature"
	vcs.dirty = []string{" M a.txt"}
	r, _ := newTestRotator(t, vcs, testOptions)

	_, err := r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "expected working") {
		t.Errorf("expected wrong-branch error, got %v", err)
	}
	if vcs.count("Commit") != 0 {
		t.Error("must not commit on the wrong branch")
	}
}

func TestRunRecoversPanickingStep(t *testing.T) {
	vcs := newFakeVCS("working")
	vcs.dirty = []string{" M a.txt"}
	vcs.panicOn = "CurrentCommit"
	r, _ := newTestRotator(t, vcs, testOptions)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("panic in best-effort snapshot step must not be fatal: %v", err)
	}
	if len(result.Issues) != 1 || !strings.Contains(result.Issues[0].Error(), "boom") {
		t.Errorf("expected recovered panic as issue, got %v", result.Issues)
	}
	if !result.Pushed {
		t.Error("expected the cycle to continue to push")
	}
}

func TestSnapshotNameCollision(t *testing.T) {
	vcs := newFakeVCS("working")
	r, _ := newTestRotator(t, vcs, testOptions)
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	r.SetClock(func() time.Time { return fixed })

	first, err := r.CreateSnapshot(context.Background())
	if err != nil {
		t.Fatalf("first snapshot failed: %v", err)
	}
	second, err := r.CreateSnapshot(context.Background())
	if err != nil {
		t.Fatalf("second snapshot failed: %v", err)
	}

	if first.Name == second.Name {
		t.Fatalf("snapshots in the same second collided: %s", first.Name)
	}
	if second.Name != first.Name+"-2" {
		t.Errorf("expected %s-2, got %s", first.Name, second.Name)
	}
	if first.Name >= second.Name {
		t.Errorf("names must sort chronologically: %s >= %s", first.Name, second.Name)
	}
}

func TestNewRotatorValidates(t *testing.T) {
	bad := testOptions
	bad.Retention = 0
	if _, err := NewRotator(newFakeVCS("working"), bad, nil); err == nil {
		t.Error("expected error for zero retention")
	}
}

func TestResultRecord(t *testing.T) {
	res := &Result{NoOp: true}
	if got := res.Record("id").Status; got != "no-op" {
		t.Errorf("expected no-op, got %s", got)
	}

	res = &Result{Committed: true, Pushed: true, Issues: []error{errors.New("x")}, Pruned: []string{"a"}}
	rec := res.Record("id")
	if rec.Status != "degraded" || rec.Pruned != 1 || len(rec.Issues) != 1 {
		t.Errorf("unexpected record %+v", rec)
	}

	res = &Result{Err: errors.New("push failed")}
	if rec := res.Record("id"); rec.Status != "failed" || rec.Error != "push failed" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}
