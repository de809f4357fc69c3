package backup

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// fakeVCS is an in-memory workspace with a single remote
type fakeVCS struct {
	branch  string
	head    int // commit counter; 0 means no commits
	dirty   []string
	pushed  map[string]int // remote branches -> commit
	local   map[string]int // local branches -> commit
	commits []string       // commit messages

	failOn    map[string]error // method name or "method:arg" -> error
	panicOn   string
	calls     []string
	diffStats string
}

func newFakeVCS(mainline string) *fakeVCS {
	return &fakeVCS{
		branch: mainline,
		head:   1,
		pushed: map[string]int{mainline: 1},
		local:  map[string]int{mainline: 1},
		failOn: map[string]error{},
	}
}

func (f *fakeVCS) call(name string, args ...string) error {
	key := name
	if len(args) > 0 {
		key = name + ":" + strings.Join(args, ",")
	}
	f.calls = append(f.calls, key)
	if f.panicOn == name {
		panic("boom in " + name)
	}
	if err, ok := f.failOn[key]; ok {
		return err
	}
	if err, ok := f.failOn[name]; ok {
		return err
	}
	return nil
}

func (f *fakeVCS) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name || strings.HasPrefix(c, name+":") {
			n++
		}
	}
	return n
}

func (f *fakeVCS) CurrentBranch(ctx context.Context) (string, error) {
	if err := f.call("CurrentBranch"); err != nil {
		return "", err
	}
	return f.branch, nil
}

func (f *fakeVCS) CurrentCommit(ctx context.Context) (string, error) {
	if err := f.call("CurrentCommit"); err != nil {
		return "", err
	}
	if f.head == 0 {
		return "", fmt.Errorf("no commits yet")
	}
	return fmt.Sprintf("c%039d", f.head), nil
}

func (f *fakeVCS) Status(ctx context.Context) ([]string, error) {
	if err := f.call("Status"); err != nil {
		return nil, err
	}
	return append([]string(nil), f.dirty...), nil
}

func (f *fakeVCS) DiffSummary(ctx context.Context) (string, error) {
	if err := f.call("DiffSummary"); err != nil {
		return "", err
	}
	return f.diffStats, nil
}

func (f *fakeVCS) StageAll(ctx context.Context) error {
	return f.call("StageAll")
}

func (f *fakeVCS) Commit(ctx context.Context, message string) error {
	if err := f.call("Commit"); err != nil {
		return err
	}
	if len(f.dirty) == 0 {
		return fmt.Errorf("nothing to commit, working tree clean")
	}
	f.head++
	f.local[f.branch] = f.head
	f.dirty = nil
	f.commits = append(f.commits, message)
	return nil
}

func (f *fakeVCS) Push(ctx context.Context, remote, branch string) error {
	if err := f.call("Push", branch); err != nil {
		return err
	}
	commit, ok := f.local[branch]
	if !ok {
		return fmt.Errorf("src refspec %s does not match any", branch)
	}
	f.pushed[branch] = commit
	return nil
}

func (f *fakeVCS) AheadOfRemote(ctx context.Context, remote, branch string) (bool, error) {
	if err := f.call("AheadOfRemote"); err != nil {
		return false, err
	}
	pushed, ok := f.pushed[branch]
	return !ok || pushed != f.local[branch], nil
}

func (f *fakeVCS) CreateBranch(ctx context.Context, name, base string) error {
	if err := f.call("CreateBranch", name); err != nil {
		return err
	}
	if _, ok := f.local[name]; ok {
		return fmt.Errorf("a branch named '%s' already exists", name)
	}
	f.local[name] = f.head
	return nil
}

func (f *fakeVCS) BranchExists(ctx context.Context, name string) bool {
	_, ok := f.local[name]
	return ok
}

func (f *fakeVCS) ListBranches(ctx context.Context, pattern string) ([]string, error) {
	if err := f.call("ListBranches"); err != nil {
		return nil, err
	}
	return f.names(f.local, strings.TrimSuffix(pattern, "*")), nil
}

func (f *fakeVCS) ListRemoteBranches(ctx context.Context, remote, prefix string) ([]string, error) {
	if err := f.call("ListRemoteBranches"); err != nil {
		return nil, err
	}
	return f.names(f.pushed, prefix), nil
}

func (f *fakeVCS) DeleteBranch(ctx context.Context, name string) error {
	if err := f.call("DeleteBranch", name); err != nil {
		return err
	}
	delete(f.local, name)
	return nil
}

func (f *fakeVCS) DeleteRemoteBranch(ctx context.Context, remote, name string) error {
	if err := f.call("DeleteRemoteBranch", name); err != nil {
		return err
	}
	delete(f.pushed, name)
	return nil
}

func (f *fakeVCS) names(m map[string]int, prefix string) []string {
	var out []string
	for name := range m {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	// real git output order is not guaranteed to be chronological
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

func (f *fakeVCS) seedSnapshots(names ...string) {
	for _, name := range names {
		f.local[name] = f.head
		f.pushed[name] = f.head
	}
}

func (f *fakeVCS) remoteSnapshots(prefix string) []string {
	out := f.names(f.pushed, prefix)
	sort.Strings(out)
	return out
}
