package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SnapshotLayout is the timestamp embedded in snapshot names. It sorts
// lexicographically in chronological order.
const SnapshotLayout = "2006-01-02-150405"

// Snapshot is a retained backup branch
type Snapshot struct {
	Name      string
	Commit    string
	CreatedAt time.Time
}

// SnapshotName generates a snapshot branch name for timestamp.
// Format: <prefix>YYYY-MM-DD-HHMMSS
// exists reports names already taken; a collision within the same second
// gets a -2, -3, ... suffix, which still sorts after the bare name and
// before the next second.
func SnapshotName(prefix string, timestamp time.Time, exists func(string) bool) string {
	base := prefix + timestamp.Format(SnapshotLayout)
	if exists == nil || !exists(base) {
		return base
	}
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s-%d", base, n)
		if !exists(name) {
			return name
		}
	}
}

// ParseSnapshotName extracts the creation time from a snapshot name
func ParseSnapshotName(prefix, name string) (time.Time, error) {
	if !strings.HasPrefix(name, prefix) {
		return time.Time{}, fmt.Errorf("not a snapshot branch: %s", name)
	}
	rest := strings.TrimPrefix(name, prefix)
	if len(rest) < len(SnapshotLayout) {
		return time.Time{}, fmt.Errorf("invalid snapshot name: %s", name)
	}
	stamp, suffix := rest[:len(SnapshotLayout)], rest[len(SnapshotLayout):]
	if suffix != "" && !strings.HasPrefix(suffix, "-") {
		return time.Time{}, fmt.Errorf("invalid snapshot name: %s", name)
	}
	t, err := time.ParseInLocation(SnapshotLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: %w", err)
	}
	return t, nil
}

// SortSnapshotNames sorts names oldest first and drops duplicates and
// names without the prefix.
func SortSnapshotNames(prefix string, names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
