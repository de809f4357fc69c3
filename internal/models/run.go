package models

import "time"

// RunStatus is the outcome of one backup cycle
type RunStatus string

const (
	RunOK       RunStatus = "ok"
	RunNoOp     RunStatus = "no-op"
	RunDegraded RunStatus = "degraded"
	RunFailed   RunStatus = "failed"
)

// Run is the persisted record of a backup cycle
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     RunStatus `json:"status"`
	Committed  bool      `json:"committed"`
	Pushed     bool      `json:"pushed"`
	Snapshot   string    `json:"snapshot,omitempty"`
	Pruned     int       `json:"pruned"`
	Issues     []string  `json:"issues,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the cycle took
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
