package backup

import (
	"fmt"
	"time"

	"github.com/pders01/clawkeep/internal/models"
)

// Status classifies a finished cycle
type Status int

const (
	// StatusOK means every step that ran succeeded, including no-op cycles
	StatusOK Status = iota
	// StatusDegraded means the cycle completed with best-effort failures
	StatusDegraded
	// StatusFailed means a fatal step failed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StepError attributes a failure to a pipeline step
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As
func (e *StepError) Unwrap() error {
	return e.Err
}

// Result summarises one backup cycle
type Result struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	NoOp          bool
	Snapshot      string
	Committed     bool
	CommitMessage string
	PushAttempted bool
	Pushed        bool
	Pruned        []string
	Issues        []error
	Err           error
}

// Status returns the overall outcome
func (r *Result) Status() Status {
	switch {
	case r.Err != nil:
		return StatusFailed
	case len(r.Issues) > 0:
		return StatusDegraded
	default:
		return StatusOK
	}
}

// Record converts the result into a history record
func (r *Result) Record(id string) models.Run {
	run := models.Run{
		ID:         id,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Committed:  r.Committed,
		Pushed:     r.Pushed,
		Snapshot:   r.Snapshot,
		Pruned:     len(r.Pruned),
	}

	switch r.Status() {
	case StatusFailed:
		run.Status = models.RunFailed
	case StatusDegraded:
		run.Status = models.RunDegraded
	default:
		if r.NoOp {
			run.Status = models.RunNoOp
		} else {
			run.Status = models.RunOK
		}
	}

	for _, issue := range r.Issues {
		run.Issues = append(run.Issues, issue.Error())
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return run
}
