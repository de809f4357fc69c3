package backup

import (
	"context"
	"fmt"
)

// Policy says what a step failure means for the rest of the cycle
type Policy int

const (
	// Fatal failures abort the cycle
	Fatal Policy = iota
	// BestEffort failures are logged and the cycle continues
	BestEffort
)

func (p Policy) String() string {
	switch p {
	case Fatal:
		return "fatal"
	case BestEffort:
		return "best-effort"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Step is one stage of the backup pipeline
type Step struct {
	Name   string
	Policy Policy
	run    func(r *Rotator, ctx context.Context, c *cycle) error
}

// Step names
const (
	StepInspect  = "inspect"
	StepSnapshot = "snapshot"
	StepCommit   = "commit"
	StepPush     = "push"
	StepPrune    = "prune"
)

// Steps returns the pipeline in execution order. The snapshot is taken
// after inspection so a clean, in-sync workspace creates nothing, and
// before the commit so it captures the pre-change state.
func Steps() []Step {
	return []Step{
		{Name: StepInspect, Policy: Fatal, run: (*Rotator).inspect},
		{Name: StepSnapshot, Policy: BestEffort, run: (*Rotator).snapshot},
		{Name: StepCommit, Policy: Fatal, run: (*Rotator).commit},
		{Name: StepPush, Policy: Fatal, run: (*Rotator).push},
		{Name: StepPrune, Policy: BestEffort, run: (*Rotator).prune},
	}
}
