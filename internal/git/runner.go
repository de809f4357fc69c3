package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrCommandFailed is matched by every *CommandError
var ErrCommandFailed = errors.New("git command failed")

// Runner executes an external command and returns its standard output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// NewExecRunner creates a new ExecRunner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner. The process is killed when ctx is done.
func (e *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cmdErr := &CommandError{
			Args:   append([]string{name}, args...),
			Output: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			cmdErr.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
			cmdErr.Err = errors.Join(err, ctxErr)
		}
		return stdout.String(), cmdErr
	}
	return stdout.String(), nil
}

// CommandError describes a failed or timed out command
type CommandError struct {
	Args     []string
	Output   string
	TimedOut bool
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.Join(e.Args, " ")
	if e.TimedOut {
		msg += " timed out"
	} else {
		msg += " failed"
	}
	if e.Output != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Output)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for use with errors.Is and errors.As
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCommandFailed) hold for every CommandError
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

// ExitCode returns the exit status of the process, or -1 when it did not
// exit normally
func (e *CommandError) ExitCode() int {
	return exitCode(e.Err)
}
