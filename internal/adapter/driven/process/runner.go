// Package process runs external tools as bounded child processes.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProcessRunner = (*Runner)(nil)

// waitDelay bounds how long Wait blocks on output pipes after the process is
// killed, in case it left grandchildren holding them open.
const waitDelay = 2 * time.Second

// Runner is the os/exec implementation of driven.ProcessRunner.
type Runner struct{}

// NewRunner creates a new Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run starts the command and waits for it to exit or time out. A timed-out
// process is killed and reported with TimedOut set and ExitCode -1.
func (r *Runner) Run(ctx context.Context, cmd driven.Command) (model.ProcessResult, error) {
	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	c.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	if err := c.Start(); err != nil {
		return model.ProcessResult{}, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	waitErr := c.Wait()

	res := model.ProcessResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case waitErr == nil:
		res.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		res.ExitCode = -1
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}

	return res, nil
}
