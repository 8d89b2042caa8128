package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
)

// Command describes one external process invocation.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// ProcessRunner runs a child process to completion. Implementations must kill
// the process once Timeout elapses and report it via ProcessResult.TimedOut.
// The returned error is reserved for failures to start the process at all.
type ProcessRunner interface {
	Run(ctx context.Context, cmd Command) (model.ProcessResult, error)
}
