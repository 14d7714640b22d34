package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghostline-ai/ghostline/internal/chapter"
	"github.com/ghostline-ai/ghostline/internal/workflow"
)

// Exit codes: 0 success, 1 generic failure, 2 a chapter failed its quality
// gates in strict mode, 3 a workflow run failed on an agent or provider
// error, 4 the run was cancelled.
const (
	exitOK        = 0
	exitFailure   = 1
	exitGate      = 2
	exitRun       = 3
	exitCancelled = 4
)

// runFailure marks an error as coming from a workflow run rather than from
// command plumbing, so main can report it with its own exit code.
type runFailure struct{ err error }

func (f *runFailure) Error() string { return f.err.Error() }
func (f *runFailure) Unwrap() error { return f.err }

func main() {
	// Signal handling gives in-flight workflows a chance to checkpoint
	// before the process exits.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var rf *runFailure
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, workflow.ErrCancelled), errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.Is(err, chapter.ErrGateFailed):
		return exitGate
	case errors.As(err, &rf):
		return exitRun
	default:
		return exitFailure
	}
}
