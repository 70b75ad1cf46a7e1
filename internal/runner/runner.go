package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gookit/color"

	"github.com/ferricoxide/oxbuild/internal/logging"
)

// Outcome describes how one command invocation ended.
type Outcome struct {
	Operation string
	Command   Command
	ExitCode  int
	// Class is nil on success, otherwise ErrToolMissing or ErrToolFailed.
	Class error
}

// Succeeded reports whether the command exited with status zero.
func (o Outcome) Succeeded() bool {
	return o.Class == nil
}

// Runner executes commands and classifies their failures. It never retries.
type Runner struct {
	Executor Executor
	Logger   *slog.Logger
	// Diagnostics receives the red failure lines. os.Stderr when nil.
	Diagnostics io.Writer
}

// New returns a Runner backed by an ExecExecutor on the process streams.
func New(logger *slog.Logger) *Runner {
	return &Runner{
		Executor: &ExecExecutor{},
		Logger:   logger,
	}
}

// Run executes cmd on behalf of operation.
//
// A failing command is reported on the diagnostics stream by operation name.
// When fatal is set the failure is returned as a *StageError; otherwise it is
// only reported and Run returns a nil error. Interrupts are always returned.
func (r *Runner) Run(ctx context.Context, operation string, cmd Command, fatal bool) (Outcome, error) {
	logger := logging.Ensure(r.Logger).With("operation", operation)
	logger.Debug("running command", "command", cmd.String(), "dir", cmd.Dir)

	outcome := Outcome{Operation: operation, Command: cmd}

	code, err := r.executor().Execute(ctx, cmd)
	outcome.ExitCode = code

	switch {
	case err != nil && (errors.Is(err, ErrInterrupted) || ctx.Err() != nil):
		return outcome, &StageError{Operation: operation, Class: ErrInterrupted, ExitCode: -1, Cause: err}
	case err != nil && errors.Is(err, ErrToolMissing):
		outcome.Class = ErrToolMissing
		r.report(fmt.Sprintf("Failed to %s. This indicates that the required program `%s` is missing on your machine.", operation, cmd.Program))
	case err != nil:
		outcome.Class = ErrToolFailed
		r.report(fmt.Sprintf("Failed to %s: %v", operation, err))
	case code != 0:
		outcome.Class = ErrToolFailed
		r.report(fmt.Sprintf("Failed to %s. Return code: %d", operation, code))
	default:
		logger.Debug("command succeeded")
		return outcome, nil
	}

	stageErr := &StageError{Operation: operation, Class: outcome.Class, ExitCode: code, Cause: err}
	if fatal {
		logger.Error("fatal stage failure", "error", stageErr)
		return outcome, stageErr
	}

	logger.Warn("continuing after non-fatal failure", "error", stageErr)
	return outcome, nil
}

func (r *Runner) executor() Executor {
	if r.Executor != nil {
		return r.Executor
	}
	return &ExecExecutor{}
}

func (r *Runner) report(message string) {
	w := r.Diagnostics
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintln(w, color.Danger.Sprint(message))
}
