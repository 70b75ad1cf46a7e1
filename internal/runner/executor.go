package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultWaitDelay bounds how long a child may keep running after it was
// asked to stop.
const DefaultWaitDelay = 5 * time.Second

// Executor starts a command and waits for it. A nonzero exit status is
// reported through the exit code, not as an error; errors are reserved for
// commands that could not run or were interrupted.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (exitCode int, err error)
}

// ExecExecutor runs commands as child processes attached to the given
// streams. Nil streams fall back to the process's own.
type ExecExecutor struct {
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	WaitDelay time.Duration
}

var _ Executor = (*ExecExecutor)(nil)

// Execute runs cmd to completion. When ctx is cancelled the child receives
// SIGINT, mirroring what a terminal delivers on Ctrl+C.
func (e *ExecExecutor) Execute(ctx context.Context, cmd Command) (int, error) {
	if cmd.Program == "" {
		return -1, errors.New("no program provided")
	}
	if cmd.Dir != "" {
		info, err := os.Stat(cmd.Dir)
		if err != nil {
			return -1, fmt.Errorf("%w %q: %v", ErrWorkingDir, cmd.Dir, err)
		}
		if !info.IsDir() {
			return -1, fmt.Errorf("%w %q: not a directory", ErrWorkingDir, cmd.Dir)
		}
	}

	child := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	child.Dir = cmd.Dir
	child.Stdin = firstReader(e.Stdin, os.Stdin)
	child.Stdout = firstWriter(e.Stdout, os.Stdout)
	child.Stderr = firstWriter(e.Stderr, os.Stderr)
	child.Cancel = func() error {
		return child.Process.Signal(unix.SIGINT)
	}
	child.WaitDelay = e.WaitDelay
	if child.WaitDelay <= 0 {
		child.WaitDelay = DefaultWaitDelay
	}

	err := child.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, fmt.Errorf("%w: %w", ErrInterrupted, ctxErr)
	}
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if isMissingProgram(err, cmd.Program) {
		return -1, fmt.Errorf("%w: %s: %w", ErrToolMissing, cmd.Program, err)
	}
	return -1, err
}

func isMissingProgram(err error, program string) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Path == program {
		return errors.Is(pathErr.Err, fs.ErrNotExist)
	}
	return false
}

func firstReader(r, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func firstWriter(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
