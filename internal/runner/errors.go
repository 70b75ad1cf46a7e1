package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrToolMissing marks a program that could not be found.
	ErrToolMissing = errors.New("required program is missing")
	// ErrToolFailed marks a program that ran and exited unsuccessfully.
	ErrToolFailed = errors.New("program failed")
	// ErrInterrupted marks a wait cut short by a user interrupt.
	ErrInterrupted = errors.New("interrupted")
	// ErrWorkingDir marks a command whose working directory is unusable.
	ErrWorkingDir = errors.New("unusable working directory")
)

// StageError reports a classified failure of one operation.
type StageError struct {
	// Operation is the human description of what was attempted.
	Operation string
	// Class is one of ErrToolMissing, ErrToolFailed or ErrInterrupted.
	Class error
	// ExitCode is the child's exit status, -1 if it never exited normally.
	ExitCode int
	// Cause is the underlying error, if any.
	Cause error
}

func (e *StageError) Error() string {
	switch {
	case errors.Is(e.Class, ErrToolFailed) && e.ExitCode >= 0:
		return fmt.Sprintf("%s: %v (exit code %d)", e.Operation, e.Class, e.ExitCode)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v: %v", e.Operation, e.Class, e.Cause)
	default:
		return fmt.Sprintf("%s: %v", e.Operation, e.Class)
	}
}

// Unwrap exposes both the class and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Cause}
}

// IsInterrupt reports whether err stems from a user interrupt.
func IsInterrupt(err error) bool {
	return errors.Is(err, ErrInterrupted)
}
