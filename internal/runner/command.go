package runner

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command is a program invocation with an explicit argument vector and
// working directory. An empty Dir runs in the current directory.
type Command struct {
	Program string
	Args    []string
	Dir     string
}

// NewCommand returns a Command running program with args.
func NewCommand(program string, args ...string) Command {
	return Command{Program: program, Args: args}
}

// In returns a copy of c that runs in dir.
func (c Command) In(dir string) Command {
	c.Dir = dir
	return c
}

// With returns a copy of c with args appended.
func (c Command) With(args ...string) Command {
	c.Args = append(append([]string(nil), c.Args...), args...)
	return c
}

// Argv returns the full argument vector, program first.
func (c Command) Argv() []string {
	return append([]string{c.Program}, c.Args...)
}

// String renders the command line with arguments quoted where needed. It is
// meant for logs; Parse(c.String()) yields the same argument vector.
func (c Command) String() string {
	return shellquote.Join(c.Argv()...)
}

// Parse splits a command line into a Command using shell word rules.
func Parse(line string) (Command, error) {
	argv, err := SplitArgs(line)
	if err != nil {
		return Command{}, err
	}
	if len(argv) == 0 {
		return Command{}, fmt.Errorf("empty command line")
	}
	return Command{Program: argv[0], Args: argv[1:]}, nil
}

// SplitArgs splits s into words following shell quoting rules. Shell
// operators, environment variables and backticks are ordinary text since
// no shell ever sees the result.
func SplitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	args, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("split %q: %w", s, err)
	}
	return args, nil
}
