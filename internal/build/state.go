package build

import "fmt"

// State is a position in the image pipeline.
type State string

const (
	StateIdle               State = "idle"
	StateDirectoryPrepared  State = "directory_prepared"
	StateKernelCompiled     State = "kernel_compiled"
	StateKernelAssembled    State = "kernel_assembled"
	StateKernelLinked       State = "kernel_linked"
	StateKernelObjectified  State = "kernel_objectified"
	StatePrekernelCompiled  State = "prekernel_compiled"
	StatePrekernelAssembled State = "prekernel_assembled"
	StatePrekernelLinked    State = "prekernel_linked"
	StateIsoMade            State = "iso_made"
	StateBooted             State = "booted"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// buildSequence is the fixed order of states a full build walks through.
var buildSequence = []State{
	StateIdle,
	StateDirectoryPrepared,
	StateKernelCompiled,
	StateKernelAssembled,
	StateKernelLinked,
	StateKernelObjectified,
	StatePrekernelCompiled,
	StatePrekernelAssembled,
	StatePrekernelLinked,
	StateIsoMade,
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s State) bool {
	return s == StateDone || s == StateFailed
}

func isAllowedTransition(from, to State) bool {
	if IsTerminal(from) {
		return false
	}
	if to == StateFailed {
		return true
	}
	switch from {
	case StateIdle:
		// Boot without a build starts from idle.
		if to == StateBooted || to == StateDone {
			return true
		}
	case StateIsoMade:
		return to == StateBooted || to == StateDone
	case StateBooted:
		return to == StateDone
	}
	for i := 0; i < len(buildSequence)-1; i++ {
		if buildSequence[i] == from {
			return buildSequence[i+1] == to
		}
	}
	return false
}

// Transition validates a single step of the pipeline state machine.
func Transition(from, to State) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed pipeline transition: %s -> %s", from, to)
	}
	return nil
}

// machine tracks the states a single run has visited.
type machine struct {
	current State
	visited []State
}

func newMachine() *machine {
	return &machine{current: StateIdle, visited: []State{StateIdle}}
}

// advance moves to the next state, refusing transitions the pipeline never makes.
func (m *machine) advance(to State) error {
	if err := Transition(m.current, to); err != nil {
		return err
	}
	m.current = to
	m.visited = append(m.visited, to)
	return nil
}

func (m *machine) fail() {
	if IsTerminal(m.current) {
		return
	}
	m.current = StateFailed
	m.visited = append(m.visited, StateFailed)
}

func (m *machine) states() []State {
	return append([]State(nil), m.visited...)
}
