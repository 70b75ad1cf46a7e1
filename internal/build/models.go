package build

import (
	"slices"

	"github.com/ferricoxide/oxbuild/arch"
	"github.com/ferricoxide/oxbuild/internal/runner"
)

// Mode selects compiler optimizations.
type Mode string

const (
	ModeDebug   Mode = "debug"
	ModeRelease Mode = "release"
)

// String returns the mode as string. It doubles as the compiler's output
// directory name.
func (m Mode) String() string {
	return string(m)
}

// Action is one of the top level things a user can ask for.
type Action string

const (
	ActionBuild    Action = "build"
	ActionBoot     Action = "boot"
	ActionReformat Action = "reformat"
	ActionFix      Action = "fix"
)

// Pipeline identifies which pipeline a configuration selects.
type Pipeline string

const (
	PipelineNone     Pipeline = "none"
	PipelineReformat Pipeline = "reformat"
	PipelineFix      Pipeline = "fix"
	PipelineImage    Pipeline = "image"
)

// DefaultMemoryMB is the guest memory given to the emulator by default.
const DefaultMemoryMB = 128

// Configuration is the effective, read-only settings of one run.
type Configuration struct {
	// Root is the project checkout holding the kernel and prekernel crates.
	Root          string
	Architecture  arch.Architecture
	Mode          Mode
	MemoryMB      int
	ExtraQEMUArgs string
	Actions       []Action
}

// Has reports whether action was requested.
func (c Configuration) Has(action Action) bool {
	return slices.Contains(c.Actions, action)
}

// Pipeline resolves the requested actions into the single pipeline to run.
// Reformat wins over fix, and both win over build and boot.
func (c Configuration) Pipeline() Pipeline {
	switch {
	case c.Has(ActionReformat):
		return PipelineReformat
	case c.Has(ActionFix):
		return PipelineFix
	case c.Has(ActionBuild), c.Has(ActionBoot):
		return PipelineImage
	default:
		return PipelineNone
	}
}

// Result records what a pipeline run did.
type Result struct {
	BuildID  string
	Pipeline Pipeline
	States   []State
	Outcomes []runner.Outcome
	ISO      string
	Booted   bool
	// Inspection is set after a successful image build.
	Inspection *ISOInspection
}

// FinalState returns the last state the run reached.
func (r Result) FinalState() State {
	if len(r.States) == 0 {
		return StateIdle
	}
	return r.States[len(r.States)-1]
}
