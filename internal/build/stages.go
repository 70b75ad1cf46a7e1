package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ferricoxide/oxbuild/arch"
	"github.com/ferricoxide/oxbuild/internal/layout"
	"github.com/ferricoxide/oxbuild/internal/runner"
)

// StageName identifies a stage executor.
type StageName string

const (
	StageCompile   StageName = "compile"
	StageAssemble  StageName = "assemble"
	StageLink      StageName = "link"
	StageObjectify StageName = "objectify"
	StageMakeISO   StageName = "make-iso"
	StageBoot      StageName = "boot"
	StageReformat  StageName = "reformat"
	StageFix       StageName = "fix"
)

// Toolchain names the external programs the stages invoke.
type Toolchain struct {
	Cargo     string
	Assembler string
	Linker    string
	ObjCopy   string
	ISOTool   string
	// EmulatorPrefix is joined with the profile's emulator suffix.
	EmulatorPrefix string
	// Format and Fix are complete command lines run inside each crate.
	Format string
	Fix    string
}

// DefaultToolchain returns the programs found on a typical host.
func DefaultToolchain() Toolchain {
	return Toolchain{
		Cargo:          "cargo",
		Assembler:      "nasm",
		Linker:         "ld",
		ObjCopy:        "objcopy",
		ISOTool:        "grub-mkrescue",
		EmulatorPrefix: "qemu-system-",
		Format:         "cargo fmt",
		Fix:            "cargo clippy --fix --allow-dirty --allow-staged",
	}
}

// StageFunc executes one stage against a prepared environment.
type StageFunc func(ctx context.Context, env *Environment) error

// Stage is one step of the image pipeline.
type Stage struct {
	Name   StageName
	Target arch.TargetName
	// Reached is the pipeline state entered once the stage succeeds.
	Reached State
	Run     StageFunc
}

// Environment is everything a stage needs. Stages only touch the
// filesystem below Config.Root and only run programs through Runner.
type Environment struct {
	Config    Configuration
	Profile   arch.Profile
	Layout    layout.Layout
	Toolchain Toolchain
	Runner    *runner.Runner
	Logger    *slog.Logger

	outcomes []runner.Outcome
}

func (e *Environment) run(ctx context.Context, operation string, cmd runner.Command, fatal bool) error {
	outcome, err := e.Runner.Run(ctx, operation, cmd, fatal)
	e.outcomes = append(e.outcomes, outcome)
	return err
}

// Outcomes returns the command outcomes recorded so far.
func (e *Environment) Outcomes() []runner.Outcome {
	return append([]runner.Outcome(nil), e.outcomes...)
}

// ImageStages lists the stages of a full build in execution order: the
// kernel first, then the prekernel that embeds it, then the image.
func ImageStages() []Stage {
	return []Stage{
		{Name: StageCompile, Target: arch.Kernel, Reached: StateKernelCompiled, Run: CompileCrate(arch.Kernel)},
		{Name: StageAssemble, Target: arch.Kernel, Reached: StateKernelAssembled, Run: Assemble(arch.Kernel)},
		{Name: StageLink, Target: arch.Kernel, Reached: StateKernelLinked, Run: Link(arch.Kernel)},
		{Name: StageObjectify, Target: arch.Kernel, Reached: StateKernelObjectified, Run: Objectify},
		{Name: StageCompile, Target: arch.Prekernel, Reached: StatePrekernelCompiled, Run: CompileCrate(arch.Prekernel)},
		{Name: StageAssemble, Target: arch.Prekernel, Reached: StatePrekernelAssembled, Run: Assemble(arch.Prekernel)},
		{Name: StageLink, Target: arch.Prekernel, Reached: StatePrekernelLinked, Run: Link(arch.Prekernel)},
		{Name: StageMakeISO, Reached: StateIsoMade, Run: MakeISO},
	}
}

// CompileCrate builds the target's crate as a static library and copies it
// into the target output directory.
func CompileCrate(target arch.TargetName) StageFunc {
	return func(ctx context.Context, env *Environment) error {
		t, err := env.Profile.Target(target)
		if err != nil {
			return err
		}

		crateDir := filepath.Join(env.Config.Root, string(target))
		env.Logger.Info("building crate", "crate", target, "mode", env.Config.Mode)

		cmd := runner.NewCommand(env.Toolchain.Cargo, "build").In(crateDir)
		if env.Config.Mode == ModeRelease {
			cmd = cmd.With("--release")
		}
		if err := env.run(ctx, fmt.Sprintf("build crate at `%s`", target), cmd, true); err != nil {
			return err
		}

		lib := filepath.Join(crateDir, "target", t.BuildDir, env.Config.Mode.String(), fmt.Sprintf("lib%s.a", target))
		return layout.CopyFile(lib, env.Layout.TargetDir(target))
	}
}

// Assemble assembles every source file directly inside the target's
// assembly directories, one object per file.
func Assemble(target arch.TargetName) StageFunc {
	return func(ctx context.Context, env *Environment) error {
		t, err := env.Profile.Target(target)
		if err != nil {
			return err
		}
		out := env.Layout.TargetDir(target)

		for _, dir := range t.Assemblies {
			env.Logger.Info("building assemblies", "dir", dir)
			sources, err := layout.ListFiles(filepath.Join(env.Config.Root, dir), ".asm")
			if err != nil {
				return err
			}

			for _, source := range sources {
				name := filepath.Base(source)
				stem := name[:len(name)-len(filepath.Ext(name))]
				env.Logger.Debug("assembling", "source", source)

				cmd := runner.NewCommand(env.Toolchain.Assembler,
					"-f"+t.AsmFormat,
					source,
					"-o", filepath.Join(out, stem+".o"),
				).In(env.Config.Root)
				operation := fmt.Sprintf("assemble assembly at `%s/%s`", dir, name)
				if err := env.run(ctx, operation, cmd, true); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// Link links every object and archive in the target output directory into
// <target>.bin.
func Link(target arch.TargetName) StageFunc {
	return func(ctx context.Context, env *Environment) error {
		t, err := env.Profile.Target(target)
		if err != nil {
			return err
		}
		out := env.Layout.TargetDir(target)

		inputs, err := layout.ListFiles(out, ".o", ".a")
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			return fmt.Errorf("%w: nothing to link in %s", ErrMissingArtifact, out)
		}

		env.Logger.Info("linking", "crate", target, "inputs", len(inputs))
		cmd := runner.NewCommand(env.Toolchain.Linker,
			"-m", t.LinkEmulation,
			"-n",
			"--gc-sections",
			"-T", filepath.Join(env.Config.Root, t.LinkerScript),
			"-o", filepath.Join(out, string(target)+".bin"),
		).With(inputs...).With("--entry", t.Entry).In(env.Config.Root)

		return env.run(ctx, fmt.Sprintf("link %s", target), cmd, true)
	}
}

// Objectify wraps the linked kernel binary into an object file and hands it
// to the prekernel build.
func Objectify(ctx context.Context, env *Environment) error {
	kernelDir := env.Layout.Kernel
	env.Logger.Info("turning kernel binary into an object", "dir", kernelDir)

	cmd := runner.NewCommand(env.Toolchain.ObjCopy,
		"kernel.bin", "kernel.o",
		"-I", "binary",
		"-B", env.Profile.Embed.BinaryArch,
		"-O", env.Profile.Embed.ObjectFormat,
	).In(kernelDir)
	if err := env.run(ctx, "turn `kernel.bin` into a binary object", cmd, true); err != nil {
		return err
	}

	return layout.CopyFile(filepath.Join(kernelDir, "kernel.o"), env.Layout.Prekernel)
}

// MakeISO stages the prekernel binary and the GRUB configuration and
// authors the bootable image.
func MakeISO(ctx context.Context, env *Environment) error {
	binary := filepath.Join(env.Layout.Prekernel, string(arch.Prekernel)+".bin")
	if _, err := os.Stat(binary); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMissingArtifact, binary, err)
	}

	env.Logger.Info("making iso", "iso", env.Layout.ISO)
	if err := env.Layout.EnsureISOTree(); err != nil {
		return err
	}
	if err := layout.CopyFile(binary, env.Layout.StagedBinary()); err != nil {
		return err
	}
	if err := layout.CopyFile(GrubConfig(env.Config.Root, env.Profile), env.Layout.GrubDir); err != nil {
		return err
	}

	cmd := runner.NewCommand(env.Toolchain.ISOTool,
		"-o", env.Layout.ISO,
		env.Layout.ISOTree,
	).In(env.Config.Root)
	return env.run(ctx, "create iso", cmd, true)
}

// GrubConfig is the bootloader configuration copied into every image.
func GrubConfig(root string, profile arch.Profile) string {
	return filepath.Join(root, string(arch.Prekernel), "arch", profile.Boot, "boot", "grub.cfg")
}

// BootCommand builds the emulator invocation for the image at iso.
func BootCommand(env *Environment, iso string) (runner.Command, error) {
	extra, err := runner.SplitArgs(env.Config.ExtraQEMUArgs)
	if err != nil {
		return runner.Command{}, fmt.Errorf("%w: extra emulator arguments: %w", ErrInvalidConfiguration, err)
	}

	cmd := runner.NewCommand(env.Toolchain.EmulatorPrefix+env.Profile.Emulator,
		"-m", fmt.Sprintf("%dM", env.Config.MemoryMB),
		"-cdrom", iso,
		"-d", "cpu_reset",
		"-serial", "stdio",
		"-no-reboot",
		"-no-shutdown",
		"-s",
	).With(extra...).In(env.Config.Root)
	return cmd, nil
}

// Maintain runs a maintenance command line in each crate root, prekernel
// first. Failures are reported and skipped.
func Maintain(ctx context.Context, env *Environment, verb, line string) error {
	base, err := runner.Parse(line)
	if err != nil {
		return fmt.Errorf("%w: %s command: %w", ErrInvalidConfiguration, verb, err)
	}

	for _, crate := range []arch.TargetName{arch.Prekernel, arch.Kernel} {
		dir := filepath.Join(env.Config.Root, string(crate))
		env.Logger.Info(verb+" code", "crate", crate, "dir", dir)
		if err := env.run(ctx, fmt.Sprintf("%s code at `%s`", verb, crate), base.In(dir), false); err != nil {
			return err
		}
	}
	return nil
}
