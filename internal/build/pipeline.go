package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"

	"github.com/ferricoxide/oxbuild/arch"
	"github.com/ferricoxide/oxbuild/internal/layout"
	"github.com/ferricoxide/oxbuild/internal/logging"
	"github.com/ferricoxide/oxbuild/internal/runner"
)

// Service drives the image and maintenance pipelines.
type Service struct {
	Logger    *slog.Logger
	Runner    *runner.Runner
	Toolchain Toolchain
	// Diagnostics receives user-facing red messages. os.Stderr when nil.
	Diagnostics io.Writer
	// Now and NewID default to time.Now and a random UUID.
	Now   func() time.Time
	NewID func() string
}

// NewService returns a Service running the default toolchain.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		Logger:    logger,
		Runner:    runner.New(logger),
		Toolchain: DefaultToolchain(),
	}
}

// Run executes the pipeline selected by cfg. Only one pipeline ever runs:
// reformat, then fix, then build and boot, in order of precedence.
func (s *Service) Run(ctx context.Context, cfg Configuration) (Result, error) {
	switch cfg.Pipeline() {
	case PipelineReformat:
		return s.Reformat(ctx, cfg)
	case PipelineFix:
		return s.Fix(ctx, cfg)
	case PipelineImage:
		return s.Image(ctx, cfg)
	default:
		return Result{Pipeline: PipelineNone, States: []State{StateIdle}}, nil
	}
}

// Reformat runs the formatter in both crates. Formatter failures are
// reported and do not fail the run.
func (s *Service) Reformat(ctx context.Context, cfg Configuration) (Result, error) {
	return s.maintain(ctx, cfg, PipelineReformat, "reformat", s.toolchain().Format)
}

// Fix runs the lint fixer in both crates. Fixer failures are reported and
// do not fail the run.
func (s *Service) Fix(ctx context.Context, cfg Configuration) (Result, error) {
	return s.maintain(ctx, cfg, PipelineFix, "fix", s.toolchain().Fix)
}

func (s *Service) maintain(ctx context.Context, cfg Configuration, pipeline Pipeline, verb, line string) (Result, error) {
	result := Result{Pipeline: pipeline, BuildID: s.newID()}
	env := s.environment(cfg, arch.Profile{}, layout.Layout{}, result.BuildID)
	m := newMachine()

	err := Maintain(ctx, env, verb, line)
	result.Outcomes = env.Outcomes()
	if err != nil {
		m.fail()
		result.States = m.states()
		return result, err
	}
	if err := m.advance(StateDone); err != nil {
		return result, err
	}
	result.States = m.states()
	return result, nil
}

// Image builds and/or boots the image as cfg requests.
func (s *Service) Image(ctx context.Context, cfg Configuration) (result Result, err error) {
	result = Result{Pipeline: PipelineImage, BuildID: s.newID()}

	if err := validate(cfg); err != nil {
		return result, err
	}
	profile, err := arch.ProfileFor(cfg.Architecture)
	if err != nil {
		return result, err
	}

	l := layout.For(cfg.Root, cfg.Architecture)
	result.ISO = l.ISO
	env := s.environment(cfg, profile, l, result.BuildID)
	m := newMachine()
	defer func() {
		if err != nil {
			m.fail()
		}
		result.States = m.states()
		result.Outcomes = env.Outcomes()
	}()

	if cfg.Has(ActionBuild) {
		if err := s.build(ctx, env, m, &result); err != nil {
			return result, err
		}
	}

	if cfg.Has(ActionBoot) {
		booted, err := s.boot(ctx, env)
		if err != nil {
			return result, err
		}
		if booted {
			result.Booted = true
			if err := m.advance(StateBooted); err != nil {
				return result, err
			}
		}
	}

	return result, m.advance(StateDone)
}

func (s *Service) build(ctx context.Context, env *Environment, m *machine, result *Result) error {
	started := s.now()
	logger := env.Logger
	logger.Info("starting build")

	l, err := layout.Prepare(env.Config.Root, env.Config.Architecture, logger)
	if err != nil {
		return err
	}
	env.Layout = l
	if err := m.advance(StateDirectoryPrepared); err != nil {
		return err
	}

	for _, stage := range ImageStages() {
		env.Logger = logger.With("stage", stage.Name)
		if stage.Target != "" {
			env.Logger = env.Logger.With("target", stage.Target)
		}
		err := stage.Run(ctx, env)
		env.Logger = logger
		if err != nil {
			return err
		}
		if err := m.advance(stage.Reached); err != nil {
			return err
		}
	}
	inspection := s.inspect(logger, env)
	result.Inspection = inspection
	s.recordManifest(logger, env, result.BuildID, started, inspection)

	logger.Info("build finished", "iso", l.ISO, "duration", s.now().Sub(started).Round(time.Millisecond))
	return nil
}

func (s *Service) inspect(logger *slog.Logger, env *Environment) *ISOInspection {
	staged := path.Join("boot", fmt.Sprintf("%s-%s.bin", env.Config.Architecture, layout.Product))
	inspection, err := InspectISO(env.Layout.ISO, staged, "boot/grub/grub.cfg")
	if err != nil {
		logger.Warn("could not inspect iso", "iso", env.Layout.ISO, "error", err)
		return nil
	}
	if !inspection.Complete() {
		logger.Warn("iso is missing expected files", "missing", inspection.Missing)
	} else {
		logger.Debug("iso inspected", "label", inspection.Label, "size", inspection.Size)
	}
	return &inspection
}

func (s *Service) recordManifest(logger *slog.Logger, env *Environment, buildID string, started time.Time, inspection *ISOInspection) {
	manifest := Manifest{
		BuildID:      buildID,
		Architecture: env.Config.Architecture,
		Mode:         env.Config.Mode,
		StartedAt:    started.UTC(),
		FinishedAt:   s.now().UTC(),
		Inspection:   inspection,
	}

	files := []struct{ name, path string }{
		{"kernel", filepath.Join(env.Layout.Kernel, "kernel.bin")},
		{"prekernel", filepath.Join(env.Layout.Prekernel, "prekernel.bin")},
		{"iso", env.Layout.ISO},
	}
	for _, file := range files {
		artifact, err := NewManifestArtifact(file.name, file.path)
		if err != nil {
			logger.Warn("artifact not recorded", "error", err)
			continue
		}
		manifest.Artifacts = append(manifest.Artifacts, artifact)
	}

	if err := WriteManifest(env.Layout.Manifest, manifest); err != nil {
		logger.Warn("could not write build manifest", "error", err)
	}
}

// boot launches the emulator on the existing image. It reports false
// without error when there is no image to boot.
func (s *Service) boot(ctx context.Context, env *Environment) (bool, error) {
	iso := env.Layout.ISO
	if _, err := os.Stat(iso); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%w: stat %s: %w", layout.ErrFilesystem, iso, err)
		}
		fmt.Fprintln(s.diagnostics(), color.Danger.Sprint("Run with --build first."))
		fmt.Fprintln(s.diagnostics(), color.Danger.Sprintf("No image at `%s`.", iso))
		env.Logger.Warn("no image to boot", "iso", iso)
		return false, nil
	}

	logger := env.Logger.With("stage", StageBoot)
	if manifest, err := ReadManifest(env.Layout.Manifest); err != nil {
		logger.Debug("ignoring unreadable manifest", "error", err)
	} else if manifest != nil {
		logger = logger.With("image_build_id", manifest.BuildID)
	}

	cmd, err := BootCommand(env, iso)
	if err != nil {
		return false, err
	}
	logger.Info("booting", "iso", iso, "memory_mb", env.Config.MemoryMB)
	if err := env.run(ctx, "boot", cmd, true); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) environment(cfg Configuration, profile arch.Profile, l layout.Layout, buildID string) *Environment {
	logger := logging.Ensure(s.Logger).With(
		"build_id", buildID,
		"architecture", cfg.Architecture,
		"mode", cfg.Mode,
	)
	r := runner.New(logger)
	if s.Runner != nil {
		copied := *s.Runner
		r = &copied
		if r.Logger == nil {
			r.Logger = logger
		}
	}
	if r.Diagnostics == nil {
		r.Diagnostics = s.Diagnostics
	}
	return &Environment{
		Config:    cfg,
		Profile:   profile,
		Layout:    l,
		Toolchain: s.toolchain(),
		Runner:    r,
		Logger:    logger,
	}
}

func validate(cfg Configuration) error {
	switch {
	case cfg.Root == "":
		return fmt.Errorf("%w: empty project root", ErrInvalidConfiguration)
	case cfg.Mode != ModeDebug && cfg.Mode != ModeRelease:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfiguration, cfg.Mode)
	case cfg.MemoryMB <= 0:
		return fmt.Errorf("%w: memory must be positive, got %d", ErrInvalidConfiguration, cfg.MemoryMB)
	}
	return nil
}

func (s *Service) toolchain() Toolchain {
	if s.Toolchain == (Toolchain{}) {
		return DefaultToolchain()
	}
	return s.Toolchain
}

func (s *Service) diagnostics() io.Writer {
	if s.Diagnostics != nil {
		return s.Diagnostics
	}
	return os.Stderr
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
