package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/ferricoxide/oxbuild/arch"
	"github.com/ferricoxide/oxbuild/internal/build"
	"github.com/ferricoxide/oxbuild/internal/logging"
	"github.com/ferricoxide/oxbuild/internal/runner"
)

var (
	// ErrInvalidMemory is returned for a guest memory size that is not positive.
	ErrInvalidMemory = errors.New("invalid memory size")
	// ErrInvalidQEMUArgs is returned when the extra emulator arguments cannot be split.
	ErrInvalidQEMUArgs = errors.New("invalid extra QEMU arguments")
)

// DefaultProjectRoot is the checkout the tool operates on: the working directory.
var DefaultProjectRoot = "."

// Options are the raw command line settings before validation.
type Options struct {
	ProjectRoot   string
	Architecture  string
	Release       bool
	Build         bool
	Boot          bool
	Reformat      bool
	Fix           bool
	MemoryMB      int
	ExtraQEMUArgs string
}

// DefaultOptions returns the settings used when no flag is given.
func DefaultOptions() Options {
	return Options{
		ProjectRoot:  DefaultProjectRoot,
		Architecture: arch.Default.String(),
		MemoryMB:     build.DefaultMemoryMB,
	}
}

// Resolve validates opts into the configuration of one run. Nothing is
// executed and no file is touched.
func Resolve(opts Options) (build.Configuration, error) {
	architecture, err := arch.Parse(opts.Architecture)
	if err != nil {
		return build.Configuration{}, err
	}

	if opts.MemoryMB <= 0 {
		return build.Configuration{}, fmt.Errorf("%w: %d MiB, must be positive", ErrInvalidMemory, opts.MemoryMB)
	}

	if _, err := runner.SplitArgs(opts.ExtraQEMUArgs); err != nil {
		return build.Configuration{}, fmt.Errorf("%w: %w", ErrInvalidQEMUArgs, err)
	}

	root := opts.ProjectRoot
	if root == "" {
		root = DefaultProjectRoot
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return build.Configuration{}, fmt.Errorf("resolve project root: %w", err)
	}

	mode := build.ModeDebug
	if opts.Release {
		mode = build.ModeRelease
	}

	var actions []build.Action
	for _, selected := range []struct {
		on     bool
		action build.Action
	}{
		{opts.Build, build.ActionBuild},
		{opts.Boot, build.ActionBoot},
		{opts.Reformat, build.ActionReformat},
		{opts.Fix, build.ActionFix},
	} {
		if selected.on {
			actions = append(actions, selected.action)
		}
	}

	return build.Configuration{
		Root:          root,
		Architecture:  architecture,
		Mode:          mode,
		MemoryMB:      opts.MemoryMB,
		ExtraQEMUArgs: opts.ExtraQEMUArgs,
		Actions:       actions,
	}, nil
}

// Run executes the pipeline cfg selects with the host toolchain. Red
// diagnostics are written to diagnostics.
func Run(ctx context.Context, cfg build.Configuration, logger *slog.Logger, diagnostics io.Writer) (build.Result, error) {
	logger = logging.Ensure(logger).With("component", "config")
	logger.Debug("resolved configuration",
		"root", cfg.Root,
		"architecture", cfg.Architecture,
		"mode", cfg.Mode,
		"pipeline", cfg.Pipeline(),
	)

	service := build.NewService(logger.With("service", "build"))
	service.Runner.Diagnostics = diagnostics
	service.Diagnostics = diagnostics

	return service.Run(ctx, cfg)
}
