package config

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ferricoxide/oxbuild/arch"
	"github.com/ferricoxide/oxbuild/internal/build"
	"github.com/ferricoxide/oxbuild/internal/logging"
)

func TestResolveDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Resolve(DefaultOptions())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !filepath.IsAbs(cfg.Root) {
		t.Fatalf("Root = %q, want absolute", cfg.Root)
	}
	if cfg.Architecture != arch.X86_64 || cfg.Mode != build.ModeDebug || cfg.MemoryMB != 128 {
		t.Fatalf("Resolve() = %+v", cfg)
	}
	if cfg.Pipeline() != build.PipelineNone {
		t.Fatalf("Pipeline() = %s, want none", cfg.Pipeline())
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(*Options)
		wantErr error
		check   func(*testing.T, build.Configuration)
	}{
		{
			name:   "release build and boot",
			mutate: func(o *Options) { o.Release, o.Build, o.Boot = true, true, true },
			check: func(t *testing.T, cfg build.Configuration) {
				if cfg.Mode != build.ModeRelease {
					t.Fatalf("Mode = %s", cfg.Mode)
				}
				if !reflect.DeepEqual(cfg.Actions, []build.Action{build.ActionBuild, build.ActionBoot}) {
					t.Fatalf("Actions = %v", cfg.Actions)
				}
			},
		},
		{
			name:   "extra emulator arguments kept verbatim",
			mutate: func(o *Options) { o.ExtraQEMUArgs = "-smp 2 -display none" },
			check: func(t *testing.T, cfg build.Configuration) {
				if cfg.ExtraQEMUArgs != "-smp 2 -display none" {
					t.Fatalf("ExtraQEMUArgs = %q", cfg.ExtraQEMUArgs)
				}
			},
		},
		{
			name:    "unknown architecture",
			mutate:  func(o *Options) { o.Architecture = "aarch64" },
			wantErr: arch.ErrUnknownArchitecture,
		},
		{
			name:    "architecture alias",
			mutate:  func(o *Options) { o.Architecture = "amd64" },
			wantErr: arch.ErrUnknownArchitecture,
		},
		{
			name:    "zero memory",
			mutate:  func(o *Options) { o.MemoryMB = 0 },
			wantErr: ErrInvalidMemory,
		},
		{
			name:    "negative memory",
			mutate:  func(o *Options) { o.MemoryMB = -64 },
			wantErr: ErrInvalidMemory,
		},
		{
			name:    "unbalanced quotes",
			mutate:  func(o *Options) { o.ExtraQEMUArgs = `-drive "file=disk.img` },
			wantErr: ErrInvalidQEMUArgs,
		},
		{
			name:   "shell operators are plain text",
			mutate: func(o *Options) { o.ExtraQEMUArgs = "-device x;y -D /tmp/log|x" },
			check: func(t *testing.T, cfg build.Configuration) {
				if cfg.ExtraQEMUArgs != "-device x;y -D /tmp/log|x" {
					t.Fatalf("ExtraQEMUArgs = %q", cfg.ExtraQEMUArgs)
				}
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			opts := DefaultOptions()
			opts.ProjectRoot = t.TempDir()
			tc.mutate(&opts)

			cfg, err := Resolve(opts)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestRunBootWithoutImage(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.ProjectRoot = t.TempDir()
	opts.Boot = true
	cfg, err := Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	var diagnostics bytes.Buffer
	result, err := Run(context.Background(), cfg, logging.Discard(), &diagnostics)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Booted || len(result.Outcomes) != 0 {
		t.Fatalf("Run() = %+v, want no emulator call", result)
	}
	if !strings.Contains(diagnostics.String(), "Run with --build first.") {
		t.Fatalf("diagnostics = %q", diagnostics.String())
	}
}
