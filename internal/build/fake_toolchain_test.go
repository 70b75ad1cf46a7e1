package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/kdomanski/iso9660"

	"github.com/ferricoxide/oxbuild/arch"
	"github.com/ferricoxide/oxbuild/internal/logging"
	"github.com/ferricoxide/oxbuild/internal/runner"
)

// fakeToolchain stands in for every external program. It records each
// invocation and writes placeholder outputs where the real tool would.
type fakeToolchain struct {
	t *testing.T

	calls []runner.Command
	// exitCodes fails a program with the given status.
	exitCodes map[string]int
	// errs makes a program return an execution error instead of running.
	errs map[string]error
}

func newFakeToolchain(t *testing.T) *fakeToolchain {
	t.Helper()
	return &fakeToolchain{t: t, exitCodes: map[string]int{}, errs: map[string]error{}}
}

func (f *fakeToolchain) Execute(_ context.Context, cmd runner.Command) (int, error) {
	f.calls = append(f.calls, cmd)

	if err, ok := f.errs[cmd.Program]; ok {
		return -1, err
	}
	if code, ok := f.exitCodes[cmd.Program]; ok {
		return code, nil
	}

	switch cmd.Program {
	case "cargo":
		if len(cmd.Args) > 0 && cmd.Args[0] == "build" {
			f.writeStaticLib(cmd)
		}
	case "nasm", "ld":
		f.placeholder(argAfter(f.t, cmd, "-o"))
	case "objcopy":
		f.placeholder(filepath.Join(cmd.Dir, cmd.Args[1]))
	case "grub-mkrescue":
		f.writeISO(argAfter(f.t, cmd, "-o"), cmd.Args[len(cmd.Args)-1])
	}
	return 0, nil
}

func (f *fakeToolchain) writeStaticLib(cmd runner.Command) {
	f.t.Helper()

	crate := arch.TargetName(filepath.Base(cmd.Dir))
	profile, err := arch.ProfileFor(arch.X86_64)
	if err != nil {
		f.t.Fatalf("ProfileFor() error = %v", err)
	}
	target, err := profile.Target(crate)
	if err != nil {
		f.t.Fatalf("Target(%s) error = %v", crate, err)
	}

	mode := ModeDebug
	if slices.Contains(cmd.Args, "--release") {
		mode = ModeRelease
	}
	f.placeholder(filepath.Join(cmd.Dir, "target", target.BuildDir, mode.String(), fmt.Sprintf("lib%s.a", crate)))
}

func (f *fakeToolchain) placeholder(path string) {
	f.t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		f.t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
		f.t.Fatalf("write %s: %v", path, err)
	}
}

func (f *fakeToolchain) writeISO(imagePath, tree string) {
	f.t.Helper()
	writeTestISO(f.t, imagePath, tree)
}

// programs returns the invoked program names in order.
func (f *fakeToolchain) programs() []string {
	out := make([]string, 0, len(f.calls))
	for _, call := range f.calls {
		out = append(out, call.Program)
	}
	return out
}

func (f *fakeToolchain) find(program string) (runner.Command, bool) {
	for _, call := range f.calls {
		if call.Program == program {
			return call, true
		}
	}
	return runner.Command{}, false
}

func writeTestISO(t *testing.T, imagePath, tree string) {
	t.Helper()

	writer, err := iso9660.NewWriter()
	if err != nil {
		t.Fatalf("create iso writer: %v", err)
	}
	defer writer.Cleanup()

	if err := writer.AddLocalDirectory(tree, "/"); err != nil {
		t.Fatalf("stage iso tree: %v", err)
	}
	out, err := os.OpenFile(imagePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("create iso: %v", err)
	}
	if err := writer.WriteTo(out, "FERRICOXIDE"); err != nil {
		out.Close()
		t.Fatalf("write iso: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close iso: %v", err)
	}
}

func argAfter(t *testing.T, cmd runner.Command, flag string) string {
	t.Helper()
	for i, arg := range cmd.Args {
		if arg == flag && i+1 < len(cmd.Args) {
			return cmd.Args[i+1]
		}
	}
	t.Fatalf("%s has no %s argument", cmd, flag)
	return ""
}

// newProject lays out a minimal checkout with both crates, their assembly
// sources and the GRUB configuration.
func newProject(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"kernel/Cargo.toml":                            "[package]",
		"kernel/arch/x86_64/interrupts.asm":            "; isr stubs",
		"kernel/arch/x86_64/linker.ld":                 "ENTRY(kernel_start)",
		"prekernel/Cargo.toml":                         "[package]",
		"prekernel/arch/x86/boot/multiboot_header.asm": "; header",
		"prekernel/arch/x86/boot/boot.asm":             "; start",
		"prekernel/arch/x86/boot/long_mode.asm":        "; long mode",
		"prekernel/arch/x86/boot/grub.cfg":             "menuentry \"ferricoxide\" {}",
		"prekernel/arch/x86/linker.ld":                 "ENTRY(start)",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

// newTestService wires a Service to fake and collects diagnostics in the
// returned buffer.
func newTestService(fake *fakeToolchain) (*Service, *bytes.Buffer) {
	diagnostics := &bytes.Buffer{}
	logger := logging.Discard()
	ids := 0
	return &Service{
		Logger: logger,
		Runner: &runner.Runner{
			Executor:    fake,
			Logger:      logger,
			Diagnostics: diagnostics,
		},
		Toolchain:   DefaultToolchain(),
		Diagnostics: diagnostics,
		NewID: func() string {
			ids++
			return fmt.Sprintf("build-%d", ids)
		},
	}, diagnostics
}

func testConfiguration(root string, actions ...Action) Configuration {
	return Configuration{
		Root:         root,
		Architecture: arch.X86_64,
		Mode:         ModeDebug,
		MemoryMB:     DefaultMemoryMB,
		Actions:      actions,
	}
}
