package arch

import (
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Architecture
		wantErr bool
	}{
		{input: "x86_64", want: X86_64},
		{input: "amd64", wantErr: true},
		{input: "x86-64", wantErr: true},
		{input: "X86_64", wantErr: true},
		{input: " x86_64", wantErr: true},
		{input: "aarch64", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownArchitecture) {
				t.Fatalf("Parse(%q) error = %v, want ErrUnknownArchitecture", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSupportedContainsDefault(t *testing.T) {
	t.Parallel()

	supported := Supported()
	if len(supported) != 1 || supported[0] != Default {
		t.Fatalf("Supported() = %v, want [%s]", supported, Default)
	}
	if !Default.IsValid() {
		t.Fatalf("default architecture %q is not registered", Default)
	}
}

func TestProfileForX86_64(t *testing.T) {
	t.Parallel()

	profile, err := ProfileFor(X86_64)
	if err != nil {
		t.Fatalf("ProfileFor() error = %v", err)
	}

	if profile.Boot != "x86" {
		t.Fatalf("Boot = %q, want x86", profile.Boot)
	}
	if profile.Kernel.LinkEmulation != "elf_x86_64" || profile.Prekernel.LinkEmulation != "elf_i386" {
		t.Fatalf("unexpected link emulations: %q / %q", profile.Kernel.LinkEmulation, profile.Prekernel.LinkEmulation)
	}
	if profile.Kernel.Entry != "kernel_start" || profile.Prekernel.Entry != "start" {
		t.Fatalf("unexpected entry symbols: %q / %q", profile.Kernel.Entry, profile.Prekernel.Entry)
	}
	if profile.Embed.ObjectFormat != "elf32-i386" {
		t.Fatalf("Embed.ObjectFormat = %q, want elf32-i386", profile.Embed.ObjectFormat)
	}
}

func TestProfileForReturnsCopies(t *testing.T) {
	t.Parallel()

	first, err := ProfileFor(X86_64)
	if err != nil {
		t.Fatalf("ProfileFor() error = %v", err)
	}
	first.Kernel.Assemblies[0] = "mutated"

	second, err := ProfileFor(X86_64)
	if err != nil {
		t.Fatalf("ProfileFor() error = %v", err)
	}
	if second.Kernel.Assemblies[0] == "mutated" {
		t.Fatal("registry profile was mutated through a returned copy")
	}
}

func TestProfileTarget(t *testing.T) {
	t.Parallel()

	profile, err := ProfileFor(X86_64)
	if err != nil {
		t.Fatalf("ProfileFor() error = %v", err)
	}

	kernel, err := profile.Target(Kernel)
	if err != nil {
		t.Fatalf("Target(kernel) error = %v", err)
	}
	if kernel.BuildDir != "x86_64-ferricoxide_os" {
		t.Fatalf("kernel BuildDir = %q", kernel.BuildDir)
	}
	if _, err := profile.Target("bootloader"); err == nil {
		t.Fatal("Target(bootloader) error = nil, want error")
	}
}

func TestLoadRegistryRejectsPartialProfiles(t *testing.T) {
	t.Parallel()

	data := []byte(`
- id: riscv64
  boot: riscv
  emulator: riscv64
  embed:
    binary_arch: riscv
    object_format: elf64-littleriscv
  prekernel:
    triple: riscv64
    build_dir: riscv64-ferricoxide_os
    assemblies: [prekernel/arch/riscv/boot]
    linker_script: prekernel/arch/riscv/linker.ld
    link_emulation: elf64lriscv
    entry: start
    asm_format: elf64
  kernel:
    triple: riscv64
    build_dir: riscv64-ferricoxide_os
    linker_script: kernel/arch/riscv64/linker.ld
    link_emulation: ""
    entry: kernel_start
    asm_format: elf64
`)

	_, err := loadRegistry(data)
	if err == nil {
		t.Fatal("loadRegistry() error = nil, want error")
	}
	for _, field := range []string{"kernel.assemblies", "kernel.link_emulation"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("loadRegistry() error = %v, want mention of %s", err, field)
		}
	}
}

func TestLoadRegistryRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	data := append([]byte(nil), embeddedProfiles...)
	data = append(data, []byte("  linker: gold\n")...)

	if _, err := loadRegistry(data); err == nil {
		t.Fatal("loadRegistry() error = nil, want error for unknown field")
	}
}

func TestLoadRegistryRejectsEmptyTable(t *testing.T) {
	t.Parallel()

	if _, err := loadRegistry(nil); err == nil {
		t.Fatal("loadRegistry(nil) error = nil, want error")
	}
}

func TestRegistryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every supported profile is complete", prop.ForAll(
		func(idx int) bool {
			supported := Supported()
			profile, err := ProfileFor(supported[idx%len(supported)])
			if err != nil {
				return false
			}
			return profile.validate() == nil
		},
		gen.IntRange(0, 64),
	))

	properties.Property("Parse accepts exactly the registered identifiers", prop.ForAll(
		func(id string) bool {
			got, err := Parse(id)
			if Architecture(id).IsValid() {
				return err == nil && got == Architecture(id)
			}
			return errors.Is(err, ErrUnknownArchitecture)
		},
		gen.OneConstOf("x86_64", "amd64", "x86-64", "X86_64", "x86_64 ", "aarch64", ""),
	))

	properties.Property("unregistered identifiers fail with ErrUnknownArchitecture", prop.ForAll(
		func(id string) bool {
			if Architecture(id).IsValid() {
				return true
			}
			_, err := ProfileFor(Architecture(id))
			return errors.Is(err, ErrUnknownArchitecture)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
