package arch

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var embeddedProfiles []byte

// TargetName names one of the two programs linked into the image.
type TargetName string

const (
	Prekernel TargetName = "prekernel"
	Kernel    TargetName = "kernel"
)

// Targets lists the build targets in the order the pipeline builds them.
func Targets() []TargetName {
	return []TargetName{Kernel, Prekernel}
}

// Target holds the per-program build parameters of a profile.
type Target struct {
	Triple        string   `yaml:"triple"`
	BuildDir      string   `yaml:"build_dir"`
	Assemblies    []string `yaml:"assemblies"`
	LinkerScript  string   `yaml:"linker_script"`
	LinkEmulation string   `yaml:"link_emulation"`
	Entry         string   `yaml:"entry"`
	AsmFormat     string   `yaml:"asm_format"`
}

// Embed describes how the linked kernel is turned into an object the
// prekernel can link against.
type Embed struct {
	BinaryArch   string `yaml:"binary_arch"`
	ObjectFormat string `yaml:"object_format"`
}

// Profile is the full set of build parameters for one architecture.
type Profile struct {
	ID        Architecture `yaml:"id"`
	Boot      string       `yaml:"boot"`
	Emulator  string       `yaml:"emulator"`
	Embed     Embed        `yaml:"embed"`
	Prekernel Target       `yaml:"prekernel"`
	Kernel    Target       `yaml:"kernel"`
}

// Target returns the parameters for the named build target.
func (p Profile) Target(name TargetName) (Target, error) {
	switch name {
	case Prekernel:
		return p.Prekernel.clone(), nil
	case Kernel:
		return p.Kernel.clone(), nil
	default:
		return Target{}, fmt.Errorf("unknown build target %q", name)
	}
}

func (t Target) clone() Target {
	t.Assemblies = append([]string(nil), t.Assemblies...)
	return t
}

type profileRegistry struct {
	profiles map[Architecture]Profile
	order    []Architecture
}

var registry = mustLoadRegistry(embeddedProfiles)

// ProfileFor returns the profile registered for id.
func ProfileFor(id Architecture) (Profile, error) {
	profile, ok := registry.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w %q", ErrUnknownArchitecture, id)
	}
	profile.Prekernel = profile.Prekernel.clone()
	profile.Kernel = profile.Kernel.clone()
	return profile, nil
}

func mustLoadRegistry(data []byte) *profileRegistry {
	reg, err := loadRegistry(data)
	if err != nil {
		panic(fmt.Sprintf("arch: invalid architecture table: %v", err))
	}
	return reg
}

func loadRegistry(data []byte) (*profileRegistry, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var profiles []Profile
	if err := decoder.Decode(&profiles); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no profiles defined")
		}
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, errors.New("no profiles defined")
	}

	reg := &profileRegistry{profiles: make(map[Architecture]Profile, len(profiles))}
	for _, profile := range profiles {
		if err := profile.validate(); err != nil {
			return nil, err
		}
		if _, exists := reg.profiles[profile.ID]; exists {
			return nil, fmt.Errorf("duplicate profile %q", profile.ID)
		}
		reg.profiles[profile.ID] = profile
		reg.order = append(reg.order, profile.ID)
	}
	sort.Slice(reg.order, func(i, j int) bool { return reg.order[i] < reg.order[j] })
	return reg, nil
}

func (p Profile) validate() error {
	var missing []string
	check := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}

	check("id", string(p.ID))
	check("boot", p.Boot)
	check("emulator", p.Emulator)
	check("embed.binary_arch", p.Embed.BinaryArch)
	check("embed.object_format", p.Embed.ObjectFormat)

	for _, target := range []struct {
		name   TargetName
		target Target
	}{{Prekernel, p.Prekernel}, {Kernel, p.Kernel}} {
		prefix := string(target.name) + "."
		check(prefix+"triple", target.target.Triple)
		check(prefix+"build_dir", target.target.BuildDir)
		check(prefix+"linker_script", target.target.LinkerScript)
		check(prefix+"link_emulation", target.target.LinkEmulation)
		check(prefix+"entry", target.target.Entry)
		check(prefix+"asm_format", target.target.AsmFormat)
		if len(target.target.Assemblies) == 0 {
			missing = append(missing, prefix+"assemblies")
		}
		for i, dir := range target.target.Assemblies {
			check(fmt.Sprintf("%sassemblies[%d]", prefix, i), dir)
		}
	}

	if len(missing) > 0 {
		id := string(p.ID)
		if id == "" {
			id = "<unnamed>"
		}
		return fmt.Errorf("profile %s: missing %s", id, strings.Join(missing, ", "))
	}
	return nil
}
