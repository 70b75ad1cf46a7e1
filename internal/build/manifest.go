package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ferricoxide/oxbuild/arch"
)

// Manifest is the record of the last image build, written beside the ISO.
type Manifest struct {
	BuildID      string             `yaml:"build_id"`
	Architecture arch.Architecture  `yaml:"architecture"`
	Mode         Mode               `yaml:"mode"`
	StartedAt    time.Time          `yaml:"started_at"`
	FinishedAt   time.Time          `yaml:"finished_at"`
	Artifacts    []ManifestArtifact `yaml:"artifacts"`
	Inspection   *ISOInspection     `yaml:"inspection,omitempty"`
}

// ManifestArtifact is one file produced by the build.
type ManifestArtifact struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
	Size int64  `yaml:"size"`
}

// NewManifestArtifact records the file at path. Missing files are an error.
func NewManifestArtifact(name, path string) (ManifestArtifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ManifestArtifact{}, fmt.Errorf("%w: %s: %w", ErrMissingArtifact, name, err)
	}
	return ManifestArtifact{Name: name, Path: path, Size: info.Size()}, nil
}

// WriteManifest stores m at path as YAML.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest at path. It returns nil and no error when
// no build has written one yet.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}
