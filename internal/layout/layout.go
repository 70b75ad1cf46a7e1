package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ferricoxide/oxbuild/arch"
	"github.com/ferricoxide/oxbuild/internal/logging"
)

// ErrFilesystem wraps every failure to create, remove or copy build files.
var ErrFilesystem = errors.New("filesystem error")

// Product is the name baked into the image and staged binary file names.
const Product = "ferricoxide_os"

// BuildDirName is the directory under the project root holding all builds.
const BuildDirName = "build"

// Layout is the on-disk output area of one architecture's build.
type Layout struct {
	Root      string
	Kernel    string
	Prekernel string
	ISOTree   string
	GrubDir   string
	ISO       string
	Manifest  string
	Arch      arch.Architecture
}

// For computes the layout below projectRoot without touching the filesystem.
func For(projectRoot string, a arch.Architecture) Layout {
	root := filepath.Join(projectRoot, BuildDirName, a.String())
	isoTree := filepath.Join(root, "iso_tree")
	return Layout{
		Root:      root,
		Kernel:    filepath.Join(root, string(arch.Kernel)),
		Prekernel: filepath.Join(root, string(arch.Prekernel)),
		ISOTree:   isoTree,
		GrubDir:   filepath.Join(isoTree, "boot", "grub"),
		ISO:       filepath.Join(root, fmt.Sprintf("%s-%s.iso", a, Product)),
		Manifest:  filepath.Join(root, "manifest.yaml"),
		Arch:      a,
	}
}

// TargetDir returns the output directory of a build target.
func (l Layout) TargetDir(target arch.TargetName) string {
	if target == arch.Prekernel {
		return l.Prekernel
	}
	return l.Kernel
}

// StagedBinary is where the prekernel binary lives inside the ISO tree.
func (l Layout) StagedBinary() string {
	return filepath.Join(l.ISOTree, "boot", fmt.Sprintf("%s-%s.bin", l.Arch, Product))
}

// Prepare wipes any previous build of a below projectRoot and recreates the
// empty target directories. Builds never reuse earlier output.
func Prepare(projectRoot string, a arch.Architecture, logger *slog.Logger) (Layout, error) {
	logger = logging.Ensure(logger)
	l := For(projectRoot, a)

	info, err := os.Stat(l.Root)
	switch {
	case err == nil:
		if !info.IsDir() {
			logger.Info("build path exists but is not a directory, removing it", "path", l.Root)
		} else {
			logger.Info("build dir already exists, removing it", "path", l.Root)
		}
		if err := os.RemoveAll(l.Root); err != nil {
			return Layout{}, fmt.Errorf("%w: remove %s: %w", ErrFilesystem, l.Root, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Layout{}, fmt.Errorf("%w: stat %s: %w", ErrFilesystem, l.Root, err)
	}

	for _, dir := range []string{l.Root, l.Prekernel, l.Kernel} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, fmt.Errorf("%w: create %s: %w", ErrFilesystem, dir, err)
		}
	}
	return l, nil
}

// EnsureISOTree creates the staging tree used while authoring the image.
func (l Layout) EnsureISOTree() error {
	if err := os.MkdirAll(l.GrubDir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrFilesystem, l.GrubDir, err)
	}
	return nil
}
