package layout

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// CopyFile copies src to dst, creating dst's parent directory. If dst is an
// existing directory the file keeps its base name inside it.
func CopyFile(src, dst string) error {
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrFilesystem, src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrFilesystem, src, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrFilesystem, src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrFilesystem, filepath.Dir(dst), err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrFilesystem, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("%w: copy %s to %s: %w", ErrFilesystem, src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: finalize %s: %w", ErrFilesystem, dst, err)
	}
	return nil
}

// ListFiles returns the regular files directly inside dir whose extension
// is one of exts, sorted by name. Subdirectories are not descended into.
func ListFiles(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrFilesystem, dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() && entry.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if matchesExt(entry.Name(), exts) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func matchesExt(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, want := range exts {
		if ext == want {
			return true
		}
	}
	return false
}
