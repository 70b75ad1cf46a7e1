package build

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kdomanski/iso9660"
)

const (
	isoDirectoryIdentifierMaxLength = 31
	isoFileIdentifierMaxLength      = 30
)

// isoCharacters is the D-string character set the iso9660 writer accepts.
const isoCharacters = "abcdefghijklmnopqrstuvwxyz0123456789_!\"%&'()*+,-./:;<=>?"

var errNotInImage = errors.New("not present in image")

// ISOInspection summarizes the produced image.
type ISOInspection struct {
	Label   string   `yaml:"label"`
	Size    int64    `yaml:"size"`
	Found   []string `yaml:"found,omitempty"`
	Missing []string `yaml:"missing,omitempty"`
}

// Complete reports whether every expected file was located.
func (i ISOInspection) Complete() bool {
	return len(i.Missing) == 0
}

// InspectISO opens the image at isoPath and looks up each expected path.
// Lookups compare case-insensitively against the mangled ISO9660 name, so
// both Rock Ridge images and plain level 1 images resolve.
func InspectISO(isoPath string, expected ...string) (ISOInspection, error) {
	f, err := os.Open(isoPath)
	if err != nil {
		return ISOInspection{}, fmt.Errorf("open iso: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ISOInspection{}, fmt.Errorf("stat iso: %w", err)
	}

	image, err := iso9660.OpenImage(f)
	if err != nil {
		return ISOInspection{}, fmt.Errorf("read iso: %w", err)
	}

	label, err := image.Label()
	if err != nil {
		return ISOInspection{}, fmt.Errorf("read iso label: %w", err)
	}

	root, err := image.RootDir()
	if err != nil {
		return ISOInspection{}, fmt.Errorf("read iso root: %w", err)
	}

	inspection := ISOInspection{Label: label, Size: info.Size()}
	for _, want := range expected {
		if _, err := isoLookup(root, want); err != nil {
			inspection.Missing = append(inspection.Missing, want)
			continue
		}
		inspection.Found = append(inspection.Found, want)
	}
	return inspection, nil
}

func isoLookup(root *iso9660.File, rel string) (*iso9660.File, error) {
	segments := strings.FieldsFunc(rel, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s: empty path", rel)
	}

	current := root
	for i, segment := range segments {
		if !current.IsDir() {
			return nil, fmt.Errorf("%s: %w", rel, errNotInImage)
		}
		children, err := current.GetChildren()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}

		mangled := isoName(segment, i == len(segments)-1)
		var next *iso9660.File
		for _, child := range children {
			name := child.Name()
			if strings.EqualFold(name, segment) || strings.EqualFold(name, mangled) {
				next = child
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%s: %w", rel, errNotInImage)
		}
		current = next
	}
	return current, nil
}

// isoName returns the level 1 identifier the iso9660 writer stores for a
// single path segment, without the version suffix.
func isoName(segment string, file bool) string {
	segment = strings.ToLower(segment)
	if !file {
		return isoDString(segment, isoDirectoryIdentifierMaxLength)
	}

	// Reserve room for the ";1" version the writer appends.
	maxLen := isoFileIdentifierMaxLength - 2
	dot := strings.LastIndexByte(segment, '.')
	if dot < 0 {
		return isoDString(segment, maxLen)
	}
	extension := isoDString(segment[dot+1:], 8)
	stem := strings.ReplaceAll(segment[:dot], ".", "_")
	if extension == "" {
		return isoDString(stem, maxLen)
	}
	return isoDString(stem, maxLen-1-len(extension)) + "." + extension
}

func isoDString(input string, maxLen int) string {
	var b strings.Builder
	for i := 0; i < len(input) && b.Len() < maxLen; i++ {
		if strings.IndexByte(isoCharacters, input[i]) >= 0 {
			b.WriteByte(input[i])
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
