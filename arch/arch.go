package arch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownArchitecture is returned for identifiers outside the registered set.
var ErrUnknownArchitecture = errors.New("unknown architecture")

// Architecture identifies a target hardware architecture the OS can be built for.
type Architecture string

const (
	X86_64 Architecture = "x86_64"
)

// Default is the architecture used when none is requested.
const Default = X86_64

// Supported returns the registered architectures in sorted order.
func Supported() []Architecture {
	ids := make([]Architecture, len(registry.order))
	copy(ids, registry.order)
	return ids
}

// IsValid reports whether a has a registered profile.
func (a Architecture) IsValid() bool {
	_, ok := registry.profiles[a]
	return ok
}

// String returns the architecture as string.
func (a Architecture) String() string {
	return string(a)
}

// Parse returns the Architecture named exactly by value or an error
// wrapping ErrUnknownArchitecture if it has no registered profile.
func Parse(value string) (Architecture, error) {
	if a := Architecture(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("%w %q (supported: %s)", ErrUnknownArchitecture, value, strings.Join(supportedStrings(), ", "))
}

func supportedStrings() []string {
	all := Supported()
	out := make([]string, 0, len(all))
	for _, a := range all {
		out = append(out, a.String())
	}
	return out
}
