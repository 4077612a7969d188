// Package version validates the semantic protocol version carried by every
// inbound frame against a hardcoded minimum.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Triple is a parsed MAJOR.MINOR.PATCH semantic version. Prerelease/build
// suffixes are accepted on the wire but never compared.
type Triple struct {
	Major int
	Minor int
	Patch int
}

// String renders the triple back to its canonical dotted form.
func (t Triple) String() string {
	return fmt.Sprintf("%d.%d.%d", t.Major, t.Minor, t.Patch)
}

// Compare returns -1, 0, or 1 as t is less than, equal to, or greater than other.
func (t Triple) Compare(other Triple) int {
	switch {
	case t.Major != other.Major:
		return sign(t.Major - other.Major)
	case t.Minor != other.Minor:
		return sign(t.Minor - other.Minor)
	default:
		return sign(t.Patch - other.Patch)
	}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

// Parse extracts a MAJOR.MINOR.PATCH triple from a semver string, tolerating
// an optional prerelease suffix such as "-rc3" and an optional leading "v".
func Parse(raw string) (Triple, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Triple{}, fmt.Errorf("missing version")
	}
	trimmed = strings.TrimPrefix(trimmed, "v")
	// Strip prerelease/build metadata: everything from the first '-' or '+'.
	if idx := strings.IndexAny(trimmed, "-+"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	parts := strings.Split(trimmed, ".")
	if len(parts) != 3 {
		return Triple{}, fmt.Errorf("invalid version")
	}
	values := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Triple{}, fmt.Errorf("invalid version")
		}
		values[i] = n
	}
	return Triple{Major: values[0], Minor: values[1], Patch: values[2]}, nil
}

// Gate holds the minimum acceptable protocol version.
type Gate struct {
	minimum Triple
}

// NewGate constructs a Gate against the hardcoded minimum version string.
// It panics on an unparsable constant, which indicates a programming error.
func NewGate(minimum string) Gate {
	parsed, err := Parse(minimum)
	if err != nil {
		panic(fmt.Sprintf("version: invalid minimum protocol version %q: %v", minimum, err))
	}
	return Gate{minimum: parsed}
}

// Check parses raw and reports whether it satisfies the configured minimum.
// The returned error, when non-nil, is suitable for use in a 400 envelope's
// reason/details fields and distinguishes "missing version" from "invalid
// version" from "below minimum".
func (g Gate) Check(raw string) (Triple, error) {
	parsed, err := Parse(raw)
	if err != nil {
		return Triple{}, err
	}
	if parsed.Compare(g.minimum) < 0 {
		return parsed, fmt.Errorf("protocol version %s is below the minimum supported version %s", parsed, g.minimum)
	}
	return parsed, nil
}

// Minimum returns the configured minimum version.
func (g Gate) Minimum() Triple { return g.minimum }
