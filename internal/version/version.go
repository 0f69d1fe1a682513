// Package version parses and compares semantic versions and requirement
// expressions for packages resolved by this module.
//
// Comparison and canonical rendering are delegated to
// github.com/Masterminds/semver/v3, which already implements the SemVer
// 2.0.0 precedence rules this package's invariants rely on: numeric
// fields compared by value, a pre-release sequence present is lower than
// one absent, each pre-release identifier compared numerically when all
// digits else lexicographically, and build metadata ignored for ordering
// but preserved textually.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	pkgerrors "github.com/packwright/core/internal/errors"
)

// plain constructs a release version with no pre-release or build
// metadata from a numeric triple. The triple is always well-formed, so
// the parse error is unreachable.
func plain(major, minor, patch int64) Version {
	v, err := semver.NewVersion(fmt.Sprintf("%d.%d.%d", major, minor, patch))
	if err != nil {
		panic(err)
	}
	return Version{v: v}
}

// Version is an immutable semantic version value.
type Version struct {
	v *semver.Version
}

// Parse parses a version string such as "1.2.3-rc.1+build.5".
func Parse(text string) (Version, error) {
	v, err := semver.NewVersion(text)
	if err != nil {
		return Version{}, pkgerrors.NewVersionError(text, err)
	}
	return Version{v: v}, nil
}

// MustParse parses text, panicking on error. Intended for tests and
// literal constants, never for untrusted input.
func MustParse(text string) Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// Major, Minor, Patch return the numeric triple.
func (v Version) Major() int64 { return v.v.Major() }
func (v Version) Minor() int64 { return v.v.Minor() }
func (v Version) Patch() int64 { return v.v.Patch() }

// Prerelease returns the pre-release sequence text, empty if absent.
func (v Version) Prerelease() string { return v.v.Prerelease() }

// Metadata returns the build metadata text, empty if absent. It is
// preserved textually and never affects comparisons.
func (v Version) Metadata() string { return v.v.Metadata() }

// IsZero reports whether v is the zero Version (unparsed).
func (v Version) IsZero() bool { return v.v == nil }

// String renders the version canonically, e.g. "1.2.3-rc.1+build.5".
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other. It is a total order: Compare(a,b) == -Compare(b,a).
func (v Version) Compare(other Version) int {
	return v.v.Compare(other.v)
}

// Equal reports whether v and other compare equal.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// LessThan reports whether v sorts before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// GreaterThan reports whether v sorts after other.
func (v Version) GreaterThan(other Version) bool { return v.Compare(other) > 0 }

// sameTriple reports whether v and other share (major, minor, patch).
func sameTriple(a, b Version) bool {
	return a.Major() == b.Major() && a.Minor() == b.Minor() && a.Patch() == b.Patch()
}

// bumpMinor returns the version with minor bumped and patch/pre/build
// cleared: M.(N+1).0. Used for the upper bound of "~> M.N.P".
func bumpMinor(v Version) Version {
	return plain(v.Major(), v.Minor()+1, 0)
}

// bumpMajor returns M+1.0.0. Used for the upper bound of "~> M.N".
func bumpMajor(v Version) Version {
	return plain(v.Major()+1, 0, 0)
}

// floorMinor returns M.N.0, stripping any explicit patch/pre/build. Used
// as the lower bound of "~> M.N".
func floorMinor(v Version) Version {
	return plain(v.Major(), v.Minor(), 0)
}
