package version_test

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/packwright/core/internal/version"
)

func genVersion(t *rapid.T) version.Version {
	major := rapid.IntRange(0, 5).Draw(t, "major")
	minor := rapid.IntRange(0, 5).Draw(t, "minor")
	patch := rapid.IntRange(0, 5).Draw(t, "patch")
	text := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if rapid.Bool().Draw(t, "hasPre") {
		pre := rapid.SampledFrom([]string{"alpha", "alpha.1", "beta", "rc.1"}).Draw(t, "pre")
		text += "-" + pre
	}
	return version.MustParse(text)
}

// TestCompareIsTotalOrder verifies antisymmetry and transitivity of
// Version.Compare over randomly generated versions.
func TestCompareIsTotalOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := genVersion(rt)
		b := genVersion(rt)
		c := genVersion(rt)

		if a.Compare(b) != -b.Compare(a) {
			rt.Fatalf("antisymmetry violated: %s vs %s", a, b)
		}
		if a.LessThan(b) && b.LessThan(c) && !a.LessThan(c) {
			rt.Fatalf("transitivity violated: %s < %s < %s but not %s < %s", a, b, c, a, c)
		}
	})
}

// TestStringParseRoundTrip verifies that parsing a version's canonical
// string representation yields an equal version.
func TestStringParseRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := genVersion(rt)
		reparsed := version.MustParse(v.String())
		if !v.Equal(reparsed) {
			rt.Fatalf("round trip changed value: %s -> %s", v, reparsed)
		}
	})
}
