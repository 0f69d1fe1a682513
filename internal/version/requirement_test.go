package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/core/internal/version"
)

func TestMatchNullRequirement(t *testing.T) {
	r := version.MustParseRequirement("")
	assert.True(t, version.Match(version.MustParse("1.0.0"), r))
}

func TestMatchTildeMinorOnly(t *testing.T) {
	r := version.MustParseRequirement("~> 1.2")
	assert.False(t, version.Match(version.MustParse("1.1.9"), r))
	assert.True(t, version.Match(version.MustParse("1.2.0"), r))
	assert.True(t, version.Match(version.MustParse("1.9.9"), r))
	assert.False(t, version.Match(version.MustParse("2.0.0"), r))
}

func TestMatchTildeWithPatch(t *testing.T) {
	r := version.MustParseRequirement("~> 1.2.3")
	assert.False(t, version.Match(version.MustParse("1.2.2"), r))
	assert.True(t, version.Match(version.MustParse("1.2.3"), r))
	assert.True(t, version.Match(version.MustParse("1.2.9"), r))
	assert.False(t, version.Match(version.MustParse("1.3.0"), r))
}

func TestMatchConjunction(t *testing.T) {
	r := version.MustParseRequirement("~> 1.2, != 1.2.5")
	assert.True(t, version.Match(version.MustParse("1.2.4"), r))
	assert.False(t, version.Match(version.MustParse("1.2.5"), r))
}

func TestMatchComparisonOperators(t *testing.T) {
	cases := []struct {
		req     string
		version string
		want    bool
	}{
		{">= 1.0.0", "1.0.0", true},
		{">= 1.0.0", "0.9.9", false},
		{"<= 2.0.0", "2.0.0", true},
		{"<= 2.0.0", "2.0.1", false},
		{"> 1.0.0", "1.0.0", false},
		{"< 1.0.0", "0.9.9", true},
		{"!= 1.0.0", "1.0.1", true},
		{"1.0.0", "1.0.0", true},
	}
	for _, c := range cases {
		r := version.MustParseRequirement(c.req)
		got := version.Match(version.MustParse(c.version), r)
		assert.Equal(t, c.want, got, "requirement %q against %q", c.req, c.version)
	}
}

func TestMatchPrereleaseInvisibleByDefault(t *testing.T) {
	r := version.MustParseRequirement(">= 1.0.0")
	assert.False(t, version.Match(version.MustParse("1.1.0-rc.1"), r))
}

func TestMatchPrereleaseVisibleWhenRequirementMentionsSameTriple(t *testing.T) {
	r := version.MustParseRequirement(">= 1.1.0-rc.0")
	assert.True(t, version.Match(version.MustParse("1.1.0-rc.1"), r))
}

func TestParseRequirementInvalid(t *testing.T) {
	_, err := version.ParseRequirement("~> ")
	require.Error(t, err)
}
