package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/core/internal/wire"
)

func TestPackageRoundTrip(t *testing.T) {
	pkg := wire.Package{
		Repository: "hexpm",
		Name:       "ecto",
		Releases: []wire.Release{
			{
				Version:       "3.10.0",
				InnerChecksum: []byte{1, 2, 3, 4},
				Dependencies: []wire.Dependency{
					{Package: "db_connection", Requirement: "~> 2.4", App: "db_connection", Repository: "hexpm"},
					{Package: "telemetry", Requirement: "~> 1.0", Optional: true, App: "telemetry", Repository: "hexpm"},
				},
			},
			{
				Version:       "3.9.0",
				InnerChecksum: []byte{5, 6, 7, 8},
				Retired: &wire.RetirementStatus{
					Reason:  wire.RetirementSecurity,
					Message: "contains a SQL injection vulnerability",
				},
			},
		},
	}

	encoded := wire.EncodePackage(pkg)
	decoded, err := wire.DecodePackage(encoded)
	require.NoError(t, err)
	assert.Equal(t, pkg, decoded)
}

func TestPackageEmptyReleases(t *testing.T) {
	pkg := wire.Package{Repository: "hexpm", Name: "ecto"}
	encoded := wire.EncodePackage(pkg)
	decoded, err := wire.DecodePackage(encoded)
	require.NoError(t, err)
	assert.Equal(t, "hexpm", decoded.Repository)
	assert.Equal(t, "ecto", decoded.Name)
	assert.Empty(t, decoded.Releases)
}

func TestSignedRoundTrip(t *testing.T) {
	s := wire.Signed{
		Payload:   []byte("payload bytes"),
		Signature: []byte("signature bytes"),
	}
	encoded := wire.EncodeSigned(s)
	decoded, err := wire.DecodeSigned(encoded)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := wire.DecodePackage([]byte{0xFF})
	require.Error(t, err)
}
