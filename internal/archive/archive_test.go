package archive_test

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/core/internal/archive"
	pkgerrors "github.com/packwright/core/internal/errors"
	"github.com/packwright/core/internal/term"
)

func demoMetadata() archive.Metadata {
	return archive.Metadata{
		"name":    term.Binary("demo"),
		"version": term.Binary("1.0.0"),
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	files := []archive.File{
		{Path: "mix.exs", Contents: []byte("contents")},
		{Path: "lib/demo.ex", Contents: []byte("defmodule Demo do\nend\n")},
	}

	packed, err := archive.Pack(demoMetadata(), files)
	require.NoError(t, err)

	dest := t.TempDir()
	unpacked, err := archive.Unpack(packed, dest, nil)
	require.NoError(t, err)
	assert.Equal(t, archive.CurrentVersion, unpacked.Version)

	got, err := os.ReadFile(filepath.Join(dest, "mix.exs"))
	require.NoError(t, err)
	assert.Equal(t, "contents", string(got))

	sidecar, err := os.ReadFile(filepath.Join(dest, "hex_metadata.config"))
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), "name")
	assert.Contains(t, string(sidecar), "demo")
}

func TestPackEmptyFails(t *testing.T) {
	_, err := archive.Pack(demoMetadata(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyPackage)
}

func TestUnpackChecksumMismatch(t *testing.T) {
	packed, err := archive.Pack(demoMetadata(), []archive.File{{Path: "mix.exs", Contents: []byte("contents")}})
	require.NoError(t, err)

	tampered := rewriteOuterEntry(t, packed, "contents.tar.gz", flipLastByte(t, packed, "contents.tar.gz"))

	_, err = archive.Unpack(tampered, t.TempDir(), nil)
	require.Error(t, err)
	var archErr *pkgerrors.ArchiveError
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, pkgerrors.CodeChecksumMismatch, archErr.Base.Code)
}

func TestUnpackUnsupportedVersion(t *testing.T) {
	packed, err := archive.Pack(demoMetadata(), []archive.File{{Path: "mix.exs", Contents: []byte("x")}})
	require.NoError(t, err)

	downgraded := rewriteOuterEntry(t, packed, "VERSION", []byte("1"))
	_, err = archive.Unpack(downgraded, t.TempDir(), nil)
	require.Error(t, err)
	var archErr *pkgerrors.ArchiveError
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, pkgerrors.CodeUnsupportedVersion, archErr.Base.Code)
}

func TestUnpackMissingEntry(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "VERSION", Size: 1, Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte("3"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	_, err = archive.Unpack(buf.Bytes(), t.TempDir(), nil)
	require.Error(t, err)
	var archErr *pkgerrors.ArchiveError
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, pkgerrors.CodeMissingFile, archErr.Base.Code)
}

func TestPackRejectsUnsafePath(t *testing.T) {
	_, err := archive.Pack(demoMetadata(), []archive.File{{Path: "../escape", Contents: []byte("x")}})
	require.Error(t, err)
	var archErr *pkgerrors.ArchiveError
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, pkgerrors.CodeUnsafePath, archErr.Base.Code)
}

// readOuterEntry returns the raw bytes of the named entry in an outer
// archive, for test helpers that need to inspect or mutate one entry.
func readOuterEntry(t *testing.T, outer []byte, name string) []byte {
	t.Helper()
	tr := tar.NewReader(bytes.NewReader(outer))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			t.Fatalf("entry %q not found", name)
		}
		require.NoError(t, err)
		if hdr.Name == name {
			buf, err := io.ReadAll(tr)
			require.NoError(t, err)
			return buf
		}
	}
}

// flipLastByte returns the named entry's bytes with the final byte
// XORed, simulating single-bit corruption deep inside an archive.
func flipLastByte(t *testing.T, outer []byte, name string) []byte {
	t.Helper()
	buf := readOuterEntry(t, outer, name)
	if len(buf) > 0 {
		buf[len(buf)-1] ^= 0xFF
	}
	return buf
}

// rewriteOuterEntry returns outer with the named entry's bytes replaced
// by value, leaving every other entry untouched.
func rewriteOuterEntry(t *testing.T, outer []byte, name string, value []byte) []byte {
	t.Helper()
	tr := tar.NewReader(bytes.NewReader(outer))
	var out bytes.Buffer
	tw := tar.NewWriter(&out)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		buf, err := io.ReadAll(tr)
		require.NoError(t, err)
		if hdr.Name == name {
			buf = value
		}
		hdr.Size = int64(len(buf))
		require.NoError(t, tw.WriteHeader(hdr))
		_, err = tw.Write(buf)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return out.Bytes()
}
