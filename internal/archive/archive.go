// Package archive implements the outer/inner nested tar format used to
// distribute package tarballs: an uncompressed outer tar carrying a
// version tag, a checksum, canonical-term metadata, and a gzip-
// compressed inner tar of the package's files.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/packwright/core/internal/checksum"
	pkgerrors "github.com/packwright/core/internal/errors"
	"github.com/packwright/core/internal/term"
)

// outer archive entry names, emitted in this order by Pack.
const (
	entryVersion  = "VERSION"
	entryChecksum = "CHECKSUM"
	entryContents = "contents.tar.gz"

	entryMetadataV3 = "metadata.config"
	entryMetadataV2 = "metadata.exs"

	metadataSidecar = "hex_metadata.config"

	// CurrentVersion is the outer archive version Pack emits.
	CurrentVersion = "3"
)

// supportedVersions is the set of VERSION tags Unpack accepts.
var supportedVersions = map[string]bool{"2": true, "3": true}

// File is one entry of the inner (contents) archive: a relative path
// and its bytes. Directories are implicit from path prefixes.
type File struct {
	Path     string
	Contents []byte
}

// Metadata is the release's canonical-term metadata, keyed by top-level
// field name (e.g. "name", "version", "requirements").
type Metadata map[string]term.Term

// Pack builds an outer archive from metadata and a file list. Files are
// compressed into contents.tar.gz, the checksum is computed over
// VERSION || metadata bytes || contents.tar.gz, and the outer tar is
// emitted in entryVersion, entryChecksum, entryMetadataV3, entryContents
// order.
func Pack(metadata Metadata, files []File) ([]byte, error) {
	if len(files) == 0 {
		return nil, pkgerrors.ErrEmptyPackage
	}

	contents, err := packContents(files)
	if err != nil {
		return nil, err
	}

	metaBytes := []byte(term.EncodeRecords(metadata))
	sum := checksum.Sum(concatChecksumInput(CurrentVersion, metaBytes, contents))
	checksumHex := checksum.Hex(sum)

	var outer bytes.Buffer
	tw := tar.NewWriter(&outer)

	if err := writeOuterEntry(tw, entryVersion, []byte(CurrentVersion)); err != nil {
		return nil, err
	}
	if err := writeOuterEntry(tw, entryChecksum, []byte(checksumHex)); err != nil {
		return nil, err
	}
	if err := writeOuterEntry(tw, entryMetadataV3, metaBytes); err != nil {
		return nil, err
	}
	if err := writeOuterEntry(tw, entryContents, contents); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return outer.Bytes(), nil
}

// Unpacked is the result of a successful Unpack.
type Unpacked struct {
	Metadata []byte
	Version  string
	Checksum [checksum.Size]byte
}

// Unpack validates and extracts an outer archive to destDir, per the
// contract in the archive codec's specification: all required entries
// present, a supported VERSION, a checksum recomputation matching
// CHECKSUM (and, if expectedChecksum is non-nil, matching that too),
// safe extraction of contents.tar.gz with every file's mtime touched to
// now, and a hex_metadata.config sidecar written at destDir's root.
func Unpack(data []byte, destDir string, expectedChecksum *[checksum.Size]byte) (Unpacked, error) {
	entries, err := readOuterEntries(data)
	if err != nil {
		return Unpacked{}, err
	}

	version, ok := entries[entryVersion]
	if !ok {
		return Unpacked{}, pkgerrors.NewMissingFileError(entryVersion)
	}
	checksumHex, ok := entries[entryChecksum]
	if !ok {
		return Unpacked{}, pkgerrors.NewMissingFileError(entryChecksum)
	}
	metaBytes := entries[entryMetadataV3]
	if metaBytes == nil {
		metaBytes = entries[entryMetadataV2]
	}
	if metaBytes == nil {
		return Unpacked{}, pkgerrors.NewMissingFileError(entryMetadataV3)
	}
	contents, ok := entries[entryContents]
	if !ok {
		return Unpacked{}, pkgerrors.NewMissingFileError(entryContents)
	}

	versionText := strings.TrimSpace(string(version))
	if !supportedVersions[versionText] {
		return Unpacked{}, pkgerrors.NewUnsupportedVersionError(versionText)
	}

	computed := checksum.Sum(concatChecksumInput(versionText, metaBytes, contents))
	computedHex := checksum.Hex(computed)
	declaredHex := strings.ToLower(strings.TrimSpace(string(checksumHex)))
	if computedHex != declaredHex {
		return Unpacked{}, pkgerrors.NewChecksumMismatchError(declaredHex, computedHex)
	}

	if expectedChecksum != nil {
		expectedHex := checksum.Hex(*expectedChecksum)
		if computedHex != expectedHex {
			return Unpacked{}, pkgerrors.NewRegistryChecksumMismatchError(expectedHex, computedHex)
		}
	}

	if err := extractContents(contents, destDir); err != nil {
		return Unpacked{}, err
	}

	sidecarPath := filepath.Join(destDir, metadataSidecar)
	if err := os.WriteFile(sidecarPath, metaBytes, 0o644); err != nil {
		return Unpacked{}, err
	}

	return Unpacked{Metadata: metaBytes, Version: versionText, Checksum: computed}, nil
}

// concatChecksumInput builds VERSION || metadata-bytes || contents.tar.gz,
// the exact byte sequence the checksum is computed over.
func concatChecksumInput(version string, metaBytes, contents []byte) []byte {
	buf := make([]byte, 0, len(version)+len(metaBytes)+len(contents))
	buf = append(buf, version...)
	buf = append(buf, metaBytes...)
	buf = append(buf, contents...)
	return buf
}

func writeOuterEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  time.Unix(0, 0),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func readOuterEntries(data []byte) (map[string][]byte, error) {
	tr := tar.NewReader(bytes.NewReader(data))
	entries := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		buf, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		entries[hdr.Name] = buf
	}
	return entries, nil
}

func packContents(files []File) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, f := range sorted {
		if isUnsafePath(f.Path) {
			return nil, pkgerrors.NewUnsafePathError(f.Path)
		}
		hdr := &tar.Header{
			Name:     f.Path,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(f.Contents)),
			ModTime:  time.Unix(0, 0),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(f.Contents); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func extractContents(contents []byte, destDir string) error {
	gr, err := gzip.NewReader(bytes.NewReader(contents))
	if err != nil {
		return err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	now := time.Now()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if hdr.Typeflag == tar.TypeSymlink || hdr.Typeflag == tar.TypeLink {
			return pkgerrors.NewUnsafePathError(hdr.Name)
		}
		if isUnsafePath(hdr.Name) {
			return pkgerrors.NewUnsafePathError(hdr.Name)
		}

		target := filepath.Join(destDir, hdr.Name)
		if !isInsideDir(destDir, target) {
			return pkgerrors.NewUnsafePathError(hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			if err := os.Chtimes(target, now, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func fileMode(mode int64) os.FileMode {
	if mode <= 0 {
		return 0o644
	}
	return os.FileMode(mode)
}

// isUnsafePath rejects absolute paths and paths with a ".." component,
// matching the spec's UnsafePath boundary regardless of the destination
// directory chosen by the caller.
func isUnsafePath(name string) bool {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return true
	}
	clean := cleanSlashPath(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// cleanSlashPath wraps filepath.ToSlash(filepath.Clean(name)) to normalize
// separators before the ".." check, since tar entries always use "/".
func cleanSlashPath(name string) string {
	return filepath.ToSlash(filepath.Clean(name))
}

func isInsideDir(baseDir, target string) bool {
	rel, err := filepath.Rel(baseDir, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
