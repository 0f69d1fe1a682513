package errors

import "fmt"

// ArchiveError represents an archive-codec failure: ChecksumMismatch,
// RegistryChecksumMismatch, UnsupportedVersion, MissingFile, UnsafePath,
// or EmptyPackage.
type ArchiveError struct {
	Base Error
	Path string
}

func (e *ArchiveError) Error() string { return e.Base.Error() }
func (e *ArchiveError) Unwrap() error { return e.Base.Cause }
func (e *ArchiveError) Is(t error) bool {
	a, ok := t.(*ArchiveError)
	return ok && e.Base.Code == a.Base.Code
}

func archiveErr(code Code, msg string) *ArchiveError {
	return &ArchiveError{Base: Error{Category: CategoryArchive, Code: code, Message: msg}}
}

// NewChecksumMismatchError reports that the recomputed digest does not
// match the archive's embedded CHECKSUM entry.
func NewChecksumMismatchError(want, got string) *ArchiveError {
	return archiveErr(CodeChecksumMismatch,
		fmt.Sprintf("checksum mismatch: archive declares %s, computed %s", want, got))
}

// NewRegistryChecksumMismatchError reports that the recomputed digest
// does not match the checksum on record in the registry.
func NewRegistryChecksumMismatchError(want, got string) *ArchiveError {
	return archiveErr(CodeRegistryChecksumMismatch,
		fmt.Sprintf("registry checksum mismatch: registry declares %s, computed %s", want, got))
}

// NewUnsupportedVersionError reports an outer archive VERSION tag outside
// the supported set.
func NewUnsupportedVersionError(tag string) *ArchiveError {
	return archiveErr(CodeUnsupportedVersion, fmt.Sprintf("unsupported archive version %q", tag))
}

// NewMissingFileError reports a required outer-archive entry absent.
func NewMissingFileError(name string) *ArchiveError {
	return (&ArchiveError{Base: Error{
		Category: CategoryArchive,
		Code:     CodeMissingFile,
		Message:  fmt.Sprintf("archive missing required entry %q", name),
	}, Path: name})
}

// NewUnsafePathError reports a tar entry that escapes the destination or
// is a symlink.
func NewUnsafePathError(name string) *ArchiveError {
	return (&ArchiveError{Base: Error{
		Category: CategoryArchive,
		Code:     CodeUnsafePath,
		Message:  fmt.Sprintf("unsafe archive entry path %q", name),
	}, Path: name})
}

// ErrEmptyPackage reports that pack() was called with no files.
var ErrEmptyPackage = archiveErr(CodeEmptyPackage, "cannot pack an empty file list")
