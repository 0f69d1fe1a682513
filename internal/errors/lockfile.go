package errors

import "fmt"

// LockError reports LockMismatch: the lockfile's recorded checksum for a
// release disagrees with the registry's current checksum for it.
type LockError struct {
	Base    Error
	Name    string
	Version string
}

func (e *LockError) Error() string { return e.Base.Error() }
func (e *LockError) Unwrap() error { return e.Base.Cause }
func (e *LockError) Is(t error) bool {
	l, ok := t.(*LockError)
	return ok && e.Base.Code == l.Base.Code
}

// NewLockMismatchError builds a LockMismatch for name@version.
func NewLockMismatchError(name, version string) *LockError {
	return &LockError{
		Base: Error{
			Category: CategoryLockfile,
			Code:     CodeLockMismatch,
			Message:  fmt.Sprintf("lockfile checksum for %s %s disagrees with the registry", name, version),
		},
		Name:    name,
		Version: version,
	}
}

// OfflineError reports OfflineMissing: a cache miss occurred while the
// offline flag was set.
type OfflineError struct {
	Base Error
	Key  string
}

func (e *OfflineError) Error() string { return e.Base.Error() }
func (e *OfflineError) Unwrap() error { return e.Base.Cause }
func (e *OfflineError) Is(t error) bool {
	o, ok := t.(*OfflineError)
	return ok && e.Base.Code == o.Base.Code
}

// NewOfflineMissingError builds an OfflineMissing error for the given
// cache key (e.g. "repo/name" or "repo/name-version").
func NewOfflineMissingError(key string) *OfflineError {
	return &OfflineError{
		Base: Error{
			Category: CategoryOffline,
			Code:     CodeOfflineMissing,
			Message:  fmt.Sprintf("offline mode: %q is not cached", key),
		},
		Key: key,
	}
}
