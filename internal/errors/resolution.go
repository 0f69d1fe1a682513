package errors

import (
	"fmt"
	"strings"
)

// RequirementOrigin identifies where a requirement on a name came from,
// for diagnostic purposes (§3 "from-path").
type RequirementOrigin struct {
	Requirement string
	FromPath    string
}

// ResolutionError reports ResolutionConflict: the solver exhausted every
// candidate version for a name without satisfying all active
// requirements. It carries the full requirement set and origins so the
// caller can render an actionable diagnostic, per §7's propagation
// policy for resolution conflicts.
type ResolutionError struct {
	Base         Error
	Name         string
	Requirements []RequirementOrigin
}

func (e *ResolutionError) Error() string { return e.Base.Error() }
func (e *ResolutionError) Unwrap() error { return e.Base.Cause }
func (e *ResolutionError) Is(t error) bool {
	r, ok := t.(*ResolutionError)
	return ok && e.Base.Code == r.Base.Code
}

// NewResolutionError builds a ResolutionConflict for name given the
// active requirement set that could not be jointly satisfied.
func NewResolutionError(name string, reqs []RequirementOrigin) *ResolutionError {
	parts := make([]string, 0, len(reqs))
	for _, r := range reqs {
		parts = append(parts, fmt.Sprintf("%s (from %s)", r.Requirement, r.FromPath))
	}
	return &ResolutionError{
		Base: Error{
			Category: CategoryResolution,
			Code:     CodeResolutionConflict,
			Message:  fmt.Sprintf("no version of %q satisfies: %s", name, strings.Join(parts, "; ")),
		},
		Name:         name,
		Requirements: reqs,
	}
}

// RepoConflictError reports RepoConflict: the same package name was
// demanded from two different repositories.
type RepoConflictError struct {
	Base  Error
	Name  string
	Repos []string
}

func (e *RepoConflictError) Error() string { return e.Base.Error() }
func (e *RepoConflictError) Unwrap() error { return e.Base.Cause }
func (e *RepoConflictError) Is(t error) bool {
	r, ok := t.(*RepoConflictError)
	return ok && e.Base.Code == r.Base.Code
}

// NewRepoConflictError builds a RepoConflict for name across repos.
func NewRepoConflictError(name string, repos []string) *RepoConflictError {
	return &RepoConflictError{
		Base: Error{
			Category: CategoryResolution,
			Code:     CodeRepoConflict,
			Message:  fmt.Sprintf("package %q requested from multiple repositories: %s", name, strings.Join(repos, ", ")),
		},
		Name:  name,
		Repos: repos,
	}
}
