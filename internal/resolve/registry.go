package resolve

import (
	"github.com/packwright/core/internal/registry"
	"github.com/packwright/core/internal/version"
)

// StoreReleases adapts a *registry.Store to the Releases interface the
// solver consumes, translating the wire-level release shape into the
// solver's own Dependency type.
type StoreReleases struct {
	Store *registry.Store
}

func (r StoreReleases) Versions(repo, name string) []version.Version {
	return r.Store.KnownVersions(repo, name)
}

func (r StoreReleases) IsRetired(repo, name, ver string) bool {
	releases, ok := r.Store.Lookup(repo, name)
	if !ok {
		return false
	}
	for _, rel := range releases {
		if rel.Version == ver {
			return rel.Retired != nil
		}
	}
	return false
}

func (r StoreReleases) Deps(repo, name, ver string) []Dependency {
	wireDeps, ok := r.Store.Deps(repo, name, ver)
	if !ok {
		return nil
	}
	out := make([]Dependency, 0, len(wireDeps))
	for _, d := range wireDeps {
		depRepo := d.Repository
		if depRepo == "" {
			depRepo = repo
		}
		out = append(out, Dependency{
			Repo:        depRepo,
			Name:        d.Package,
			Requirement: d.Requirement,
			Optional:    d.Optional,
			App:         d.App,
		})
	}
	return out
}
