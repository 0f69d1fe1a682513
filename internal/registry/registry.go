// Package registry is the per-process registry store: a
// (repo, name) -> {etag, releases} map guarded by a sync.RWMutex, with
// disk persistence of the raw signed envelope per package. Lookups take
// the read lock and updates the write lock; lookups are not lock-free.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/packwright/core/internal/errors"
	"github.com/packwright/core/internal/repository"
	"github.com/packwright/core/internal/state"
	"github.com/packwright/core/internal/version"
	"github.com/packwright/core/internal/wire"
)

// Key identifies one package within one repository.
type Key struct {
	Repo string
	Name string
}

func (k Key) String() string { return k.Repo + "/" + k.Name }

// entry is the store's per-key cached state.
type entry struct {
	etag     string
	releases []wire.Release
}

// Fetcher performs the network half of a fetch: a GetPackage call. It
// is an interface so Store can be tested without live HTTP. The adapter
// in package converge (converge.Fetchers) calls a repository client
// directly; it does not go through the fetch coordinator.
type Fetcher interface {
	GetPackage(ctx context.Context, repoName, pkgName, etag string) (repository.FetchResult, error)
}

// Store is the per-process registry cache.
type Store struct {
	mu       sync.RWMutex
	entries  map[Key]entry
	cacheDir string
	st       *state.State
}

// New builds an empty Store persisting envelopes under
// st.CacheDir/registry.
func New(st *state.State) *Store {
	return &Store{
		entries:  make(map[Key]entry),
		cacheDir: filepath.Join(st.CacheDir, "registry"),
		st:       st,
	}
}

// Lookup returns the cached release list for (repo, name), if present.
func (s *Store) Lookup(repo, name string) ([]wire.Release, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[Key{Repo: repo, Name: name}]
	if !ok {
		return nil, false
	}
	return e.releases, true
}

// Checksum returns the release checksum for (repo, name, version).
func (s *Store) Checksum(repo, name, ver string) ([32]byte, bool) {
	rel, ok := s.release(repo, name, ver)
	if !ok {
		return [32]byte{}, false
	}
	var out [32]byte
	copy(out[:], rel.InnerChecksum)
	return out, true
}

// Deps returns the declared dependencies for (repo, name, version).
func (s *Store) Deps(repo, name, ver string) ([]wire.Dependency, bool) {
	rel, ok := s.release(repo, name, ver)
	if !ok {
		return nil, false
	}
	return rel.Dependencies, true
}

func (s *Store) release(repo, name, ver string) (wire.Release, bool) {
	releases, ok := s.Lookup(repo, name)
	if !ok {
		return wire.Release{}, false
	}
	for _, r := range releases {
		if r.Version == ver {
			return r, true
		}
	}
	return wire.Release{}, false
}

// PrefetchRequest names one (repo, name) pair to refresh.
type PrefetchRequest struct {
	Repo state.RepoConfig
	Name string
}

// Prefetch calls fetcher.GetPackage for each request in turn, one at a
// time, and stops at the first error; the calls are not issued
// concurrently. On a 200 response it verifies the signed envelope, decodes the
// payload, persists the envelope to disk, and replaces the cache entry;
// on 304 it leaves the existing entry untouched.
func (s *Store) Prefetch(ctx context.Context, fetcher Fetcher, requests []PrefetchRequest) error {
	for _, req := range requests {
		if err := s.prefetchOne(ctx, fetcher, req); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) prefetchOne(ctx context.Context, fetcher Fetcher, req PrefetchRequest) error {
	key := Key{Repo: req.Repo.Name, Name: req.Name}

	s.mu.RLock()
	existing, hasExisting := s.entries[key]
	s.mu.RUnlock()

	if s.st.Offline {
		if !hasExisting {
			return pkgerrors.NewOfflineMissingError(key.String())
		}
		return nil
	}

	result, err := fetcher.GetPackage(ctx, req.Repo.Name, req.Name, existing.etag)
	if err != nil {
		return err
	}
	if result.NotModified {
		slog.Debug("registry cache hit", "repo", key.Repo, "name", key.Name)
		return nil
	}
	slog.Debug("registry cache miss, fetching from remote", "repo", key.Repo, "name", key.Name)

	payload, err := repository.Verify(req.Repo, result.Body)
	if err != nil {
		return err
	}
	pkg, err := repository.DecodePackage(req.Repo, payload, req.Name)
	if err != nil {
		return err
	}

	if err := s.persist(key, result.ETag, result.Body); err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[key] = entry{etag: result.ETag, releases: pkg.Releases}
	s.mu.Unlock()
	slog.Debug("prefetched package", "repo", key.Repo, "name", key.Name, "releases", len(pkg.Releases))
	return nil
}

// Load reads every persisted envelope under the store's cache
// directory, re-verifying each against its repository's configuration
// before admitting it to the in-memory cache. Verification failures are
// logged and skipped rather than treated as fatal, since a stale or
// corrupt cache entry should not block a cold start.
func (s *Store) Load(repos map[string]state.RepoConfig) error {
	entries, err := os.ReadDir(s.cacheDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		var meta persistedMeta
		raw, err := os.ReadFile(filepath.Join(s.cacheDir, de.Name()))
		if err != nil {
			slog.Warn("skipping unreadable registry cache entry", "file", de.Name(), "error", err)
			continue
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			slog.Warn("skipping malformed registry cache entry", "file", de.Name(), "error", err)
			continue
		}

		repo, ok := repos[meta.Repo]
		if !ok {
			continue
		}
		payload, err := repository.Verify(repo, meta.Envelope)
		if err != nil {
			slog.Warn("skipping registry cache entry failing verification", "repo", meta.Repo, "name", meta.Name, "error", err)
			continue
		}
		pkg, err := repository.DecodePackage(repo, payload, meta.Name)
		if err != nil {
			slog.Warn("skipping registry cache entry failing decode", "repo", meta.Repo, "name", meta.Name, "error", err)
			continue
		}

		s.mu.Lock()
		s.entries[Key{Repo: meta.Repo, Name: meta.Name}] = entry{etag: meta.ETag, releases: pkg.Releases}
		s.mu.Unlock()
	}
	return nil
}

type persistedMeta struct {
	Repo     string `json:"repo"`
	Name     string `json:"name"`
	ETag     string `json:"etag"`
	Envelope []byte `json:"envelope"`
}

// persist writes envelope and its freshly-received etag to disk. etag
// must be the value from the response that produced envelope, not
// whatever s.entries still holds — the caller has not updated the cache
// entry yet when this runs, so reading it back here would persist the
// etag one generation behind the envelope being written.
func (s *Store) persist(key Key, etag string, envelope []byte) error {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return err
	}
	meta := persistedMeta{Repo: key.Repo, Name: key.Name, ETag: etag, Envelope: envelope}

	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	path := filepath.Join(s.cacheDir, fmt.Sprintf("%s-%s.json", sanitize(key.Repo), sanitize(key.Name)))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '/' || r == filepath.Separator {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// KnownVersions returns the sorted (newest-first) parsed versions known
// for (repo, name), skipping any malformed release entries.
func (s *Store) KnownVersions(repo, name string) []version.Version {
	releases, ok := s.Lookup(repo, name)
	if !ok {
		return nil
	}
	out := make([]version.Version, 0, len(releases))
	for _, r := range releases {
		v, err := version.Parse(r.Version)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	sortVersionsDescending(out)
	return out
}

func sortVersionsDescending(vs []version.Version) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && vs[j].GreaterThan(vs[j-1]); j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}
}
