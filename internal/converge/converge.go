// Package converge composes the resolver, the fetch coordinator, and
// the lockfile writer into the single top-level operation external
// callers actually invoke: resolve the dependency tree, fetch every
// selected tarball into place, and only then persist the lockfile.
//
// The write is all-or-nothing: if any tarball fails to fetch or
// unpack after a successful resolution, the lockfile is left
// untouched so a partial install never looks like a complete one.
package converge

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/packwright/core/internal/archive"
	"github.com/packwright/core/internal/checksum"
	"github.com/packwright/core/internal/fetch"
	"github.com/packwright/core/internal/lockfile"
	"github.com/packwright/core/internal/registry"
	"github.com/packwright/core/internal/repository"
	"github.com/packwright/core/internal/resolve"
	"github.com/packwright/core/internal/state"
)

// EventType classifies one progress Event.
type EventType int

const (
	EventResolveStart EventType = iota
	EventResolveComplete
	EventFetchStart
	EventFetchProgress
	EventFetchComplete
	EventLockWritten
	EventError
)

// Event is one user-visible milestone during a Converge call.
type Event struct {
	Type       EventType
	Package    string
	Version    string
	Downloaded int64
	Total      int64
	Err        error
}

// EventHandler receives Converge's progress milestones. It must not
// block; Converge invokes it synchronously from whichever goroutine
// reached the milestone.
type EventHandler func(Event)

func emit(h EventHandler, e Event) {
	if h != nil {
		h(e)
	}
}

// Dependencies are the components Converge wires together.
type Dependencies struct {
	Store       *registry.Store
	Coordinator *fetch.Coordinator
	// Clients maps a repository name to the client used to fetch its
	// tarballs.
	Clients map[string]*repository.Client
}

// clientFetcher adapts a *repository.Client, which is already bound to
// one repository, to registry.Fetcher's repo-parametrized signature.
type clientFetcher struct {
	client *repository.Client
}

func (f clientFetcher) GetPackage(ctx context.Context, repoName, pkgName, etag string) (repository.FetchResult, error) {
	return f.client.GetPackage(ctx, pkgName, etag)
}

// Fetchers adapts a repo-name-keyed client map to the registry.Fetcher
// map PrefetchAll needs.
func Fetchers(clients map[string]*repository.Client) map[string]registry.Fetcher {
	out := make(map[string]registry.Fetcher, len(clients))
	for name, c := range clients {
		out[name] = clientFetcher{client: c}
	}
	return out
}

// Options parametrizes one Converge call.
type Options struct {
	LockPath string
	DestDir  string
	Progress EventHandler
}

// Converge resolves roots against deps.Store (honoring any existing
// lockfile pin at opts.LockPath), fetches and unpacks every selection
// into opts.DestDir, and writes the new lockfile only if every fetch
// succeeds.
func Converge(ctx context.Context, roots []*resolve.Node, deps Dependencies, opts Options) (*resolve.Resolution, error) {
	lock, err := lockfile.Load(opts.LockPath)
	if err != nil {
		return nil, fmt.Errorf("load lockfile: %w", err)
	}

	locked := make(map[string]string, len(lock.Entries))
	for _, e := range lock.Entries {
		locked[e.Name] = e.Version
	}

	slog.Info("resolving dependencies", "roots", len(roots))
	emit(opts.Progress, Event{Type: EventResolveStart})
	resolution, err := resolve.Resolve(roots, resolve.StoreReleases{Store: deps.Store}, locked)
	if err != nil {
		slog.Warn("resolution failed", "error", err)
		emit(opts.Progress, Event{Type: EventError, Err: err})
		return nil, err
	}
	slog.Info("resolved dependencies", "selections", len(resolution.Selections))
	emit(opts.Progress, Event{Type: EventResolveComplete})

	if err := fetchAll(ctx, deps, opts, resolution); err != nil {
		slog.Warn("fetch failed, lockfile left untouched", "error", err)
		emit(opts.Progress, Event{Type: EventError, Err: err})
		return nil, err
	}

	newLock := buildLock(deps.Store, resolution)
	if err := lockfile.Write(opts.LockPath, newLock); err != nil {
		return nil, fmt.Errorf("write lockfile: %w", err)
	}
	slog.Info("lockfile written", "path", opts.LockPath)
	emit(opts.Progress, Event{Type: EventLockWritten})

	return resolution, nil
}

func fetchAll(ctx context.Context, deps Dependencies, opts Options, resolution *resolve.Resolution) error {
	names := make([]string, 0, len(resolution.Selections))
	for name := range resolution.Selections {
		names = append(names, name)
	}
	sort.Strings(names)

	jobs := make([]fetch.Job, 0, len(names))
	for _, name := range names {
		sel := resolution.Selections[name]
		client, ok := deps.Clients[sel.Repo]
		if !ok {
			return fmt.Errorf("converge: no client configured for repository %q", sel.Repo)
		}
		jobs = append(jobs, fetch.Job{
			Fingerprint: sel.Repo + "/" + sel.Name + "@" + sel.Version,
			Run:         fetchOne(client, deps.Store, opts, sel),
		})
	}

	for result := range deps.Coordinator.Submit(ctx, jobs, fetchProgress(opts)) {
		if result.Err != nil {
			return fmt.Errorf("fetch %s: %w", result.Fingerprint, result.Err)
		}
	}
	return nil
}

func fetchOne(client *repository.Client, store *registry.Store, opts Options, sel resolve.Selection) func(context.Context, fetch.ProgressFunc) (any, error) {
	return func(ctx context.Context, progress fetch.ProgressFunc) (any, error) {
		emit(opts.Progress, Event{Type: EventFetchStart, Package: sel.Name, Version: sel.Version})

		data, err := client.GetTarball(ctx, sel.Name, sel.Version)
		if err != nil {
			return nil, err
		}
		progress(sel.Name+"@"+sel.Version, int64(len(data)), int64(len(data)))

		var expected *[checksum.Size]byte
		if sum, ok := store.Checksum(sel.Repo, sel.Name, sel.Version); ok {
			expected = &sum
		}

		dest := filepath.Join(opts.DestDir, sel.Name)
		if _, err := archive.Unpack(data, dest, expected); err != nil {
			return nil, err
		}

		emit(opts.Progress, Event{Type: EventFetchComplete, Package: sel.Name, Version: sel.Version})
		return sel, nil
	}
}

func fetchProgress(opts Options) fetch.ProgressFunc {
	return func(fingerprint string, done, total int64) {
		emit(opts.Progress, Event{Type: EventFetchProgress, Package: fingerprint, Downloaded: done, Total: total})
	}
}

// PrefetchAll walks roots and, transitively, every non-optional
// dependency named by any release of any package reached so far,
// prefetching each package's full release list into store before the
// resolver ever runs. A package's registry entry already carries every
// release's declared dependencies inline, so one prefetch per name is
// enough; Resolve itself does not fetch mid-search. Optional edges are
// not followed, so a package reached only through optional edges is not
// prefetched.
func PrefetchAll(ctx context.Context, store *registry.Store, repos map[string]state.RepoConfig, fetchers map[string]registry.Fetcher, roots []*resolve.Node) error {
	seen := map[string]bool{}
	var frontier []registry.PrefetchRequest

	var walk func(nodes []*resolve.Node)
	walk = func(nodes []*resolve.Node) {
		for _, n := range nodes {
			repoName := n.Repo
			if repoName == "" {
				repoName = "hexpm"
			}
			key := repoName + "/" + n.Name
			if !seen[key] {
				seen[key] = true
				if repo, ok := repos[repoName]; ok {
					frontier = append(frontier, registry.PrefetchRequest{Repo: repo, Name: n.Name})
				}
			}
			walk(n.Children)
		}
	}
	walk(roots)

	for len(frontier) > 0 {
		req := frontier[0]
		frontier = frontier[1:]

		fetcher, ok := fetchers[req.Repo.Name]
		if !ok {
			return fmt.Errorf("converge: no fetcher configured for repository %q", req.Repo.Name)
		}
		if err := store.Prefetch(ctx, fetcher, []registry.PrefetchRequest{req}); err != nil {
			return err
		}

		releases, _ := store.Lookup(req.Repo.Name, req.Name)
		for _, rel := range releases {
			for _, dep := range rel.Dependencies {
				if dep.Optional {
					continue
				}
				depRepo := dep.Repository
				if depRepo == "" {
					depRepo = req.Repo.Name
				}
				key := depRepo + "/" + dep.Package
				if seen[key] {
					continue
				}
				seen[key] = true
				repo, ok := repos[depRepo]
				if !ok {
					continue
				}
				frontier = append(frontier, registry.PrefetchRequest{Repo: repo, Name: dep.Package})
			}
		}
	}
	return nil
}

func buildLock(store *registry.Store, resolution *resolve.Resolution) *lockfile.Lock {
	lock := lockfile.New()
	for name, sel := range resolution.Selections {
		entry := lockfile.Entry{
			App:      name,
			Name:     sel.Name,
			Version:  sel.Version,
			Managers: []string{"mix"},
			Repo:     sel.Repo,
		}
		if sum, ok := store.Checksum(sel.Repo, sel.Name, sel.Version); ok {
			entry.ChecksumHex = checksum.Hex(sum)
		}
		if wireDeps, ok := store.Deps(sel.Repo, sel.Name, sel.Version); ok {
			for _, d := range wireDeps {
				if d.Optional {
					continue
				}
				entry.Dependencies = append(entry.Dependencies, [2]string{d.Package, d.Requirement})
			}
		}
		lock.Put(entry)
	}
	return lock
}
