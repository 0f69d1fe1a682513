// Package resolve implements a chronological backtracking solver:
// given a project's direct dependency declarations and an optional
// lockfile pinning, it produces a consistent version selection for
// every transitively required package, or a structured conflict
// explaining which requirements could not be jointly satisfied. On a
// failure it moves to the next candidate of the most recently chosen
// name; it does not jump back directly to the choice that caused the
// conflict.
package resolve

import (
	"log/slog"
	"sort"

	pkgerrors "github.com/packwright/core/internal/errors"
	"github.com/packwright/core/internal/version"
)

// Node is one entry of the input dependency tree: a requirement on
// (Repo, Name), where it came from, and whether it overrides deeper
// occurrences of names already claimed at or above its own level.
type Node struct {
	Repo        string
	Name        string
	Requirement string
	Optional    bool
	FromPath    string
	Override    bool
	Children    []*Node
}

// Dependency is one dependency declared by a specific release, as
// reported by Releases.Deps. It has the same shape as Node minus the
// tree-structural fields.
type Dependency struct {
	Repo        string
	Name        string
	Requirement string
	Optional    bool
	App         string
}

// Releases supplies the registry data the solver needs beyond what the
// static input tree already encodes: every known version of a package
// (newest first), whether a specific version is retired, and a
// version's own declared dependencies.
type Releases interface {
	Versions(repo, name string) []version.Version
	IsRetired(repo, name, ver string) bool
	Deps(repo, name, ver string) []Dependency
}

// Selection is one resolved package.
type Selection struct {
	Repo    string
	Name    string
	Version string
}

// Resolution is a complete, consistent version selection.
type Resolution struct {
	Selections map[string]Selection
	// Order is the deterministic name-processing order (first
	// appearance in a breadth-first walk), preserved for diagnostics
	// and for tests that assert on solve order.
	Order []string
}

type activeReq struct {
	Repo        string
	Requirement string
	FromPath    string
	Optional    bool
}

// Resolve runs the solver over roots, the project's direct dependency
// declarations (each node's Children may already carry a full static
// subtree, as in tests, or may be empty and left for releases.Deps to
// populate during the search, as in production).
func Resolve(roots []*Node, releases Releases, locked map[string]string) (*Resolution, error) {
	s := &solver{
		releases:     releases,
		locked:       locked,
		reqs:         map[string][]activeReq{},
		nameSeen:     map[string]bool{},
		claimedDepth: map[string]int{},
		selections:   map[string]Selection{},
		failed:       map[string]bool{},
	}
	s.flatten(roots)
	slog.Debug("resolve starting", "roots", len(roots), "names", len(s.names))

	if err := s.solve(0); err != nil {
		return nil, err
	}
	slog.Debug("resolve completed", "selections", len(s.selections))
	return &Resolution{
		Selections: s.selections,
		Order:      append([]string(nil), s.names...),
	}, nil
}

type solver struct {
	releases Releases
	locked   map[string]string

	reqs         map[string][]activeReq
	names        []string
	nameSeen     map[string]bool
	claimedDepth map[string]int

	selections map[string]Selection
	failed     map[string]bool
}

// queuedNode is one pending BFS visit during flatten, carrying the set
// of names an ancestor override has suppressed for this subtree.
type queuedNode struct {
	node       *Node
	depth      int
	overridden map[string]bool
}

// flatten walks roots breadth-first, recording each name's first
// appearance order and accumulating its active requirement conjunction.
// A node whose name is in its own overridden set (inherited from an
// ancestor flagged Override) contributes no requirement; an Override
// node's own children inherit a set additionally suppressing every name
// already claimed at or above the override node's own level, per the
// propagation rule that an override wins over deeper same-name
// requirements while a sibling's requirement at the same level still
// applies.
func (s *solver) flatten(roots []*Node) {
	queue := make([]queuedNode, 0, len(roots))
	for _, r := range roots {
		queue = append(queue, queuedNode{node: r, depth: 1, overridden: map[string]bool{}})
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := cur.node

		if !cur.overridden[n.Name] {
			s.addRequirement(n.Name, n.Repo, n.Requirement, n.FromPath, n.Optional)
			if _, ok := s.claimedDepth[n.Name]; !ok {
				s.claimedDepth[n.Name] = cur.depth
			}
		}

		childOverridden := cur.overridden
		if n.Override {
			merged := make(map[string]bool, len(cur.overridden)+len(s.claimedDepth))
			for k, v := range cur.overridden {
				merged[k] = v
			}
			for claimedName := range s.claimedDepth {
				merged[claimedName] = true
			}
			childOverridden = merged
		}

		for _, c := range n.Children {
			queue = append(queue, queuedNode{node: c, depth: cur.depth + 1, overridden: childOverridden})
		}
	}
}

func (s *solver) addRequirement(name, repo, requirement, fromPath string, optional bool) {
	if !s.nameSeen[name] {
		s.nameSeen[name] = true
		s.names = append(s.names, name)
	}
	s.reqs[name] = append(s.reqs[name], activeReq{
		Repo:        repo,
		Requirement: requirement,
		FromPath:    fromPath,
		Optional:    optional,
	})
}

// required reports whether name has at least one non-optional active
// requirement, i.e. it is actually demanded rather than merely offered
// by an optional edge.
func (s *solver) required(name string) bool {
	for _, r := range s.reqs[name] {
		if !r.Optional {
			return true
		}
	}
	return false
}

// repoFor resolves the single repository every active requirement for
// name agrees on, or fails with RepoConflict if two disagree. An empty
// Repo field inherits whichever non-empty repo the conjunction settles
// on, defaulting to "hexpm" if none is specified anywhere.
func (s *solver) repoFor(name string) (string, error) {
	var repos []string
	for _, r := range s.reqs[name] {
		if r.Repo == "" {
			continue
		}
		repos = appendUnique(repos, r.Repo)
	}
	if len(repos) > 1 {
		sort.Strings(repos)
		return "", pkgerrors.NewRepoConflictError(name, repos)
	}
	if len(repos) == 1 {
		return repos[0], nil
	}
	return "hexpm", nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// solve resolves s.names[idx:], recursing forward and backtracking on
// failure. Names discovered mid-search (via a candidate's own declared
// dependencies) are appended to s.names and are reached by the same
// loop once earlier indices are settled.
func (s *solver) solve(idx int) error {
	if idx >= len(s.names) {
		return nil
	}
	name := s.names[idx]

	if !s.required(name) {
		return s.solve(idx + 1)
	}

	repo, err := s.repoFor(name)
	if err != nil {
		return err
	}

	if lockedVersion, ok := s.locked[name]; ok {
		if s.satisfiesAll(name, lockedVersion) {
			if s.releases != nil && s.releases.IsRetired(repo, name, lockedVersion) {
				slog.Warn("using retired but locked release", "name", name, "version", lockedVersion, "repo", repo)
			}
			if err := s.tryCandidate(idx, name, repo, lockedVersion); err == nil {
				return nil
			}
			// The lock pin is unusable against the current
			// requirement set; fall through to a normal search.
			// Failures recorded under the pin depended on it.
			clear(s.failed)
		}
	}

	candidates := s.candidates(name, repo)
	for _, candidate := range candidates {
		key := name + "@" + candidate
		if s.failed[key] {
			continue
		}
		if !s.satisfiesAll(name, candidate) {
			continue
		}
		if err := s.tryCandidate(idx, name, repo, candidate); err == nil {
			return nil
		}
		// Failures recorded while this candidate was selected depended
		// on it, so they do not carry over to the next candidate.
		clear(s.failed)
		s.failed[key] = true
	}

	return pkgerrors.NewResolutionError(name, s.origins(name))
}

// tryCandidate tentatively selects candidate for name, extends the
// active requirement set with its own declared dependencies, recurses
// into the rest of the search, and rolls back every side effect if that
// recursive search fails.
func (s *solver) tryCandidate(idx int, name, repo, candidate string) error {
	s.selections[name] = Selection{Repo: repo, Name: name, Version: candidate}

	addedNames, addedReqCounts := s.extend(name, repo, candidate)

	err := s.solve(idx + 1)
	if err == nil {
		return nil
	}

	delete(s.selections, name)
	s.rollback(addedNames, addedReqCounts)
	return err
}

// extend pulls in candidate's own declared dependencies, as reported by
// Releases.Deps, as new active requirements, returning enough
// information for rollback on backtrack. A node's static children in
// the input tree are added by flatten, not here.
func (s *solver) extend(name, repo, candidate string) (addedNames []string, addedReqCounts map[string]int) {
	addedReqCounts = map[string]int{}
	if s.releases == nil {
		return nil, addedReqCounts
	}

	for _, dep := range s.releases.Deps(repo, name, candidate) {
		before := len(s.reqs[dep.Name])
		wasSeen := s.nameSeen[dep.Name]
		s.addRequirement(dep.Name, dep.Repo, dep.Requirement, name, dep.Optional)
		if !wasSeen {
			addedNames = append(addedNames, dep.Name)
		}
		addedReqCounts[dep.Name] += len(s.reqs[dep.Name]) - before
	}
	return addedNames, addedReqCounts
}

func (s *solver) rollback(addedNames []string, addedReqCounts map[string]int) {
	for name, n := range addedReqCounts {
		cur := s.reqs[name]
		if n > 0 && n <= len(cur) {
			s.reqs[name] = cur[:len(cur)-n]
		}
	}
	for i := len(addedNames) - 1; i >= 0; i-- {
		name := addedNames[i]
		delete(s.nameSeen, name)
		if len(s.names) > 0 && s.names[len(s.names)-1] == name {
			s.names = s.names[:len(s.names)-1]
		}
	}
}

// candidates returns name's known versions, newest first, skipping
// retired versions (the locked-pin path in solve handles the one case
// where a retired version is still selectable).
func (s *solver) candidates(name, repo string) []string {
	if s.releases == nil {
		return nil
	}
	versions := s.releases.Versions(repo, name)
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		if s.releases.IsRetired(repo, name, v.String()) {
			continue
		}
		out = append(out, v.String())
	}
	return out
}

// satisfiesAll reports whether candidate (a version string) matches
// every active requirement conjuncted for name.
func (s *solver) satisfiesAll(name, candidate string) bool {
	v, err := version.Parse(candidate)
	if err != nil {
		return false
	}
	for _, r := range s.reqs[name] {
		req, err := version.ParseRequirement(r.Requirement)
		if err != nil {
			return false
		}
		if !version.Match(v, req) {
			return false
		}
	}
	return true
}

func (s *solver) origins(name string) []pkgerrors.RequirementOrigin {
	reqs := s.reqs[name]
	out := make([]pkgerrors.RequirementOrigin, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, pkgerrors.RequirementOrigin{Requirement: r.Requirement, FromPath: r.FromPath})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FromPath < out[j].FromPath })
	return out
}
