package resolve_test

import (
	"errors"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	pkgerrors "github.com/packwright/core/internal/errors"
	"github.com/packwright/core/internal/resolve"
	"github.com/packwright/core/internal/version"
)

type fakeReleases struct {
	versions map[string][]string
	deps     map[string][]resolve.Dependency
	retired  map[string]bool
}

func key(repo, name string) string { return repo + "/" + name }

func (f fakeReleases) Versions(repo, name string) []version.Version {
	texts := f.versions[key(repo, name)]
	out := make([]version.Version, 0, len(texts))
	for _, t := range texts {
		out = append(out, version.MustParse(t))
	}
	return out
}

func (f fakeReleases) IsRetired(repo, name, ver string) bool {
	return f.retired[key(repo, name)+"@"+ver]
}

func (f fakeReleases) Deps(repo, name, ver string) []resolve.Dependency {
	return f.deps[key(repo, name)+"@"+ver]
}

var _ = Describe("Resolve", func() {
	It("picks the newest version satisfying a single requirement", func() {
		roots := []*resolve.Node{
			{Name: "a", Requirement: "~> 1.0", FromPath: "root"},
		}
		releases := fakeReleases{versions: map[string][]string{
			key("hexpm", "a"): {"2.0.0", "1.5.0", "1.0.0"},
		}}

		res, err := resolve.Resolve(roots, releases, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Selections["a"].Version).To(Equal("1.5.0"))

		want := &resolve.Resolution{
			Selections: map[string]resolve.Selection{
				"a": {Repo: "hexpm", Name: "a", Version: "1.5.0"},
			},
			Order: []string{"a"},
		}
		if diff := cmp.Diff(want, res); diff != "" {
			Fail("resolution mismatch (-want +got):\n" + diff)
		}
	})

	It("backtracks to an earlier candidate when a later choice's own transitive requirement conflicts", func() {
		roots := []*resolve.Node{
			{Name: "a", FromPath: "root"},
			{Name: "b", FromPath: "root"},
		}
		releases := fakeReleases{
			versions: map[string][]string{
				key("hexpm", "a"): {"2.0.0", "1.0.0"},
				key("hexpm", "b"): {"1.0.0"},
				key("hexpm", "c"): {"2.0.0", "1.0.0"},
			},
			deps: map[string][]resolve.Dependency{
				key("hexpm", "a") + "@2.0.0": {{Name: "c", Requirement: "~> 2.0"}},
				key("hexpm", "a") + "@1.0.0": {{Name: "c", Requirement: "~> 1.0"}},
				key("hexpm", "b") + "@1.0.0": {{Name: "c", Requirement: "~> 1.0"}},
			},
		}

		res, err := resolve.Resolve(roots, releases, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Selections["a"].Version).To(Equal("1.0.0"))
		Expect(res.Selections["b"].Version).To(Equal("1.0.0"))
		Expect(res.Selections["c"].Version).To(Equal("1.0.0"))
	})

	It("rolls back every name a backtracked candidate introduced, not just the last one", func() {
		roots := []*resolve.Node{
			{Name: "a", FromPath: "root"},
			{Name: "b", FromPath: "root"},
		}
		releases := fakeReleases{
			versions: map[string][]string{
				key("hexpm", "a"): {"2.0.0", "1.0.0"},
				key("hexpm", "b"): {"1.0.0"},
				key("hexpm", "c"): {"2.0.0", "1.0.0"},
				key("hexpm", "d"): {"1.0.0"},
			},
			deps: map[string][]resolve.Dependency{
				key("hexpm", "a") + "@2.0.0": {{Name: "c", Requirement: "~> 2.0"}, {Name: "d"}},
				key("hexpm", "a") + "@1.0.0": {{Name: "c", Requirement: "~> 1.0"}},
				key("hexpm", "b") + "@1.0.0": {{Name: "c", Requirement: "~> 1.0"}},
			},
		}

		res, err := resolve.Resolve(roots, releases, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Selections["a"].Version).To(Equal("1.0.0"))
		Expect(res.Selections["c"].Version).To(Equal("1.0.0"))
		Expect(res.Selections).NotTo(HaveKey("d"), "d was only introduced by the rejected a@2.0.0 candidate")

		seen := map[string]int{}
		for _, n := range res.Order {
			seen[n]++
		}
		for name, count := range seen {
			Expect(count).To(Equal(1), "name %q must appear exactly once in Order", name)
		}
	})

	It("suppresses a transitive requirement below an override for a name already claimed higher up", func() {
		roots := []*resolve.Node{
			{Name: "a", Requirement: "~> 1.0", FromPath: "root"},
			{
				Name: "b", Requirement: "~> 1.0", FromPath: "root", Override: true,
				Children: []*resolve.Node{
					{Name: "a", Requirement: "~> 2.0", FromPath: "b"},
				},
			},
		}
		releases := fakeReleases{versions: map[string][]string{
			key("hexpm", "a"): {"2.0.0", "1.5.0", "1.0.0"},
			key("hexpm", "b"): {"1.0.0"},
		}}

		res, err := resolve.Resolve(roots, releases, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Selections["a"].Version).To(Equal("1.5.0"))
		Expect(res.Selections["b"].Version).To(Equal("1.0.0"))
	})

	It("fails immediately with RepoConflict when the same name is demanded from two repositories", func() {
		roots := []*resolve.Node{
			{Name: "dep", Repo: "repo-a", FromPath: "root"},
			{
				Name: "other", FromPath: "root",
				Children: []*resolve.Node{
					{Name: "dep", Repo: "repo-b", FromPath: "other"},
				},
			},
		}
		releases := fakeReleases{versions: map[string][]string{
			key("repo-a", "dep"):   {"1.0.0"},
			key("hexpm", "other"): {"1.0.0"},
		}}

		_, err := resolve.Resolve(roots, releases, nil)
		Expect(err).To(HaveOccurred())
		var conflict *pkgerrors.RepoConflictError
		Expect(errors.As(err, &conflict)).To(BeTrue())
		Expect(conflict.Name).To(Equal("dep"))
	})

	It("does not pull in an optional dependency that nothing else requires", func() {
		roots := []*resolve.Node{
			{Name: "a", Requirement: "", Optional: true, FromPath: "root"},
		}
		releases := fakeReleases{versions: map[string][]string{
			key("hexpm", "a"): {"1.0.0"},
		}}

		res, err := resolve.Resolve(roots, releases, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Selections).NotTo(HaveKey("a"))
	})

	It("prefers a compatible locked version over searching for the newest candidate", func() {
		roots := []*resolve.Node{
			{Name: "a", Requirement: "~> 1.0", FromPath: "root"},
		}
		releases := fakeReleases{versions: map[string][]string{
			key("hexpm", "a"): {"1.3.0", "1.2.0", "1.0.0"},
		}}

		res, err := resolve.Resolve(roots, releases, map[string]string{"a": "1.2.0"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Selections["a"].Version).To(Equal("1.2.0"))
	})

	It("ignores a locked version that no longer satisfies the active requirement", func() {
		roots := []*resolve.Node{
			{Name: "a", Requirement: "~> 2.0", FromPath: "root"},
		}
		releases := fakeReleases{versions: map[string][]string{
			key("hexpm", "a"): {"2.1.0", "2.0.0"},
		}}

		res, err := resolve.Resolve(roots, releases, map[string]string{"a": "1.0.0"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Selections["a"].Version).To(Equal("2.1.0"))
	})

	It("reports a ResolutionError when no candidate satisfies the conjunction", func() {
		roots := []*resolve.Node{
			{Name: "a", Requirement: "~> 1.0", FromPath: "root"},
			{Name: "a", Requirement: "~> 2.0", FromPath: "other"},
		}
		releases := fakeReleases{versions: map[string][]string{
			key("hexpm", "a"): {"2.0.0", "1.0.0"},
		}}

		_, err := resolve.Resolve(roots, releases, nil)
		Expect(err).To(HaveOccurred())
		var resErr *pkgerrors.ResolutionError
		Expect(errors.As(err, &resErr)).To(BeTrue())
		Expect(resErr.Name).To(Equal("a"))
	})

	It("skips retired releases during ordinary candidate search", func() {
		roots := []*resolve.Node{
			{Name: "a", Requirement: "", FromPath: "root"},
		}
		releases := fakeReleases{
			versions: map[string][]string{key("hexpm", "a"): {"2.0.0", "1.0.0"}},
			retired:  map[string]bool{key("hexpm", "a") + "@2.0.0": true},
		}

		res, err := resolve.Resolve(roots, releases, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Selections["a"].Version).To(Equal("1.0.0"))
	})
})
