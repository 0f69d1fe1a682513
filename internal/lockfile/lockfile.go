// Package lockfile serializes and parses the resolved dependency set: a
// canonical, sorted text mapping from package name to its pinned
// version, checksum, managers, dependency references, and repository.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/packwright/core/internal/checksum"
	"github.com/packwright/core/internal/term"
)

// Entry is one locked package.
type Entry struct {
	App          string
	Name         string
	Version      string
	ChecksumHex  string
	Managers     []string
	Dependencies [][2]string // (name, requirement) pairs, canonical sorted
	Repo         string
}

// Lock is the full resolved set, keyed by application alias.
type Lock struct {
	Entries map[string]Entry
}

// New returns an empty Lock.
func New() *Lock { return &Lock{Entries: make(map[string]Entry)} }

// Put adds or replaces an entry.
func (l *Lock) Put(e Entry) {
	if l.Entries == nil {
		l.Entries = make(map[string]Entry)
	}
	l.Entries[e.App] = e
}

// Serialize renders the lock in canonical form: entries sorted by app
// name, each field within an entry sorted where order is not already
// significant (managers, dependency references). Re-serializing an
// unchanged Lock produces byte-identical output — the idempotence
// property tested in §8.
func (l *Lock) Serialize() string {
	names := make([]string, 0, len(l.Entries))
	for n := range l.Entries {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("%{\n")
	for _, name := range names {
		e := l.Entries[name]
		managers := append([]string(nil), e.Managers...)
		sort.Strings(managers)
		deps := append([][2]string(nil), e.Dependencies...)
		sort.Slice(deps, func(i, j int) bool { return deps[i][0] < deps[j][0] })

		tuple := term.Tuple{
			term.Atom("hex"),
			term.Binary(e.Name),
			term.Binary(e.Version),
			term.Binary(e.ChecksumHex),
			term.FromStrings(managers),
			term.FromPairs(deps),
			term.Binary(e.Repo),
		}
		b.WriteString(fmt.Sprintf("  %q: ", e.App))
		b.WriteString(term.String(tuple))
		b.WriteString(",\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// entryHeader matches the stable prefix every entry shape shares: the
// app alias and the name/version/checksum triple that precedes the
// variable tail (managers, deps, repo, in whichever subset this entry's
// era of the format wrote).
var entryHeader = regexp.MustCompile(`"([^"]+)":\s*\{hex,\s*<<"([^"]*)">>,\s*<<"([^"]*)">>,\s*<<"([^"]*)">>,\s*`)

// Parse reads a lockfile's canonical text, tolerating legacy tuple
// shapes: the trailing repo binary, the managers list, or both, may be
// absent from an older entry. Missing fields default (repo to "hexpm",
// managers to nil) rather than the entry being dropped.
func Parse(text string) (*Lock, error) {
	l := New()
	for _, header := range entryHeader.FindAllStringSubmatchIndex(text, -1) {
		app := text[header[2]:header[3]]
		e := Entry{
			App:         app,
			Name:        text[header[4]:header[5]],
			Version:     text[header[6]:header[7]],
			ChecksumHex: text[header[8]:header[9]],
		}

		tailStart := header[1]
		tailEnd := matchingBraceEnd(text, tailStart)
		if tailEnd < 0 {
			continue
		}
		managers, deps, repo := classifyTail(splitTopLevel(text[tailStart:tailEnd]))
		e.Managers = managers
		e.Dependencies = deps
		e.Repo = repo
		if e.Repo == "" {
			e.Repo = "hexpm"
		}
		l.Put(e)
	}
	return l, nil
}

// matchingBraceEnd returns the index of the "}" that closes the entry
// tuple whose opening "{" precedes from (already consumed by
// entryHeader), or -1 if the text is truncated mid-entry.
func matchingBraceEnd(text string, from int) int {
	depth := 1
	for i := from; i < len(text); i++ {
		switch text[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s on commas at bracket depth 0, so a managers or
// deps list's internal commas are not mistaken for field separators.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '{':
			depth++
		case ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

// classifyTail interprets an entry's variable-arity tail. A list-shaped
// part ("[...]") is managers if a second list follows, otherwise deps; a
// binary-shaped part ("<<\"...\">>") is the repo.
func classifyTail(parts []string) (managers []string, deps [][2]string, repo string) {
	switch len(parts) {
	case 3:
		managers = splitBinaryList(trimBrackets(parts[0]))
		deps = splitDependencyPairs(trimBrackets(parts[1]))
		repo = trimBinary(parts[2])
	case 2:
		if strings.HasPrefix(parts[0], "[") && strings.HasPrefix(parts[1], "[") {
			managers = splitBinaryList(trimBrackets(parts[0]))
			deps = splitDependencyPairs(trimBrackets(parts[1]))
		} else {
			deps = splitDependencyPairs(trimBrackets(parts[0]))
			repo = trimBinary(parts[1])
		}
	case 1:
		deps = splitDependencyPairs(trimBrackets(parts[0]))
	}
	return managers, deps, repo
}

func trimBrackets(s string) string {
	s = strings.TrimPrefix(s, "[")
	return strings.TrimSuffix(s, "]")
}

func trimBinary(s string) string {
	s = strings.TrimPrefix(s, `<<"`)
	return strings.TrimSuffix(s, `">>`)
}

func splitBinaryList(inner string) []string {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil
	}
	var out []string
	for _, part := range regexp.MustCompile(`<<"([^"]*)">>`).FindAllStringSubmatch(inner, -1) {
		out = append(out, part[1])
	}
	return out
}

func splitDependencyPairs(inner string) [][2]string {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil
	}
	var out [][2]string
	for _, part := range regexp.MustCompile(`\{<<"([^"]*)">>,\s*<<"([^"]*)">>\}`).FindAllStringSubmatch(inner, -1) {
		out = append(out, [2]string{part[1], part[2]})
	}
	return out
}

// Write atomically persists lock to path: serialize, write to a
// temporary file in the same directory, then rename over the
// destination. The write is held under an advisory file lock for its
// duration so concurrent writers serialize instead of corrupting the
// file.
func Write(path string, lock *Lock) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return err
	}
	defer fl.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(lock.Serialize()), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	slog.Debug("wrote lockfile", "path", path, "entries", len(lock.Entries))
	return nil
}

// Load reads and parses the lockfile at path. A missing file yields an
// empty Lock rather than an error, matching a fresh checkout with no
// prior resolution.
func Load(path string) (*Lock, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(string(raw))
}

// ChecksumMatches reports whether e's checksum matches sum.
func (e Entry) ChecksumMatches(sum [checksum.Size]byte) bool {
	return strings.EqualFold(e.ChecksumHex, checksum.Hex(sum))
}
