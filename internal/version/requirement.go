package version

import (
	"strings"

	pkgerrors "github.com/packwright/core/internal/errors"
)

// Operator is one of the constraint comparison operators.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpTilde        Operator = "~>"
)

// Constraint is a single (operator, version) pair. HasPatch records
// whether a "~>" constraint's version text included an explicit patch
// component ("~> 1.2.3") versus only major.minor ("~> 1.2") — the two
// forms are distinct parses with different match windows even though
// both use OpTilde.
type Constraint struct {
	Op       Operator
	V        Version
	HasPatch bool
}

// Requirement is a conjunction of constraints. A zero-value Requirement
// (no constraints) is the null requirement and matches any version.
type Requirement struct {
	Constraints []Constraint
	source      string
}

// IsNull reports whether r has no constraints.
func (r Requirement) IsNull() bool { return len(r.Constraints) == 0 }

// String returns the original requirement text.
func (r Requirement) String() string { return r.source }

// ParseRequirement parses a conjunction of comma-separated constraints,
// e.g. "~> 1.2, != 1.2.5". An empty string is the null requirement.
func ParseRequirement(text string) (Requirement, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Requirement{source: text}, nil
	}

	parts := strings.Split(trimmed, ",")
	constraints := make([]Constraint, 0, len(parts))
	for _, part := range parts {
		c, err := parseConstraint(strings.TrimSpace(part))
		if err != nil {
			return Requirement{}, pkgerrors.NewRequirementError(text, err)
		}
		constraints = append(constraints, c)
	}
	return Requirement{Constraints: constraints, source: text}, nil
}

// MustParseRequirement parses text, panicking on error.
func MustParseRequirement(text string) Requirement {
	r, err := ParseRequirement(text)
	if err != nil {
		panic(err)
	}
	return r
}

func parseConstraint(text string) (Constraint, error) {
	for _, op := range []Operator{OpTilde, OpGreaterEqual, OpLessEqual, OpNotEqual, OpGreater, OpLess, OpEqual} {
		if rest, ok := strings.CutPrefix(text, string(op)); ok {
			versionText := strings.TrimSpace(rest)
			if versionText == "" {
				return Constraint{}, pkgerrors.ErrMalformedConstraint(text)
			}
			v, err := Parse(versionText)
			if err != nil {
				return Constraint{}, err
			}
			return Constraint{Op: op, V: v, HasPatch: hasPatchComponent(versionText)}, nil
		}
	}
	// No explicit operator: bare version implies exact match.
	v, err := Parse(text)
	if err != nil {
		return Constraint{}, err
	}
	return Constraint{Op: OpEqual, V: v, HasPatch: hasPatchComponent(text)}, nil
}

// hasPatchComponent reports whether the numeric core of text contains a
// patch component, i.e. at least two dots before any "-" or "+".
func hasPatchComponent(text string) bool {
	core := text
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	return strings.Count(core, ".") >= 2
}

// Match reports whether v satisfies requirement r.
//
// The null requirement matches any version. Otherwise every constraint
// in the conjunction must hold, and if v carries a pre-release sequence
// it additionally matches only when some constraint's version also
// carries a pre-release sharing v's (major, minor, patch) triple — a
// pre-release release is invisible to ordinary requirements.
func Match(v Version, r Requirement) bool {
	if r.IsNull() {
		return true
	}

	if v.Prerelease() != "" && !requirementMentionsPrerelease(v, r) {
		return false
	}

	for _, c := range r.Constraints {
		if !matchConstraint(v, c) {
			return false
		}
	}
	return true
}

func requirementMentionsPrerelease(v Version, r Requirement) bool {
	for _, c := range r.Constraints {
		if c.V.Prerelease() != "" && sameTriple(c.V, v) {
			return true
		}
	}
	return false
}

func matchConstraint(v Version, c Constraint) bool {
	switch c.Op {
	case OpEqual:
		return v.Equal(c.V)
	case OpNotEqual:
		return !v.Equal(c.V)
	case OpGreater:
		return v.GreaterThan(c.V)
	case OpGreaterEqual:
		return v.GreaterThan(c.V) || v.Equal(c.V)
	case OpLess:
		return v.LessThan(c.V)
	case OpLessEqual:
		return v.LessThan(c.V) || v.Equal(c.V)
	case OpTilde:
		return matchTilde(v, c)
	default:
		return false
	}
}

// matchTilde implements "~>": with M.N it matches [M.N.0, M+1.0.0); with
// M.N.P it matches [M.N.P, M.N+1.0).
func matchTilde(v Version, c Constraint) bool {
	if c.HasPatch {
		lower := c.V
		upper := bumpMinor(c.V)
		return (v.GreaterThan(lower) || v.Equal(lower)) && v.LessThan(upper)
	}
	lower := floorMinor(c.V)
	upper := bumpMajor(c.V)
	return (v.GreaterThan(lower) || v.Equal(lower)) && v.LessThan(upper)
}
